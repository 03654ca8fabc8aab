package gorm

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/mattn/go-sqlite3"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/go-txn/txman"
	"github.com/go-txn/txman/dialect"
	"github.com/go-txn/txman/pool"
	"github.com/go-txn/txman/stdsql"
)

type post struct {
	gorm.Model
}

var (
	client   *gorm.DB
	mgr      txman.Manager
	accessor *txman.Accessor
)

type L struct {
}

func (l L) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	if level == sqldblogger.LevelError {
		fmt.Println(msg)
		fmt.Printf("%+v\n", data)
	}
}

func TestMain(m *testing.M) {
	db := sqldblogger.OpenDriver("file:gorm_test.DB?cache=shared&mode=memory&_busy_timeout=5000", &sqlite3.SQLiteDriver{}, L{})
	// The lease pool pins dedicated connections; keep headroom so the plain
	// gorm client used for verification can still connect.
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(4)

	var err error
	client, err = gorm.Open(&sqlite.Dialector{
		DriverName: sqlite.DriverName,
		Conn:       db,
	}, &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		panic(err)
	}
	if err = client.AutoMigrate(&post{}); err != nil {
		panic(err)
	}

	p := pool.New(stdsql.New(db), pool.Config{MaxSize: 2})
	binder := txman.NewBinder()
	mgr = txman.NewManager(p, binder,
		txman.WithTranslator(txman.NewTranslator(dialect.SQLite())))
	accessor = txman.NewAccessor(p, binder)

	exitCode := m.Run()
	_ = p.Close()
	os.Exit(exitCode)
}

func resolve(t *testing.T, ctx context.Context) (*gorm.DB, func()) {
	t.Helper()
	db, release, err := DB(ctx, client, accessor)
	require.NoError(t, err)
	return db, release
}

func TestCommit(t *testing.T) {
	err := mgr.Do(context.Background(), func(ctx context.Context) error {
		db, release := resolve(t, ctx)
		defer release()
		return db.Create(&post{gorm.Model{ID: 1001}}).Error
	})
	assert.NoError(t, err)

	p := &post{}
	err = client.First(p, "id = ?", 1001).Error
	assert.NoError(t, err)
	assert.Equal(t, uint(1001), p.ID)
}

func TestRollback(t *testing.T) {
	err := mgr.Do(context.Background(), func(ctx context.Context) error {
		db, release := resolve(t, ctx)
		defer release()
		if err := db.Create(&post{gorm.Model{ID: 1000}}).Error; err != nil {
			return err
		}
		return fmt.Errorf("fake error")
	})
	assert.Error(t, err)

	p := &post{}
	err = client.First(p, "id = ?", 1000).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPanicRollback(t *testing.T) {
	fakeError := fmt.Errorf("fake error")
	assert.PanicsWithValue(t, fakeError, func() {
		_ = mgr.Do(context.Background(), func(ctx context.Context) error {
			db, release := resolve(t, ctx)
			defer release()
			if err := db.Create(&post{gorm.Model{ID: 2000}}).Error; err != nil {
				return err
			}
			panic(fakeError)
		})
	})

	p := &post{}
	err := client.First(p, "id = ?", 2000).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestNested(t *testing.T) {
	// Inner Do calls join the outer transaction, all three writes commit as
	// one unit.
	err := mgr.Do(context.Background(), func(ctx context.Context) error {
		db, release := resolve(t, ctx)
		defer release()
		if err := db.Create(&post{gorm.Model{ID: 1002}}).Error; err != nil {
			return err
		}
		return mgr.Do(ctx, func(ctx context.Context) error {
			db, release := resolve(t, ctx)
			defer release()
			if err := db.Create(&post{gorm.Model{ID: 1003}}).Error; err != nil {
				return err
			}
			return mgr.Do(ctx, func(ctx context.Context) error {
				db, release := resolve(t, ctx)
				defer release()
				return db.Create(&post{gorm.Model{ID: 1004}}).Error
			})
		})
	})
	assert.NoError(t, err)

	var count int64
	err = client.Model(&post{}).Where("id IN ?", []uint{1002, 1003, 1004}).Count(&count).Error
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestScratchSessionOutsideTransaction(t *testing.T) {
	ctx := context.Background()
	db, release, err := DB(ctx, client, accessor)
	require.NoError(t, err)
	defer release()

	assert.NoError(t, db.Create(&post{gorm.Model{ID: 3001}}).Error)

	p := &post{}
	assert.NoError(t, client.First(p, "id = ?", 3001).Error)
}
