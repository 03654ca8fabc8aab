package kratos

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-kratos/kratos/v2/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-txn/txman"
	"github.com/go-txn/txman/mock"
	"github.com/go-txn/txman/pool"
)

type headerCarrier map[string]string

// Get returns the value associated with the passed key.
func (hc headerCarrier) Get(key string) string {
	return hc[key]
}

// Set stores the key-value pair.
func (hc headerCarrier) Set(key string, value string) {
	hc[key] = value
}

// Keys lists the keys stored in this carrier.
func (hc headerCarrier) Keys() []string {
	keys := make([]string, 0, len(hc))
	for k := range hc {
		keys = append(keys, k)
	}
	return keys
}

// mockTransport carries just enough server transport info for the selector
// and the skip function.
type mockTransport struct {
	operation string
}

var _ transport.Transporter = (*mockTransport)(nil)

func (m *mockTransport) Kind() transport.Kind            { return transport.KindGRPC }
func (m *mockTransport) Endpoint() string                { return "" }
func (m *mockTransport) Operation() string               { return m.operation }
func (m *mockTransport) RequestHeader() transport.Header { return headerCarrier{} }
func (m *mockTransport) ReplyHeader() transport.Header   { return headerCarrier{} }

func serverCtx(operation string) context.Context {
	return transport.NewServerContext(context.Background(), &mockTransport{operation: operation})
}

func newFixture(t *testing.T) (txman.Manager, *mock.Driver) {
	t.Helper()
	driver := mock.NewDriver()
	p := pool.New(driver, pool.Config{MaxSize: 2})
	t.Cleanup(func() { _ = p.Close() })
	return txman.NewManager(p, txman.NewBinder()), driver
}

func TestTransactionalCommit(t *testing.T) {
	mgr, driver := newFixture(t)

	var sawTx bool
	h := Transactional(mgr)(func(ctx context.Context, req interface{}) (interface{}, error) {
		_, sawTx = txman.ContextIDFromContext(ctx)
		return "reply", nil
	})

	res, err := h(serverCtx("/account.v1.AccountService/Transfer"), nil)
	require.NoError(t, err)
	assert.Equal(t, "reply", res)
	assert.True(t, sawTx)

	conns := driver.Opened()
	require.Len(t, conns, 1)
	assert.Equal(t, 1, conns[0].Commits)
	assert.Equal(t, 0, conns[0].Rollbacks)
}

func TestTransactionalRollbackOnError(t *testing.T) {
	mgr, driver := newFixture(t)

	fakeErr := fmt.Errorf("fake error")
	h := Transactional(mgr)(func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, fakeErr
	})

	_, err := h(serverCtx("/account.v1.AccountService/Transfer"), nil)
	assert.ErrorIs(t, err, fakeErr)

	conns := driver.Opened()
	require.Len(t, conns, 1)
	assert.Equal(t, 0, conns[0].Commits)
	assert.Equal(t, 1, conns[0].Rollbacks)
}

func TestDefaultSkipReadOperations(t *testing.T) {
	mgr, driver := newFixture(t)

	h := Transactional(mgr)(func(ctx context.Context, req interface{}) (interface{}, error) {
		_, ok := txman.ContextIDFromContext(ctx)
		assert.False(t, ok)
		return nil, nil
	})

	for _, op := range []string{
		"/account.v1.AccountService/GetAccount",
		"/account.v1.AccountService/ListAccounts",
	} {
		_, err := h(serverCtx(op), nil)
		require.NoError(t, err)
	}

	assert.Empty(t, driver.Opened())
}

func TestForceSkipOp(t *testing.T) {
	mgr, driver := newFixture(t)

	h := Transactional(mgr, WithForceSkipOp("/health.v1.Health/Check"))(
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, nil
		})

	_, err := h(serverCtx("/health.v1.Health/Check"), nil)
	require.NoError(t, err)
	assert.Empty(t, driver.Opened())

	_, err = h(serverCtx("/account.v1.AccountService/Transfer"), nil)
	require.NoError(t, err)
	require.Len(t, driver.Opened(), 1)
	assert.Equal(t, 1, driver.Opened()[0].Commits)
}

func TestWithSkipOverride(t *testing.T) {
	mgr, driver := newFixture(t)

	h := Transactional(mgr, WithSkip(func(ctx context.Context, req interface{}) bool {
		return true
	}))(func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, nil
	})

	_, err := h(serverCtx("/account.v1.AccountService/Transfer"), nil)
	require.NoError(t, err)
	assert.Empty(t, driver.Opened())
}

func TestReadOnlyOperation(t *testing.T) {
	assert.True(t, readOnlyOperation("/svc/GetMember"))
	assert.True(t, readOnlyOperation("/svc/listMembers"))
	assert.False(t, readOnlyOperation("/svc/CreateMember"))
	assert.False(t, readOnlyOperation("/svc/getaway.v1/Transfer"))
}
