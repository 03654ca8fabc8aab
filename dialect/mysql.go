package dialect

import (
	"errors"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/go-txn/txman"
)

var mysqlCodes = map[string]txman.Kind{
	"1062": txman.DuplicateKey,
	"1586": txman.DuplicateKey,

	// not-null, foreign key
	"1048": txman.DataIntegrityViolation,
	"1364": txman.DataIntegrityViolation,
	"1451": txman.DataIntegrityViolation,
	"1452": txman.DataIntegrityViolation,

	// unknown column, parse error, table doesn't exist
	"1054": txman.SyntaxError,
	"1064": txman.SyntaxError,
	"1146": txman.SyntaxError,

	// lock wait timeout, deadlock
	"1205": txman.TransientError,
	"1213": txman.TransientError,
}

func mysqlCode(err error) (string, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return strconv.Itoa(int(me.Number)), true
	}
	return "", false
}

// MySQL returns the dialect for go-sql-driver/mysql errors.
func MySQL() txman.Dialect {
	return New("mysql", mysqlCodes, mysqlCode)
}

func init() {
	Register("mysql", MySQL())
}
