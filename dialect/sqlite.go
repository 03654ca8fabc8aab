package dialect

import (
	"errors"
	"strconv"

	"github.com/mattn/go-sqlite3"

	"github.com/go-txn/txman"
)

// sqlite reports extended result codes; the plain code is the fallback when
// no extended code is set.
var sqliteCodes = map[string]txman.Kind{
	// SQLITE_CONSTRAINT_PRIMARYKEY, SQLITE_CONSTRAINT_UNIQUE
	"1555": txman.DuplicateKey,
	"2067": txman.DuplicateKey,

	// SQLITE_CONSTRAINT and its CHECK, FOREIGNKEY, NOTNULL variants
	"19":   txman.DataIntegrityViolation,
	"275":  txman.DataIntegrityViolation,
	"787":  txman.DataIntegrityViolation,
	"1299": txman.DataIntegrityViolation,

	// SQLITE_ERROR covers malformed SQL
	"1": txman.SyntaxError,

	// SQLITE_BUSY, SQLITE_LOCKED
	"5": txman.TransientError,
	"6": txman.TransientError,
}

func sqliteCode(err error) (string, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) {
		if se.ExtendedCode != 0 {
			return strconv.Itoa(int(se.ExtendedCode)), true
		}
		return strconv.Itoa(int(se.Code)), true
	}
	return "", false
}

// SQLite returns the dialect for mattn/go-sqlite3 errors.
func SQLite() txman.Dialect {
	return New("sqlite", sqliteCodes, sqliteCode)
}

func init() {
	Register("sqlite", SQLite())
}
