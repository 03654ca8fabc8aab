package dialect

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/go-txn/txman"
)

// Postgres error codes are SQLSTATE values, see
// https://www.postgresql.org/docs/current/errcodes-appendix.html
var postgresCodes = map[string]txman.Kind{
	"23505": txman.DuplicateKey,

	"23000": txman.DataIntegrityViolation,
	"23502": txman.DataIntegrityViolation,
	"23503": txman.DataIntegrityViolation,
	"23514": txman.DataIntegrityViolation,
	"23P01": txman.DataIntegrityViolation,

	"03000": txman.SyntaxError,
	"42000": txman.SyntaxError,
	"42601": txman.SyntaxError,
	"42602": txman.SyntaxError,
	"42622": txman.SyntaxError,
	"42804": txman.SyntaxError,
	"42P01": txman.SyntaxError,

	// serialization failure, deadlock detected, lock not available
	"40001": txman.TransientError,
	"40P01": txman.TransientError,
	"55P03": txman.TransientError,
	// too many connections
	"53300": txman.TransientError,
}

func postgresCode(err error) (string, bool) {
	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		return pge.Code, true
	}
	return "", false
}

// Postgres returns the dialect for pgx driver errors.
func Postgres() txman.Dialect {
	return New("postgres", postgresCodes, postgresCode)
}

func init() {
	Register("postgres", Postgres())
}
