// Package kratos provides a server middleware that runs each request inside a
// transaction: commit when the handler succeeds, rollback when it errors.
package kratos

import (
	"context"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/go-txn/txman"
	uhttp "github.com/go-txn/txman/http"
)

func contains(vals []string, s string) bool {
	for _, v := range vals {
		if v == s {
			return true
		}
	}

	return false
}

// SkipFunc identifies whether a request should skip running in a transaction
type SkipFunc func(ctx context.Context, req interface{}) bool

type option struct {
	skip    SkipFunc
	txOpt   []txman.TxOption
	skipOps []string
}

type Option func(*option)

// WithSkip replaces DefaultSkip.
func WithSkip(f SkipFunc) Option {
	return func(o *option) {
		o.skip = f
	}
}

// WithForceSkipOp excludes operations from the middleware entirely, via
// selector matching.
func WithForceSkipOp(ops ...string) Option {
	return func(o *option) {
		o.skipOps = ops
	}
}

// WithTxOption sets the begin options (propagation, isolation) used for
// wrapped requests.
func WithTxOption(opts ...txman.TxOption) Option {
	return func(o *option) {
		o.txOpt = opts
	}
}

// DefaultSkip treats read-only traffic as not worth a transaction: operations
// whose action is prefixed by "get" or "list" (case-insensitive), and HTTP
// requests using a safe method.
func DefaultSkip() SkipFunc {
	return func(ctx context.Context, req interface{}) bool {
		t, ok := transport.FromServerContext(ctx)
		if !ok {
			return false
		}
		if len(t.Operation()) > 0 && readOnlyOperation(t.Operation()) {
			log.Debugf("skip transaction for read-only operation %s", t.Operation())
			return true
		}
		if ht, ok := t.(*http.Transport); ok && contains(uhttp.SafeMethods, ht.Request().Method) {
			log.Debugf("skip transaction for safe method %s", ht.Request().Method)
			return true
		}
		return false
	}
}

// Transactional is a server middleware wrapping each request in a unit of
// work: commit on success, rollback on error.
func Transactional(m txman.Manager, opts ...Option) middleware.Middleware {
	opt := &option{
		skip: DefaultSkip(),
	}
	for _, o := range opts {
		o(opt)
	}
	return selector.Server(func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if opt.skip(ctx, req) {
				return next(ctx, req)
			}
			var res interface{}
			err := m.Do(ctx, func(ctx context.Context) error {
				var ierr error
				res, ierr = next(ctx, req)
				return ierr
			}, opt.txOpt...)
			return res, err
		}
	}).Match(func(ctx context.Context, operation string) bool {
		return !contains(opt.skipOps, operation)
	}).Build()
}

// readOnlyOperation reports whether the action segment of a kratos operation
// name, the part after the last "/", starts with "get" or "list".
func readOnlyOperation(operation string) bool {
	act := strings.ToLower(operation[strings.LastIndex(operation, "/")+1:])
	return strings.HasPrefix(act, "get") || strings.HasPrefix(act, "list")
}
