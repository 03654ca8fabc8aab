package http

import (
	"context"
	"net/http"

	"github.com/go-txn/txman"
)

var (
	SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
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
type SkipFunc func(r *http.Request) bool

// EncodeErrorFunc how to encode error when a unit of work rolls back
type EncodeErrorFunc func(http.ResponseWriter, *http.Request, error)

type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

type option struct {
	skip       SkipFunc
	txOpt      []txman.TxOption
	errEncoder EncodeErrorFunc
}

type Option func(*option)

// WithSkip changes the skip function. default will skip SafeMethods like "GET", "HEAD", "OPTIONS", "TRACE"
func WithSkip(f SkipFunc) Option {
	return func(o *option) {
		o.skip = f
	}
}

// WithTxOption sets the begin options used for wrapped requests.
func WithTxOption(opts ...txman.TxOption) Option {
	return func(o *option) {
		o.txOpt = opts
	}
}

// WithErrorEncoder error encoder. default will not encode any error
func WithErrorEncoder(f EncodeErrorFunc) Option {
	return func(o *option) {
		o.errEncoder = f
	}
}

// Transactional wraps handler in a unit of work: the handler's error decides
// commit or rollback.
func Transactional(m txman.Manager, handler HandlerFunc, opts ...Option) http.Handler {
	opt := &option{
		skip: func(r *http.Request) bool {
			return contains(SafeMethods, r.Method)
		},
		errEncoder: func(w http.ResponseWriter, r *http.Request, err error) {
			//skip
		},
	}
	for _, o := range opts {
		o(opt)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if opt.skip(r) {
			err := handler(w, r)
			opt.errEncoder(w, r, err)
			return
		}
		//run into unit of work
		err := m.Do(r.Context(), func(ctx context.Context) error {
			return handler(w, r.WithContext(ctx))
		}, opt.txOpt...)
		opt.errEncoder(w, r, err)
	})
}
