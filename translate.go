package txman

import (
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// Dialect maps vendor-specific driver error codes onto the semantic taxonomy.
// Implementations are data, not logic: a code table plus a way to extract the
// code from a driver error. See the dialect subpackage for the built-ins.
type Dialect interface {
	Name() string
	// KindOf returns the Kind for err's vendor code. ok is false when the
	// code is not in the table (or err carries no vendor code at all).
	KindOf(err error) (kind Kind, ok bool)
}

// Translator reduces raw driver errors to SemanticErrors. It is the only
// component allowed to change an error's shape, and only by classification,
// never by dropping the cause.
type Translator struct {
	dialect Dialect
	logh    *log.Helper
}

// TranslatorOption configures a Translator.
type TranslatorOption func(*Translator)

func WithTranslatorLogger(l log.Logger) TranslatorOption {
	return func(t *Translator) {
		t.logh = log.NewHelper(l)
	}
}

// NewTranslator creates a Translator for the given dialect. A nil dialect is
// allowed and classifies everything as Unknown.
func NewTranslator(d Dialect, opts ...TranslatorOption) *Translator {
	t := &Translator{
		dialect: d,
		logh:    log.NewHelper(log.DefaultLogger),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate classifies err, composing the message from the operation label
// and statement text. Translation never fails: unmapped codes yield kind
// Unknown, and an error that is already semantic passes through unchanged.
// A nil err translates to nil.
func (t *Translator) Translate(op, stmt string, err error) *SemanticError {
	if err == nil {
		return nil
	}
	var se *SemanticError
	if errors.As(err, &se) {
		return se
	}

	kind := Unknown
	if t.dialect != nil {
		if k, ok := t.dialect.KindOf(err); ok {
			kind = k
		} else {
			t.logh.Debugf("no %s error code mapping for %v", t.dialect.Name(), err)
		}
	}

	msg := op
	if stmt != "" {
		msg = fmt.Sprintf("%s [%s]", op, stmt)
	}
	return &SemanticError{Kind: kind, Message: msg, Cause: err}
}
