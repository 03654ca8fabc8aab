// Package dialect provides per-database error-code tables for the
// txman.Translator. Each dialect is configuration data: a code->kind map and
// a function extracting the vendor code from a driver error. Custom dialects
// can be built with New and made available with Register.
package dialect

import (
	"github.com/go-txn/txman"
)

// CodeFunc extracts the vendor-specific error code from a raw driver error.
// ok is false when err is not this driver's error type.
type CodeFunc func(err error) (code string, ok bool)

type dialect struct {
	name   string
	codes  map[string]txman.Kind
	codeOf CodeFunc
}

var _ txman.Dialect = (*dialect)(nil)

// New builds a dialect from a code table. The map is used as-is and must not
// be mutated afterwards; lookups are O(1).
func New(name string, codes map[string]txman.Kind, codeOf CodeFunc) txman.Dialect {
	return &dialect{name: name, codes: codes, codeOf: codeOf}
}

func (d *dialect) Name() string {
	return d.name
}

func (d *dialect) KindOf(err error) (txman.Kind, bool) {
	code, ok := d.codeOf(err)
	if !ok {
		return txman.Unknown, false
	}
	kind, ok := d.codes[code]
	return kind, ok
}

var dialects = make(map[string]txman.Dialect)

// Register registers a dialect under a name. Meant to be called from init or
// program startup, registration is not synchronized.
func Register(name string, d txman.Dialect) {
	dialects[name] = d
}

// Get retrieves a registered dialect by name.
func Get(name string) (txman.Dialect, bool) {
	d, ok := dialects[name]
	return d, ok
}
