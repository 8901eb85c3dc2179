package codec

import (
	canonabi "github.com/wippyai/canon-abi"
	"github.com/wippyai/canon-abi/types"
)

// Encoding selects the guest string encoding for one call site.
type Encoding uint8

const (
	UTF8 Encoding = iota
	UTF16
	// Latin1UTF16 is the dynamic hybrid: each string is stored as Latin-1
	// when every code point fits a byte, otherwise as UTF-16 with the top
	// bit of the packed code-unit count set.
	Latin1UTF16
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf8"
	case UTF16:
		return "utf16"
	case Latin1UTF16:
		return "latin1+utf16"
	case Latin1:
		return "latin1"
	}
	return "unknown"
}

// Options is the canonical-option bundle attached to a call site by the
// external front end.
type Options struct {
	Encoding   Encoding
	Memory     canonabi.Memory
	Realloc    canonabi.Allocator
	PostReturn func() // optional post-return hook
	Sync       bool   // synchronous vs asynchronous binding
}

// HandleScope resolves handle-bearing descriptors (own, borrow, stream,
// future, error-context) against the tables of the call currently lifting
// or lowering. It is implemented by the task engine; lifting and lowering a
// handle mutates table state, so a scope is only valid for the duration of
// the enclosing call.
type HandleScope interface {
	// LiftHandle converts a table index read from the guest into an
	// abstract value, applying the transfer rules of t.Kind (remove for
	// own, peek+lend for borrow, end transfer for stream/future).
	LiftHandle(t *types.Type, index uint32) (any, error)

	// LowerHandle converts an abstract handle value into a table index in
	// the receiving instance.
	LowerHandle(t *types.Type, v any) (uint32, error)
}

// Context carries everything one lift/lower needs: the call-site options
// and the handle scope of the enclosing call.
type Context struct {
	Opts  *Options
	Scope HandleScope
}

func NewContext(opts *Options, scope HandleScope) *Context {
	return &Context{Opts: opts, Scope: scope}
}

func (cx *Context) memory() canonabi.Memory {
	return cx.Opts.Memory
}
