package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the engine the trap occurred
type Phase string

const (
	PhaseLift     Phase = "lift"     // flat/memory to abstract value
	PhaseLower    Phase = "lower"    // abstract value to flat/memory
	PhaseLoad     Phase = "load"     // memory read
	PhaseStore    Phase = "store"    // memory write
	PhaseFlatten  Phase = "flatten"  // flat signature computation
	PhaseTask     Phase = "task"     // call lifecycle
	PhaseResource Phase = "resource" // handle lifecycle
	PhaseStream   Phase = "stream"   // stream/future operations
	PhaseWait     Phase = "wait"     // waitable-set operations
)

// Kind categorizes the trap
type Kind string

const (
	KindOutOfBounds         Kind = "out_of_bounds"
	KindMisaligned          Kind = "misaligned"
	KindInvalidDiscriminant Kind = "invalid_discriminant"
	KindInvalidUTF8         Kind = "invalid_utf8"
	KindInvalidUTF16        Kind = "invalid_utf16"
	KindInvalidLatin1       Kind = "invalid_latin1"
	KindInvalidChar         Kind = "invalid_char"
	KindTypeMismatch        Kind = "type_mismatch"
	KindOverflow            Kind = "overflow"
	KindBadHandle           Kind = "bad_handle"
	KindBorrowViolation     Kind = "borrow_violation"
	KindReentrance          Kind = "reentrance"
	KindState               Kind = "state"
	KindTableFull           Kind = "table_full"
	KindAllocation          Kind = "allocation"
	KindChannelBusy         Kind = "channel_busy"
	KindChannelClosed       Kind = "channel_closed"
	KindUnsupported         Kind = "unsupported"
)

// Trap is the structured error used for every invariant violation in the
// engine. Traps abort the violating call and are never caught by the engine
// itself; they propagate to whatever embeds it.
type Trap struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Type   string
	Detail string
	Path   []string
}

// Error implements the error interface
func (t *Trap) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(t.Phase))
	b.WriteString("] ")
	b.WriteString(string(t.Kind))

	if len(t.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(t.Path, "."))
	}

	if t.Type != "" {
		b.WriteString(": type ")
		b.WriteString(t.Type)
	}

	if t.Detail != "" {
		if t.Type != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(t.Detail)
	}

	if t.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(t.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (t *Trap) Unwrap() error {
	return t.Cause
}

// Is reports whether target matches this trap
func (t *Trap) Is(target error) bool {
	if o, ok := target.(*Trap); ok {
		return t.Phase == o.Phase && t.Kind == o.Kind
	}
	return false
}

// Builder provides structured trap construction
type Builder struct {
	trap Trap
}

// New creates a new trap builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		trap: Trap{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the value path
func (b *Builder) Path(path ...string) *Builder {
	b.trap.Path = path
	return b
}

// Type sets the descriptor name
func (b *Builder) Type(t string) *Builder {
	b.trap.Type = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.trap.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.trap.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.trap.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.trap.Detail = msg
	}
	return b
}

// Build returns the constructed trap
func (b *Builder) Build() *Trap {
	return &b.trap
}

// Convenience constructors for common trap patterns

// OutOfBounds creates an out-of-bounds memory access trap
func OutOfBounds(phase Phase, addr, length uint32) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access of %d bytes at 0x%x out of bounds", length, addr),
		Value:  addr,
	}
}

// Misaligned creates a misaligned pointer trap
func Misaligned(phase Phase, addr, align uint32) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindMisaligned,
		Detail: fmt.Sprintf("pointer 0x%x not aligned to %d", addr, align),
		Value:  addr,
	}
}

// InvalidDiscriminant creates an out-of-range variant/enum tag trap
func InvalidDiscriminant(phase Phase, path []string, disc uint32, numCases int) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindInvalidDiscriminant,
		Path:   path,
		Detail: fmt.Sprintf("discriminant %d out of range (%d cases)", disc, numCases),
		Value:  disc,
	}
}

// InvalidUTF8 creates an invalid UTF-8 trap
func InvalidUTF8(phase Phase, data []byte) *Trap {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Trap{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// InvalidChar creates an invalid Unicode scalar trap
func InvalidChar(phase Phase, r uint32) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindInvalidChar,
		Detail: fmt.Sprintf("invalid Unicode scalar value 0x%X", r),
		Value:  r,
	}
}

// TypeMismatch creates a value/descriptor mismatch trap
func TypeMismatch(phase Phase, path []string, want string, got any) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Type:   want,
		Detail: fmt.Sprintf("value %T does not match descriptor", got),
		Value:  got,
	}
}

// BadHandle creates an invalid handle index trap
func BadHandle(phase Phase, index uint32) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindBadHandle,
		Detail: fmt.Sprintf("invalid handle index %d", index),
		Value:  index,
	}
}

// BorrowViolation creates a lend/borrow accounting trap
func BorrowViolation(phase Phase, detail string, args ...any) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindBorrowViolation,
		Detail: sprintf(detail, args...),
	}
}

// Reentrance creates a hazardous-reentrance trap
func Reentrance(detail string, args ...any) *Trap {
	return &Trap{
		Phase:  PhaseTask,
		Kind:   KindReentrance,
		Detail: sprintf(detail, args...),
	}
}

// State creates a wrong-call-state trap (built-in invoked outside its
// required call state).
func State(phase Phase, detail string, args ...any) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindState,
		Detail: sprintf(detail, args...),
	}
}

// Overflow creates a size/length overflow trap
func Overflow(phase Phase, detail string, args ...any) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: sprintf(detail, args...),
	}
}

// AllocationFailed creates an allocation failure trap
func AllocationFailed(phase Phase, size, align uint32, cause error) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// Unsupported creates an unsupported-operation trap
func Unsupported(phase Phase, what string) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with trap context
func Wrap(phase Phase, kind Kind, cause error, detail string, args ...any) *Trap {
	return &Trap{
		Phase:  phase,
		Kind:   kind,
		Detail: sprintf(detail, args...),
		Cause:  cause,
	}
}

func sprintf(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
