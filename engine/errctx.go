package engine

// ErrorContext is an opaque diagnostic record. Its message exists only
// for debugging; correctness never depends on it, and the engine may be
// configured to discard it at creation.
type ErrorContext struct {
	msg string
}

// DebugMessage returns the retained message, possibly empty.
func (e *ErrorContext) DebugMessage() string {
	return e.msg
}

// ErrorContextNew is the error-context.new built-in.
func (i *Instance) ErrorContextNew(msg string) (uint32, error) {
	ec := &ErrorContext{}
	if i.eng.cfg.RetainDebugMessages {
		ec.msg = msg
	}
	return i.errctxs.Add(ec)
}

// ErrorContextDebugMessage is the error-context.debug-message built-in.
func (i *Instance) ErrorContextDebugMessage(idx uint32) (string, error) {
	ec, err := i.errctxs.Get(idx)
	if err != nil {
		return "", err
	}
	return ec.DebugMessage(), nil
}

// ErrorContextDrop is the error-context.drop built-in.
func (i *Instance) ErrorContextDrop(idx uint32) error {
	_, err := i.errctxs.Remove(idx)
	return err
}
