package activity

// PanicError is returned by the executor when an action panicked.
type PanicError struct {
	message    string
	stacktrace string
}

func (pe *PanicError) Error() string {
	return "panic: " + pe.message
}

func (pe *PanicError) Message() string {
	return pe.message
}

func (pe *PanicError) Stacktrace() string {
	return pe.stacktrace
}
