package activity

import (
	"errors"
	"fmt"
)

const (
	// ReasonActivityError is reported for errors that do not carry their own reason.
	ReasonActivityError = "ACT-0001_Activity error"

	// ReasonActivityPanic is reported when an action panics. The detail holds the stack.
	ReasonActivityPanic = "ACT-0002_Activity panic"
)

// Failure is a structured activity failure. Reason is a short stable identifier made of a domain
// prefix, a numeric code, and a description, e.g. "THB-0001_Error in image thumbnail creation".
// Detail is free-form diagnostic text.
type Failure struct {
	Reason string
	Detail string
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return f.Reason
	}

	return f.Reason + ": " + f.Detail
}

// NewFailure creates a failure with the given reason and detail.
func NewFailure(reason, detail string) *Failure {
	return &Failure{Reason: reason, Detail: detail}
}

// Failf creates a failure with the given reason and a formatted detail.
func Failf(reason string, format string, args ...any) *Failure {
	return &Failure{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// WrapFailure reports err under reason, using the error text as detail.
func WrapFailure(reason string, err error) *Failure {
	return &Failure{Reason: reason, Detail: err.Error()}
}

// ToFailure converts any error returned by an action into the failure that's reported.
func ToFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	return &Failure{Reason: ReasonActivityError, Detail: err.Error()}
}
