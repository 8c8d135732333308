package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoRoute        = errors.New("no matching route")
	ErrAmbiguousRoute = errors.New("ambiguous route")
)

// RoutingError is returned when a definition cannot route a reached state. It always wraps
// ErrNoRoute or ErrAmbiguousRoute.
type RoutingError struct {
	Definition string

	// From is the activity that completed, or Start.
	From string

	// Result summarizes the record routing was attempted for.
	Result string

	// Matches lists the competing entries of an ambiguous route.
	Matches []string

	Err error
}

func (e *RoutingError) Error() string {
	msg := fmt.Sprintf("%s: %v after %q for %s", e.Definition, e.Err, e.From, e.Result)
	if len(e.Matches) > 0 {
		msg += " (candidates: " + strings.Join(e.Matches, "; ") + ")"
	}

	return msg
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}
