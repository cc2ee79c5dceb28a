package leads

import (
	"errors"
	"fmt"
)

// ErrLeadNotFound is returned when a lead is not found
var ErrLeadNotFound = errors.New("leads: lead not found")

// InvalidTransitionError is raised for a (from, to) pair absent from the
// transition table. The lead is left unchanged.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("leads: illegal transition %s -> %s", e.From, e.To)
}

// ChangedDuringTransitionError is raised when the row-locked re-read observes
// a status different from the caller's expected one. A concurrent worker won.
type ChangedDuringTransitionError struct {
	Expected Status
	Actual   Status
}

func (e *ChangedDuringTransitionError) Error() string {
	return fmt.Sprintf("leads: status changed during transition: expected %s, found %s", e.Expected, e.Actual)
}
