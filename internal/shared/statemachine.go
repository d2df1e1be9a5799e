package shared

import (
	"fmt"
	"slices"
)

// Transitions maps a target status to the statuses it may be entered from.
type Transitions[S ~string] map[S][]S

// Allows reports whether from -> to is a legal transition.
func (t Transitions[S]) Allows(from, to S) bool {
	return slices.Contains(t[to], from)
}

// Guard returns ErrInvalidStatus when from -> to is not in the table.
func (t Transitions[S]) Guard(from, to S) error {
	if t.Allows(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, from, to)
}
