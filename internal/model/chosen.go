package model

import "fmt"

// ChosenStatus is the ordinal chosen-status of a Path: not-chosen-yet
// and rejected are small negative sentinels, and a chosen path encodes
// the outer iteration and simulation sub-iteration it was chosen at as
// iter + sub/100.
type ChosenStatus float64

const (
	NotChosenYet ChosenStatus = -1
	Rejected     ChosenStatus = -2
)

// Chosen builds the ordinal tag for a path chosen at outer iteration iter,
// simulation sub-iteration sub. sub must be in [0, 99].
func Chosen(iter, sub int) ChosenStatus {
	return ChosenStatus(float64(iter) + float64(sub)/100)
}

// IsChosen reports whether this status represents an actual chosen path
// (as opposed to NotChosenYet or Rejected).
func (c ChosenStatus) IsChosen() bool {
	return c != NotChosenYet && c != Rejected
}

func (c ChosenStatus) String() string {
	switch c {
	case NotChosenYet:
		return "not-chosen-yet"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("chosen@%.2f", float64(c))
	}
}
