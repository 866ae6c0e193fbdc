package dispatch

import (
	"errors"
	"fmt"
)

// Outcome is the result of one server attempt.
type Outcome int

const (
	NotAttempted Outcome = iota
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "not_attempted"
	}
}

// ErrInconsistentOutcome is returned when neither server was attempted. The
// enablement checks make this unreachable from Dispatch.
var ErrInconsistentOutcome = errors.New("internal inconsistency: neither server was attempted")

// Summarize reduces both outcomes to the sentence reported to the user.
func Summarize(primary, secondary Outcome, testRun bool) (string, error) {
	x := "email"
	if testRun {
		x = "test email"
	}
	switch primary {
	case Succeeded:
		switch secondary {
		case Succeeded:
			return fmt.Sprintf("All servers sent the %s successfully!", x), nil
		case Failed:
			return fmt.Sprintf("Primary server sent the %s successfully! Secondary server failed to send the %s!", x, x), nil
		default:
			if testRun {
				return fmt.Sprintf("Primary server sent the %s successfully! Secondary server was not started!", x), nil
			}
			return fmt.Sprintf("Primary server sent the %s successfully!", x), nil
		}
	case Failed:
		switch secondary {
		case Succeeded:
			return fmt.Sprintf("Secondary server sent the %s successfully! Primary server failed to send the %s!", x, x), nil
		case Failed:
			return fmt.Sprintf("All servers failed to send the %s!", x), nil
		default:
			return fmt.Sprintf("Primary server failed to send the %s! Secondary server was not started! Unable to send the %s!", x, x), nil
		}
	default:
		switch secondary {
		case Succeeded:
			return fmt.Sprintf("Primary server was not started! Secondary server sent the %s successfully!", x), nil
		case Failed:
			return fmt.Sprintf("Primary server was not started! Secondary server failed to send the %s!", x), nil
		default:
			return "", ErrInconsistentOutcome
		}
	}
}

// ShouldSurface reports whether the summary is shown to the user. Background
// sends only speak up on primary success or when everything failed.
func ShouldSurface(primary, secondary Outcome, testRun bool) bool {
	if testRun {
		return true
	}
	return primary == Succeeded || (primary == Failed && secondary == Failed)
}
