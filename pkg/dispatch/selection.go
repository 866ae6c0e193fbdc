package dispatch

import (
	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/mailerr"
)

// Policy is the subset of configuration that drives server selection.
type Policy struct {
	PrimaryEnabled   bool
	SecondaryEnabled bool
	TestRun          bool
}

// PolicyFor derives the selection policy of cfg.
func PolicyFor(cfg config.Config, testRun bool) Policy {
	return Policy{
		PrimaryEnabled:   cfg.Primary.Enabled,
		SecondaryEnabled: cfg.Secondary.Enabled,
		TestRun:          testRun,
	}
}

// ShouldAttempt decides whether slot is attempted given the outcome of the
// slot before it. The primary has no predecessor and prior is ignored for it.
// A secondary following a disabled primary is treated as a first attempt.
// After a successful primary the secondary only runs on test runs so both
// channels are verified.
func ShouldAttempt(slot config.Slot, prior Outcome, p Policy) (bool, error) {
	switch slot {
	case config.SlotPrimary:
		return p.PrimaryEnabled, nil
	case config.SlotSecondary:
		if !p.SecondaryEnabled {
			return false, nil
		}
		switch prior {
		case Succeeded:
			return p.TestRun, nil
		default:
			return true, nil
		}
	default:
		return false, mailerr.Newf(mailerr.ErrUnknownServerType, mailerr.ReasonUnknownSlot, nil,
			"unknown SMTP server slot %q", slot)
	}
}
