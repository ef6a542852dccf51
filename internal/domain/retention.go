package domain

import (
	"fmt"
	"time"
)

// RetentionSource is the retention subsystem emitting a signal.
type RetentionSource string

const (
	RetentionWinback RetentionSource = "winback"
	RetentionRenewal RetentionSource = "renewal"
)

// RetentionOutcome is the status-change outcome carried by a signal.
type RetentionOutcome string

const (
	OutcomeRecovered      RetentionOutcome = "recovered"
	OutcomeSuccessful     RetentionOutcome = "successful"
	OutcomeMovedToQuoting RetentionOutcome = "moved_to_quoting"
)

// RetentionSignal is a status-change event from win-back or renewal.
type RetentionSignal struct {
	Source      RetentionSource
	Outcome     RetentionOutcome
	HouseholdID string
	OccurredAt  time.Time
}

// TargetStatus maps the signal to the status it forces. Win-back accepts
// recovered and moved_to_quoting; renewal accepts successful and
// moved_to_quoting.
func (s RetentionSignal) TargetStatus() (HouseholdStatus, error) {
	switch s.Source {
	case RetentionWinback:
		switch s.Outcome {
		case OutcomeRecovered:
			return StatusSold, nil
		case OutcomeMovedToQuoting:
			return StatusQuoted, nil
		}
	case RetentionRenewal:
		switch s.Outcome {
		case OutcomeSuccessful:
			return StatusSold, nil
		case OutcomeMovedToQuoting:
			return StatusQuoted, nil
		}
	default:
		return "", fmt.Errorf("%w: unknown source %q", ErrInvalidSignal, s.Source)
	}
	return "", fmt.Errorf("%w: outcome %q not valid for %s", ErrInvalidSignal, s.Outcome, s.Source)
}
