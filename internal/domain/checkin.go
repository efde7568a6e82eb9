package domain

import "time"

// CheckInEvent is one successful check-in recorded against a benefit.
type CheckInEvent struct {
	ID           string
	CredentialID string
	BenefitID    string
	HolderDID    string
	Period       string
	OccurredAt   time.Time
}

// UsageRecord pairs a check-in event with the monthly cap it must stay under.
// A zero cap means the benefit is unlimited and only the event is logged.
type UsageRecord struct {
	Event CheckInEvent
	Cap   int
}

// UsagePeriod returns the calendar month (UTC) used to bucket usage counters.
func UsagePeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}
