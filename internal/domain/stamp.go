package domain

import "time"

// NextStamp returns the write stamp for a document last written at prev.
// Stamps have microsecond precision so they survive a timestamptz
// round-trip, and they strictly increase so every write changes the CAS token.
func NextStamp(prev, now time.Time) time.Time {
	next := now.UTC().Truncate(time.Microsecond)
	if !next.After(prev) {
		next = prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return next
}

func timePtr(t time.Time) *time.Time { return &t }
