package domain

import "time"

// MinorAgeThreshold is the age below which guardian-verified consent is
// mandatory before processing a subject's data (COPPA). Downstream workflow
// logic branches on this explicitly, so it lives here rather than inline.
const MinorAgeThreshold = 13

// Age returns the subject's age in whole years at the reference time.
// Uses calendar arithmetic (AddDate) for accurate birthday-boundary handling:
// the age increments exactly on the birthday, not 365 days after it.
func Age(birthDate, now time.Time) int {
	birthDate = birthDate.UTC()
	now = now.UTC()
	years := 0
	for !now.Before(birthDate.AddDate(years+1, 0, 0)) {
		years++
	}
	return years
}

// IsMinor reports whether the subject is under the guardian-consent threshold
// at the reference time.
//
// Example:
//
//	birthDate := time.Date(2013, 1, 15, 0, 0, 0, 0, time.UTC)
//	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC) // exactly 13th birthday
//	IsMinor(birthDate, now) // returns false
func IsMinor(birthDate, now time.Time) bool {
	return Age(birthDate, now) < MinorAgeThreshold
}
