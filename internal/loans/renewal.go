// internal/loans/renewal.go
package loans

import (
	"errors"
	"time"
)

// Validation messages shown to the end user on the renewal form.
const (
	msgRenewalInPast      = "Invalid date - renewal in past"
	msgRenewalTooFarAhead = "Invalid date - renewal more than 4 weeks ahead"
)

var (
	ErrRenewalInPast      = errors.New(msgRenewalInPast)
	ErrRenewalTooFarAhead = errors.New(msgRenewalTooFarAhead)
)

const (
	// renewalHorizonDays is the furthest a renewal may reach: four weeks.
	renewalHorizonDays = 28
	// defaultRenewalDays pre-populates the renewal form: three weeks.
	defaultRenewalDays = 21
)

// ValidateRenewal checks a proposed due date against the renewal policy.
// The comparison is date-granular and inclusive at both ends of
// [today, today+28 days]. No side effects: the normalized date is returned
// unchanged on success.
func ValidateRenewal(proposed, today time.Time) (time.Time, error) {
	p := dateOnly(proposed)
	t := dateOnly(today)

	if p.Before(t) {
		return time.Time{}, ErrRenewalInPast
	}
	if p.After(t.AddDate(0, 0, renewalHorizonDays)) {
		return time.Time{}, ErrRenewalTooFarAhead
	}
	return p, nil
}

// DefaultRenewalDate is the proposal a fresh renewal form starts with.
func DefaultRenewalDate(today time.Time) time.Time {
	return dateOnly(today).AddDate(0, 0, defaultRenewalDays)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
