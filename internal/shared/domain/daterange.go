package domain

import (
	"errors"
	"time"
)

// DateRange représente une période temporelle fermée [start, end]
// Value Object: immutable, validé à la construction
type DateRange struct {
	start time.Time
	end   time.Time
}

// NewDateRange crée une période avec validation
func NewDateRange(start, end time.Time) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, errors.New("end cannot be before start")
	}
	return DateRange{start: start, end: end}, nil
}

// NewAcceptanceWindow construit la fenêtre des dates de facture plausibles:
// de epoch jusqu'à now + futureDays
func NewAcceptanceWindow(epoch, now time.Time, futureDays int) (DateRange, error) {
	if futureDays < 0 {
		return DateRange{}, errors.New("days cannot be negative")
	}
	return NewDateRange(epoch, now.AddDate(0, 0, futureDays))
}

// Start retourne la date de début
func (dr DateRange) Start() time.Time {
	return dr.start
}

// End retourne la date de fin
func (dr DateRange) End() time.Time {
	return dr.end
}

// Contains vérifie que t appartient à la période (bornes incluses)
func (dr DateRange) Contains(t time.Time) bool {
	return !t.Before(dr.start) && !t.After(dr.end)
}

// Extend retourne la plus petite période couvrant dr et t
func (dr DateRange) Extend(t time.Time) DateRange {
	out := dr
	if dr.start.IsZero() || t.Before(dr.start) {
		out.start = t
	}
	if dr.end.IsZero() || t.After(dr.end) {
		out.end = t
	}
	return out
}
