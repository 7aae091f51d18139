package domain

import (
	"fmt"
	"time"
)

// Quality is the 0..5 rating a user gives when reviewing a flashcard.
type Quality int

// Quality scale anchors. Ratings below QualityPass count as a failed recall.
const (
	QualityBlackout Quality = 0
	QualityPass     Quality = 3
	QualityPerfect  Quality = 5
)

// IsValid reports whether q is inside the 0..5 scale.
func (q Quality) IsValid() bool {
	return q >= QualityBlackout && q <= QualityPerfect
}

// Passed reports whether q counts as a successful recall.
func (q Quality) Passed() bool {
	return q >= QualityPass
}

// String returns the numeric rating, or "Quality(n)" when out of range.
func (q Quality) String() string {
	if q.IsValid() {
		return fmt.Sprintf("%d", int(q))
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// Default values for a card that has never been reviewed.
const (
	InitialEaseFactor = 2.5
	MinEaseFactor     = 1.3
)

// SRCardState is the spaced-repetition schedule of one flashcard.
type SRCardState struct {
	Interval   int       `json:"interval"`   // Days until the next review
	Repetition int       `json:"repetition"` // Consecutive successful reviews
	EFactor    float64   `json:"efactor"`    // Ease factor, never below 1.3
	Due        time.Time `json:"due"`
}

// NewSRCardState creates the state of a card encountered for the first time.
// The card is due immediately.
func NewSRCardState(now time.Time) SRCardState {
	return SRCardState{
		Interval:   0,
		Repetition: 0,
		EFactor:    InitialEaseFactor,
		Due:        now,
	}
}

// Validate checks if the SRCardState has valid data.
func (s *SRCardState) Validate() error {
	if s.Interval < 0 {
		return ErrInvalidInterval
	}
	if s.Repetition < 0 {
		return NewValidationError("repetition", "must be greater than or equal to 0", ErrValidation)
	}
	if s.EFactor < MinEaseFactor {
		return ErrInvalidEaseFactor
	}
	return nil
}

// IsDue reports whether the card should be reviewed at now.
func (s *SRCardState) IsDue(now time.Time) bool {
	return !s.Due.After(now)
}
