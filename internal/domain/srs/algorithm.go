package srs

import (
	"math"
	"time"

	"github.com/phrazzld/studycache/internal/domain"
)

// calculateNewEaseFactor applies the SM-2 ease adjustment for a passing quality.
//
// The penalty is concave in (5 - quality): a perfect 5 raises the ease factor
// by 0.1, a 4 leaves it unchanged and a 3 lowers it by 0.14. The result never
// drops below params.MinEaseFactor.
func calculateNewEaseFactor(currentEF float64, quality domain.Quality, params *Params) float64 {
	miss := float64(domain.QualityPerfect - quality)
	newEF := currentEF + 0.1 - miss*(0.08+miss*0.02)

	return math.Max(params.MinEaseFactor, newEF)
}

// calculateNewInterval returns the interval in days after a successful review.
//
// repetition is the count of consecutive successes including this one: the
// first success schedules params.FirstInterval, the second params.SecondInterval
// and every later one multiplies the previous interval by the new ease factor.
func calculateNewInterval(previousInterval, repetition int, easeFactor float64, params *Params) int {
	switch repetition {
	case 1:
		return params.FirstInterval
	case 2:
		return params.SecondInterval
	}

	interval := int(math.Round(float64(previousInterval) * easeFactor))
	if interval < 1 {
		return 1
	}
	return interval
}

// calculateNextState returns the card state after one review. It does not
// validate quality; callers go through Update or Service.
func calculateNextState(
	card domain.SRCardState,
	quality domain.Quality,
	now time.Time,
	params *Params,
) domain.SRCardState {
	if int(quality) < params.PassThreshold {
		return domain.SRCardState{
			Interval:   params.FailInterval,
			Repetition: 0,
			EFactor:    card.EFactor,
			Due:        now.AddDate(0, 0, params.FailInterval),
		}
	}

	next := domain.SRCardState{
		EFactor:    calculateNewEaseFactor(card.EFactor, quality, params),
		Repetition: card.Repetition + 1,
	}
	next.Interval = calculateNewInterval(card.Interval, next.Repetition, next.EFactor, params)
	next.Due = now.AddDate(0, 0, next.Interval)

	return next
}

// Update applies one review with the default parameters.
// Quality outside 0..5 is rejected with domain.ErrInvalidQuality, and a card
// that fails validation is returned unchanged with its validation error.
func Update(card domain.SRCardState, quality domain.Quality, now time.Time) (domain.SRCardState, error) {
	if !quality.IsValid() {
		return card, domain.ErrInvalidQuality
	}
	if err := card.Validate(); err != nil {
		return card, err
	}
	return calculateNextState(card, quality, now, NewDefaultParams()), nil
}
