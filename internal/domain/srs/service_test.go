package srs

import (
	"testing"
	"time"

	"github.com/phrazzld/studycache/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultService(t *testing.T) {
	t.Parallel()
	service := NewDefaultService()
	require.NotNil(t, service)

	defaultService, ok := service.(*defaultService)
	require.True(t, ok, "Expected *defaultService type")
	assert.Equal(t, NewDefaultParams(), defaultService.params)
}

func TestCalculateNextReview(t *testing.T) {
	t.Parallel()
	service := NewDefaultService()
	now := time.Now().UTC()

	testCases := []struct {
		name             string
		card             *domain.SRCardState
		quality          domain.Quality
		expectInterval   int
		expectRepetition int
		expectEaseFactor func(float64) bool
	}{
		{
			name:             "Blackout resets repetition",
			card:             &domain.SRCardState{Interval: 15, Repetition: 3, EFactor: 2.2},
			quality:          0,
			expectInterval:   1,
			expectRepetition: 0,
			expectEaseFactor: func(ef float64) bool { return ef == 2.2 },
		},
		{
			name:             "Hesitant pass lowers ease factor",
			card:             service.NewCard(now),
			quality:          3,
			expectInterval:   1,
			expectRepetition: 1,
			expectEaseFactor: func(ef float64) bool { return ef < 2.5 && ef >= 1.3 },
		},
		{
			name:             "Perfect recall on a mature card",
			card:             &domain.SRCardState{Interval: 10, Repetition: 4, EFactor: 2.0},
			quality:          5,
			expectInterval:   21, // 10 * 2.1
			expectRepetition: 5,
			expectEaseFactor: func(ef float64) bool { return ef > 2.0 },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := service.CalculateNextReview(tc.card, tc.quality, now)
			require.NoError(t, err)

			assert.Equal(t, tc.expectInterval, next.Interval)
			assert.Equal(t, tc.expectRepetition, next.Repetition)
			assert.True(t, tc.expectEaseFactor(next.EFactor), "unexpected ease factor %f", next.EFactor)
			assert.Equal(t, now.AddDate(0, 0, next.Interval), next.Due)
		})
	}
}

func TestCalculateNextReviewDoesNotMutateInput(t *testing.T) {
	t.Parallel()
	service := NewDefaultService()
	now := time.Now().UTC()

	card := &domain.SRCardState{Interval: 6, Repetition: 2, EFactor: 2.5, Due: now}
	original := *card

	_, err := service.CalculateNextReview(card, 5, now)
	require.NoError(t, err)
	assert.Equal(t, original, *card)
}

func TestCalculateNextReviewValidation(t *testing.T) {
	t.Parallel()
	service := NewDefaultService()
	now := time.Now().UTC()

	_, err := service.CalculateNextReview(nil, 4, now)
	assert.ErrorIs(t, err, ErrNilCard)

	_, err = service.CalculateNextReview(service.NewCard(now), 7, now)
	assert.ErrorIs(t, err, domain.ErrInvalidQuality)

	_, err = service.CalculateNextReview(&domain.SRCardState{EFactor: 1.0}, 4, now)
	assert.ErrorIs(t, err, domain.ErrInvalidEaseFactor)
}

func TestServiceWithCustomParams(t *testing.T) {
	t.Parallel()
	service := NewServiceWithParams(NewParams(ParamsConfig{SecondInterval: 4, InitialEaseFactor: 2.3}))
	now := time.Now().UTC()

	card := service.NewCard(now)
	assert.Equal(t, 2.3, card.EFactor)

	next, err := service.CalculateNextReview(&domain.SRCardState{Interval: 1, Repetition: 1, EFactor: 2.5}, 4, now)
	require.NoError(t, err)
	assert.Equal(t, 4, next.Interval)
}
