package srs

import (
	"errors"
	"time"

	"github.com/phrazzld/studycache/internal/domain"
)

// Common errors
var (
	ErrNilCard = errors.New("card state cannot be nil")
)

// Service defines the interface for SRS algorithm operations
type Service interface {
	// CalculateNextReview computes the card state after a review of the given quality
	CalculateNextReview(
		card *domain.SRCardState,
		quality domain.Quality,
		now time.Time,
	) (*domain.SRCardState, error)

	// NewCard returns the state of a card seen for the first time
	NewCard(now time.Time) *domain.SRCardState
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	params *Params
}

// NewDefaultService creates a new SRS service with default parameters
func NewDefaultService() Service {
	return &defaultService{
		params: NewDefaultParams(),
	}
}

// NewServiceWithParams creates a new SRS service with custom parameters
func NewServiceWithParams(params *Params) Service {
	if params == nil {
		params = NewDefaultParams()
	}
	return &defaultService{
		params: params,
	}
}

// CalculateNextReview implements the Service interface
func (s *defaultService) CalculateNextReview(
	card *domain.SRCardState,
	quality domain.Quality,
	now time.Time,
) (*domain.SRCardState, error) {
	if card == nil {
		return nil, ErrNilCard
	}
	if !quality.IsValid() {
		return nil, domain.ErrInvalidQuality
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}

	next := calculateNextState(*card, quality, now, s.params)
	return &next, nil
}

// NewCard implements the Service interface
func (s *defaultService) NewCard(now time.Time) *domain.SRCardState {
	card := domain.NewSRCardState(now)
	card.EFactor = s.params.InitialEaseFactor
	return &card
}
