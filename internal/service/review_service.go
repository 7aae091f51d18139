package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/domain/srs"
)

// ReviewService scores flashcard reviews.
type ReviewService interface {
	// SubmitReview returns the card state after a review of the given
	// quality. A nil card is treated as a card seen for the first time.
	SubmitReview(ctx context.Context, card *domain.SRCardState, quality domain.Quality) (*domain.SRCardState, error)
}

type reviewService struct {
	srs    srs.Service
	now    func() time.Time
	logger *slog.Logger
}

var _ ReviewService = (*reviewService)(nil)

// NewReviewService creates a ReviewService backed by srsService.
func NewReviewService(srsService srs.Service, logger *slog.Logger) (ReviewService, error) {
	if srsService == nil {
		return nil, fmt.Errorf("srs service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &reviewService{
		srs:    srsService,
		now:    time.Now,
		logger: logger.With("component", "review_service"),
	}, nil
}

func (s *reviewService) SubmitReview(
	ctx context.Context,
	card *domain.SRCardState,
	quality domain.Quality,
) (*domain.SRCardState, error) {
	now := s.now().UTC()
	if card == nil {
		card = s.srs.NewCard(now)
	}

	next, err := s.srs.CalculateNextReview(card, quality, now)
	if err != nil {
		s.logger.DebugContext(ctx, "review rejected", "quality", quality.String(), "error", err)
		return nil, err
	}

	s.logger.DebugContext(ctx, "review scored",
		"quality", int(quality),
		"interval", next.Interval,
		"repetition", next.Repetition,
		"efactor", next.EFactor)
	return next, nil
}
