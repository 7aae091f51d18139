package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/studycache/internal/api/shared"
	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/service"
)

// ReviewHandler scores flashcard reviews.
type ReviewHandler struct {
	reviewService service.ReviewService
	logger        *slog.Logger
}

// NewReviewHandler creates a new ReviewHandler
func NewReviewHandler(reviewService service.ReviewService, logger *slog.Logger) *ReviewHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ReviewHandler")
	}
	return &ReviewHandler{
		reviewService: reviewService,
		logger:        logger.With(slog.String("component", "review_handler")),
	}
}

// SubmitReview handles POST /api/reviews.
func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, h.logger)

	var req ReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Card != nil {
		if err := req.Card.Validate(); err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
	}

	next, err := h.reviewService.SubmitReview(r.Context(), req.Card, domain.Quality(*req.Quality))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("review scored", slog.Int("quality", *req.Quality), slog.Int("interval", next.Interval))
	shared.RespondWithJSON(w, r, http.StatusOK, ReviewResponse{Card: *next})
}
