package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/studycache/internal/api/shared"
	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/service"
)

// CacheHandler serves the query and persisted-cache endpoints.
type CacheHandler struct {
	cacheService service.CacheService
	logger       *slog.Logger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(cacheService service.CacheService, logger *slog.Logger) *CacheHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CacheHandler")
	}
	return &CacheHandler{
		cacheService: cacheService,
		logger:       logger.With(slog.String("component", "cache_handler")),
	}
}

// Query handles POST /api/query. The query state is returned even when the
// fetch failed, with a 502 status.
func (h *CacheHandler) Query(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, h.logger)

	var req QueryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	state, err := h.cacheService.Query(r.Context(), req.Key)
	if err != nil {
		if errors.Is(err, service.ErrFetchFailed) && state.Status == domain.QueryStatusError {
			log.Warn("query fetch failed", slog.String("family", req.Key.Family()))
			status := MapErrorToStatusCode(err)
			state.Error = GetSafeErrorMessage(err)
			shared.RespondWithJSON(w, r, status, state)
			return
		}
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, state)
}

// Snapshot handles GET /api/cache/snapshot.
func (h *CacheHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := h.cacheService.Restore(r.Context())
	shared.RespondWithJSON(w, r, http.StatusOK, snapshot)
}

// Stats handles GET /api/cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.cacheService.Stats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read cache statistics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, statsToResponse(st))
}

// Persist handles POST /api/cache/persist. A quota abort is reported in the
// body, not as an error status.
func (h *CacheHandler) Persist(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, h.logger)

	var req PersistRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.cacheService.Persist(r.Context(), req.Queries)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("snapshot persisted",
		slog.Int("candidates", res.Candidates),
		slog.Int("written", res.Written),
		slog.Int("deleted", res.Deleted),
		slog.Bool("quota_exceeded", res.QuotaExceeded))
	shared.RespondWithJSON(w, r, http.StatusOK, persistResultToResponse(res))
}

// Clear handles DELETE /api/cache.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	requestLogger(r, h.logger).Info("cache clear requested")
	h.cacheService.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
