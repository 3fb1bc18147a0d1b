package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/feedback"
)

const statsCacheTTL = time.Minute

var statsWindows = []int{7, 30, 90}

type Cacher interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type FeedbackHandler struct {
	agg   *feedback.Aggregator
	cache Cacher
}

// NewFeedbackHandler takes an optional cache for the stats endpoint.
func NewFeedbackHandler(agg *feedback.Aggregator, cache Cacher) *FeedbackHandler {
	return &FeedbackHandler{agg: agg, cache: cache}
}

func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req feedback.Submission
	if !decodeJSON(w, r, &req) {
		return
	}

	fb, err := h.agg.StoreFeedback(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidateStats(r.Context())

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":         "success",
		"feedback_id":    fb.ID,
		"prompt_version": fb.PromptVersion,
		"message":        "Feedback recorded. System will learn from this input.",
	})
}

func (h *FeedbackHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	key := statsKey(days)

	if h.cache != nil {
		var cached feedback.Stats
		if err := h.cache.Get(r.Context(), key, &cached); err == nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	st, err := h.agg.Stats(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(r.Context(), key, st, statsCacheTTL); err != nil {
			slog.Warn("failed to cache feedback stats", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *FeedbackHandler) PromptPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.agg.PromptPerformance(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": perf, "count": len(perf)})
}

func (h *FeedbackHandler) ImprovementTrend(w http.ResponseWriter, r *http.Request) {
	tr, err := h.agg.ImprovementTrend(r.Context(), queryInt(r, "days", 30))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (h *FeedbackHandler) Evolve(w http.ResponseWriter, r *http.Request) {
	ev, err := h.agg.EvolvePrompts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *FeedbackHandler) Insights(w http.ResponseWriter, r *http.Request) {
	in, err := h.agg.Insights(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *FeedbackHandler) invalidateStats(ctx context.Context) {
	if h.cache == nil {
		return
	}
	keys := make([]string, 0, len(statsWindows))
	for _, d := range statsWindows {
		keys = append(keys, statsKey(d))
	}
	if err := h.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("failed to invalidate feedback stats", "error", err)
	}
}

func statsKey(days int) string {
	return fmt.Sprintf("vaultmind:feedback:stats:%d", days)
}

func queryInt(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
