package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// Viewer identity headers set by the upstream auth proxy. Their values
// are trusted as-is; this service never authenticates viewers itself.
const (
	viewerHeader = "X-Keryx-Viewer"
	tierHeader   = "X-Keryx-Tier"
)

type ctxKey string

const viewerCtxKey ctxKey = "viewer"

// viewerExtractor reads the viewer identity headers into the request
// context. A missing viewer header means an anonymous viewer; a malformed
// tier is rejected rather than coerced.
func viewerExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := types.ViewerTier(r.Header.Get(tierHeader)).Normalize()
		if !tier.IsValid() {
			http.Error(w, "invalid viewer tier", http.StatusBadRequest)
			return
		}

		viewer := &model.Viewer{
			ID:   types.ViewerID(r.Header.Get(viewerHeader)),
			Tier: tier,
		}

		ctx := context.WithValue(r.Context(), viewerCtxKey, viewer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// viewerFrom returns the viewer stored by viewerExtractor. Handlers
// behind the extractor always find one; the anonymous fallback covers
// direct handler tests.
func viewerFrom(ctx context.Context) *model.Viewer {
	if viewer, ok := ctx.Value(viewerCtxKey).(*model.Viewer); ok {
		return viewer
	}
	return &model.Viewer{Tier: types.TierFree}
}

// ownerOnly admits only the agent's owner. The agent is resolved from the
// URL so an unknown agent is a 404, not a 403.
func ownerOnly(uc *usecase.UseCases) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agentID := types.AgentID(chi.URLParam(r, "agentID"))
			agent, err := uc.Agent.Get(r.Context(), agentID)
			if err != nil {
				handleError(r.Context(), w, err)
				return
			}

			viewer := viewerFrom(r.Context())
			if viewer.ID == "" {
				http.Error(w, "viewer identity required", http.StatusUnauthorized)
				return
			}
			if agent.OwnerID == "" || viewer.ID != agent.OwnerID {
				http.Error(w, "owner access required", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// viewerRateLimiter holds one token bucket per viewer
type viewerRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

func newViewerRateLimiter(perSecond float64, burst int) *viewerRateLimiter {
	return &viewerRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// getLimiter gets or creates the bucket for a viewer
func (rl *viewerRateLimiter) getLimiter(viewerID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[viewerID]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[viewerID] = limiter
	}

	return limiter
}

// middleware rejects requests that exceed the viewer's token bucket.
// Anonymous viewers share one bucket.
func (rl *viewerRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := string(viewerFrom(r.Context()).ID)
		if key == "" {
			key = "anonymous"
		}

		if !rl.getLimiter(key).Allow() {
			logging.From(r.Context()).Warn("rate limit exceeded", "viewer_id", key)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
