package floodgate

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
)

// GeoTagHeader is the request header the middleware reads the coarse
// location indicator from, when present.
const GeoTagHeader = "X-Geo-Tag"

// EvaluateRequest extracts the source and metadata from an HTTP request and
// runs the decision pipeline against the engine's clock.
func (rl *RateLimiter) EvaluateRequest(r *http.Request) (*Decision, error) {
	source, err := rl.keyExtractor(r)
	if err != nil {
		return nil, err
	}

	md := RequestMetadata{
		UserAgent: r.UserAgent(),
		GeoTag:    r.Header.Get(GeoTagHeader),
	}
	if r.ContentLength > 0 {
		md.PayloadSize = int(r.ContentLength)
	}

	return rl.Evaluate(source, rl.clock.Now(), md)
}

// Middleware wraps an http.Handler with the decision pipeline. Allowed
// requests proceed with rate-limit headers attached; rate-limited and
// temporarily blocked requests get 429, banned sources get 403.
//
// Headers set:
//   - X-RateLimit-Limit: effective per-minute limit
//   - X-RateLimit-Remaining: requests left in the current minute
//   - Retry-After: seconds to wait (on rejection)
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := rl.EvaluateRequest(r)
		if err != nil {
			// Key extraction failed; fail open toward availability,
			// the engine has no identity to count against.
			rl.log.WithError(err).Warn("request evaluation failed")
			next.ServeHTTP(w, r)
			return
		}

		if decision.Limits != nil {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limits.PerMinute))
			remaining := decision.Limits.PerMinute - decision.MinuteCount
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		}

		if decision.Allowed() {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := int64(math.Ceil(decision.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		w.Header().Set("Content-Type", "application/json")

		status := http.StatusTooManyRequests
		if decision.Action == ActionBlockPermanent {
			status = http.StatusForbidden
		}
		w.WriteHeader(status)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":               string(decision.Action),
			"message":             decision.Reason,
			"retry_after_seconds": retryAfter,
		})
	})
}
