// Package api exposes the engine's evaluation, administration and
// dashboard surface as JSON HTTP handlers.
package api

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/floodgate/pkg/floodgate"
)

// Handler serves the engine's JSON API.
type Handler struct {
	limiter *floodgate.RateLimiter
	log     *logrus.Logger
}

// NewHandler creates a handler over the given engine.
func NewHandler(limiter *floodgate.RateLimiter, log *logrus.Logger) *Handler {
	return &Handler{limiter: limiter, log: log}
}

// Routes returns a mux with all API endpoints registered:
//
//	POST   /v1/evaluate    evaluate a request for a source
//	GET    /v1/status      source status (?source=)
//	GET    /v1/stats       engine instrumentation counters
//	POST   /v1/threat      out-of-band threat scoring
//	POST   /v1/trusted     add a trusted source
//	DELETE /v1/trusted     remove a trusted source (?source=)
//	POST   /v1/suspicious  flag a source
//	DELETE /v1/suspicious  clear a flag (?source=)
//	POST   /v1/ban         ban a source
//	DELETE /v1/ban         unban a source (?source=)
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/evaluate", h.Evaluate)
	mux.HandleFunc("/v1/status", h.Status)
	mux.HandleFunc("/v1/stats", h.Stats)
	mux.HandleFunc("/v1/threat", h.Threat)
	mux.HandleFunc("/v1/trusted", h.Trusted)
	mux.HandleFunc("/v1/suspicious", h.Suspicious)
	mux.HandleFunc("/v1/ban", h.Ban)
	return mux
}

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	Source            string  `json:"source"`
	UserAgent         string  `json:"user_agent,omitempty"`
	PayloadSize       int     `json:"payload_size,omitempty"`
	GeoTag            string  `json:"geo_tag,omitempty"`
	ContextMultiplier float64 `json:"context_multiplier,omitempty"`
}

// EvaluateResponse wraps a decision with an audit id.
type EvaluateResponse struct {
	DecisionID        string            `json:"decision_id"`
	Action            string            `json:"action"`
	Reason            string            `json:"reason"`
	RetryAfterSeconds float64           `json:"retry_after_seconds,omitempty"`
	MinuteCount       int               `json:"minute_count"`
	HourCount         int               `json:"hour_count"`
	Limits            *floodgate.Limits `json:"limits,omitempty"`
	Degraded          bool              `json:"degraded,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Evaluate handles POST /v1/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	decision, err := h.limiter.Evaluate(req.Source, time.Now(), floodgate.RequestMetadata{
		UserAgent:         req.UserAgent,
		PayloadSize:       req.PayloadSize,
		GeoTag:            req.GeoTag,
		ContextMultiplier: req.ContextMultiplier,
	})
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_source", err.Error())
		return
	}

	resp := EvaluateResponse{
		DecisionID:  uuid.NewString(),
		Action:      string(decision.Action),
		Reason:      decision.Reason,
		MinuteCount: decision.MinuteCount,
		HourCount:   decision.HourCount,
		Limits:      decision.Limits,
		Degraded:    decision.Degraded,
	}
	if decision.RetryAfter > 0 {
		resp.RetryAfterSeconds = math.Ceil(decision.RetryAfter.Seconds())
	}

	status := http.StatusOK
	if !decision.Allowed() {
		status = http.StatusTooManyRequests
		if decision.Action == floodgate.ActionBlockPermanent {
			status = http.StatusForbidden
		}
	}

	h.sendJSON(w, status, resp)
}

// Status handles GET /v1/status?source=.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET requests are allowed")
		return
	}

	status, err := h.limiter.Status(r.URL.Query().Get("source"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_source", err.Error())
		return
	}
	h.sendJSON(w, http.StatusOK, status)
}

// Stats handles GET /v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET requests are allowed")
		return
	}
	h.sendJSON(w, http.StatusOK, h.limiter.Stats())
}

// ThreatRequest is the body of POST /v1/threat.
type ThreatRequest struct {
	Source         string `json:"source"`
	MessageContent string `json:"message_content,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	PayloadSize    int    `json:"payload_size,omitempty"`
	GeoTag         string `json:"geo_tag,omitempty"`
}

// Threat handles POST /v1/threat.
func (h *Handler) Threat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req ThreatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	assessment, err := h.limiter.ScoreThreat(req.Source, time.Now(), req.MessageContent, floodgate.RequestMetadata{
		UserAgent:   req.UserAgent,
		PayloadSize: req.PayloadSize,
		GeoTag:      req.GeoTag,
	})
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_source", err.Error())
		return
	}
	h.sendJSON(w, http.StatusOK, assessment)
}

// SourceRequest is the body of the POST admin endpoints.
type SourceRequest struct {
	Source          string `json:"source"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// Trusted handles POST and DELETE /v1/trusted.
func (h *Handler) Trusted(w http.ResponseWriter, r *http.Request) {
	h.adminToggle(w, r,
		func(source string) { h.limiter.AddTrustedSource(source) },
		func(source string) { h.limiter.RemoveTrustedSource(source) })
}

// Suspicious handles POST and DELETE /v1/suspicious.
func (h *Handler) Suspicious(w http.ResponseWriter, r *http.Request) {
	h.adminToggle(w, r,
		func(source string) { h.limiter.MarkSuspicious(source) },
		func(source string) { h.limiter.ClearSuspicious(source) })
}

// Ban handles POST and DELETE /v1/ban.
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req SourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
		if err := h.limiter.Ban(req.Source, time.Duration(req.DurationSeconds)*time.Second); err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.log.WithFields(logrus.Fields{
			"source":   req.Source,
			"duration": req.DurationSeconds,
		}).Info("source banned by admin")
		h.sendJSON(w, http.StatusOK, map[string]string{"status": "banned"})

	case http.MethodDelete:
		source := r.URL.Query().Get("source")
		if source == "" {
			h.sendError(w, http.StatusBadRequest, "invalid_source", "source query parameter is required")
			return
		}
		h.limiter.Unban(source)
		h.sendJSON(w, http.StatusOK, map[string]string{"status": "unbanned"})

	default:
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST and DELETE requests are allowed")
	}
}

func (h *Handler) adminToggle(w http.ResponseWriter, r *http.Request, set, clear func(string)) {
	switch r.Method {
	case http.MethodPost:
		var req SourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
		if req.Source == "" {
			h.sendError(w, http.StatusBadRequest, "invalid_source", "source is required")
			return
		}
		set(req.Source)
		h.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case http.MethodDelete:
		source := r.URL.Query().Get("source")
		if source == "" {
			h.sendError(w, http.StatusBadRequest, "invalid_source", "source query parameter is required")
			return
		}
		clear(source)
		h.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST and DELETE requests are allowed")
	}
}

func (h *Handler) sendJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.sendJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}
