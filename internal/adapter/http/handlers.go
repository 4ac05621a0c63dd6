package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
)

// errMissingParam marks a required query parameter that was not supplied.
var errMissingParam = errors.New("missing required parameter")

func (s *Server) handleWarnings(w http.ResponseWriter, _ *http.Request) {
	warnings := s.deps.Status.Warnings()
	resp := map[string]any{
		"count":    len(warnings),
		"warnings": warnings,
	}
	if at, ok := s.deps.Status.LastRun(domain.ClassWarnings); ok {
		resp["updated_at"] = domain.FormatTimestamp(at)
	}
	writeSuccess(w, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	start, end, err := requiredWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := s.deps.Feed.FetchRange(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	warnings := domain.Extract(doc, s.deps.Extract)
	writeSuccess(w, map[string]any{
		"start":    start,
		"end":      end,
		"count":    len(warnings),
		"warnings": warnings,
	})
}

// handleRaw passes upstream features through untouched. Without a window it
// returns the currently active features.
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp := map[string]any{}

	var (
		doc domain.FeedDocument
		err error
	)
	if q.Get("start") == "" && q.Get("end") == "" {
		doc, err = s.deps.Feed.FetchActive(r.Context())
	} else {
		var start, end string
		start, end, err = requiredWindow(r)
		if err == nil {
			resp["start"], resp["end"] = start, end
			doc, err = s.deps.Feed.FetchRange(r.Context(), start, end)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	features := doc.Features
	if features == nil {
		features = []json.RawMessage{}
	}
	resp["count"] = len(features)
	resp["features"] = features
	writeSuccess(w, resp)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	start, end, err := requiredWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Only well-formed requests spend a token.
	if l := s.deps.SimulateLimiter; l != nil && !l.Allow() {
		sharedobs.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
			"success": false,
			"error":   "simulation rate limit exceeded, try again later",
		})
		return
	}

	report, err := s.deps.Simulator.Simulate(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, map[string]any{"simulation": report})
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	now := domain.Now()
	resp := map[string]any{
		"now":       domain.FormatTimestamp(now),
		"unix":      now.Unix(),
		"radar":     domain.RadarTimestamp(now),
		"feed_ts":   now.Format("2006-01-02T15:04Z"),
		"time_zone": "UTC",
	}

	if ts := r.URL.Query().Get("ts"); ts != "" {
		normalized, err := domain.NormalizeTimestamp(ts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp["input"] = ts
		resp["normalized"] = normalized
	}
	writeSuccess(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := domain.Now()
	status := "ok"
	if err := s.deps.Status.CheckReadiness(r.Context()); err != nil {
		status = "starting"
	}

	resp := map[string]any{
		"status":           status,
		"started_at":       domain.FormatTimestamp(s.started),
		"uptime_seconds":   int64(now.Sub(s.started) / time.Second),
		"tracked_warnings": len(s.deps.Status.Warnings()),
	}
	for key, class := range map[string]string{
		"last_warning_cycle":    domain.ClassWarnings,
		"last_discussion_cycle": domain.ClassDiscussions,
	} {
		if at, ok := s.deps.Status.LastRun(class); ok {
			resp[key] = domain.FormatTimestamp(at)
		} else {
			resp[key] = nil
		}
	}
	writeSuccess(w, resp)
}

// requiredWindow reads and normalizes the start and end parameters.
func requiredWindow(r *http.Request) (start, end string, err error) {
	q := r.URL.Query()
	for _, name := range []string{"start", "end"} {
		if q.Get(name) == "" {
			return "", "", fmt.Errorf("%w: %s", errMissingParam, name)
		}
	}
	if start, err = domain.NormalizeTimestamp(q.Get("start")); err != nil {
		return "", "", fmt.Errorf("start: %w", err)
	}
	if end, err = domain.NormalizeTimestamp(q.Get("end")); err != nil {
		return "", "", fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, errMissingParam) || errors.Is(err, domain.ErrInvalidTimestamp) {
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	sharedobs.WriteJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func writeSuccess(w http.ResponseWriter, payload map[string]any) {
	payload["success"] = true
	sharedobs.WriteJSON(w, http.StatusOK, payload)
}
