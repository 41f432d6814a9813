package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/match-tender/registry"
	"github.com/onnwee/match-tender/telemetry"
	"github.com/onnwee/match-tender/tracker"
)

// StatusSource reports the last poll cycle.
type StatusSource interface {
	LastResult() (tracker.CycleResult, bool)
}

// Poller runs a cycle on demand.
type Poller interface {
	Trigger(ctx context.Context) (tracker.CycleResult, error)
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Registry *registry.Registry
	Status   StatusSource
	Poller   Poller
	Checks   []Check
}

// cycleStatus is the JSON form of tracker.CycleResult.
type cycleStatus struct {
	CorrelationID string    `json:"correlation_id"`
	Started       time.Time `json:"started"`
	Finished      time.Time `json:"finished"`
	DurationMS    int64     `json:"duration_ms"`
	Scanned       int       `json:"scanned"`
	OptedOut      int       `json:"opted_out"`
	Unchanged     int       `json:"unchanged"`
	FetchFailed   int       `json:"fetch_failed"`
	CommitFailed  int       `json:"commit_failed"`
	NewMatches    int       `json:"new_matches"`
	Reports       int       `json:"reports"`
	RenderFailed  int       `json:"render_failures"`
	Delivered     int       `json:"delivered"`
	DeliveryFails int       `json:"delivery_failures"`
	Error         string    `json:"error,omitempty"`
}

func toCycleStatus(r tracker.CycleResult) cycleStatus {
	cs := cycleStatus{
		CorrelationID: r.CorrelationID,
		Started:       r.Started,
		Finished:      r.Finished,
		DurationMS:    r.Finished.Sub(r.Started).Milliseconds(),
		Scanned:       r.Scanned,
		OptedOut:      r.OptedOut,
		Unchanged:     r.Unchanged,
		FetchFailed:   r.FetchFailed,
		CommitFailed:  r.CommitFailed,
		NewMatches:    r.NewMatches,
		Reports:       r.Reports,
		RenderFailed:  r.RenderFailed,
		Delivered:     r.Delivered,
		DeliveryFails: r.DeliveryFails,
	}
	if r.Err != nil {
		cs.Error = r.Err.Error()
	}
	return cs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleStatus returns the registry size and the last cycle summary.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"registered_users": h.Registry.Len(),
		"last_cycle":       nil,
	}
	if h.Status != nil {
		if last, ok := h.Status.LastResult(); ok {
			resp["last_cycle"] = toCycleStatus(last)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleAdminUsers lists registered users in registration order.
func (h *Handlers) HandleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users := h.Registry.All()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(users), "users": users})
}

// HandleAdminRemoveUser unregisters a user.
func (h *Handlers) HandleAdminRemoveUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	removed, err := h.Registry.Remove(r.Context(), userID)
	switch {
	case err == nil:
		telemetry.LoggerWithCorr(r.Context()).Info("user removed by admin", slog.String("user_id", userID), slog.String("component", "http"))
		writeJSON(w, http.StatusOK, removed)
	case errors.Is(err, registry.ErrNotRegistered):
		http.Error(w, "user not registered", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleAdminPoll runs a poll cycle now and returns its summary.
func (h *Handlers) HandleAdminPoll(w http.ResponseWriter, r *http.Request) {
	if h.Poller == nil {
		http.Error(w, "poller not running", http.StatusServiceUnavailable)
		return
	}
	res, err := h.Poller.Trigger(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, toCycleStatus(res))
}
