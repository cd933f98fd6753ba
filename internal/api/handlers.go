// Package api exposes the engine's synchronous rule interface over HTTP
// so any front end (graphical, command-line, or remote) can drive it.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ampfilter/internal/device"
	"ampfilter/internal/rule"
	"ampfilter/internal/ws"
)

// Stats is the engine snapshot served on /stats.
type Stats struct {
	PacketsReceived uint64  `json:"packets_received"`
	PacketsDropped  uint64  `json:"packets_dropped"`
	EventsEmitted   uint64  `json:"events_emitted"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// Handler serves the rule API.
type Handler struct {
	store *rule.Store
	hub   *ws.Hub
	stats func() Stats
}

// NewHandler wires the handler to the store, the event hub, and a stats
// provider.
func NewHandler(store *rule.Store, hub *ws.Hub, stats func() Stats) *Handler {
	return &Handler{store: store, hub: hub, stats: stats}
}

// AddRuleRequest is the POST /rules payload.
type AddRuleRequest struct {
	Rule string `json:"rule"`
}

// AddRuleResponse echoes the registered rule with its assigned handle.
type AddRuleResponse struct {
	Handle     rule.Handle `json:"handle"`
	DeviceID   int         `json:"device_id"`
	Rule       string      `json:"rule"`
	Normalized string      `json:"normalized"`
}

// AddRule registers a new filter rule. The owning device is derived from
// the rule's channel code.
func (h *Handler) AddRule(w http.ResponseWriter, r *http.Request) {
	var req AddRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	v, id, err := h.store.Add(req.Rule)
	if err != nil {
		var vErr *rule.ValidationError
		var dErr *device.UnknownDeviceError
		switch {
		case errors.As(err, &vErr), errors.As(err, &dErr):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, AddRuleResponse{
		Handle:     v.Handle,
		DeviceID:   int(id),
		Rule:       v.Rule.Text,
		Normalized: v.Rule.Render(),
	})
}

// ListRules returns every device's rule list.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	out := make(map[device.ID][]rule.View)
	for _, id := range device.All() {
		out[id] = h.store.Snapshot(id)
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ListDeviceRules returns one device's rule list.
func (h *Handler) ListDeviceRules(w http.ResponseWriter, r *http.Request) {
	id, ok := h.deviceID(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.store.Snapshot(id))
}

// RemoveRule deletes one rule by handle. Idempotent: removing an absent
// handle still answers 204.
func (h *Handler) RemoveRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.deviceID(w, r)
	if !ok {
		return
	}
	h.store.Remove(id, rule.Handle(chi.URLParam(r, "handle")))
	w.WriteHeader(http.StatusNoContent)
}

// GetState reports a rule's current active flag.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	id, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	active, found := h.store.State(id, rule.Handle(chi.URLParam(r, "handle")))
	if !found {
		h.writeError(w, http.StatusNotFound, "unknown rule handle")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// HandleWS upgrades the connection and streams emitted events.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWS(w, r)
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// GetStats returns current engine statistics.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.stats())
}

func (h *Handler) deviceID(w http.ResponseWriter, r *http.Request) (device.ID, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "deviceID"))
	if err != nil || !device.ID(n).Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid device id")
		return 0, false
	}
	return device.ID(n), true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
