package handlers

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"taskboard/logging"
	"taskboard/utils"

	"golang.org/x/sync/errgroup"
)

const healthTimeout = 2 * time.Second

// ListActivity returns the caller's newest activity entries.
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	logs, err := h.Tasks.ListActivity(r.Context(), userID(r), utils.ActivityLimit(limit))
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health pings every dependency concurrently.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = h.Checks[name].Ping(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for i, name := range names {
		if err := results[i]; err != nil {
			logging.Logger.Warnf("Event ID: HEALTH_CHECK_FAILED, Description: %s: %v", name, err)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}
