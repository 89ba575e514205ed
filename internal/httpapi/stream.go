package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"campuslink.app/internal/audit"
	"campuslink.app/internal/obs"
)

var heartbeatInterval = 25 * time.Second

// SecurityEventStream pushes security events to an admin as server-sent
// events. ?min_severity filters by grade, default LOW.
func (a *API) SecurityEventStream(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	floor := audit.Severity(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("min_severity"))))
	switch floor {
	case "":
		floor = audit.SeverityLow
	case audit.SeverityLow, audit.SeverityMedium, audit.SeverityHigh, audit.SeverityCritical:
	default:
		writeError(w, r, http.StatusBadRequest, "min_severity must be one of LOW, MEDIUM, HIGH, CRITICAL")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	ch := a.events.Subscribe(ctx, floor)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				obs.Logger().Warn("encode security event", zap.String("id", ev.ID), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: security_event\ndata: %s\n\n", ev.ID, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
