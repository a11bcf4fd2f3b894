package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"slacktranslator/internal/transport/web/mw"
	logx "slacktranslator/pkg/logx"
)

type Pinger interface {
	Ping(context.Context) error
}

type HealthHandler struct {
	Log   logx.Logger
	Cache Pinger
}

// Liveness reports that the process is serving.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness pings Redis.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		if err := h.Cache.Ping(ctx); err != nil {
			h.Log.Warn("readiness: redis ping failed", logx.String("req_id", mw.RequestIDFromCtx(r.Context())), logx.Err(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
