package web

import (
	"context"
	"net/http"
	"time"
)

// Section produces one part of the debug report.
type Section func(ctx context.Context) (any, error)

// DebugHandler renders named sections as one JSON document.
type DebugHandler struct {
	Sections map[string]Section
}

func (h *DebugHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out := make(map[string]any, len(h.Sections)+1)
	out["generated_at"] = time.Now().UTC()
	for name, fn := range h.Sections {
		v, err := fn(ctx)
		if err != nil {
			out[name] = map[string]string{"error": err.Error()}
			continue
		}
		out[name] = v
	}
	writeJSON(w, http.StatusOK, out)
}
