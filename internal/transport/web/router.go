package web

import (
	"net/http"

	"slacktranslator/internal/transport/web/mw"
	logx "slacktranslator/pkg/logx"
)

func newRouter(ih *IngressHandler, hh *HealthHandler, dh *DebugHandler, log logx.Logger, verbose bool) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /healthz", hh.Liveness)
	mux.HandleFunc("GET /readyz", hh.Readiness)

	// debug
	if dh != nil {
		mux.HandleFunc("GET /debug/jobs", dh.Jobs)
	}

	// slash command
	mux.HandleFunc("GET /{from}/{to}", limitBody(1<<20, ih.Translate))
	mux.HandleFunc("POST /{from}/{to}", limitBody(1<<20, ih.Translate))

	return mw.WithRequestID(mw.Logging(log, verbose)(mw.Recover(log)(mux)))
}

func limitBody(n int64, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, n)
		h(w, r)
	}
}
