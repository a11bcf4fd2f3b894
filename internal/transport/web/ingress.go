package web

import (
	"context"
	"net/http"

	"slacktranslator/internal/job"
	"slacktranslator/internal/transport/web/mw"
	logx "slacktranslator/pkg/logx"
)

// Submitter accepts translation requests. *job.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, req job.TranslationRequest) (job.Job, error)
}

// IngressHandler serves the slash-command endpoint /{from}/{to}.
type IngressHandler struct {
	Dispatcher Submitter
	Log        logx.Logger
	// Debug logs every incoming request with its parameters.
	Debug bool
}

// Translate acknowledges with "ok" in every case. Failures surface only in
// the logs and the diagnostic channel.
func (h *IngressHandler) Translate(w http.ResponseWriter, r *http.Request) {
	// ParseForm merges the query string and a urlencoded body.
	if err := r.ParseForm(); err != nil {
		h.Log.Warn("ingress form parse failed", logx.Err(err))
	}
	req := job.TranslationRequest{
		UserID:    r.Form.Get("user_id"),
		UserName:  r.Form.Get("user_name"),
		ChannelID: r.Form.Get("channel_id"),
		Text:      r.Form.Get("text"),
		From:      r.PathValue("from"),
		To:        r.PathValue("to"),
	}
	reqID := mw.RequestIDFromCtx(r.Context())
	if h.Debug {
		h.Log.Info("ingress request",
			logx.String("req_id", reqID),
			logx.String("user_id", req.UserID),
			logx.String("user_name", req.UserName),
			logx.String("channel_id", req.ChannelID),
			logx.String("from", req.From),
			logx.String("to", req.To),
			logx.Int("text_len", len(req.Text)),
		)
	}

	j, err := h.Dispatcher.Submit(r.Context(), req)
	if err != nil {
		h.Log.Warn("ingress submit failed", logx.String("req_id", reqID), logx.String("job_id", j.ID), logx.Err(err))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
