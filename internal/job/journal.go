package job

import (
	"context"
	"time"

	"slacktranslator/internal/storage"
	logx "slacktranslator/pkg/logx"
)

// JournalObserver writes each outcome to store. Write failures are logged.
func JournalObserver(store storage.Store, log logx.Logger) Observer {
	return func(ctx context.Context, j Job, o Outcome) {
		if store == nil {
			return
		}
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rec := storage.JobRecord{
			At:      o.Started,
			JobID:   j.ID,
			UserID:  j.Request.UserID,
			Channel: j.Request.ChannelID,
			Engine:  o.Engine,
			From:    j.Request.From,
			To:      j.Request.To,
			Stage:   string(o.Stage),
			Error:   errString(o.Err),
			TookMS:  o.Duration.Milliseconds(),
		}
		if err := store.Append(wctx, rec); err != nil {
			log.Warn("journal append failed", logx.String("job_id", j.ID), logx.Err(err))
		}
	}
}
