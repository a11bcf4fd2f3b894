package storage

import (
	"context"
	"fmt"
	"strings"

	logx "slacktranslator/pkg/logx"
)

// Store is the job journal. Implementations are safe for concurrent use.
type Store interface {
	Append(ctx context.Context, r JobRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]JobRecord, error)
	Close() error
}

type opener func(Config, logx.Logger) (Store, error)

var drivers = map[string]opener{
	"file":    openFile,
	"sqlite":  openSQLite,
	"sqlite3": openSQLite,
}

// Open returns the journal for cfg.Driver, or (nil, nil) when the driver is
// empty or "none".
func Open(cfg Config, log logx.Logger) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" || name == "none" {
		return nil, nil
	}
	open, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("journal: unknown driver %q", cfg.Driver)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return open(cfg, log)
}
