package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the journal.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// JobRecord is one journal line. Keep it compact and schema-stable.
type JobRecord struct {
	At      time.Time `json:"at"`
	JobID   string    `json:"job_id"`
	UserID  string    `json:"user_id"`
	Channel string    `json:"channel_id"`
	Engine  string    `json:"engine"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Stage   string    `json:"stage"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}
