// Package job holds the translation job pipeline: validation and dispatch at
// ingress, the runner that decides where a job executes, and the executor that
// translates and delivers.
package job

import (
	"encoding/json"
	"time"
)

// TranslationRequest is built once at ingress and never mutated.
type TranslationRequest struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Job is the queued unit of work.
type Job struct {
	ID         string             `json:"id"`
	Request    TranslationRequest `json:"request"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
	Attempt    int                `json:"attempt,omitempty"`
}

func (j Job) Marshal() ([]byte, error) { return json.Marshal(j) }

func Unmarshal(b []byte) (Job, error) {
	var j Job
	err := json.Unmarshal(b, &j)
	return j, err
}

// Stage names the pipeline step an outcome ended in.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageDispatch  Stage = "dispatch"
	StageTranslate Stage = "translate"
	StageProfile   Stage = "profile"
	StageDeliver   Stage = "deliver"
	StageDone      Stage = "done"
	StagePanic     Stage = "panic"
	StageDecode    Stage = "decode"
)

// Outcome is what one Executor.Run produced.
type Outcome struct {
	JobID    string
	Engine   string
	Stage    Stage
	Result   string
	Err      error
	Started  time.Time
	Duration time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil && o.Stage == StageDone }
