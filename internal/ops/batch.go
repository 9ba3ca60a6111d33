package ops

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/noctfcli/internal/challenge"
	"github.com/hpungsan/noctfcli/internal/db"
	"github.com/hpungsan/noctfcli/internal/errors"
)

// BatchInput contains parameters for RunBatch.
type BatchInput struct {
	Root    string // directory searched for noctf.yaml at any depth, or a single definition
	Intent  Intent
	DryRun  bool   // validate and check files only; no network
	Command string // recorded in the journal, defaults to the intent
}

// FailedItem is one failure in a batch report.
type FailedItem struct {
	Challenge string `json:"challenge"`
	Error     string `json:"error"`
}

// Report aggregates a batch. Succeeded counts uploaded, updated and validated.
type Report struct {
	RunID     string       `json:"run_id"`
	Command   string       `json:"command"`
	Root      string       `json:"root"`
	DryRun    bool         `json:"dry_run"`
	Results   []Result     `json:"results"`
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Failures  []FailedItem `json:"failures,omitempty"`
}

// HasFailures reports whether any definition failed.
func (r *Report) HasFailures() bool {
	return r.Failed > 0
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	switch {
	case res.Status.Succeeded():
		r.Succeeded++
	case res.Status == StatusSkipped:
		r.Skipped++
	default:
		r.Failed++
		r.Failures = append(r.Failures, FailedItem{Challenge: res.Challenge, Error: res.Error})
	}
}

// NewRunID returns a ULID for a batch run.
func NewRunID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0)).String()
}

// RunBatch processes every definition under input.Root, one at a time, in path
// order. A failing definition never stops the batch; each produces exactly one
// Result. An error is returned only when the root cannot be scanned.
// Batches sharing an Engine never overlap.
func (e *Engine) RunBatch(ctx context.Context, input BatchInput) (*Report, error) {
	if !input.DryRun {
		if _, ok := ParseIntent(string(input.Intent)); !ok {
			return nil, errors.NewValidation("intent must be one of: upload, update, sync", "intent", string(input.Intent))
		}
	}
	command := input.Command
	if command == "" {
		command = string(input.Intent)
	}

	paths, err := challenge.FindDefinitions(input.Root)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	report := &Report{
		RunID:   NewRunID(now),
		Command: command,
		Root:    input.Root,
		DryRun:  input.DryRun,
		Results: make([]Result, 0, len(paths)),
	}
	logger := e.logger.With("run_id", report.RunID)
	logger.Info("batch started", "command", command, "root", input.Root, "definitions", len(paths), "dry_run", input.DryRun)

	e.journalRun(report, now.Unix())

	for _, path := range paths {
		var res Result
		if input.DryRun {
			res = e.Validate(path)
		} else {
			res = e.Sync(ctx, path, input.Intent)
		}
		report.add(res)
		e.journalResult(report.RunID, res)
	}

	e.journalFinish(report)
	logger.Info("batch finished", "succeeded", report.Succeeded, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// Journal writes are best effort: a broken journal never fails a sync.

func (e *Engine) journalRun(r *Report, startedAt int64) {
	if e.journal == nil {
		return
	}
	err := db.InsertRun(e.journal, &db.Run{
		ID: r.RunID, Command: r.Command, Root: r.Root, DryRun: r.DryRun, StartedAt: startedAt,
	})
	if err != nil {
		e.logger.Warn("journal write failed", "error", errors.Message(err))
	}
}

func (e *Engine) journalResult(runID string, res Result) {
	if e.journal == nil {
		return
	}
	row := &db.Result{
		RunID:         runID,
		Challenge:     res.Challenge,
		Path:          res.Path,
		Status:        string(res.Status),
		UploadedFiles: len(res.UploadedFiles),
		ReusedFiles:   len(res.ReusedFiles),
		CreatedAt:     time.Now().Unix(),
	}
	if res.Error != "" {
		row.Error = &res.Error
	}
	if res.RemoteID != 0 {
		row.RemoteID = &res.RemoteID
	}
	if res.Version != 0 {
		row.Version = &res.Version
	}
	if res.Fingerprint != "" {
		row.Fingerprint = &res.Fingerprint
	}
	if err := db.InsertResult(e.journal, row); err != nil {
		e.logger.Warn("journal write failed", "error", errors.Message(err))
	}
}

func (e *Engine) journalFinish(r *Report) {
	if e.journal == nil {
		return
	}
	if err := db.FinishRun(e.journal, r.RunID, time.Now().Unix(), r.Succeeded, r.Skipped, r.Failed); err != nil {
		e.logger.Warn("journal write failed", "error", errors.Message(err))
	}
}
