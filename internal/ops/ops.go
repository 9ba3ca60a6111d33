// Package ops implements the sync engine and the single-challenge operations
// exposed by the CLI and the MCP server.
package ops

import (
	"context"

	"github.com/hpungsan/noctfcli/internal/api"
)

// Pagination limits
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Status is the final outcome of one definition.
type Status string

const (
	StatusUploaded  Status = "uploaded"
	StatusUpdated   Status = "updated"
	StatusValidated Status = "validated"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Succeeded reports whether s counts toward a batch's succeeded total.
func (s Status) Succeeded() bool {
	return s == StatusUploaded || s == StatusUpdated || s == StatusValidated
}

// Intent is what the operator asked for.
type Intent string

const (
	IntentUpload Intent = "upload" // create only; an existing slug is skipped
	IntentUpdate Intent = "update" // update only; a missing slug is skipped
	IntentSync   Intent = "sync"   // create when missing, update when present
)

// ParseIntent maps a command name to an Intent.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentUpload, IntentUpdate, IntentSync:
		return Intent(s), true
	}
	return "", false
}

// State is a step of the per-definition protocol:
// pending → validated → located → creating|updating → file_reconciled → submitted.
type State string

const (
	StatePending        State = "pending"
	StateValidated      State = "validated"
	StateLocated        State = "located"
	StateCreating       State = "creating"
	StateUpdating       State = "updating"
	StateFileReconciled State = "file_reconciled"
	StateSubmitted      State = "submitted"
)

// Result is the outcome for one definition.
type Result struct {
	Challenge string `json:"challenge"` // slug, or the definition's directory name when unknown
	Path      string `json:"path"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`

	// Reached is the last protocol state entered before the outcome.
	Reached State `json:"reached"`

	RemoteID      int64    `json:"remote_id,omitempty"`
	OldVersion    int      `json:"old_version,omitempty"`
	Version       int      `json:"version,omitempty"`
	UploadedFiles []string `json:"uploaded_files,omitempty"`
	ReusedFiles   []string `json:"reused_files,omitempty"`
	PlannedFiles  []string `json:"planned_files,omitempty"` // dry run only
	Fingerprint   string   `json:"fingerprint,omitempty"`
	Unchanged     bool     `json:"unchanged,omitempty"` // payload equals the last recorded submission
}

// Remote is the part of the API client the sync protocol needs.
type Remote interface {
	FindChallenge(ctx context.Context, slug string, withFiles bool) (api.Lookup, error)
	UploadFile(ctx context.Context, path string) (*api.ChallengeFile, error)
	CreateChallenge(ctx context.Context, p *api.Payload) (*api.Challenge, error)
	UpdateChallenge(ctx context.Context, id int64, p *api.Payload) (int, error)
}

// Admin is the part of the API client the single-challenge operations need.
type Admin interface {
	ListChallenges(ctx context.Context, hidden *bool) ([]api.ChallengeSummary, error)
	GetChallenge(ctx context.Context, slug string, withFiles bool) (api.Lookup, error)
	DeleteChallenge(ctx context.Context, id int64) error
}
