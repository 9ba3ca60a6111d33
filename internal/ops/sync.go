package ops

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/hpungsan/noctfcli/internal/api"
	"github.com/hpungsan/noctfcli/internal/challenge"
	"github.com/hpungsan/noctfcli/internal/db"
	"github.com/hpungsan/noctfcli/internal/errors"
)

// EngineConfig wires an Engine.
type EngineConfig struct {
	Remote        Remote         // required unless every run is a dry run
	Journal       *sql.DB        // optional sync journal
	Preprocessors []Preprocessor // applied in order after validation
	Logger        *slog.Logger
}

// Engine runs the per-definition sync protocol. Definitions are processed
// strictly in sequence; concurrent RunBatch calls wait for each other.
type Engine struct {
	mu sync.Mutex // held for a whole batch

	remote        Remote
	journal       *sql.DB
	preprocessors []Preprocessor
	logger        *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		remote:        cfg.Remote,
		journal:       cfg.Journal,
		preprocessors: cfg.Preprocessors,
		logger:        logger.With("component", "sync"),
	}
}

// mode is the submission path chosen after lookup.
type mode interface {
	isMode()
}

type createMode struct{}

type updateMode struct {
	existing    *api.Challenge
	remoteFiles []api.ChallengeFile
}

func (createMode) isMode() {}
func (updateMode) isMode() {}

// item tracks one definition through the protocol.
type item struct {
	res     Result
	logger  *slog.Logger
	cfg     *challenge.Config
	baseDir string
}

func (it *item) enter(s State) {
	it.res.Reached = s
	it.logger.Debug("state", "state", s)
}

func (it *item) fail(err error) Result {
	it.res.Status = StatusFailed
	it.res.Error = errors.Message(err)
	it.logger.Info("failed", "state", it.res.Reached, "error", it.res.Error)
	return it.res
}

func (it *item) skip(reason string) Result {
	it.res.Status = StatusSkipped
	it.res.Error = reason
	it.logger.Warn("skipped", "reason", reason)
	return it.res
}

// prepare validates the definition at path, checks its files and runs the
// preprocessors. Nothing touches the network before this succeeds.
func (e *Engine) prepare(path string) (*item, error) {
	it := &item{
		res:     Result{Challenge: challenge.DirName(path), Path: path, Reached: StatePending},
		baseDir: filepath.Dir(path),
	}
	it.logger = e.logger.With("path", path)

	cfg, err := challenge.LoadComplete(path)
	if err != nil {
		return it, err
	}
	it.res.Challenge = cfg.Slug
	it.logger = it.logger.With("challenge", cfg.Slug)

	cfg, err = preprocess(cfg, e.preprocessors)
	if err != nil {
		return it, err
	}
	it.cfg = cfg
	it.enter(StateValidated)
	return it, nil
}

// Validate checks one definition offline and reports the files that would be sent.
func (e *Engine) Validate(path string) Result {
	it, err := e.prepare(path)
	if err != nil {
		return it.fail(err)
	}
	it.res.Status = StatusValidated
	it.res.PlannedFiles = append([]string{}, it.cfg.Files...)
	it.logger.Info("validated", "files", len(it.cfg.Files))
	return it.res
}

// Sync runs the full protocol for one definition:
// validate → lookup → reconcile files → submit. Every failure becomes a failed
// Result; Sync never returns an error.
func (e *Engine) Sync(ctx context.Context, path string, intent Intent) Result {
	it, err := e.prepare(path)
	if err != nil {
		return it.fail(err)
	}
	if e.remote == nil {
		return it.fail(errors.NewConfiguration("no API client configured"))
	}

	lookup, err := e.remote.FindChallenge(ctx, it.cfg.Slug, intent != IntentUpload)
	if err != nil {
		return it.fail(err)
	}
	it.enter(StateLocated)

	var m mode
	switch {
	case lookup.Found() && intent == IntentUpload:
		it.res.RemoteID = lookup.Challenge.ID
		return it.skip("challenge already exists")
	case !lookup.Found() && intent == IntentUpdate:
		return it.skip("challenge not found")
	case lookup.Found():
		m = updateMode{existing: lookup.Challenge, remoteFiles: lookup.Files}
	default:
		m = createMode{}
	}

	return e.submit(ctx, it, m)
}

func (e *Engine) submit(ctx context.Context, it *item, m mode) Result {
	switch m := m.(type) {
	case createMode:
		return e.create(ctx, it)
	case updateMode:
		return e.update(ctx, it, m)
	}
	return it.fail(errors.NewInternal(nil))
}

func (e *Engine) create(ctx context.Context, it *item) Result {
	it.enter(StateCreating)

	files, err := applyPlan(ctx, e.remote, it.baseDir, PlanCreate(it.cfg))
	if err != nil {
		return it.fail(err)
	}
	it.res.UploadedFiles = files.uploaded
	it.enter(StateFileReconciled)

	payload := api.BuildPayload(it.cfg, files.attachments)
	it.res.Fingerprint = e.fingerprint(it, payload)

	it.enter(StateSubmitted)
	created, err := e.remote.CreateChallenge(ctx, payload)
	if err != nil {
		return it.fail(err)
	}

	it.res.Status = StatusUploaded
	it.res.RemoteID = created.ID
	it.res.Version = created.Version
	it.logger.Info("uploaded", "id", created.ID, "files_uploaded", len(files.uploaded))
	return it.res
}

func (e *Engine) update(ctx context.Context, it *item, m updateMode) Result {
	it.enter(StateUpdating)
	it.res.RemoteID = m.existing.ID

	plan, err := Reconcile(it.cfg, it.baseDir, m.existing, m.remoteFiles)
	if err != nil {
		return it.fail(err)
	}
	files, err := applyPlan(ctx, e.remote, it.baseDir, plan)
	if err != nil {
		return it.fail(err)
	}
	it.res.UploadedFiles = files.uploaded
	it.res.ReusedFiles = files.reused
	it.enter(StateFileReconciled)

	payload := api.BuildPayload(it.cfg, files.attachments).WithVersion(m.existing.Version)
	it.res.Fingerprint = e.fingerprint(it, payload)
	if it.res.Fingerprint != "" && e.journal != nil {
		last, ok, err := db.LastFingerprint(e.journal, it.cfg.Slug)
		if err != nil {
			it.logger.Warn("journal lookup failed", "error", errors.Message(err))
		} else if ok && last == it.res.Fingerprint {
			it.res.Unchanged = true
			it.logger.Info("payload unchanged since last sync, submitting anyway")
		}
	}

	it.enter(StateSubmitted)
	newVersion, err := e.remote.UpdateChallenge(ctx, m.existing.ID, payload)
	if err != nil {
		return it.fail(err)
	}

	it.res.Status = StatusUpdated
	it.res.OldVersion = m.existing.Version
	it.res.Version = newVersion
	it.logger.Info("updated", "id", m.existing.ID, "version_from", m.existing.Version, "version_to", newVersion,
		"files_uploaded", len(files.uploaded), "files_reused", len(files.reused))
	return it.res
}

// fingerprint never fails the item; an empty fingerprint only disables change detection.
func (e *Engine) fingerprint(it *item, p *api.Payload) string {
	fp, err := api.Fingerprint(p)
	if err != nil {
		it.logger.Warn("fingerprint failed", "error", err)
		return ""
	}
	return fp
}
