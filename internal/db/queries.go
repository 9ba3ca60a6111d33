package db

import (
	"database/sql"

	"github.com/hpungsan/noctfcli/internal/errors"
)

// Run is one batch invocation.
type Run struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	Root       string `json:"root"`
	DryRun     bool   `json:"dry_run"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt *int64 `json:"finished_at,omitempty"`
	Succeeded  int    `json:"succeeded"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// Result is the recorded outcome for one definition within a run.
type Result struct {
	RunID         string  `json:"run_id"`
	Challenge     string  `json:"challenge"`
	Path          string  `json:"path"`
	Status        string  `json:"status"`
	Error         *string `json:"error,omitempty"`
	RemoteID      *int64  `json:"remote_id,omitempty"`
	Version       *int    `json:"version,omitempty"`
	UploadedFiles int     `json:"uploaded_files"`
	ReusedFiles   int     `json:"reused_files"`
	Fingerprint   *string `json:"fingerprint,omitempty"`
	CreatedAt     int64   `json:"created_at"`
}

// InsertRun records the start of a run.
func InsertRun(db *sql.DB, r *Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, command, root, dry_run, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.Command, r.Root, r.DryRun, r.StartedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// FinishRun stores the aggregate counts of a completed run.
func FinishRun(db *sql.DB, id string, finishedAt int64, succeeded, skipped, failed int) error {
	res, err := db.Exec(`
		UPDATE runs SET finished_at = ?, succeeded = ?, skipped = ?, failed = ?
		WHERE id = ?
	`, finishedAt, succeeded, skipped, failed, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// InsertResult appends one definition outcome to a run.
func InsertResult(db *sql.DB, r *Result) error {
	_, err := db.Exec(`
		INSERT INTO results (
			run_id, challenge, path, status, error, remote_id, version,
			uploaded_files, reused_files, fingerprint, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID, r.Challenge, r.Path, r.Status, toNullString(r.Error), toNullInt64(r.RemoteID), toNullInt(r.Version),
		r.UploadedFiles, r.ReusedFiles, toNullString(r.Fingerprint), r.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LastFingerprint returns the payload fingerprint of the most recent successful
// submission of challenge. ok is false when none was recorded.
func LastFingerprint(db *sql.DB, challenge string) (fingerprint string, ok bool, err error) {
	err = db.QueryRow(`
		SELECT fingerprint FROM results
		WHERE challenge = ? AND fingerprint IS NOT NULL AND status IN ('uploaded', 'updated')
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, challenge).Scan(&fingerprint)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	return fingerprint, true, nil
}

// GetRun retrieves a run by its ULID.
func GetRun(db *sql.DB, id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, command, root, dry_run, started_at, finished_at, succeeded, skipped, failed
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListRuns returns runs newest first, with the total count for pagination.
func ListRuns(db *sql.DB, limit, offset int) ([]Run, int, error) {
	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.Query(`
		SELECT id, command, root, dry_run, started_at, finished_at, succeeded, skipped, failed
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return runs, total, nil
}

// ListResults returns the results of one run in processing order.
func ListResults(db *sql.DB, runID string) ([]Result, error) {
	return queryResults(db, `
		SELECT run_id, challenge, path, status, error, remote_id, version,
			uploaded_files, reused_files, fingerprint, created_at
		FROM results WHERE run_id = ?
		ORDER BY rowid
	`, runID)
}

// ChallengeHistory returns the most recent results for one challenge, newest first.
func ChallengeHistory(db *sql.DB, challenge string, limit int) ([]Result, error) {
	return queryResults(db, `
		SELECT run_id, challenge, path, status, error, remote_id, version,
			uploaded_files, reused_files, fingerprint, created_at
		FROM results WHERE challenge = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, challenge, limit)
}

func queryResults(db *sql.DB, query string, args ...any) ([]Result, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r           Result
			errMsg      sql.NullString
			remoteID    sql.NullInt64
			version     sql.NullInt64
			fingerprint sql.NullString
		)
		if err := rows.Scan(
			&r.RunID, &r.Challenge, &r.Path, &r.Status, &errMsg, &remoteID, &version,
			&r.UploadedFiles, &r.ReusedFiles, &fingerprint, &r.CreatedAt,
		); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.Error = fromNullString(errMsg)
		r.Fingerprint = fromNullString(fingerprint)
		if remoteID.Valid {
			id := remoteID.Int64
			r.RemoteID = &id
		}
		if version.Valid {
			v := int(version.Int64)
			r.Version = &v
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r          Run
		finishedAt sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Command, &r.Root, &r.DryRun, &r.StartedAt, &finishedAt,
		&r.Succeeded, &r.Skipped, &r.Failed); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		v := finishedAt.Int64
		r.FinishedAt = &v
	}
	return &r, nil
}

// toNullString converts *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func toNullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
