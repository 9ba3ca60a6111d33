package ops

import (
	"database/sql"

	"github.com/hpungsan/noctfcli/internal/challenge"
	"github.com/hpungsan/noctfcli/internal/db"
	"github.com/hpungsan/noctfcli/internal/errors"
)

// HistoryInput contains parameters for the History operation.
// At most one of RunID and Challenge may be set.
type HistoryInput struct {
	RunID     string
	Challenge string
	Limit     int // default: 20, max: 100
	Offset    int
}

// RunDetail is one journal run with its per-definition results.
type RunDetail struct {
	db.Run
	Results []db.Result `json:"results"`
}

// HistoryOutput contains the result of the History operation.
// Runs is set when listing runs or fetching one; Results when querying a challenge.
type HistoryOutput struct {
	Runs       []RunDetail `json:"runs,omitempty"`
	Results    []db.Result `json:"results,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// History reads the sync journal: recent runs, one run by id, or the recent
// results for one challenge.
func History(database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	if database == nil {
		return nil, errors.NewConfiguration("sync journal is disabled")
	}
	if input.RunID != "" && input.Challenge != "" {
		return nil, errors.NewValidation("run_id and challenge are mutually exclusive", "", nil)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	offset := max(input.Offset, 0)

	switch {
	case input.RunID != "":
		run, err := db.GetRun(database, input.RunID)
		if err != nil {
			return nil, err
		}
		detail, err := runDetail(database, *run)
		if err != nil {
			return nil, err
		}
		return &HistoryOutput{Runs: []RunDetail{detail}}, nil

	case input.Challenge != "":
		slug, err := challenge.NormalizeSlug(input.Challenge)
		if err != nil {
			return nil, err
		}
		results, err := db.ChallengeHistory(database, slug, limit)
		if err != nil {
			return nil, err
		}
		if results == nil {
			results = []db.Result{}
		}
		return &HistoryOutput{Results: results}, nil
	}

	runs, total, err := db.ListRuns(database, limit, offset)
	if err != nil {
		return nil, err
	}
	out := &HistoryOutput{
		Runs: make([]RunDetail, 0, len(runs)),
		Pagination: &Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(runs) < total,
			Total:   total,
		},
	}
	for _, r := range runs {
		detail, err := runDetail(database, r)
		if err != nil {
			return nil, err
		}
		out.Runs = append(out.Runs, detail)
	}
	return out, nil
}

func runDetail(database *sql.DB, r db.Run) (RunDetail, error) {
	results, err := db.ListResults(database, r.ID)
	if err != nil {
		return RunDetail{}, err
	}
	if results == nil {
		results = []db.Result{}
	}
	return RunDetail{Run: r, Results: results}, nil
}
