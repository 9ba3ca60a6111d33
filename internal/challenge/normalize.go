package challenge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/hpungsan/noctfcli/internal/errors"
)

// supportedVersions is the range of definition versions this tool understands.
var supportedVersions = mustConstraint("^1")

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

// NormalizeSlug checks a slug and returns it lowercased.
// Only ASCII letters, digits, '-' and '_' are accepted, at most MaxSlugLength characters.
func NormalizeSlug(slug string) (string, error) {
	if slug == "" {
		return "", errors.NewValidation("slug must not be empty", "slug", slug)
	}
	for _, r := range slug {
		if !isSlugRune(r) {
			return "", errors.NewValidation(
				"slug must contain only alphanumeric characters, hyphens and underscores", "slug", slug)
		}
	}
	if len(slug) > MaxSlugLength {
		return "", errors.NewValidation(
			fmt.Sprintf("slug must be %d characters or less", MaxSlugLength), "slug", slug)
	}
	return strings.ToLower(slug), nil
}

func isSlugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// ParseFlag decodes one flags entry: a bare string means {data, case_sensitive};
// an object's strategy defaults to case_sensitive.
func ParseFlag(raw json.RawMessage) (Flag, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var data string
		if err := json.Unmarshal(trimmed, &data); err != nil {
			return Flag{}, err
		}
		return Flag{Data: data, Strategy: FlagCaseSensitive}, nil
	}

	var f Flag
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return Flag{}, err
	}
	if f.Strategy == "" {
		f.Strategy = FlagCaseSensitive
	}
	if !f.Strategy.Valid() {
		return Flag{}, fmt.Errorf("unknown flag strategy %q", f.Strategy)
	}
	return f, nil
}

// CheckVersion verifies the definition version is a supported semantic version.
func CheckVersion(v string) error {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return errors.NewValidation(fmt.Sprintf("version %q is not a valid semantic version", v), "version", v)
	}
	if !supportedVersions.Check(parsed) {
		return errors.NewValidation(
			fmt.Sprintf("unsupported definition version %s (supported: %s)", v, supportedVersions), "version", v)
	}
	return nil
}

// document mirrors the schema-validated JSON shape of a definition.
type document struct {
	Version        *string           `json:"version"`
	Slug           string            `json:"slug"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Categories     []string          `json:"categories"`
	Difficulty     *string           `json:"difficulty"`
	Tags           map[string]string `json:"tags"`
	Flags          []json.RawMessage `json:"flags"`
	Files          []string          `json:"files"`
	Hidden         bool              `json:"hidden"`
	VisibleAt      *time.Time        `json:"visible_at"`
	Scoring        *documentScoring  `json:"scoring"`
	Solve          *documentSolve    `json:"solve"`
	ConnectionInfo *string           `json:"connection_info"`
}

type documentScoring struct {
	Strategy string         `json:"strategy"`
	Params   map[string]any `json:"params"`
	Bonus    []float64      `json:"bonus"`
}

type documentSolve struct {
	Source    string    `json:"source"`
	InputType InputType `json:"input_type"`
}

// build applies semantic validation and defaults to a schema-valid document.
// It is pure: the same document always yields the same Config.
func build(doc *document) (*Config, error) {
	slug, err := NormalizeSlug(doc.Slug)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Version:     DefaultVersion,
		Slug:        slug,
		Title:       doc.Title,
		Description: doc.Description,
		Categories:  doc.Categories,
		Tags:        doc.Tags,
		Files:       doc.Files,
		Hidden:      doc.Hidden,
		VisibleAt:   doc.VisibleAt,
		Scoring: Scoring{
			Strategy: DefaultScoringStrategy,
			Params:   map[string]any{"base": float64(DefaultBaseScore)},
		},
		Solve: Solve{
			Source:    DefaultSolveSource,
			InputType: InputText,
		},
	}

	if doc.Version != nil {
		cfg.Version = *doc.Version
	}
	if err := CheckVersion(cfg.Version); err != nil {
		return nil, err
	}

	if doc.Difficulty != nil {
		cfg.Difficulty = *doc.Difficulty
	}
	if doc.ConnectionInfo != nil {
		cfg.ConnectionInfo = *doc.ConnectionInfo
	}
	if cfg.Tags == nil {
		cfg.Tags = map[string]string{}
	}

	cfg.Flags = make([]Flag, 0, len(doc.Flags))
	for i, raw := range doc.Flags {
		f, err := ParseFlag(raw)
		if err != nil {
			return nil, errors.NewValidation(fmt.Sprintf("invalid flag: %v", err), fmt.Sprintf("flags.%d", i), string(raw))
		}
		cfg.Flags = append(cfg.Flags, f)
	}

	if s := doc.Scoring; s != nil {
		if s.Strategy != "" {
			cfg.Scoring.Strategy = s.Strategy
		}
		if s.Params != nil {
			cfg.Scoring.Params = s.Params
		}
		cfg.Scoring.Bonus = s.Bonus
	}
	if s := doc.Solve; s != nil {
		if s.Source != "" {
			cfg.Solve.Source = s.Source
		}
		if s.InputType != "" {
			cfg.Solve.InputType = s.InputType
		}
	}

	return cfg, nil
}
