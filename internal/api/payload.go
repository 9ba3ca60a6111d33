package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/hpungsan/noctfcli/internal/challenge"
	"github.com/hpungsan/noctfcli/internal/errors"
)

// Tag keys derived from the definition.
const (
	TagCategories = "categories"
	TagDifficulty = "difficulty"
)

// Payload is the request body of POST and PUT /admin/challenges.
type Payload struct {
	Slug            string            `json:"slug"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Tags            map[string]string `json:"tags"`
	Hidden          bool              `json:"hidden"`
	VisibleAt       *string           `json:"visible_at"`
	PrivateMetadata PrivateMetadata   `json:"private_metadata"`

	// Version is the optimistic-concurrency token, sent on update only.
	Version *int `json:"version,omitempty"`
}

// PrivateMetadata is the admin-only part of a challenge.
type PrivateMetadata struct {
	Solve SolveMetadata `json:"solve"`
	Score ScoreMetadata `json:"score"`
	Files []Attachment  `json:"files"`
}

// SolveMetadata holds the accepted flags.
type SolveMetadata struct {
	Source string           `json:"source"`
	Flag   []challenge.Flag `json:"flag"`
}

// ScoreMetadata holds the scoring strategy.
type ScoreMetadata struct {
	Params   map[string]any `json:"params"`
	Strategy string         `json:"strategy"`
	Bonus    []float64      `json:"bonus"`
}

// BuildPayload maps a definition and its resolved attachments to the wire form.
// Every field of cfg is mapped exactly once.
func BuildPayload(cfg *challenge.Config, files []Attachment) *Payload {
	tags := make(map[string]string, len(cfg.Tags)+2)
	for k, v := range cfg.Tags {
		tags[k] = v
	}
	tags[TagCategories] = strings.Join(cfg.Categories, ",")
	if cfg.Difficulty != "" {
		tags[TagDifficulty] = cfg.Difficulty
	}

	description := cfg.Description
	if cfg.ConnectionInfo != "" {
		description = description + "\n\n" + cfg.ConnectionInfo
	}

	var visibleAt *string
	if cfg.VisibleAt != nil {
		s := cfg.VisibleAt.Format(time.RFC3339Nano)
		visibleAt = &s
	}

	flags := make([]challenge.Flag, len(cfg.Flags))
	copy(flags, cfg.Flags)

	params := cfg.Scoring.Params
	if params == nil {
		params = map[string]any{}
	}
	bonus := cfg.Scoring.Bonus
	if bonus == nil {
		bonus = []float64{}
	}
	attachments := files
	if attachments == nil {
		attachments = []Attachment{}
	}

	return &Payload{
		Slug:        cfg.Slug,
		Title:       cfg.Title,
		Description: description,
		Tags:        tags,
		Hidden:      cfg.Hidden,
		VisibleAt:   visibleAt,
		PrivateMetadata: PrivateMetadata{
			Solve: SolveMetadata{Source: cfg.Solve.Source, Flag: flags},
			Score: ScoreMetadata{
				Params:   params,
				Strategy: cfg.Scoring.Strategy,
				Bonus:    bonus,
			},
			Files: attachments,
		},
	}
}

// WithVersion returns a copy of p carrying the update version.
func (p *Payload) WithVersion(version int) *Payload {
	out := *p
	out.Version = &version
	return &out
}

// ConfigFromPayload inverts BuildPayload. Connection info cannot be separated from
// the description and stays part of it; local file paths are unknown, so attachments
// are returned alongside.
func ConfigFromPayload(p *Payload) (*challenge.Config, []Attachment, error) {
	tags := make(map[string]string, len(p.Tags))
	for k, v := range p.Tags {
		tags[k] = v
	}

	var categories []string
	if c := tags[TagCategories]; c != "" {
		categories = strings.Split(c, ",")
	}
	delete(tags, TagCategories)
	difficulty := tags[TagDifficulty]
	delete(tags, TagDifficulty)

	var visibleAt *time.Time
	if p.VisibleAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *p.VisibleAt)
		if err != nil {
			return nil, nil, errors.NewValidation(fmt.Sprintf("invalid visible_at: %v", err), "visible_at", *p.VisibleAt)
		}
		visibleAt = &t
	}

	md := p.PrivateMetadata
	cfg := &challenge.Config{
		Version:     challenge.DefaultVersion,
		Slug:        p.Slug,
		Title:       p.Title,
		Description: p.Description,
		Categories:  categories,
		Difficulty:  difficulty,
		Tags:        tags,
		Flags:       append([]challenge.Flag{}, md.Solve.Flag...),
		Hidden:      p.Hidden,
		VisibleAt:   visibleAt,
		Scoring: challenge.Scoring{
			Strategy: md.Score.Strategy,
			Params:   md.Score.Params,
			Bonus:    md.Score.Bonus,
		},
		Solve: challenge.Solve{
			Source:    md.Solve.Source,
			InputType: challenge.InputText,
		},
	}
	return cfg, md.Files, nil
}

// PayloadFromChallenge rebuilds the payload a remote challenge was last submitted with.
func PayloadFromChallenge(c *Challenge) (*Payload, error) {
	md, err := c.Metadata()
	if err != nil {
		return nil, err
	}
	var visibleAt *string
	if c.VisibleAt != nil {
		s := c.VisibleAt.Format(time.RFC3339Nano)
		visibleAt = &s
	}
	version := c.Version
	return &Payload{
		Slug:            c.Slug,
		Title:           c.Title,
		Description:     c.Description,
		Tags:            c.Tags,
		Hidden:          c.Hidden,
		VisibleAt:       visibleAt,
		PrivateMetadata: md,
		Version:         &version,
	}, nil
}

// Fingerprint returns the SHA-256 of the payload's canonical JSON (RFC 8785),
// ignoring the version token. Equal content always yields an equal fingerprint.
func Fingerprint(p *Payload) (string, error) {
	content := *p
	content.Version = nil

	raw, err := json.Marshal(&content)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
