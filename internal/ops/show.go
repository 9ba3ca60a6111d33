package ops

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/noctfcli/internal/api"
	"github.com/hpungsan/noctfcli/internal/challenge"
	"github.com/hpungsan/noctfcli/internal/errors"
)

// ShowInput contains parameters for the Show operation.
type ShowInput struct {
	Slug string
	HTML bool // render the description as HTML
}

// ShowOutput is the admin view of one remote challenge.
type ShowOutput struct {
	ID              int64               `json:"id"`
	Slug            string              `json:"slug"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	DescriptionHTML string              `json:"description_html,omitempty"`
	Categories      []string            `json:"categories"`
	Difficulty      string              `json:"difficulty,omitempty"`
	Tags            map[string]string   `json:"tags"`
	Hidden          bool                `json:"hidden"`
	VisibleAt       string              `json:"visible_at,omitempty"`
	Version         int                 `json:"version"`
	Flags           []challenge.Flag    `json:"flags"`
	Scoring         challenge.Scoring   `json:"scoring"`
	SolveSource     string              `json:"solve_source"`
	Attachments     []api.Attachment    `json:"attachments"`
	Files           []api.ChallengeFile `json:"files"`
	Fingerprint     string              `json:"fingerprint,omitempty"`
}

// Show fetches a challenge by slug together with its file metadata.
func Show(ctx context.Context, admin Admin, input ShowInput) (*ShowOutput, error) {
	slug, err := challenge.NormalizeSlug(input.Slug)
	if err != nil {
		return nil, err
	}

	lookup, err := admin.GetChallenge(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	c := lookup.Challenge

	payload, err := api.PayloadFromChallenge(c)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	cfg, attachments, err := api.ConfigFromPayload(payload)
	if err != nil {
		return nil, err
	}

	out := &ShowOutput{
		ID:          c.ID,
		Slug:        c.Slug,
		Title:       c.Title,
		Description: c.Description,
		Categories:  cfg.Categories,
		Difficulty:  cfg.Difficulty,
		Tags:        cfg.Tags,
		Hidden:      c.Hidden,
		Version:     c.Version,
		Flags:       cfg.Flags,
		Scoring:     cfg.Scoring,
		SolveSource: cfg.Solve.Source,
		Attachments: attachments,
		Files:       lookup.Files,
	}
	if payload.VisibleAt != nil {
		out.VisibleAt = *payload.VisibleAt
	}
	if fp, err := api.Fingerprint(payload); err == nil {
		out.Fingerprint = fp
	}

	if out.Categories == nil {
		out.Categories = []string{}
	}
	if out.Flags == nil {
		out.Flags = []challenge.Flag{}
	}
	if out.Attachments == nil {
		out.Attachments = []api.Attachment{}
	}
	if out.Files == nil {
		out.Files = []api.ChallengeFile{}
	}

	if input.HTML {
		html, err := RenderMarkdown(c.Description)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out.DescriptionHTML = html
	}
	return out, nil
}

// RenderMarkdown converts a challenge description to HTML.
func RenderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
