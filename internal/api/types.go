package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hpungsan/noctfcli/internal/challenge"
)

// envelope is the {data: ...} wrapper around every noCTF response.
type envelope[T any] struct {
	Data T `json:"data"`
}

// Attachment references an uploaded file from a challenge's private metadata.
type Attachment struct {
	ID           int64 `json:"id"`
	IsAttachment bool  `json:"is_attachment"`
}

// ChallengeFile is a file stored by the platform. Hash is "sha256:<hex>".
type ChallengeFile struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Ref      string `json:"ref"`
	Size     int64  `json:"size"`
	Mime     string `json:"mime"`
	Hash     string `json:"hash"`
	URL      string `json:"url"`
	Provider string `json:"provider"`
}

// Challenge is the full admin view of a remote challenge.
type Challenge struct {
	ID              int64             `json:"id"`
	Slug            string            `json:"slug"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Tags            map[string]string `json:"tags"`
	Hidden          bool              `json:"hidden"`
	Version         int               `json:"version"`
	VisibleAt       *time.Time        `json:"visible_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	PrivateMetadata json.RawMessage   `json:"private_metadata"`
}

// Metadata decodes private_metadata. Missing metadata yields the zero value.
func (c *Challenge) Metadata() (PrivateMetadata, error) {
	var md PrivateMetadata
	if len(c.PrivateMetadata) == 0 || string(c.PrivateMetadata) == "null" {
		return md, nil
	}
	if err := json.Unmarshal(c.PrivateMetadata, &md); err != nil {
		return md, fmt.Errorf("decode private_metadata of challenge %d: %w", c.ID, err)
	}
	return md, nil
}

// Files is a read view over private_metadata.files.
func (c *Challenge) Files() ([]Attachment, error) {
	md, err := c.Metadata()
	if err != nil {
		return nil, err
	}
	return md.Files, nil
}

// Flags is a read view over private_metadata.solve.flag.
func (c *Challenge) Flags() ([]challenge.Flag, error) {
	md, err := c.Metadata()
	if err != nil {
		return nil, err
	}
	return md.Solve.Flag, nil
}

// ChallengeSummary is one row of the admin challenge list.
type ChallengeSummary struct {
	ID        int64             `json:"id"`
	Slug      string            `json:"slug"`
	Title     string            `json:"title"`
	Tags      map[string]string `json:"tags"`
	Hidden    bool              `json:"hidden"`
	VisibleAt *time.Time        `json:"visible_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Lookup is the outcome of resolving a slug. A missing challenge is not an error.
type Lookup struct {
	Challenge *Challenge
	Files     []ChallengeFile // metadata for Challenge's attachments that still exist
}

// Found reports whether the slug resolved to a remote challenge.
func (l Lookup) Found() bool {
	return l.Challenge != nil
}

type loginResponse struct {
	Token string `json:"token"`
}

type updateResponse struct {
	Version *int `json:"version"`
}
