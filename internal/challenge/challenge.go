// Package challenge loads and validates noctf.yaml challenge definitions.
package challenge

import (
	"path/filepath"
	"time"
)

// DefinitionFile is the file name the batch driver looks for.
const DefinitionFile = "noctf.yaml"

// Defaults applied when a definition omits the corresponding field.
const (
	DefaultVersion         = "1.0"
	DefaultScoringStrategy = "core:static"
	DefaultSolveSource     = "flag"
	DefaultBaseScore       = 100
)

// MaxSlugLength is the longest accepted slug.
const MaxSlugLength = 64

// FlagStrategy is how a submitted flag is compared.
type FlagStrategy string

const (
	FlagCaseSensitive   FlagStrategy = "case_sensitive"
	FlagCaseInsensitive FlagStrategy = "case_insensitive"
	FlagRegex           FlagStrategy = "regex"
)

// Valid reports whether s is a known strategy.
func (s FlagStrategy) Valid() bool {
	switch s {
	case FlagCaseSensitive, FlagCaseInsensitive, FlagRegex:
		return true
	}
	return false
}

// InputType is the kind of solve input a challenge accepts.
type InputType string

const (
	InputText InputType = "text"
	InputFile InputType = "file"
	InputNone InputType = "none"
)

// Flag is one accepted answer.
type Flag struct {
	Data     string       `json:"data"`
	Strategy FlagStrategy `json:"strategy"`
}

// Scoring configures the score strategy.
type Scoring struct {
	Strategy string         `json:"strategy"`
	Params   map[string]any `json:"params"`
	Bonus    []float64      `json:"bonus"`
}

// Solve configures how a challenge is solved.
type Solve struct {
	Source    string    `json:"source"`
	InputType InputType `json:"input_type"`
}

// Config is the validated, normalized form of one noctf.yaml.
// It is rebuilt on every run and never mutated after construction,
// except by a Preprocessor that returns a modified copy.
type Config struct {
	Version     string
	Slug        string // lowercased
	Title       string
	Description string
	Categories  []string
	Difficulty  string // empty when absent
	Tags        map[string]string
	Flags       []Flag
	Files       []string // relative to the definition directory
	Hidden      bool
	VisibleAt   *time.Time
	Scoring     Scoring
	Solve       Solve

	// ConnectionInfo is appended to the description at submission time.
	ConnectionInfo string
}

// FilePaths resolves Files against the definition directory.
func (c *Config) FilePaths(baseDir string) []string {
	paths := make([]string, len(c.Files))
	for i, f := range c.Files {
		paths[i] = filepath.Join(baseDir, f)
	}
	return paths
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Categories = append([]string(nil), c.Categories...)
	out.Flags = append([]Flag(nil), c.Flags...)
	out.Files = append([]string(nil), c.Files...)
	out.Scoring.Bonus = append([]float64(nil), c.Scoring.Bonus...)
	if c.Tags != nil {
		out.Tags = make(map[string]string, len(c.Tags))
		for k, v := range c.Tags {
			out.Tags[k] = v
		}
	}
	if c.Scoring.Params != nil {
		out.Scoring.Params = make(map[string]any, len(c.Scoring.Params))
		for k, v := range c.Scoring.Params {
			out.Scoring.Params[k] = v
		}
	}
	if c.VisibleAt != nil {
		t := *c.VisibleAt
		out.VisibleAt = &t
	}
	return &out
}
