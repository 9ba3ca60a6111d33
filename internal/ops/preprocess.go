package ops

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/hpungsan/noctfcli/internal/challenge"
	"github.com/hpungsan/noctfcli/internal/errors"
)

// Preprocessor transforms a validated definition before it is submitted.
// Implementations return a modified copy and leave the input untouched.
type Preprocessor interface {
	Preprocess(cfg *challenge.Config) (*challenge.Config, error)
}

// PreprocessorFunc adapts a function to Preprocessor.
type PreprocessorFunc func(cfg *challenge.Config) (*challenge.Config, error)

// Preprocess calls f.
func (f PreprocessorFunc) Preprocess(cfg *challenge.Config) (*challenge.Config, error) {
	return f(cfg)
}

// TemplatePreprocessor renders connection_info as a text/template over Vars,
// e.g. "nc {{.host}} {{.port}}". Unknown variables are an error.
type TemplatePreprocessor struct {
	Vars map[string]string
}

// Preprocess implements Preprocessor.
func (p TemplatePreprocessor) Preprocess(cfg *challenge.Config) (*challenge.Config, error) {
	if !strings.Contains(cfg.ConnectionInfo, "{{") {
		return cfg, nil
	}

	tmpl, err := template.New(cfg.Slug).Option("missingkey=error").Parse(cfg.ConnectionInfo)
	if err != nil {
		return nil, errors.NewValidation(fmt.Sprintf("invalid connection_info template: %v", err), "connection_info", cfg.ConnectionInfo)
	}

	vars := p.Vars
	if vars == nil {
		vars = map[string]string{}
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return nil, errors.NewValidation(fmt.Sprintf("render connection_info: %v", err), "connection_info", cfg.ConnectionInfo)
	}

	out := cfg.Clone()
	out.ConnectionInfo = b.String()
	return out, nil
}

func preprocess(cfg *challenge.Config, chain []Preprocessor) (*challenge.Config, error) {
	for _, p := range chain {
		next, err := p.Preprocess(cfg)
		if err != nil {
			return nil, err
		}
		cfg = next
	}
	return cfg, nil
}
