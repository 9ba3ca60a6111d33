package challenge

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/noctfcli/internal/errors"
)

// LoadFile reads and validates a definition: schema first, then the semantic model.
// File existence is not checked; see LoadComplete.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, withSource(errors.NewValidation(fmt.Sprintf("file not found: %s", path), "", nil), path)
		}
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse validates raw YAML. source names the document in error messages and may be empty.
func Parse(data []byte, source string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, withSource(errors.NewValidation(fmt.Sprintf("invalid YAML file%s: %v", inSource(source), err), "", nil), source)
	}

	doc, err := toJSONCompatible(raw)
	if err != nil {
		return nil, withSource(errors.NewValidation(fmt.Sprintf("invalid YAML file%s: %v", inSource(source), err), "", nil), source)
	}

	if err := ValidateDocument(doc, source); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	var typed document
	if err := json.Unmarshal(encoded, &typed); err != nil {
		return nil, withSource(errors.NewValidation(fmt.Sprintf("model validation failed%s: %v", inSource(source), err), "", nil), source)
	}

	cfg, err := build(&typed)
	if err != nil {
		if nErr, ok := errors.As(err); ok {
			nErr.Message = fmt.Sprintf("model validation failed%s: %s", inSource(source), nErr.Message)
			return nil, withSource(nErr, source)
		}
		return nil, err
	}
	return cfg, nil
}

// toJSONCompatible converts a yaml.v3 decoded tree into the shape encoding/json
// produces: string keys, json.Number for numbers, RFC 3339 strings for timestamps.
func toJSONCompatible(v any) (any, error) {
	normalized, err := stringifyKeys(v)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringifyKeys(v any) (any, error) {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			c, err := stringifyKeys(child)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			c, err := stringifyKeys(child)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			c, err := stringifyKeys(child)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case time.Time:
		return node.Format(time.RFC3339Nano), nil
	default:
		return v, nil
	}
}
