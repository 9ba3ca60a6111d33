package challenge

import (
	_ "embed"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hpungsan/noctfcli/internal/errors"
)

//go:embed schema/noctf.schema.json
var schemaJSON string

const schemaURL = "https://noctf.dev/schemas/noctf.yaml.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// definitionSchema compiles the embedded schema once per process.
func definitionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("definition schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("definition schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// SchemaJSON returns the embedded definition schema document.
func SchemaJSON() string {
	return schemaJSON
}

// ValidateDocument checks a JSON-compatible document (string-keyed maps, json.Number)
// against the definition schema. The returned ValidationError names the dotted path of
// the deepest failing location and the offending value.
func ValidateDocument(doc any, source string) error {
	sch, err := definitionSchema()
	if err != nil {
		return errors.NewInternal(err)
	}

	err = sch.Validate(doc)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !stderrors.As(err, &verr) {
		return errors.NewInternal(err)
	}

	leaf := deepestCause(verr)
	field := pointerToField(leaf.InstanceLocation)
	var value any
	if field != "" {
		value = lookupPointer(doc, leaf.InstanceLocation)
	}

	return withSource(
		errors.NewValidation(fmt.Sprintf("schema validation failed%s: %s", inSource(source), leaf.Message), field, value),
		source,
	)
}

// deepestCause follows the cause tree to the leaf with the longest instance location.
// Ties keep the first cause, which is the first failing keyword.
func deepestCause(e *jsonschema.ValidationError) *jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return e
	}
	best := deepestCause(e.Causes[0])
	for _, c := range e.Causes[1:] {
		if leaf := deepestCause(c); len(leaf.InstanceLocation) > len(best.InstanceLocation) {
			best = leaf
		}
	}
	return best
}

// pointerToField converts a JSON pointer ("/flags/1/strategy") to a dotted path.
func pointerToField(ptr string) string {
	tokens := pointerTokens(ptr)
	return strings.Join(tokens, ".")
}

func pointerTokens(ptr string) []string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return nil
	}
	tokens := strings.Split(ptr, "/")
	for i, tok := range tokens {
		tok = strings.ReplaceAll(tok, "~1", "/")
		tokens[i] = strings.ReplaceAll(tok, "~0", "~")
	}
	return tokens
}

// lookupPointer resolves a JSON pointer in a decoded document. Returns nil if the
// path does not exist.
func lookupPointer(doc any, ptr string) any {
	cur := doc
	for _, tok := range pointerTokens(ptr) {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[tok]
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}

func inSource(source string) string {
	if source == "" {
		return ""
	}
	return " in " + source
}

// withSource records the definition file on a validation error.
func withSource(e *errors.NoctfError, source string) *errors.NoctfError {
	if source == "" {
		return e
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details["source"] = source
	return e
}
