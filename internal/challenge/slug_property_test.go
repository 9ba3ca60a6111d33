//go:build property
// +build property

package challenge

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSlugAcceptsAllowedAlphabet verifies every slug over [A-Za-z0-9_-] of length 1..64
// is accepted and lowercased.
func TestSlugAcceptsAllowedAlphabet(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("allowed slugs normalize to lowercase", prop.ForAll(
		func(s string) bool {
			got, err := NormalizeSlug(s)
			return err == nil && got == strings.ToLower(s)
		},
		gen.RegexMatch(`^[A-Za-z0-9_-]{1,64}$`),
	))

	properties.Property("normalization is idempotent", prop.ForAll(
		func(s string) bool {
			once, err := NormalizeSlug(s)
			if err != nil {
				return false
			}
			twice, err := NormalizeSlug(once)
			return err == nil && once == twice
		},
		gen.RegexMatch(`^[A-Za-z0-9_-]{1,64}$`),
	))

	properties.TestingRun(t)
}

// TestSlugRejectsForbiddenCharacters verifies a single disallowed character anywhere
// makes the slug invalid.
func TestSlugRejectsForbiddenCharacters(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("slugs containing a forbidden rune are rejected", prop.ForAll(
		func(prefix string, bad rune, suffix string) bool {
			_, err := NormalizeSlug(prefix + string(bad) + suffix)
			return err != nil
		},
		gen.AlphaString(),
		gen.OneConstOf(' ', '.', '/', '!', '@', 'é', '\t', ':'),
		gen.AlphaString(),
	))

	properties.Property("slugs longer than the limit are rejected", prop.ForAll(
		func(extra int) bool {
			_, err := NormalizeSlug(strings.Repeat("a", MaxSlugLength+extra))
			return err != nil
		},
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
