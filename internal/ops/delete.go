package ops

import (
	"context"

	"github.com/hpungsan/noctfcli/internal/challenge"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	Slug string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      int64  `json:"id"`
	Slug    string `json:"slug"`
}

// Delete resolves a slug to its remote id and deletes the challenge.
// Files it referenced are left on the platform.
func Delete(ctx context.Context, admin Admin, input DeleteInput) (*DeleteOutput, error) {
	slug, err := challenge.NormalizeSlug(input.Slug)
	if err != nil {
		return nil, err
	}

	lookup, err := admin.GetChallenge(ctx, slug, false)
	if err != nil {
		return nil, err
	}

	if err := admin.DeleteChallenge(ctx, lookup.Challenge.ID); err != nil {
		return nil, err
	}

	return &DeleteOutput{
		Deleted: true,
		ID:      lookup.Challenge.ID,
		Slug:    slug,
	}, nil
}
