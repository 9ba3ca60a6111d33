package ops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/hpungsan/noctfcli/internal/api"
	"github.com/hpungsan/noctfcli/internal/challenge"
	"github.com/hpungsan/noctfcli/internal/errors"
)

// fakePlatform is an in-memory noCTF admin API.
type fakePlatform struct {
	challenges map[string]*api.Challenge
	files      map[int64]api.ChallengeFile
	nextID     int64
	nextFileID int64
	calls      []string

	findErr   error
	updateErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		challenges: map[string]*api.Challenge{},
		files:      map[int64]api.ChallengeFile{},
		nextID:     1,
		nextFileID: 100,
	}
}

func (f *fakePlatform) FindChallenge(_ context.Context, slug string, withFiles bool) (api.Lookup, error) {
	f.calls = append(f.calls, "find:"+slug)
	if f.findErr != nil {
		return api.Lookup{}, f.findErr
	}
	c, ok := f.challenges[slug]
	if !ok {
		return api.Lookup{}, nil
	}
	cp := *c
	lookup := api.Lookup{Challenge: &cp}
	if withFiles {
		attachments, err := c.Files()
		if err != nil {
			return api.Lookup{}, err
		}
		for _, a := range attachments {
			if file, ok := f.files[a.ID]; ok {
				lookup.Files = append(lookup.Files, file)
			}
		}
	}
	return lookup, nil
}

func (f *fakePlatform) GetChallenge(ctx context.Context, slug string, withFiles bool) (api.Lookup, error) {
	lookup, err := f.FindChallenge(ctx, slug, withFiles)
	if err != nil {
		return api.Lookup{}, err
	}
	if !lookup.Found() {
		return api.Lookup{}, errors.NewNotFound(slug)
	}
	return lookup, nil
}

func (f *fakePlatform) UploadFile(_ context.Context, path string) (*api.ChallengeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, "upload:"+filepath.Base(path))
	sum := sha256.Sum256(data)
	file := api.ChallengeFile{
		ID:       f.nextFileID,
		Filename: filepath.Base(path),
		Size:     int64(len(data)),
		Hash:     "sha256:" + hex.EncodeToString(sum[:]),
	}
	f.nextFileID++
	f.files[file.ID] = file
	return &file, nil
}

func (f *fakePlatform) CreateChallenge(_ context.Context, p *api.Payload) (*api.Challenge, error) {
	f.calls = append(f.calls, "create:"+p.Slug)
	if _, ok := f.challenges[p.Slug]; ok {
		return nil, errors.NewConflict("resource conflict: slug already exists")
	}
	c := &api.Challenge{ID: f.nextID, Version: 1}
	f.nextID++
	if err := f.apply(c, p); err != nil {
		return nil, err
	}
	f.challenges[p.Slug] = c
	cp := *c
	return &cp, nil
}

func (f *fakePlatform) UpdateChallenge(_ context.Context, id int64, p *api.Payload) (int, error) {
	f.calls = append(f.calls, "update:"+p.Slug)
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	c := f.byID(id)
	if c == nil {
		return 0, errors.NewNotFound("/admin/challenges")
	}
	if p.Version == nil || *p.Version != c.Version {
		return 0, errors.NewConflict("resource conflict: version is stale")
	}
	if err := f.apply(c, p); err != nil {
		return 0, err
	}
	c.Version++
	return c.Version, nil
}

func (f *fakePlatform) ListChallenges(_ context.Context, hidden *bool) ([]api.ChallengeSummary, error) {
	f.calls = append(f.calls, "list")
	var out []api.ChallengeSummary
	for _, c := range f.challenges {
		if hidden != nil && c.Hidden != *hidden {
			continue
		}
		out = append(out, api.ChallengeSummary{
			ID: c.ID, Slug: c.Slug, Title: c.Title, Tags: c.Tags, Hidden: c.Hidden, VisibleAt: c.VisibleAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakePlatform) DeleteChallenge(_ context.Context, id int64) error {
	f.calls = append(f.calls, "delete")
	c := f.byID(id)
	if c == nil {
		return errors.NewNotFound("/admin/challenges")
	}
	delete(f.challenges, c.Slug)
	return nil
}

func (f *fakePlatform) apply(c *api.Challenge, p *api.Payload) error {
	md, err := json.Marshal(p.PrivateMetadata)
	if err != nil {
		return err
	}
	c.Slug = p.Slug
	c.Title = p.Title
	c.Description = p.Description
	c.Tags = p.Tags
	c.Hidden = p.Hidden
	c.PrivateMetadata = md
	return nil
}

func (f *fakePlatform) byID(id int64) *api.Challenge {
	for _, c := range f.challenges {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (f *fakePlatform) resetCalls() {
	f.calls = nil
}

func (f *fakePlatform) countCalls(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

// writeDefinition writes dir/noctf.yaml for slug declaring files, creating each
// file with default content unless it already exists.
func writeDefinition(t *testing.T, dir, slug string, files ...string) string {
	t.Helper()
	def := "slug: " + slug + "\n" +
		"title: " + slug + " title\n" +
		"description: Find the flag.\n" +
		"categories: [web]\n" +
		"flags: [\"noctf{" + slug + "}\"]\n"
	if len(files) > 0 {
		def += "files:\n"
		for _, f := range files {
			def += "  - " + f + "\n"
			p := filepath.Join(dir, f)
			if _, err := os.Stat(p); err != nil {
				writeFile(t, p, "content of "+f)
			}
		}
	}
	path := filepath.Join(dir, challenge.DefinitionFile)
	writeFile(t, path, def)
	return path
}
