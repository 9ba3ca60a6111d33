package api

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/hpungsan/noctfcli/internal/challenge"
)

func sampleConfig() *challenge.Config {
	visible := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &challenge.Config{
		Version:     challenge.DefaultVersion,
		Slug:        "web-101",
		Title:       "Login Bypass",
		Description: "Find a way in.",
		Categories:  []string{"web", "misc"},
		Difficulty:  "easy",
		Tags:        map[string]string{"author": "alice"},
		Flags: []challenge.Flag{
			{Data: "flag{a}", Strategy: challenge.FlagCaseSensitive},
			{Data: "^flag", Strategy: challenge.FlagRegex},
		},
		Hidden:    true,
		VisibleAt: &visible,
		Scoring: challenge.Scoring{
			Strategy: "core:static",
			Params:   map[string]any{"base": float64(100)},
			Bonus:    []float64{10, 5},
		},
		Solve: challenge.Solve{Source: "flag", InputType: challenge.InputText},
	}
}

func TestBuildPayload(t *testing.T) {
	cfg := sampleConfig()
	cfg.ConnectionInfo = "nc web.example.com 80"

	p := BuildPayload(cfg, []Attachment{{ID: 5, IsAttachment: true}})

	got, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"slug":"web-101","title":"Login Bypass","description":"Find a way in.\n\nnc web.example.com 80",` +
		`"tags":{"author":"alice","categories":"web,misc","difficulty":"easy"},"hidden":true,` +
		`"visible_at":"2025-03-01T12:00:00Z","private_metadata":{"solve":{"source":"flag","flag":[` +
		`{"data":"flag{a}","strategy":"case_sensitive"},{"data":"^flag","strategy":"regex"}]},` +
		`"score":{"params":{"base":100},"strategy":"core:static","bonus":[10,5]},` +
		`"files":[{"id":5,"is_attachment":true}]}}`
	if string(got) != want {
		t.Errorf("payload =\n%s\nwant\n%s", got, want)
	}

	if _, ok := cfg.Tags[TagCategories]; ok {
		t.Error("BuildPayload() mutated the definition's tags")
	}
}

func TestBuildPayload_Optionals(t *testing.T) {
	cfg := sampleConfig()
	cfg.Difficulty = ""
	cfg.VisibleAt = nil
	cfg.Scoring.Bonus = nil

	p := BuildPayload(cfg, nil)

	if _, ok := p.Tags[TagDifficulty]; ok {
		t.Error("difficulty tag present for a definition without difficulty")
	}
	if p.VisibleAt != nil {
		t.Errorf("VisibleAt = %v, want nil", *p.VisibleAt)
	}
	if p.Description != cfg.Description {
		t.Errorf("Description = %q, want unchanged", p.Description)
	}

	raw, _ := json.Marshal(p)
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	md := decoded["private_metadata"].(map[string]any)
	if files, ok := md["files"].([]any); !ok || len(files) != 0 {
		t.Errorf("files = %v, want empty array", md["files"])
	}
	if decoded["visible_at"] != nil {
		t.Errorf("visible_at = %v, want null", decoded["visible_at"])
	}
	if _, ok := decoded["version"]; ok {
		t.Error("version sent on create")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	attachments := []Attachment{{ID: 1, IsAttachment: true}, {ID: 2, IsAttachment: false}}
	original := BuildPayload(sampleConfig(), attachments)

	// Through the wire and back.
	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var wire Payload
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	cfg, files, err := ConfigFromPayload(&wire)
	if err != nil {
		t.Fatalf("ConfigFromPayload() error = %v", err)
	}
	if !reflect.DeepEqual(files, attachments) {
		t.Errorf("attachments = %+v, want %+v", files, attachments)
	}
	if !reflect.DeepEqual(cfg.Categories, []string{"web", "misc"}) || cfg.Difficulty != "easy" {
		t.Errorf("categories/difficulty = %v / %q", cfg.Categories, cfg.Difficulty)
	}
	if !reflect.DeepEqual(cfg.Tags, map[string]string{"author": "alice"}) {
		t.Errorf("Tags = %v, want derived keys removed", cfg.Tags)
	}

	rebuilt, err := json.Marshal(BuildPayload(cfg, files))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(rebuilt) != string(raw) {
		t.Errorf("round trip mismatch:\n%s\n%s", rebuilt, raw)
	}
}

func TestConfigFromPayload_BadVisibleAt(t *testing.T) {
	bad := "next week"
	if _, _, err := ConfigFromPayload(&Payload{VisibleAt: &bad}); err == nil {
		t.Error("ConfigFromPayload() expected error")
	}
}

func TestPayloadFromChallenge(t *testing.T) {
	p := BuildPayload(sampleConfig(), []Attachment{{ID: 9, IsAttachment: true}})
	md, _ := json.Marshal(p.PrivateMetadata)
	visible := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ch := &Challenge{
		ID: 7, Slug: p.Slug, Title: p.Title, Description: p.Description, Tags: p.Tags,
		Hidden: p.Hidden, Version: 3, VisibleAt: &visible, PrivateMetadata: md,
	}

	got, err := PayloadFromChallenge(ch)
	if err != nil {
		t.Fatalf("PayloadFromChallenge() error = %v", err)
	}
	if got.Version == nil || *got.Version != 3 {
		t.Errorf("Version = %v, want 3", got.Version)
	}

	a, _ := Fingerprint(got)
	b, _ := Fingerprint(p)
	if a != b {
		t.Error("remote payload fingerprint differs from the submitted one")
	}
}

func TestFingerprint(t *testing.T) {
	base := BuildPayload(sampleConfig(), nil)

	a, err := Fingerprint(base)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if len(a) != 64 {
		t.Errorf("Fingerprint() = %q, want 64 hex chars", a)
	}

	again, _ := Fingerprint(BuildPayload(sampleConfig(), nil))
	if again != a {
		t.Error("Fingerprint() not stable for equal content")
	}

	versioned, _ := Fingerprint(base.WithVersion(12))
	if versioned != a {
		t.Error("Fingerprint() depends on the version token")
	}

	changed := sampleConfig()
	changed.Title = "Login Bypass II"
	other, _ := Fingerprint(BuildPayload(changed, nil))
	if other == a {
		t.Error("Fingerprint() unchanged after a title change")
	}
}
