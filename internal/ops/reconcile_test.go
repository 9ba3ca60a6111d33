package ops

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/noctfcli/internal/api"
	"github.com/hpungsan/noctfcli/internal/challenge"
)

func TestHashFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"hello", "hello", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{"spans chunks", strings.Repeat("a", hashChunkSize*2+7), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			writeFile(t, path, tt.content)

			got, err := HashFile(path)
			if err != nil {
				t.Fatalf("HashFile() error = %v", err)
			}
			if len(got) != 64 || strings.ToLower(got) != got {
				t.Errorf("HashFile() = %q, want 64 lowercase hex chars", got)
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("HashFile() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := HashFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("HashFile(missing) expected error")
	}
}

func existingWith(t *testing.T, files ...api.Attachment) *api.Challenge {
	t.Helper()
	md, err := json.Marshal(api.PrivateMetadata{Files: files})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return &api.Challenge{ID: 7, Version: 3, PrivateMetadata: md}
}

func TestReconcile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "dist", "same.zip"), "same")
	writeFile(t, filepath.Join(dir, "changed.txt"), "new content")
	writeFile(t, filepath.Join(dir, "new.bin"), "fresh")
	writeFile(t, filepath.Join(dir, "hidden.txt"), "handout")

	sameHash, _ := HashFile(filepath.Join(dir, "dist", "same.zip"))
	hiddenHash, _ := HashFile(filepath.Join(dir, "hidden.txt"))

	remote := []api.ChallengeFile{
		{ID: 1, Filename: "same.zip", Hash: "sha256:" + strings.ToUpper(sameHash)},
		{ID: 2, Filename: "changed.txt", Hash: "sha256:0000"},
		{ID: 3, Filename: "hidden.txt", Hash: "sha256:" + hiddenHash},
	}
	existing := existingWith(t,
		api.Attachment{ID: 1, IsAttachment: true},
		api.Attachment{ID: 2, IsAttachment: true},
		api.Attachment{ID: 3, IsAttachment: false},
	)
	cfg := &challenge.Config{Files: []string{"new.bin", "dist/same.zip", "changed.txt", "hidden.txt"}}

	plan, err := Reconcile(cfg, dir, existing, remote)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(plan) != 4 {
		t.Fatalf("len(plan) = %d, want 4", len(plan))
	}

	wantPaths := []string{"new.bin", "dist/same.zip", "changed.txt", "hidden.txt"}
	for i, d := range plan {
		if d.Path != wantPaths[i] {
			t.Errorf("plan[%d].Path = %q, want %q", i, d.Path, wantPaths[i])
		}
	}
	if plan[0].Reuse != nil {
		t.Errorf("new.bin reused %+v, want upload", plan[0].Reuse)
	}
	if plan[1].Reuse == nil || plan[1].Reuse.ID != 1 || !plan[1].Reuse.IsAttachment {
		t.Errorf("same.zip decision = %+v, want reuse of id 1", plan[1].Reuse)
	}
	if plan[2].Reuse != nil {
		t.Errorf("changed.txt reused %+v, want upload", plan[2].Reuse)
	}
	if plan[3].Reuse == nil || plan[3].Reuse.ID != 3 || plan[3].Reuse.IsAttachment {
		t.Errorf("hidden.txt decision = %+v, want reuse of id 3 keeping is_attachment=false", plan[3].Reuse)
	}
}

func TestReconcile_UnlistedRemoteFileDefaultsToAttachment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	sum, _ := HashFile(filepath.Join(dir, "a.txt"))

	remote := []api.ChallengeFile{{ID: 9, Filename: "a.txt", Hash: "sha256:" + sum}}
	plan, err := Reconcile(&challenge.Config{Files: []string{"a.txt"}}, dir, existingWith(t), remote)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if plan[0].Reuse == nil || !plan[0].Reuse.IsAttachment {
		t.Errorf("decision = %+v, want reuse with is_attachment=true", plan[0].Reuse)
	}
}

func TestReconcile_SameContentDifferentNameUploads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "renamed.txt"), "a")
	sum, _ := HashFile(filepath.Join(dir, "renamed.txt"))

	remote := []api.ChallengeFile{{ID: 9, Filename: "original.txt", Hash: "sha256:" + sum}}
	plan, err := Reconcile(&challenge.Config{Files: []string{"renamed.txt"}}, dir, existingWith(t), remote)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if plan[0].Reuse != nil {
		t.Errorf("decision = %+v, want upload", plan[0].Reuse)
	}
}

func TestPlanCreate(t *testing.T) {
	plan := PlanCreate(&challenge.Config{Files: []string{"a", "b"}})
	if len(plan) != 2 || plan[0].Path != "a" || plan[1].Path != "b" {
		t.Fatalf("PlanCreate() = %+v", plan)
	}
	for _, d := range plan {
		if d.Reuse != nil {
			t.Errorf("PlanCreate() reused %q", d.Path)
		}
	}
}
