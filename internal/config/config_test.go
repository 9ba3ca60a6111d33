package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hpungsan/noctfcli/internal/errors"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func noEnv(string) string { return "" }

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Timeout != DefaultConfig().Timeout {
		t.Fatalf("Timeout = %v, want %v", cfg.Timeout, DefaultConfig().Timeout)
	}
	if !cfg.ShouldVerifySSL() {
		t.Error("ShouldVerifySSL() = false, want true by default")
	}
	if !cfg.JournalEnabled() {
		t.Error("JournalEnabled() = false, want true by default")
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, FileName), `
api_url: https://ctf.example.com/api
timeout: 5
verify_ssl: false
journal: false
template_vars:
  host: chall.example.com
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != "https://ctf.example.com/api" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Errorf("RequestTimeout() = %v, want 5s", cfg.RequestTimeout())
	}
	if cfg.ShouldVerifySSL() {
		t.Error("ShouldVerifySSL() = true, want false")
	}
	if cfg.JournalEnabled() {
		t.Error("JournalEnabled() = true, want false")
	}
	if cfg.TemplateVars["host"] != "chall.example.com" {
		t.Errorf("TemplateVars[host] = %q", cfg.TemplateVars["host"])
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, "info")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, FileName), "timeout: [not a number")

	_, err := Load(tmpDir)
	if err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
	if !errors.Is(err, errors.ErrConfiguration) {
		t.Errorf("error = %v, want CONFIGURATION", err)
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, FileName), "disabled_tools: [challenge_upload, challenge_update]\n")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "challenge_upload" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "challenge_upload")
	}
}

func TestFindRepoConfig(t *testing.T) {
	root := t.TempDir()
	repoCfg := filepath.Join(root, ".noctf", FileName)
	writeConfig(t, repoCfg, "api_url: http://repo\n")

	nested := filepath.Join(root, "web", "login-bypass")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if got := FindRepoConfig(nested); got != repoCfg {
		t.Errorf("FindRepoConfig() = %q, want %q", got, repoCfg)
	}
	if got := FindRepoConfig(""); got != "" {
		t.Errorf("FindRepoConfig(\"\") = %q, want empty", got)
	}
}

func TestLoadAll_Precedence(t *testing.T) {
	globalDir := t.TempDir()
	writeConfig(t, filepath.Join(globalDir, FileName), `
api_url: http://global
email: admin@global
timeout: 10
disabled_tools: [challenge_history]
`)

	repo := t.TempDir()
	writeConfig(t, filepath.Join(repo, ".noctf", FileName), `
api_url: http://repo
disabled_tools: [challenge_upload]
`)

	explicit := filepath.Join(t.TempDir(), "ci.yaml")
	writeConfig(t, explicit, "timeout: 15\n")

	env := map[string]string{
		"NOCTF_PASSWORD": "hunter2",
		"NOCTF_TIMEOUT":  "20",
	}

	cfg, err := LoadAll(globalDir, repo, explicit, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	if cfg.APIURL != "http://repo" {
		t.Errorf("APIURL = %q, want repo value", cfg.APIURL)
	}
	if cfg.Email != "admin@global" {
		t.Errorf("Email = %q, want global value", cfg.Email)
	}
	if cfg.Password != "hunter2" {
		t.Errorf("Password = %q, want env value", cfg.Password)
	}
	if cfg.Timeout != 20 {
		t.Errorf("Timeout = %v, want env value 20", cfg.Timeout)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v, want both entries", cfg.DisabledTools)
	}
}

func TestLoadAll_ExplicitMissing(t *testing.T) {
	_, err := LoadAll(t.TempDir(), "", filepath.Join(t.TempDir(), "nope.yaml"), noEnv)
	if !errors.Is(err, errors.ErrConfiguration) {
		t.Fatalf("LoadAll() error = %v, want CONFIGURATION", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Run("verify ssl false", func(t *testing.T) {
		cfg, err := FromEnv(func(k string) string {
			if k == "NOCTF_VERIFY_SSL" {
				return "False"
			}
			return ""
		})
		if err != nil {
			t.Fatalf("FromEnv() error = %v", err)
		}
		if cfg.VerifySSL == nil || *cfg.VerifySSL {
			t.Errorf("VerifySSL = %v, want false", cfg.VerifySSL)
		}
	})

	t.Run("bad timeout", func(t *testing.T) {
		_, err := FromEnv(func(k string) string {
			if k == "NOCTF_TIMEOUT" {
				return "soon"
			}
			return ""
		})
		if !errors.Is(err, errors.ErrConfiguration) {
			t.Errorf("FromEnv() error = %v, want CONFIGURATION", err)
		}
	})

	t.Run("unset", func(t *testing.T) {
		cfg, err := FromEnv(noEnv)
		if err != nil {
			t.Fatalf("FromEnv() error = %v", err)
		}
		if cfg.VerifySSL != nil || cfg.Timeout != 0 || cfg.APIURL != "" {
			t.Errorf("FromEnv() = %+v, want zero overlay", cfg)
		}
	})
}

func TestMerge_TemplateVars(t *testing.T) {
	base := &Config{TemplateVars: map[string]string{"host": "a", "port": "1"}}
	overlay := &Config{TemplateVars: map[string]string{"host": "b"}}

	got := Merge(base, overlay)
	if got.TemplateVars["host"] != "b" || got.TemplateVars["port"] != "1" {
		t.Errorf("TemplateVars = %v", got.TemplateVars)
	}
}

func TestValidateRemote(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"ok", &Config{APIURL: "http://x", Timeout: 30}, false},
		{"missing url", &Config{Timeout: 30}, true},
		{"zero timeout", &Config{APIURL: "http://x"}, true},
		{"negative rate", &Config{APIURL: "http://x", Timeout: 1, RateLimit: ptr(-1.0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateRemote()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRemote() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCredentials(t *testing.T) {
	cfg := &Config{Email: "admin@example.com"}
	if _, _, err := cfg.Credentials(); !errors.Is(err, errors.ErrConfiguration) {
		t.Errorf("Credentials() error = %v, want CONFIGURATION", err)
	}

	cfg.Password = "pw"
	email, pw, err := cfg.Credentials()
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if email != "admin@example.com" || pw != "pw" {
		t.Errorf("Credentials() = %q, %q", email, pw)
	}
}

func ptr[T any](v T) *T { return &v }

func TestLoadAll_RateLimitZeroOverridesLowerLayer(t *testing.T) {
	globalDir := t.TempDir()
	writeConfig(t, filepath.Join(globalDir, FileName), "rate_limit: 5\n")

	cfg, err := LoadAll(globalDir, "", "", noEnv)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if cfg.RequestsPerSecond() != 5 {
		t.Fatalf("RequestsPerSecond() = %v, want 5", cfg.RequestsPerSecond())
	}

	env := map[string]string{"NOCTF_RATE_LIMIT": "0"}
	cfg, err = LoadAll(globalDir, "", "", func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if cfg.RateLimit == nil || cfg.RequestsPerSecond() != 0 {
		t.Errorf("RateLimit = %v, want explicit 0", cfg.RateLimit)
	}
}

func TestMerge_RateLimitUnsetKeepsBase(t *testing.T) {
	got := Merge(&Config{RateLimit: ptr(3.0)}, &Config{})
	if got.RequestsPerSecond() != 3 {
		t.Errorf("RequestsPerSecond() = %v, want 3", got.RequestsPerSecond())
	}
	if (&Config{}).RequestsPerSecond() != 0 {
		t.Error("RequestsPerSecond() of unset config should be 0")
	}
}
