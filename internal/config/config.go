package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/noctfcli/internal/errors"
)

// FileName is the configuration file looked up in the global and repo directories.
const FileName = "config.yaml"

// Config holds process configuration.
type Config struct {
	// APIURL is the base URL of the noCTF API (required for any remote command).
	APIURL string `yaml:"api_url,omitempty"`

	// Email and Password are the admin credentials used to log in.
	Email    string `yaml:"email,omitempty"`
	Password string `yaml:"password,omitempty"`

	// VerifySSL controls TLS certificate verification. nil means "not set" (defaults to true).
	VerifySSL *bool `yaml:"verify_ssl,omitempty"`

	// Timeout is the per-request timeout in seconds, shared by every API call.
	Timeout float64 `yaml:"timeout,omitempty"`

	// RateLimit caps outgoing requests per second. 0 disables limiting; nil means "not set".
	RateLimit *float64 `yaml:"rate_limit,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format,omitempty"`

	// LogFile, when set, additionally writes logs to a rotated file.
	LogFile string `yaml:"log_file,omitempty"`

	// Journal enables the local sqlite sync journal. nil means "not set" (defaults to true).
	Journal *bool `yaml:"journal,omitempty"`

	// TemplateVars are exposed to connection_info templates as {{.name}}.
	TemplateVars map[string]string `yaml:"template_vars,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `yaml:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:   30,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load loads configuration from baseDir/config.yaml.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.noctf.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, FileName))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadAll layers configuration sources in precedence order:
// defaults < globalDir/config.yaml < nearest repo .noctf/config.yaml (walking up from startDir)
// < explicitPath (must exist when non-empty) < NOCTF_* environment.
func LoadAll(globalDir, startDir, explicitPath string, getenv func(string) string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, FileName))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)

	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return nil, errors.NewConfiguration(fmt.Sprintf("configuration file not found: %s", explicitPath))
		}
		explicit, err := loadFileRaw(explicitPath)
		if err != nil {
			return nil, err
		}
		cfg = Merge(cfg, explicit)
	}

	env, err := FromEnv(getenv)
	if err != nil {
		return nil, err
	}
	return Merge(cfg, env), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .noctf/config.yaml.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".noctf", FileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// FromEnv reads the NOCTF_* variables into an overlay config.
// Unset variables leave the corresponding field zero.
func FromEnv(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := &Config{
		APIURL:    strings.TrimSpace(getenv("NOCTF_API_URL")),
		Email:     getenv("NOCTF_EMAIL"),
		Password:  getenv("NOCTF_PASSWORD"),
		LogLevel:  getenv("NOCTF_LOG_LEVEL"),
		LogFormat: getenv("NOCTF_LOG_FORMAT"),
		LogFile:   getenv("NOCTF_LOG_FILE"),
	}

	if v := getenv("NOCTF_VERIFY_SSL"); v != "" {
		verify := strings.EqualFold(v, "true")
		cfg.VerifySSL = &verify
	}
	if v := getenv("NOCTF_TIMEOUT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.NewConfiguration(fmt.Sprintf("NOCTF_TIMEOUT must be a number, got %q", v))
		}
		cfg.Timeout = f
	}
	if v := getenv("NOCTF_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.NewConfiguration(fmt.Sprintf("NOCTF_RATE_LIMIT must be a number, got %q", v))
		}
		cfg.RateLimit = &f
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, errors.NewConfiguration(fmt.Sprintf("read configuration file %s: %v", configPath, err))
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewConfiguration(fmt.Sprintf("invalid configuration file %s: %v", configPath, err))
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated;
// template variables are merged key by key.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.APIURL = firstNonEmpty(overlay.APIURL, base.APIURL)
	result.Email = firstNonEmpty(overlay.Email, base.Email)
	result.Password = firstNonEmpty(overlay.Password, base.Password)
	result.LogLevel = firstNonEmpty(overlay.LogLevel, base.LogLevel)
	result.LogFormat = firstNonEmpty(overlay.LogFormat, base.LogFormat)
	result.LogFile = firstNonEmpty(overlay.LogFile, base.LogFile)

	result.VerifySSL = base.VerifySSL
	if overlay.VerifySSL != nil {
		result.VerifySSL = overlay.VerifySSL
	}

	result.Timeout = overlay.Timeout
	if result.Timeout == 0 {
		result.Timeout = base.Timeout
	}
	result.RateLimit = base.RateLimit
	if overlay.RateLimit != nil {
		result.RateLimit = overlay.RateLimit
	}

	result.Journal = base.Journal
	if overlay.Journal != nil {
		result.Journal = overlay.Journal
	}

	if len(base.TemplateVars) > 0 || len(overlay.TemplateVars) > 0 {
		result.TemplateVars = make(map[string]string, len(base.TemplateVars)+len(overlay.TemplateVars))
		for k, v := range base.TemplateVars {
			result.TemplateVars[k] = v
		}
		for k, v := range overlay.TemplateVars {
			result.TemplateVars[k] = v
		}
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// ShouldVerifySSL reports whether TLS certificates are verified (default true).
func (c *Config) ShouldVerifySSL() bool {
	return c.VerifySSL == nil || *c.VerifySSL
}

// JournalEnabled reports whether runs are recorded in the sync journal (default true).
func (c *Config) JournalEnabled() bool {
	return c.Journal == nil || *c.Journal
}

// RequestsPerSecond returns the configured rate limit, 0 (unlimited) when unset.
func (c *Config) RequestsPerSecond() float64 {
	if c.RateLimit == nil {
		return 0
	}
	return *c.RateLimit
}

// RequestTimeout returns Timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout * float64(time.Second))
}

// ValidateRemote checks the settings every remote command needs.
func (c *Config) ValidateRemote() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.NewConfiguration("api_url is required (set NOCTF_API_URL, --api-url or the configuration file)")
	}
	if c.Timeout <= 0 {
		return errors.NewConfiguration(fmt.Sprintf("timeout must be positive, got %v", c.Timeout))
	}
	if c.RequestsPerSecond() < 0 {
		return errors.NewConfiguration(fmt.Sprintf("rate_limit must not be negative, got %v", c.RequestsPerSecond()))
	}
	return nil
}

// Credentials returns the configured email and password.
func (c *Config) Credentials() (string, string, error) {
	if c.Email == "" || c.Password == "" {
		return "", "", errors.NewConfiguration(
			"email and password must be configured via NOCTF_EMAIL and NOCTF_PASSWORD or the configuration file",
		)
	}
	return c.Email, c.Password, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
