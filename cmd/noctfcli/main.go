package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/hpungsan/noctfcli/internal/api"
	"github.com/hpungsan/noctfcli/internal/config"
	"github.com/hpungsan/noctfcli/internal/db"
	"github.com/hpungsan/noctfcli/internal/errors"
	"github.com/hpungsan/noctfcli/internal/logging"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// session carries process wiring for one invocation. The config, logger, API
// client and journal are created lazily so that offline commands never log in
// and --help never touches the filesystem.
type session struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	// globalDir holds the global config file and the journal (~/.noctf).
	globalDir string
	workDir   string

	// readPassword prompts for the admin password. nil means no terminal.
	readPassword func(prompt string) (string, error)

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	client    *api.Client
	journal   *sql.DB
}

func newSession() (*session, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not determine home directory: %w", err)
	}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("could not determine working directory: %w", err)
	}

	s := &session{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		getenv:    os.Getenv,
		globalDir: filepath.Join(homeDir, ".noctf"),
		workDir:   workDir,
	}
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		s.readPassword = func(prompt string) (string, error) {
			fmt.Fprint(os.Stderr, prompt)
			pw, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			return string(pw), err
		}
	}
	return s, nil
}

// configure loads layered configuration and applies the CLI overlay, then builds
// the logger.
func (s *session) configure(explicitPath string, overlay *config.Config) error {
	cfg, err := config.LoadAll(s.globalDir, s.workDir, explicitPath, s.getenv)
	if err != nil {
		return err
	}
	s.cfg = config.Merge(cfg, overlay)

	logger, closer, err := logging.New(logging.Options{
		Level:  s.cfg.LogLevel,
		Format: s.cfg.LogFormat,
		File:   s.cfg.LogFile,
		Stderr: s.stderr,
	})
	if err != nil {
		return err
	}
	s.logger = logger
	s.logCloser = closer
	return nil
}

// remote returns a logged-in API client, creating it on first use.
func (s *session) remote(ctx context.Context) (*api.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	if err := s.cfg.ValidateRemote(); err != nil {
		return nil, err
	}

	if s.cfg.Password == "" && s.cfg.Email != "" && s.readPassword != nil {
		pw, err := s.readPassword(fmt.Sprintf("Password for %s: ", s.cfg.Email))
		if err != nil {
			return nil, errors.NewConfiguration(fmt.Sprintf("read password: %v", err))
		}
		s.cfg.Password = pw
	}
	email, password, err := s.cfg.Credentials()
	if err != nil {
		return nil, err
	}

	client := api.New(s.cfg.APIURL, api.Options{
		Timeout:   s.cfg.RequestTimeout(),
		VerifySSL: s.cfg.ShouldVerifySSL(),
		RateLimit: s.cfg.RequestsPerSecond(),
		Logger:    s.logger,
	})
	if _, err := client.Login(ctx, email, password); err != nil {
		return nil, err
	}
	s.logger.Debug("logged in", "api_url", s.cfg.APIURL)

	s.client = client
	return client, nil
}

// openJournal opens the sync journal, or returns nil when it is disabled.
// A journal that cannot be opened is logged and skipped.
func (s *session) openJournal() *sql.DB {
	if s.journal != nil || !s.cfg.JournalEnabled() {
		return s.journal
	}
	database, err := db.Init(s.globalDir)
	if err != nil {
		s.logger.Warn("sync journal unavailable", "error", err)
		return nil
	}
	s.journal = database
	return database
}

// confirm asks a yes/no question on stdin. Anything but y or yes is a no.
func (s *session) confirm(question string) bool {
	fmt.Fprintf(s.stderr, "%s [y/N]: ", question)
	line, err := bufio.NewReader(s.stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.TrimSpace(line) {
	case "y", "Y", "yes", "YES", "Yes":
		return true
	}
	return false
}

func (s *session) close() {
	if s.journal != nil {
		s.journal.Close()
		s.journal = nil
	}
	if s.logCloser != nil {
		s.logCloser.Close()
		s.logCloser = nil
	}
}

func main() {
	s, err := newSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := newCLIApp(s)
	err = app.Run(os.Args)
	s.close()
	if err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		}
		os.Exit(1)
	}
}
