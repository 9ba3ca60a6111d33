package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/noctfcli/internal/challenge"
	"github.com/hpungsan/noctfcli/internal/config"
	"github.com/hpungsan/noctfcli/internal/errors"
	"github.com/hpungsan/noctfcli/internal/mcp"
	"github.com/hpungsan/noctfcli/internal/ops"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(s *session) *cli.App {
	app := &cli.App{
		Name:    "noctfcli",
		Usage:   "Validate and synchronize noCTF challenge definitions",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Configuration file (overrides ~/.noctf and .noctf/config.yaml)"},
			&cli.StringFlag{Name: "api-url", Usage: "noCTF API base URL"},
			&cli.StringFlag{Name: "email", Usage: "Admin email"},
			&cli.Float64Flag{Name: "timeout", Usage: "Per-request timeout in seconds"},
			&cli.Float64Flag{Name: "rate-limit", Usage: "Maximum requests per second (0 = unlimited)"},
			&cli.BoolFlag{Name: "insecure", Usage: "Skip TLS certificate verification"},
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error"},
			&cli.StringFlag{Name: "log-format", Usage: "text|json"},
			&cli.StringFlag{Name: "log-file", Usage: "Also write logs to this rotated file"},
			&cli.BoolFlag{Name: "no-journal", Usage: "Do not record runs in the sync journal"},
		},
		Before: func(c *cli.Context) error {
			if err := s.configure(c.String("config"), overlayFromFlags(c)); err != nil {
				return outputError(err)
			}
			return nil
		},
		Commands: []*cli.Command{
			batchCmd(s, "upload", ops.IntentUpload, "Create challenges that do not exist yet"),
			batchCmd(s, "update", ops.IntentUpdate, "Update existing challenges"),
			batchCmd(s, "sync", ops.IntentSync, "Create missing challenges and update existing ones"),
			validateCmd(s),
			showCmd(s),
			listCmd(s),
			deleteCmd(s),
			historyCmd(s),
			mcpCmd(s),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// overlayFromFlags maps global flags onto a config overlay. Unset flags stay zero.
func overlayFromFlags(c *cli.Context) *config.Config {
	overlay := &config.Config{
		APIURL:    c.String("api-url"),
		Email:     c.String("email"),
		Timeout:   c.Float64("timeout"),
		LogLevel:  c.String("log-level"),
		LogFormat: c.String("log-format"),
		LogFile:   c.String("log-file"),
	}
	if c.IsSet("rate-limit") {
		rate := c.Float64("rate-limit")
		overlay.RateLimit = &rate
	}
	if c.Bool("insecure") {
		verify := false
		overlay.VerifySSL = &verify
	}
	if c.Bool("no-journal") {
		journal := false
		overlay.Journal = &journal
	}
	return overlay
}

// batchCmd creates upload, update and sync.
func batchCmd(s *session, name string, intent ops.Intent, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<challenges-dir>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Validate and check files without contacting the platform"},
			&cli.BoolFlag{Name: "json", Usage: "Print the full report as JSON"},
		},
		Action: func(c *cli.Context) error {
			root, err := requireArg(c, "challenges directory")
			if err != nil {
				return outputError(err)
			}

			engineCfg := ops.EngineConfig{
				Journal:       s.openJournal(),
				Preprocessors: []ops.Preprocessor{ops.TemplatePreprocessor{Vars: s.cfg.TemplateVars}},
				Logger:        s.logger,
			}
			if !c.Bool("dry-run") {
				client, err := s.remote(c.Context)
				if err != nil {
					return outputError(err)
				}
				engineCfg.Remote = client
			}

			report, err := ops.NewEngine(engineCfg).RunBatch(c.Context, ops.BatchInput{
				Root:    root,
				Intent:  intent,
				DryRun:  c.Bool("dry-run"),
				Command: name,
			})
			if err != nil {
				return outputError(err)
			}
			return finishReport(s.stdout, report, c.Bool("json"))
		},
	}
}

// validateCmd creates the validate command.
func validateCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate challenge definitions offline",
		ArgsUsage: "<challenges-dir>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the full report as JSON"},
		},
		Action: func(c *cli.Context) error {
			root, err := requireArg(c, "challenges directory")
			if err != nil {
				return outputError(err)
			}

			engine := ops.NewEngine(ops.EngineConfig{
				Journal:       s.openJournal(),
				Preprocessors: []ops.Preprocessor{ops.TemplatePreprocessor{Vars: s.cfg.TemplateVars}},
				Logger:        s.logger,
			})
			report, err := engine.RunBatch(c.Context, ops.BatchInput{
				Root:    root,
				Intent:  ops.IntentSync,
				DryRun:  true,
				Command: "validate",
			})
			if err != nil {
				return outputError(err)
			}
			return finishReport(s.stdout, report, c.Bool("json"))
		},
	}
}

// showCmd creates the show command.
func showCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a challenge on the platform",
		ArgsUsage: "<slug>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "html", Usage: "Include the description rendered as HTML"},
		},
		Action: func(c *cli.Context) error {
			slug, err := requireArg(c, "slug")
			if err != nil {
				return outputError(err)
			}
			client, err := s.remote(c.Context)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Show(c.Context, client, ops.ShowInput{Slug: slug, HTML: c.Bool("html")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(s.stdout, output)
		},
	}
}

// listCmd creates the list command.
func listCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List challenges on the platform",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "hidden", Usage: "Only hidden challenges"},
			&cli.BoolFlag{Name: "visible", Usage: "Only visible challenges"},
			&cli.StringFlag{Name: "category", Usage: "Only challenges in this category"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			input := ops.ListInput{Category: c.String("category")}
			switch {
			case c.Bool("hidden") && c.Bool("visible"):
				return outputError(errors.NewValidation("--hidden and --visible are mutually exclusive", "", nil))
			case c.Bool("hidden"):
				hidden := true
				input.Hidden = &hidden
			case c.Bool("visible"):
				hidden := false
				input.Hidden = &hidden
			}

			client, err := s.remote(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.List(c.Context, client, input)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(s.stdout, output)
			}
			return printList(s.stdout, output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a challenge from the platform",
		ArgsUsage: "<slug>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
		},
		Action: func(c *cli.Context) error {
			slug, err := requireArg(c, "slug")
			if err != nil {
				return outputError(err)
			}
			if !c.Bool("yes") && !s.confirm(fmt.Sprintf("Delete challenge %q?", slug)) {
				fmt.Fprintln(s.stderr, "aborted")
				return nil
			}

			client, err := s.remote(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Delete(c.Context, client, ops.DeleteInput{Slug: slug})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(s.stdout, output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent runs from the sync journal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run", Usage: "Show one run by id"},
			&cli.StringFlag{Name: "challenge", Usage: "Show recent results for one challenge"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Maximum runs or results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Runs to skip"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.History(s.openJournal(), ops.HistoryInput{
				RunID:     c.String("run"),
				Challenge: c.String("challenge"),
				Limit:     c.Int("limit"),
				Offset:    c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(s.stdout, output)
			}
			return printHistory(s.stdout, output)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the challenge tools over MCP on stdio",
		Action: func(c *cli.Context) error {
			if unknown := mcp.ValidateDisabledTools(s.cfg.DisabledTools); len(unknown) > 0 {
				s.logger.Warn("unknown tools in disabled_tools", "tools", strings.Join(unknown, ", "))
			}

			journal := s.openJournal()
			engineCfg := ops.EngineConfig{
				Journal:       journal,
				Preprocessors: []ops.Preprocessor{ops.TemplatePreprocessor{Vars: s.cfg.TemplateVars}},
				Logger:        s.logger,
			}
			deps := mcp.Deps{Journal: journal}

			if client, err := s.remote(c.Context); err != nil {
				s.logger.Warn("platform tools unavailable", "error", errors.Message(err))
			} else {
				engineCfg.Remote = client
				deps.Admin = client
			}
			deps.Engine = ops.NewEngine(engineCfg)

			if err := mcp.Run(deps, s.cfg, Version); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", errors.NewValidation(fmt.Sprintf("expected exactly one argument: %s", name), "", nil)
	}
	return c.Args().First(), nil
}

// finishReport prints a batch report and turns failed items into exit code 1.
func finishReport(w io.Writer, report *ops.Report, asJSON bool) error {
	var err error
	if asJSON {
		err = outputJSON(w, report)
	} else {
		err = printReport(w, report)
	}
	if err != nil {
		return outputError(errors.NewInternal(err))
	}
	if report.HasFailures() {
		return cli.Exit(fmt.Sprintf("%d of %d challenges failed", report.Failed, len(report.Results)), 1)
	}
	return nil
}

func printReport(w io.Writer, report *ops.Report) error {
	if len(report.Results) == 0 {
		fmt.Fprintf(w, "No %s files found under %s\n", challenge.DefinitionFile, report.Root)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHALLENGE\tSTATUS\tDETAIL")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Challenge, r.Status, resultDetail(r))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d succeeded, %d skipped, %d failed (run %s)\n",
		report.Succeeded, report.Skipped, report.Failed, report.RunID)

	if len(report.Failures) > 0 {
		fmt.Fprintln(w, "\nFailed:")
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.Challenge, f.Error)
		}
	}
	return nil
}

func resultDetail(r ops.Result) string {
	switch r.Status {
	case ops.StatusFailed, ops.StatusSkipped:
		return r.Error
	case ops.StatusUpdated:
		detail := fmt.Sprintf("v%d -> v%d, %d uploaded, %d reused", r.OldVersion, r.Version, len(r.UploadedFiles), len(r.ReusedFiles))
		if r.Unchanged {
			detail += ", unchanged"
		}
		return detail
	case ops.StatusUploaded:
		return fmt.Sprintf("id %d, %d files uploaded", r.RemoteID, len(r.UploadedFiles))
	case ops.StatusValidated:
		return fmt.Sprintf("%d files", len(r.PlannedFiles))
	}
	return ""
}

func printList(w io.Writer, output *ops.ListOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSLUG\tTITLE\tCATEGORIES\tDIFFICULTY\tHIDDEN")
	for _, item := range output.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\n",
			item.ID, item.Slug, item.Title, strings.Join(item.Categories, ","), item.Difficulty, item.Hidden)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d challenges\n", output.Total)
	return nil
}

func printHistory(w io.Writer, output *ops.HistoryOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if output.Results != nil {
		fmt.Fprintln(tw, "RUN\tSTATUS\tVERSION\tWHEN\tERROR")
		for _, r := range output.Results {
			version := "-"
			if r.Version != nil {
				version = fmt.Sprintf("%d", *r.Version)
			}
			errMsg := ""
			if r.Error != nil {
				errMsg = *r.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RunID, r.Status, version, formatUnix(r.CreatedAt), errMsg)
		}
		return tw.Flush()
	}

	fmt.Fprintln(tw, "RUN\tCOMMAND\tSTARTED\tDRY RUN\tSUCCEEDED\tSKIPPED\tFAILED")
	for _, r := range output.Runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%d\t%d\n",
			r.ID, r.Command, formatUnix(r.StartedAt), r.DryRun, r.Succeeded, r.Skipped, r.Failed)
	}
	return tw.Flush()
}

func formatUnix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if nErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", nErr.Code, errors.Message(err)), 1)
	}
	return cli.Exit(err.Error(), 1)
}
