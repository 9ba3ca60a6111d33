package mcp

import "github.com/mark3labs/mcp-go/mcp"

var pathOption = mcp.WithString("path",
	mcp.Required(),
	mcp.Description("Challenges directory, searched recursively for noctf.yaml, or a single noctf.yaml file"),
)

var dryRunOption = mcp.WithBoolean("dry_run",
	mcp.Description("Validate definitions and check referenced files without contacting the platform"),
)

var validateToolDef = mcp.NewTool("challenge_validate",
	mcp.WithDescription("Validate challenge definitions offline: schema, model rules and referenced files."),
	pathOption,
)

var uploadToolDef = mcp.NewTool("challenge_upload",
	mcp.WithDescription("Create challenges that do not exist yet. Existing slugs are skipped."),
	pathOption,
	dryRunOption,
)

var updateToolDef = mcp.NewTool("challenge_update",
	mcp.WithDescription("Update existing challenges, re-uploading only changed files. Unknown slugs are skipped."),
	pathOption,
	dryRunOption,
)

var syncToolDef = mcp.NewTool("challenge_sync",
	mcp.WithDescription("Create missing challenges and update existing ones."),
	pathOption,
	dryRunOption,
)

var listToolDef = mcp.NewTool("challenge_list",
	mcp.WithDescription("List challenges on the platform, sorted by slug."),
	mcp.WithBoolean("hidden", mcp.Description("Only hidden (true) or only visible (false) challenges")),
	mcp.WithString("category", mcp.Description("Only challenges in this category")),
)

var showToolDef = mcp.NewTool("challenge_show",
	mcp.WithDescription("Show one challenge with its flags, scoring and file metadata."),
	mcp.WithString("slug", mcp.Required(), mcp.Description("Challenge slug")),
	mcp.WithBoolean("html", mcp.Description("Also render the description as HTML")),
)

var historyToolDef = mcp.NewTool("challenge_history",
	mcp.WithDescription("Read the local sync journal: recent runs, one run, or one challenge's results."),
	mcp.WithString("run_id", mcp.Description("Run id to show")),
	mcp.WithString("challenge", mcp.Description("Challenge slug to show results for")),
	mcp.WithNumber("limit", mcp.Description("Maximum runs or results (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Runs to skip")),
)
