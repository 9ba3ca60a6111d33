package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/noctfcli/internal/errors"
	"github.com/hpungsan/noctfcli/internal/ops"
)

// Deps are the services behind the tools. Admin and Journal may be nil; tools
// that need them then fail with a configuration error.
type Deps struct {
	Engine  *ops.Engine
	Admin   ops.Admin
	Journal *sql.DB
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	engine  *ops.Engine
	admin   ops.Admin
	journal *sql.DB
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{engine: deps.Engine, admin: deps.Admin, journal: deps.Journal}
}

// BatchRequest represents the arguments for validate, upload, update and sync.
type BatchRequest struct {
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// ListRequest represents the arguments for list.
type ListRequest struct {
	Hidden   *bool  `json:"hidden,omitempty"`
	Category string `json:"category,omitempty"`
}

// ShowRequest represents the arguments for show.
type ShowRequest struct {
	Slug string `json:"slug"`
	HTML bool   `json:"html,omitempty"`
}

// HistoryRequest represents the arguments for history.
type HistoryRequest struct {
	RunID     string `json:"run_id,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// Handler implementations

// HandleValidate handles the validate tool call.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BatchRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error(), "", nil)), nil
	}
	input.DryRun = true
	return h.runBatch(ctx, "validate", ops.IntentSync, input)
}

// HandleUpload handles the upload tool call.
func (h *Handlers) HandleUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BatchRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error(), "", nil)), nil
	}
	return h.runBatch(ctx, "upload", ops.IntentUpload, input)
}

// HandleUpdate handles the update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BatchRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error(), "", nil)), nil
	}
	return h.runBatch(ctx, "update", ops.IntentUpdate, input)
}

// HandleSync handles the sync tool call.
func (h *Handlers) HandleSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BatchRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error(), "", nil)), nil
	}
	return h.runBatch(ctx, "sync", ops.IntentSync, input)
}

func (h *Handlers) runBatch(ctx context.Context, command string, intent ops.Intent, input BatchRequest) (*mcp.CallToolResult, error) {
	if strings.TrimSpace(input.Path) == "" {
		return errorResult(errors.NewValidation("path is required", "path", nil)), nil
	}
	if h.engine == nil {
		return errorResult(errors.NewConfiguration("sync engine is not configured")), nil
	}

	report, err := h.engine.RunBatch(ctx, ops.BatchInput{
		Root:    input.Path,
		Intent:  intent,
		DryRun:  input.DryRun,
		Command: command,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(report)
}

// HandleList handles the list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error(), "", nil)), nil
	}
	if h.admin == nil {
		return errorResult(errors.NewConfiguration("no API client configured")), nil
	}

	result, err := ops.List(ctx, h.admin, ops.ListInput{
		Hidden:   input.Hidden,
		Category: input.Category,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShow handles the show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShowRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error(), "", nil)), nil
	}
	if h.admin == nil {
		return errorResult(errors.NewConfiguration("no API client configured")), nil
	}

	result, err := ops.Show(ctx, h.admin, ops.ShowInput{
		Slug: input.Slug,
		HTML: input.HTML,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHistory handles the history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error(), "", nil)), nil
	}

	result, err := ops.History(h.journal, ops.HistoryInput{
		RunID:     input.RunID,
		Challenge: input.Challenge,
		Limit:     input.Limit,
		Offset:    input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if nErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    nErr.Code,
			"message": messageWithContext(err, nErr),
			"status":  nErr.Status,
		}
		if nErr.Code != errors.ErrInternal && len(nErr.Details) > 0 {
			errorObj["details"] = nErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// messageWithContext keeps any wrapping prefix ("upload dist/a.zip: ...") in front
// of the error's own message.
func messageWithContext(err error, nErr *errors.NoctfError) string {
	if err == error(nErr) {
		return nErr.Message
	}
	return strings.TrimSuffix(err.Error(), nErr.Error()) + nErr.Message
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
