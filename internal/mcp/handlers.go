package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/gpsmap/internal/cache"
	"github.com/hpungsan/gpsmap/internal/engine"
	"github.com/hpungsan/gpsmap/internal/errors"
	"github.com/hpungsan/gpsmap/internal/potfile"
	"github.com/hpungsan/gpsmap/internal/report"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	engine  *engine.Engine
	session *engine.Session
}

// NewHandlers creates a new Handlers instance with its own session.
func NewHandlers(e *engine.Engine) *Handlers {
	return &Handlers{engine: e, session: e.NewSession()}
}

// ScanRequest represents the arguments for scan.
type ScanRequest struct {
	Incremental bool `json:"incremental,omitempty"`
}

// ResetRequest represents the arguments for reset.
type ResetRequest struct {
	ClearSkipped bool `json:"clear_skipped,omitempty"`
}

// ScanOutput is the result of scan.
type ScanOutput struct {
	Session   string         `json:"session"`
	Count     int            `json:"count"`
	Positions engine.Dataset `json:"positions"`
}

// CredentialsOutput is the result of load_credentials.
type CredentialsOutput struct {
	Count    int                    `json:"count"`
	BySource map[potfile.Source]int `json:"by_source"`
}

// StatsOutput is the result of stats.
type StatsOutput struct {
	Cache       cache.Stats `json:"cache"`
	Credentials int         `json:"credentials"`
	Sent        int         `json:"sent"`
	Skipped     int         `json:"skipped"`
}

// HandleScan handles the scan tool.
func (h *Handlers) HandleScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[ScanRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	data, err := h.engine.Scan(ctx, h.session, args.Incremental)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(ScanOutput{
		Session:   h.session.ID(),
		Count:     len(data),
		Positions: data,
	})
}

// HandleReset handles the reset tool.
func (h *Handlers) HandleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[ResetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.session.Reset(args.ClearSkipped)

	return successResult(map[string]any{
		"session":       h.session.ID(),
		"reset":         true,
		"clear_skipped": args.ClearSkipped,
	})
}

// HandleLoadCredentials handles the load_credentials tool.
func (h *Handlers) HandleLoadCredentials(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := h.engine.LoadCredentials()
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(CredentialsOutput{
		Count:    n,
		BySource: h.engine.Credentials().Counts(),
	})
}

// HandleSkipped handles the skipped tool.
func (h *Handlers) HandleSkipped(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(map[string]any{
		"skipped": report.SkippedFiles(h.session.Skipped()),
	})
}

// HandleReport handles the report tool. It scans with a fresh session so the
// skipped list is complete and delivery state is untouched.
func (h *Handlers) HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s := engine.NewSession()
	data, err := h.engine.Scan(ctx, s, false)
	if err != nil {
		return errorResult(err), nil
	}

	md := report.Summarize(h.engine.Dir(), data, s.Skipped(), h.engine.Credentials()).Markdown()
	return mcp.NewToolResultText(md), nil
}

// HandleStats handles the stats tool.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(StatsOutput{
		Cache:       h.engine.CacheStats(),
		Credentials: h.engine.Credentials().Len(),
		Sent:        len(h.session.Sent()),
		Skipped:     len(h.session.Skipped()),
	})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var gErr *errors.GPSMapError
	if stderrors.As(err, &gErr) {
		errorObj := map[string]any{
			"code":    gErr.Code,
			"message": gErr.Message,
			"status":  gErr.Status,
		}
		if err != error(gErr) {
			errorObj["message"] = err.Error()
		}
		if gErr.Code != errors.ErrInternal && gErr.Details != nil {
			errorObj["details"] = gErr.Details
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

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
