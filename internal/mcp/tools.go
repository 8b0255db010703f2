package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"

	"github.com/dshills/substrfind/internal/engine"
	"github.com/dshills/substrfind/internal/storage"
	"github.com/dshills/substrfind/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeInvalidRoot     = -32001 // Path is missing, not a directory or unreadable
	ErrorCodeScanInProgress  = -32002 // Another scan is already running
	ErrorCodeNotIndexed      = -32003 // No directory has been scanned yet
	ErrorCodeEmptyQuery      = -32004 // Query parameter is empty
	ErrorCodeJournalDisabled = -32005 // Journal is not configured
)

const (
	defaultResultLimit = 100
	defaultEventLimit  = 20
	maxLimit           = 1000
)

// handleScanDirectory handles the scan_directory tool invocation
func (s *Server) handleScanDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}
	force := getBoolDefault(args, "force", false)

	report, err := s.engine.Scan(ctx, path, engine.ScanOptions{Force: force})
	switch {
	case errors.Is(err, types.ErrInvalidRoot):
		return nil, newMCPError(ErrorCodeInvalidRoot, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	case errors.Is(err, types.ErrScanInProgress):
		return nil, newMCPError(ErrorCodeScanInProgress, "a scan is already running", nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "scan failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"scan_id":             report.ScanID,
		"root":                report.Root,
		"files_scanned":       report.FilesScanned,
		"files_indexed":       report.FilesIndexed,
		"files_skipped":       report.FilesSkipped,
		"files_rejected":      report.FilesRejected,
		"files_failed":        report.FilesFailed,
		"files_removed":       report.FilesRemoved,
		"directories_skipped": report.DirectoriesSkipped,
		"index_size":          report.IndexSize,
		"duration_ms":         report.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFindSubstring handles the find_substring tool invocation
func (s *Server) handleFindSubstring(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", defaultResultLimit)
	if limit < 1 || limit > maxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 1000", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	status := s.engine.Status()
	if status.Root == "" {
		return nil, newMCPError(ErrorCodeNotIndexed, "nothing indexed yet. Use scan_directory first.", nil)
	}

	resp, err := s.engine.FindSubstring(ctx, query, getBoolDefault(args, "use_cache", true))
	if errors.Is(err, types.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := resp.Results
	truncated := len(results) > limit
	if truncated {
		results = results[:limit]
	}

	response := map[string]interface{}{
		"query": query,
		"results": lo.Map(results, func(m types.Match, _ int) map[string]interface{} {
			return map[string]interface{}{
				"path":   m.Path,
				"offset": m.Offset,
			}
		}),
		"total_matches": len(resp.Results),
		"truncated":     truncated,
		"candidates":    resp.Candidates,
		"verified":      resp.Verified,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleOpenDirectory handles the open_directory tool invocation
func (s *Server) handleOpenDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	rows, err := s.engine.OpenDirectory(path)
	if errors.Is(err, types.ErrInvalidRoot) {
		return nil, newMCPError(ErrorCodeInvalidRoot, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to open directory", map[string]interface{}{
			"error": err.Error(),
		})
	}

	entries := lo.Map(rows, func(row types.DirEntry, _ int) map[string]interface{} {
		entry := map[string]interface{}{
			"name":    row.Name,
			"path":    row.Path,
			"kind":    kindName(row.Kind),
			"indexed": row.Indexed,
		}
		if row.Kind == types.KindFile {
			entry["size"] = row.Size
			entry["size_human"] = humanize.Bytes(uint64(row.Size))
		}
		if !row.ModTime.IsZero() {
			entry["modified"] = row.ModTime.Format(time.RFC3339)
			entry["modified_human"] = humanize.Time(row.ModTime)
		}
		return entry
	})

	response := map[string]interface{}{
		"path":    path,
		"entries": entries,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.engine.Status()

	response := map[string]interface{}{
		"state":         status.State.String(),
		"root":          status.Root,
		"indexed":       status.Root != "",
		"indexed_files": status.IndexedFiles,
		"watched_files": status.WatchedFiles,
		"watching":      status.Watching,
		"journal":       status.Journal,
	}

	if last := status.LastScan; last != nil {
		response["last_scan"] = map[string]interface{}{
			"scan_id":        last.ScanID,
			"root":           last.Root,
			"started_at":     last.StartedAt.Format(time.RFC3339),
			"started_human":  humanize.Time(last.StartedAt),
			"files_scanned":  last.FilesScanned,
			"files_indexed":  last.FilesIndexed,
			"files_rejected": last.FilesRejected,
			"files_failed":   last.FilesFailed,
			"duration_ms":    last.Duration.Milliseconds(),
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecentEvents handles the recent_events tool invocation
func (s *Server) handleRecentEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	limit := getIntDefault(args, "limit", defaultEventLimit)
	if limit < 1 || limit > maxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 1000", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	events, err := s.engine.RecentEvents(ctx, limit)
	if errors.Is(err, engine.ErrJournalDisabled) {
		return nil, newMCPError(ErrorCodeJournalDisabled, "journal is disabled", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read journal", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"events": lo.Map(events, func(ev *storage.EventRecord, _ int) map[string]interface{} {
			return map[string]interface{}{
				"time":    ev.CreatedAt.Format(time.RFC3339),
				"kind":    ev.Kind,
				"level":   ev.Level,
				"text":    ev.Text,
				"scan_id": ev.ScanID,
			}
		}),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requirePath extracts the mandatory absolute path argument
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if !filepath.IsAbs(path) {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}
	return path, nil
}

func kindName(kind types.EntryKind) string {
	if kind == types.KindOther {
		return "other"
	}
	return string(kind)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
)
