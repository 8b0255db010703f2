package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// scanDirectoryTool returns the tool definition for scan_directory
func scanDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scan_directory",
		Description: "Index every UTF-8 text file below a directory so it can be searched for substrings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the directory to scan",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, discard the current index and rebuild it even for the same directory",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// findSubstringTool returns the tool definition for find_substring
func findSubstringTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_substring",
		Description: "Find the first occurrence of a literal substring in every indexed file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Exact text to search for (case-sensitive, no wildcards)",
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, reuse a cached result while the index is unchanged",
					"default":     true,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of files to return (1-1000)",
					"default":     100,
					"minimum":     1,
					"maximum":     1000,
				},
			},
			Required: []string{"query"},
		},
	}
}

// openDirectoryTool returns the tool definition for open_directory
func openDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "open_directory",
		Description: "List the entries of a directory and mark the files that are indexed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the directory to list",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the scan state, index size and last scan summary",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// recentEventsTool returns the tool definition for recent_events
func recentEventsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "recent_events",
		Description: "Return saved events from the journal: scan phases, file changes and removals",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of events to return (1-1000)",
					"default":     20,
					"minimum":     1,
					"maximum":     1000,
				},
			},
		},
	}
}
