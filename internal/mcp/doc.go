// Package mcp implements the Model Context Protocol (MCP) server for substrfind.
//
// The MCP server exposes five tools:
//   - scan_directory: Index the text files below a directory
//   - find_substring: Find a literal substring in the indexed files
//   - open_directory: List a directory and mark indexed files
//   - get_status: Report scan state and index size
//   - recent_events: Read saved events from the journal
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Basic Usage
//
// The MCP server is started via the serve command:
//
//	substrfind serve
//
// It then listens on stdin for MCP protocol messages and writes responses to
// stdout. Logs go to stderr.
//
// # Tool: scan_directory
//
//	Request:
//	{
//	  "name": "scan_directory",
//	  "arguments": {"path": "/home/me/notes", "force": false}
//	}
//
//	Response:
//	{
//	  "scan_id": "7f6c...",
//	  "root": "/home/me/notes",
//	  "files_scanned": 412,
//	  "files_indexed": 398,
//	  "files_rejected": 14,
//	  "duration_ms": 184
//	}
//
// Scanning the same directory again only indexes new files; a different
// directory or force=true rebuilds the index.
//
// # Tool: find_substring
//
//	Request:
//	{
//	  "name": "find_substring",
//	  "arguments": {"query": "TODO(release)"}
//	}
//
//	Response:
//	{
//	  "results": [
//	    {"path": "/home/me/notes/plan.md", "offset": 1837}
//	  ],
//	  "total_matches": 1,
//	  "candidates": 3,
//	  "cache_hit": false
//	}
//
// The offset is the byte position of the first occurrence in the file.
// Results are ordered by path.
//
// # Error Codes
//
//	-32602  Invalid parameters
//	-32603  Internal error
//	-32001  Invalid root directory
//	-32002  Scan already in progress
//	-32003  Nothing indexed yet
//	-32004  Empty query
//	-32005  Journal disabled
package mcp
