package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/substrfind/internal/config"
	"github.com/dshills/substrfind/internal/engine"
	"github.com/dshills/substrfind/internal/storage"
)

// setupServer creates a server over an engine with an in-memory journal and a
// small directory tree
func setupServer(t *testing.T) (*Server, string) {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"a.txt":     "hello world",
		"b.txt":     "say hello",
		"sub/c.txt": "goodbye",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)

	eng, err := engine.New(config.Default(), engine.WithoutWatcher(), engine.WithStorage(store))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	server, err := NewServer(eng)
	require.NoError(t, err)
	return server, root
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// decode returns the JSON object carried by a text result
func decode(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()

	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer(t *testing.T) {
	server, _ := setupServer(t)
	assert.NotNil(t, server.mcp)
	assert.NotNil(t, server.engine)

	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestScanAndFind(t *testing.T) {
	server, root := setupServer(t)
	ctx := context.Background()

	result, err := server.handleScanDirectory(ctx, call(map[string]interface{}{"path": root}))
	require.NoError(t, err)
	scan := decode(t, result)
	assert.Equal(t, root, scan["root"])
	assert.Equal(t, float64(3), scan["files_indexed"])
	assert.NotEmpty(t, scan["scan_id"])

	result, err = server.handleFindSubstring(ctx, call(map[string]interface{}{"query": "hello"}))
	require.NoError(t, err)
	found := decode(t, result)
	assert.Equal(t, float64(2), found["total_matches"])
	assert.Equal(t, false, found["truncated"])

	results := found["results"].([]interface{})
	require.Len(t, results, 2)
	first := results[0].(map[string]interface{})
	assert.Equal(t, filepath.Join(root, "a.txt"), first["path"])
	assert.Equal(t, float64(0), first["offset"])
	second := results[1].(map[string]interface{})
	assert.Equal(t, float64(4), second["offset"])

	// Limit truncates
	result, err = server.handleFindSubstring(ctx, call(map[string]interface{}{"query": "hello", "limit": float64(1)}))
	require.NoError(t, err)
	found = decode(t, result)
	assert.Equal(t, true, found["truncated"])
	assert.Len(t, found["results"], 1)

	// Second identical query is served from the cache
	result, err = server.handleFindSubstring(ctx, call(map[string]interface{}{"query": "hello"}))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, result)["cache_hit"])
}

func TestScanDirectory_Errors(t *testing.T) {
	server, root := setupServer(t)
	ctx := context.Background()

	_, err := server.handleScanDirectory(ctx, call(map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = server.handleScanDirectory(ctx, call(map[string]interface{}{"path": "relative/dir"}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = server.handleScanDirectory(ctx, call(map[string]interface{}{"path": filepath.Join(root, "missing")}))
	requireCode(t, err, ErrorCodeInvalidRoot)

	_, err = server.handleScanDirectory(ctx, mcp.CallToolRequest{})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestFindSubstring_Errors(t *testing.T) {
	server, root := setupServer(t)
	ctx := context.Background()

	_, err := server.handleFindSubstring(ctx, call(map[string]interface{}{"query": "hello"}))
	requireCode(t, err, ErrorCodeNotIndexed)

	_, err = server.handleScanDirectory(ctx, call(map[string]interface{}{"path": root}))
	require.NoError(t, err)

	_, err = server.handleFindSubstring(ctx, call(map[string]interface{}{"query": ""}))
	requireCode(t, err, ErrorCodeEmptyQuery)

	_, err = server.handleFindSubstring(ctx, call(map[string]interface{}{"query": "x", "limit": float64(0)}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestOpenDirectory(t *testing.T) {
	server, root := setupServer(t)
	ctx := context.Background()

	_, err := server.handleScanDirectory(ctx, call(map[string]interface{}{"path": root}))
	require.NoError(t, err)

	result, err := server.handleOpenDirectory(ctx, call(map[string]interface{}{"path": root}))
	require.NoError(t, err)
	listing := decode(t, result)

	entries := listing["entries"].([]interface{})
	require.Len(t, entries, 3)

	dir := entries[0].(map[string]interface{})
	assert.Equal(t, "sub", dir["name"])
	assert.Equal(t, "directory", dir["kind"])
	assert.Equal(t, false, dir["indexed"])
	assert.NotContains(t, dir, "size")

	file := entries[1].(map[string]interface{})
	assert.Equal(t, "a.txt", file["name"])
	assert.Equal(t, "file", file["kind"])
	assert.Equal(t, true, file["indexed"])
	assert.Equal(t, float64(11), file["size"])
	assert.Equal(t, "11 B", file["size_human"])

	_, err = server.handleOpenDirectory(ctx, call(map[string]interface{}{"path": filepath.Join(root, "a.txt")}))
	requireCode(t, err, ErrorCodeInvalidRoot)
}

func TestGetStatus(t *testing.T) {
	server, root := setupServer(t)
	ctx := context.Background()

	result, err := server.handleGetStatus(ctx, call(nil))
	require.NoError(t, err)
	status := decode(t, result)
	assert.Equal(t, "prepared", status["state"])
	assert.Equal(t, false, status["indexed"])
	assert.NotContains(t, status, "last_scan")

	_, err = server.handleScanDirectory(ctx, call(map[string]interface{}{"path": root}))
	require.NoError(t, err)

	result, err = server.handleGetStatus(ctx, call(nil))
	require.NoError(t, err)
	status = decode(t, result)
	assert.Equal(t, true, status["indexed"])
	assert.Equal(t, float64(3), status["indexed_files"])
	assert.Equal(t, false, status["watching"])
	assert.Equal(t, true, status["journal"])

	last := status["last_scan"].(map[string]interface{})
	assert.Equal(t, float64(3), last["files_indexed"])
}

func TestRecentEvents(t *testing.T) {
	server, root := setupServer(t)
	ctx := context.Background()

	_, err := server.handleScanDirectory(ctx, call(map[string]interface{}{"path": root}))
	require.NoError(t, err)

	result, err := server.handleRecentEvents(ctx, call(map[string]interface{}{"limit": float64(1)}))
	require.NoError(t, err)
	events := decode(t, result)["events"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "FINISHED", events[0].(map[string]interface{})["text"])

	_, err = server.handleRecentEvents(ctx, call(map[string]interface{}{"limit": float64(5000)}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestRecentEvents_JournalDisabled(t *testing.T) {
	eng, err := engine.New(config.Default(), engine.WithoutWatcher())
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	server, err := NewServer(eng)
	require.NoError(t, err)

	_, err = server.handleRecentEvents(context.Background(), call(nil))
	requireCode(t, err, ErrorCodeJournalDisabled)
}

func TestMCPError(t *testing.T) {
	err := newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
	assert.Equal(t, "MCP error -32004: query cannot be empty", err.Error())
}
