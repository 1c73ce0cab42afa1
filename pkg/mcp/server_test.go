package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/csn"
	"github.com/ekaya-inc/csn-graph/pkg/mcp/tools"
)

func TestNewServer(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	if s == nil {
		t.Fatal("expected non-nil server")
	}
	if s.mcp == nil {
		t.Fatal("expected non-nil mcp server")
	}
	if s.logger == nil {
		t.Error("expected logger to be set")
	}
}

func TestServer_MCP(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	mcpServer := s.MCP()
	if mcpServer == nil {
		t.Fatal("expected non-nil mcp server from MCP()")
	}
	if mcpServer != s.mcp {
		t.Error("expected MCP() to return the internal mcp server")
	}
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	tool := mcp.NewTool("test-tool", mcp.WithDescription("A test tool"))
	handlerCalled := false

	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		handlerCalled = true
		return mcp.NewToolResultText("success"), nil
	})

	if handlerCalled {
		t.Error("handler should not be called during registration")
	}

	result := s.MCP().HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"test-tool"},"id":1}`))
	if _, err := json.Marshal(result); err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}
	if !handlerCalled {
		t.Error("expected handler to be called through tools/call")
	}
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	httpServer := s.NewStreamableHTTPServer()
	if httpServer == nil {
		t.Fatal("expected non-nil HTTP server")
	}
}

func newTestDeps(t *testing.T) *tools.ToolDeps {
	t.Helper()
	dir := t.TempDir()
	doc := `{"definitions": {"po.PurchaseOrder": {"kind": "entity", "elements": {"ID": {"type": "cds.String", "key": true}}}}}`
	if err := os.WriteFile(filepath.Join(dir, "po.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := csn.NewFileStore(dir, 0, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	parser := csn.NewParser(store, zap.NewNop())
	return &tools.ToolDeps{
		Entities:     parser,
		Associations: csn.NewAssociationParser(parser, 0, zap.NewNop()),
		Logger:       zap.NewNop(),
	}
}

func TestNewGraphServer_RegistersEveryTool(t *testing.T) {
	s := NewGraphServer("1.0.0", newTestDeps(t), zap.NewNop())

	result := s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	resultBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resultBytes, &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	var names []string
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	want := []string{
		"add_manual_relationship", "association_statistics", "clear_graph_cache", "disable_relationship",
		"discover_relationships", "get_entity", "get_graph", "get_neighbors", "graph_cache_status", "health",
		"list_entities", "list_relationships", "ontology_statistics", "refresh_graph", "shortest_path",
		"traverse", "verify_relationship",
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected tools:\n got %v\nwant %v", names, want)
	}
}
