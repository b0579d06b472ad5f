package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/classifier"
	"github.com/ekaya-inc/bugsneak/pkg/mcp/tools"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/services"
)

type emptyErrorLogs struct{}

func (emptyErrorLogs) List(ctx context.Context, filters models.ErrorLogFilters) ([]*services.DecoratedErrorLog, int64, error) {
	return nil, 0, nil
}

func (emptyErrorLogs) Get(ctx context.Context, id int64) (*services.DecoratedErrorLog, error) {
	return nil, nil
}

func (emptyErrorLogs) UpdateStatus(ctx context.Context, id int64, status string) error { return nil }

func (emptyErrorLogs) Stats(ctx context.Context) (*models.ErrorLogStats, error) {
	return &models.ErrorLogStats{}, nil
}

func (emptyErrorLogs) Classify(message string, flags classifier.RequestFlags) classifier.Result {
	return classifier.Unclassified()
}

func toolNames(t *testing.T, s *Server) []string {
	t.Helper()

	result := s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))

	var names []string
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestNewServer(t *testing.T) {
	s := NewServer(ServerName, "1.0.0", zap.NewNop())

	require.NotNil(t, s)
	assert.NotNil(t, s.mcp)
	assert.Same(t, s.mcp, s.MCP())
}

func TestServer_RegisterTools(t *testing.T) {
	s := NewServer(ServerName, "1.0.0", zap.NewNop())
	s.RegisterTools("1.0.0", nil, &tools.ErrorLogToolDeps{Logs: emptyErrorLogs{}})

	names := toolNames(t, s)
	assert.Contains(t, names, "health")
	assert.Contains(t, names, "list_errors")
	assert.NotContains(t, names, "analyze_error", "analysis tool needs an analyzer")
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer(ServerName, "1.0.0", zap.NewNop())

	handlerCalled := false
	s.RegisterTool(mcp.NewTool("test-tool", mcp.WithDescription("A test tool")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			handlerCalled = true
			return mcp.NewToolResultText("success"), nil
		})

	assert.False(t, handlerCalled, "handler should not be called during registration")
	assert.Contains(t, toolNames(t, s), "test-tool")
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	s := NewServer(ServerName, "1.0.0", zap.NewNop())
	assert.NotNil(t, s.NewStreamableHTTPServer())
}
