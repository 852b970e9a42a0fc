package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/usecase/function"
	"github.com/m-mizutani/convgen/pkg/usecase/orchestrator"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server exposes page generation and history to MCP clients
type Server struct {
	orch   *orchestrator.Orchestrator
	fn     *function.UseCase
	server *mcp.Server

	// tools drive the shared form, one call at a time
	mu sync.Mutex
}

type unitPageParams struct {
	Unit1 string `json:"unit1" jsonschema:"Source unit, e.g. inches"`
	Unit2 string `json:"unit2" jsonschema:"Target unit, e.g. cm"`
	Model string `json:"model,omitempty" jsonschema:"Generation model name"`
}

type promptPageParams struct {
	Prompt   string `json:"prompt" jsonschema:"Free text description of the conversion page"`
	Model    string `json:"model,omitempty" jsonschema:"Generation model name"`
	ActiveID string `json:"active_id,omitempty" jsonschema:"History entry whose source is appended to the prompt"`
}

type listHistoryParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of entries, newest first"`
}

type convertValueParams struct {
	Prompt string  `json:"prompt" jsonschema:"Description of the conversion, e.g. converts kilometers to miles"`
	Input  float64 `json:"input" jsonschema:"Value to convert"`
}

// NewServer registers the convgen tools
func NewServer(orch *orchestrator.Orchestrator, fn *function.UseCase, version string) *Server {
	s := &Server{
		orch: orch,
		fn:   fn,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "convgen",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_unit_conversion_page",
		Description: "Generate a page converting between two units",
	}, s.createUnitPage)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_convert_page",
		Description: "Generate a conversion page from a free text prompt",
	}, s.createPromptPage)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_history",
		Description: "List previously generated pages, newest first",
	}, s.listHistory)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "convert_value",
		Description: "Generate a conversion function from a prompt and apply it to a value",
	}, s.convertValue)

	return s
}

// RunStdio serves MCP over stdin/stdout until ctx is done
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

// Handler serves MCP over streamable HTTP
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func (s *Server) createUnitPage(ctx context.Context, req *mcp.CallToolRequest, params *unitPageParams) (*mcp.CallToolResult, any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.orch.SetMode(model.ModeUnits); err != nil {
		return nil, nil, err
	}
	if err := s.orch.UpdateField(model.FieldUnit1, params.Unit1); err != nil {
		return nil, nil, err
	}
	if err := s.orch.UpdateField(model.FieldUnit2, params.Unit2); err != nil {
		return nil, nil, err
	}
	if params.Model != "" {
		if err := s.orch.UpdateField(model.FieldModel, params.Model); err != nil {
			return nil, nil, err
		}
	}

	entry, err := s.orch.Submit(ctx)
	if err != nil {
		return nil, nil, err
	}
	return textResult(formatEntry(entry)), nil, nil
}

func (s *Server) createPromptPage(ctx context.Context, req *mcp.CallToolRequest, params *promptPageParams) (*mcp.CallToolResult, any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.orch.SetMode(model.ModePrompt); err != nil {
		return nil, nil, err
	}
	if err := s.orch.UpdateField(model.FieldPrompt, params.Prompt); err != nil {
		return nil, nil, err
	}
	if params.Model != "" {
		if err := s.orch.UpdateField(model.FieldModel, params.Model); err != nil {
			return nil, nil, err
		}
	}
	// a marker from an earlier call must not leak into this one
	if active, ok := s.orch.Active(); ok && active != model.EntryID(params.ActiveID) {
		s.orch.ClearActive()
	}
	if id := model.EntryID(params.ActiveID); id != "" && !s.orch.IsActive(id) {
		if _, err := s.orch.SetActiveEntry(id); err != nil {
			return nil, nil, err
		}
	}

	entry, err := s.orch.Submit(ctx)
	if err != nil {
		return nil, nil, err
	}
	return textResult(formatEntry(entry)), nil, nil
}

func (s *Server) listHistory(ctx context.Context, req *mcp.CallToolRequest, params *listHistoryParams) (*mcp.CallToolResult, any, error) {
	history := s.orch.History()
	if params.Limit > 0 && len(history) > params.Limit {
		history = history[:params.Limit]
	}
	if len(history) == 0 {
		return textResult("No history"), nil, nil
	}

	lines := make([]string, 0, len(history))
	for _, e := range history {
		lines = append(lines, formatEntry(e))
	}
	return textResult(strings.Join(lines, "\n")), nil, nil
}

func (s *Server) convertValue(ctx context.Context, req *mcp.CallToolRequest, params *convertValueParams) (*mcp.CallToolResult, any, error) {
	fn, output, err := s.fn.GenerateAndRun(ctx, params.Prompt, params.Input)
	if err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf("%s(%v) = %v", fn.FunctionName, params.Input, output)), nil, nil
}

func formatEntry(e *model.HistoryEntry) string {
	return fmt.Sprintf("%s\t%s\t%s", e.ID, e.DisplayText(), e.PageLink)
}
