package mcp_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/repository"
	"github.com/m-mizutani/convgen/pkg/service/mcp"
	"github.com/m-mizutani/convgen/pkg/usecase/function"
	"github.com/m-mizutani/convgen/pkg/usecase/orchestrator"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type mockAPI struct {
	adapter.API
	units []adapter.CreateUnitConversionPageInput
}

func (m *mockAPI) CreateUnitConversionPage(ctx context.Context, input adapter.CreateUnitConversionPageInput) (*adapter.PageResult, error) {
	m.units = append(m.units, input)
	return &adapter.PageResult{FileName: "page123"}, nil
}

func (m *mockAPI) CreateConvertPage(ctx context.Context, input adapter.CreateConvertPageInput) (*adapter.PageResult, error) {
	return &adapter.PageResult{FileName: "page456"}, nil
}

func (m *mockAPI) ProcessPrompt(ctx context.Context, prompt string) (*adapter.FunctionResult, error) {
	return &adapter.FunctionResult{Code: "def double(x):\n    return x * 2", FunctionName: "double"}, nil
}

func (m *mockAPI) Convert(ctx context.Context, input adapter.ConvertInput) (*adapter.ConvertResult, error) {
	return &adapter.ConvertResult{Output: input.Input * 2}, nil
}

func connect(t *testing.T, api adapter.API) (*mcpsdk.ClientSession, *orchestrator.Orchestrator) {
	t.Helper()
	ctx := context.Background()

	orch, err := orchestrator.New(ctx, api, repository.NewMemory())
	gt.NoError(t, err)

	server := mcp.NewServer(orch, function.New(api), "test")
	testServer := httptest.NewServer(server.Handler())
	t.Cleanup(testServer.Close)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: testServer.URL}, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return session, orch
}

func callText(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	gt.NoError(t, err)
	gt.A(t, result.Content).Longer(0)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	return text.Text, result.IsError
}

func TestListTools(t *testing.T) {
	session, _ := connect(t, &mockAPI{})

	tools, err := session.ListTools(context.Background(), nil)
	gt.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	gt.True(t, names["create_unit_conversion_page"])
	gt.True(t, names["create_convert_page"])
	gt.True(t, names["list_history"])
	gt.True(t, names["convert_value"])
}

func TestCreateUnitPageTool(t *testing.T) {
	api := &mockAPI{}
	session, orch := connect(t, api)

	text, isErr := callText(t, session, "create_unit_conversion_page", map[string]any{
		"unit1": "inches",
		"unit2": "cm",
	})
	gt.False(t, isErr)
	gt.S(t, text).Contains("Convert: inches to cm")
	gt.S(t, text).Contains("page123")

	gt.A(t, api.units).Length(1)
	gt.A(t, orch.History()).Length(1)

	text, _ = callText(t, session, "list_history", map[string]any{})
	gt.S(t, text).Contains("page123")
}

func TestCreatePromptPageThenUnits(t *testing.T) {
	session, orch := connect(t, &mockAPI{})

	text, isErr := callText(t, session, "create_convert_page", map[string]any{"prompt": "convert F to C"})
	gt.False(t, isErr)
	gt.S(t, text).Contains("Prompt: convert F to C")

	// switching tools switches the input mode
	_, isErr = callText(t, session, "create_unit_conversion_page", map[string]any{"unit1": "m", "unit2": "ft"})
	gt.False(t, isErr)

	history := orch.History()
	gt.A(t, history).Length(2)
	gt.Equal(t, history[0].PageLink, "page123")
}

func TestConvertValueTool(t *testing.T) {
	session, _ := connect(t, &mockAPI{})

	text, isErr := callText(t, session, "convert_value", map[string]any{"prompt": "doubles a number", "input": 21})
	gt.False(t, isErr)
	gt.Equal(t, text, "double(21) = 42")
}

func TestEmptyInputIsToolError(t *testing.T) {
	session, _ := connect(t, &mockAPI{})

	_, isErr := callText(t, session, "create_unit_conversion_page", map[string]any{"unit1": "m", "unit2": ""})
	gt.True(t, isErr)
}

// promptAPI records prompts and fails those starting with "reject"
type promptAPI struct {
	mockAPI
	mu      sync.Mutex
	prompts []string
}

func (m *promptAPI) CreateConvertPage(ctx context.Context, input adapter.CreateConvertPageInput) (*adapter.PageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, input.Prompt)
	if strings.HasPrefix(input.Prompt, "reject") {
		return nil, goerr.New("service unavailable")
	}
	return &adapter.PageResult{FileName: "page456"}, nil
}

func (m *promptAPI) GetFileContent(ctx context.Context, pageLink string) (string, error) {
	return "source of " + pageLink, nil
}

func TestActiveIDDoesNotCarryOver(t *testing.T) {
	api := &promptAPI{}
	session, orch := connect(t, api)

	_, isErr := callText(t, session, "create_unit_conversion_page", map[string]any{"unit1": "m", "unit2": "ft"})
	gt.False(t, isErr)
	activeID := string(orch.History()[0].ID)

	_, isErr = callText(t, session, "create_convert_page", map[string]any{
		"prompt":    "reject this one",
		"active_id": activeID,
	})
	gt.True(t, isErr)

	_, isErr = callText(t, session, "create_convert_page", map[string]any{"prompt": "plain request"})
	gt.False(t, isErr)

	gt.A(t, api.prompts).Length(2)
	gt.Equal(t, api.prompts[0], "reject this one\n\nsource of page123")
	gt.Equal(t, api.prompts[1], "plain request")

	_, ok := orch.Active()
	gt.False(t, ok)
}

func TestActiveIDAppliedWhenGiven(t *testing.T) {
	api := &promptAPI{}
	session, orch := connect(t, api)

	_, isErr := callText(t, session, "create_unit_conversion_page", map[string]any{"unit1": "kg", "unit2": "lb"})
	gt.False(t, isErr)
	activeID := string(orch.History()[0].ID)

	_, isErr = callText(t, session, "create_convert_page", map[string]any{
		"prompt":    "make it blue",
		"active_id": activeID,
	})
	gt.False(t, isErr)
	gt.A(t, api.prompts).Length(1)
	gt.Equal(t, api.prompts[0], "make it blue\n\nsource of page123")
}
