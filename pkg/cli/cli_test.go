package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/policy"
	"github.com/m-mizutani/convgen/pkg/repository"
	"github.com/m-mizutani/convgen/pkg/usecase/historyitem"
	"github.com/m-mizutani/convgen/pkg/usecase/orchestrator"
	"github.com/m-mizutani/gt"
)

// fakeService mimics the page generation backend
type fakeService struct {
	mu      sync.Mutex
	pages   int
	prompts []string
	saved   map[string]string
	files   map[string]string
	cleared int
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()
	f := &fakeService{
		saved: map[string]string{},
		files: map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/create_unit_conversion_page", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pages++
		name := "convert_pages/unit_" + string(rune('a'+f.pages-1))
		f.files[name] = "<html>" + name + "</html>"
		writeJSON(w, map[string]any{"file_name": name})
	})
	mux.HandleFunc("POST /api/create_convert_page", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.pages++
		f.prompts = append(f.prompts, body.Prompt)
		name := "convert_pages/prompt_" + string(rune('a'+f.pages-1))
		f.files[name] = "<html>" + name + "</html>"
		writeJSON(w, map[string]any{"file_name": name})
	})
	mux.HandleFunc("GET /api/get_models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"models": []string{"GPT-4", "Claude"}})
	})
	mux.HandleFunc("GET /api/get_file_content/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/api/get_file_content/")
		f.mu.Lock()
		defer f.mu.Unlock()
		content, ok := f.files[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"error": "not found"})
			return
		}
		writeJSON(w, map[string]any{"content": content})
	})
	mux.HandleFunc("POST /api/save_file_content/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/api/save_file_content/")
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.saved[name] = body.Content
		f.files[name] = body.Content
		writeJSON(w, map[string]any{"message": "File saved successfully"})
	})
	mux.HandleFunc("POST /api/clear_history", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cleared++
		writeJSON(w, map[string]any{"message": "History cleared"})
	})
	mux.HandleFunc("POST /api/process-prompt", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"output": "def km_to_miles(x):\n    return x * 0.621371", "function_name": "km_to_miles"})
	})
	mux.HandleFunc("POST /api/convert", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input float64 `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, map[string]any{"output": body.Input * 2})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut

	err := app.Run(context.Background(), append([]string{"convgen"}, args...))
	return out.String(), err
}

func newTestShell(t *testing.T, srv *httptest.Server) (*shell, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()

	api, err := adapter.NewAPI(srv.URL)
	gt.NoError(t, err)
	orch, err := orchestrator.New(ctx, api, repository.NewMemory())
	gt.NoError(t, err)

	var out bytes.Buffer
	return newShell(orch, api, &out, "http://localhost:3000"), &out
}

func execAll(t *testing.T, sh *shell, lines ...string) {
	t.Helper()
	for _, line := range lines {
		_, err := sh.exec(context.Background(), line)
		gt.NoError(t, err)
	}
}

func TestGenerateAndHistory(t *testing.T) {
	_, srv := newFakeService(t)
	path := filepath.Join(t.TempDir(), "history.json")

	out, err := runApp(t, "generate",
		"--base-url", srv.URL,
		"--history-path", path,
		"--unit1", "inches", "--unit2", "cm",
	)
	gt.NoError(t, err)
	gt.S(t, out).Contains("Convert: inches to cm")
	gt.S(t, out).Contains("http://localhost:3000/convert_pages/unit_a")

	out, err = runApp(t, "generate",
		"--base-url", srv.URL,
		"--history-path", path,
		"--prompt", "Fahrenheit to Celsius",
	)
	gt.NoError(t, err)
	gt.S(t, out).Contains("Prompt: Fahrenheit to Celsius")

	out, err = runApp(t, "history", "--history-path", path)
	gt.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	gt.A(t, lines).Length(2)
	gt.S(t, lines[0]).Contains("Prompt: Fahrenheit to Celsius")
	gt.S(t, lines[1]).Contains("Convert: inches to cm")
}

func TestGenerateRejectsMixedInput(t *testing.T) {
	_, srv := newFakeService(t)

	_, err := runApp(t, "generate",
		"--base-url", srv.URL,
		"--store", "memory",
		"--unit1", "m",
		"--prompt", "anything",
	)
	gt.Error(t, err)
}

func TestGenerateRequiresInput(t *testing.T) {
	f, srv := newFakeService(t)

	_, err := runApp(t, "generate", "--base-url", srv.URL, "--store", "memory", "--unit1", "m")
	gt.True(t, errors.Is(err, orchestrator.ErrEmptyInput))
	gt.Equal(t, f.pages, 0)
}

func TestEditFromFileAndClear(t *testing.T) {
	f, srv := newFakeService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	_, err := runApp(t, "generate", "--base-url", srv.URL, "--history-path", path, "--unit1", "kg", "--unit2", "lb")
	gt.NoError(t, err)

	src := filepath.Join(dir, "page.html")
	gt.NoError(t, os.WriteFile(src, []byte("<html>edited</html>"), 0o644))

	out, err := runApp(t, "edit", "--base-url", srv.URL, "--history-path", path, "--id", "1", "--file", src)
	gt.NoError(t, err)
	gt.S(t, out).Contains("File saved successfully")
	gt.Equal(t, f.saved["convert_pages/unit_a"], "<html>edited</html>")

	out, err = runApp(t, "show", "--base-url", srv.URL, "--history-path", path, "--id", "1")
	gt.NoError(t, err)
	gt.Equal(t, out, "<html>edited</html>")

	_, err = runApp(t, "clear", "--base-url", srv.URL, "--history-path", path)
	gt.NoError(t, err)
	gt.Equal(t, f.cleared, 1)

	out, err = runApp(t, "history", "--history-path", path)
	gt.NoError(t, err)
	gt.S(t, out).Contains("No history")
}

func TestModelsAndFunction(t *testing.T) {
	_, srv := newFakeService(t)

	out, err := runApp(t, "models", "--base-url", srv.URL)
	gt.NoError(t, err)
	gt.Equal(t, out, "GPT-4\nClaude\n")

	out, err = runApp(t, "function", "--base-url", srv.URL, "--prompt", "km to miles", "--input", "10")
	gt.NoError(t, err)
	gt.S(t, out).Contains("# km_to_miles")
	gt.S(t, out).Contains("km_to_miles(10) = 20")
}

func TestConfigFile(t *testing.T) {
	_, srv := newFakeService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	cfgPath := filepath.Join(dir, "convgen.yaml")

	yml := "base_url: " + srv.URL + "\npage_base_url: https://pages.example.com\nstore:\n  backend: file\n  path: " + path + "\n"
	gt.NoError(t, os.WriteFile(cfgPath, []byte(yml), 0o644))

	out, err := runApp(t, "generate", "--config", cfgPath, "--unit1", "m", "--unit2", "ft")
	gt.NoError(t, err)
	gt.S(t, out).Contains("https://pages.example.com/convert_pages/unit_a")

	_, err = os.Stat(path)
	gt.NoError(t, err)
}

func TestConfigApplyKeepsExplicitFlags(t *testing.T) {
	cfg := config{baseURL: "http://flag:5000", store: storeFile}
	fc := &fileConfig{BaseURL: "http://file:5000", Timeout: "5s"}
	fc.Store.Backend = storeMemory

	explicit := map[string]bool{"base-url": true}
	gt.NoError(t, cfg.apply(fc, func(name string) bool { return explicit[name] }))
	gt.Equal(t, cfg.baseURL, "http://flag:5000")
	gt.Equal(t, cfg.store, storeMemory)
	gt.Equal(t, cfg.timeout.Seconds(), 5.0)

	fc.Timeout = "soon"
	gt.Error(t, cfg.apply(fc, func(string) bool { return false }))
}

func TestUnknownStore(t *testing.T) {
	cfg := config{store: "postgres"}
	_, _, err := cfg.newStore(context.Background())
	gt.Error(t, err)
}

func TestResolveEntry(t *testing.T) {
	history := []*model.HistoryEntry{
		{ID: "aaaa1111-0000-0000-0000-000000000000", Unit1: "m", Unit2: "ft", PageLink: "p1", Timestamp: 2},
		{ID: "aaaa2222-0000-0000-0000-000000000000", Prompt: "x", PageLink: "p2", Timestamp: 1},
	}

	e, err := resolveEntry(history, "2")
	gt.NoError(t, err)
	gt.Equal(t, e.PageLink, "p2")

	e, err = resolveEntry(history, "aaaa1")
	gt.NoError(t, err)
	gt.Equal(t, e.PageLink, "p1")

	_, err = resolveEntry(history, "aaaa")
	gt.Error(t, err)

	_, err = resolveEntry(history, "3")
	gt.True(t, errors.Is(err, model.ErrEntryNotFound))

	_, err = resolveEntry(history, "zzz")
	gt.True(t, errors.Is(err, model.ErrEntryNotFound))
}

func TestShellUnitsSubmit(t *testing.T) {
	_, srv := newFakeService(t)
	sh, out := newTestShell(t, srv)

	execAll(t, sh, "set unit1 inches", "set unit2 cm", "submit", "list")
	gt.S(t, out.String()).Contains("1\t")
	gt.S(t, out.String()).Contains("Convert: inches to cm")

	form := sh.orch.Form()
	gt.Equal(t, form.Unit1, "")
	gt.Equal(t, form.Unit2, "")
}

func TestShellFieldDisabledByMode(t *testing.T) {
	_, srv := newFakeService(t)
	sh, _ := newTestShell(t, srv)

	_, err := sh.exec(context.Background(), "set prompt hello")
	gt.True(t, errors.Is(err, orchestrator.ErrFieldDisabled))

	_, err = sh.exec(context.Background(), "active 1")
	gt.Error(t, err)

	_, err = sh.exec(context.Background(), "set color red")
	gt.True(t, errors.Is(err, model.ErrInvalidField))
}

func TestShellEditSaveAndFold(t *testing.T) {
	f, srv := newFakeService(t)
	sh, out := newTestShell(t, srv)
	sh.editFn = func(ctx context.Context, content string) (string, error) {
		return content + "<!-- tweaked -->", nil
	}

	execAll(t, sh,
		"set unit1 m", "set unit2 ft", "submit",
		"mode prompt",
		"active 1",
		"open 1",
		"edit 1",
		"save 1",
		"close 1",
		"set prompt make it blue",
		"submit",
	)

	gt.S(t, out.String()).Contains("File saved successfully")
	gt.Equal(t, f.saved["convert_pages/unit_a"], "<html>convert_pages/unit_a</html><!-- tweaked -->")

	gt.A(t, f.prompts).Length(1)
	gt.Equal(t, f.prompts[0], "make it blue\n\n<html>convert_pages/unit_a</html><!-- tweaked -->")

	_, ok := sh.orch.Active()
	gt.False(t, ok)

	history := sh.orch.History()
	gt.A(t, history).Length(2)
	gt.Equal(t, history[0].Prompt, "make it blue")
}

func TestShellEditRequiresOpenEditor(t *testing.T) {
	_, srv := newFakeService(t)
	sh, _ := newTestShell(t, srv)

	execAll(t, sh, "set unit1 m", "set unit2 ft", "submit")
	_, err := sh.exec(context.Background(), "edit 1")
	gt.True(t, errors.Is(err, historyitem.ErrEditorClosed))
}

func TestShellClearAndQuit(t *testing.T) {
	f, srv := newFakeService(t)
	sh, out := newTestShell(t, srv)

	execAll(t, sh, "set unit1 m", "set unit2 ft", "submit", "clear", "list")
	gt.S(t, out.String()).Contains("No history")
	gt.Equal(t, f.cleared, 1)

	quit, err := sh.exec(context.Background(), "quit")
	gt.NoError(t, err)
	gt.True(t, quit)

	_, err = sh.exec(context.Background(), "bogus")
	gt.Error(t, err)
}

func TestGenerateDeniedByPolicy(t *testing.T) {
	f, srv := newFakeService(t)
	dir := t.TempDir()
	rule := "package convgen.request\n\ndeny contains \"no self conversion\" if {\n\tinput.unit1 == input.unit2\n}\n"
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "request.rego"), []byte(rule), 0o644))

	_, err := runApp(t, "generate",
		"--base-url", srv.URL,
		"--store", "memory",
		"--policy-dir", dir,
		"--unit1", "m", "--unit2", "m",
	)
	gt.True(t, errors.Is(err, policy.ErrDenied))
	gt.Equal(t, f.pages, 0)
}
