package policy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// Query is the Rego document a request policy defines
const Query = "data.convgen.request"

var ErrDenied = goerr.New("request denied by policy")

// Request is the policy input describing one generation request
type Request struct {
	Mode   string
	Unit1  string
	Unit2  string
	Prompt string
	Model  string
	Active bool
}

func (r *Request) input() map[string]any {
	return map[string]any{
		"mode":   r.Mode,
		"unit1":  r.Unit1,
		"unit2":  r.Unit2,
		"prompt": r.Prompt,
		"model":  r.Model,
		"active": r.Active,
	}
}

// Decision is the evaluated policy result
type Decision struct {
	Deny  []string
	Model string
}

// Allowed reports whether no deny rule matched
func (d *Decision) Allowed() bool {
	return len(d.Deny) == 0
}

// Engine evaluates request policies written in Rego
type Engine struct {
	query *rego.PreparedEvalQuery
}

// printHook sends Rego print() output to the context logger
type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Load prepares every .rego file in dir. An empty directory yields an
// Engine that allows everything.
func Load(ctx context.Context, dir string) (*Engine, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir))
	}

	modules := make(map[string]string, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules[file] = string(data)
	}

	return New(ctx, modules)
}

// New prepares the request query over modules keyed by file name
func New(ctx context.Context, modules map[string]string) (*Engine, error) {
	if len(modules) == 0 {
		return &Engine{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(modules)+2)
	options = append(options, rego.Query(Query), rego.EnablePrintStatements(true))
	for name, src := range modules {
		options = append(options, rego.Module(name, src))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare policy query", goerr.V("query", Query))
	}

	return &Engine{query: &prepared}, nil
}

// Evaluate runs the policy against req. An undefined document allows the
// request unchanged.
func (e *Engine) Evaluate(ctx context.Context, req *Request) (*Decision, error) {
	decision := &Decision{Model: req.Model}
	if e == nil || e.query == nil {
		return decision, nil
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(req.input()), rego.EvalPrintHook(&printHook{ctx: ctx}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate request policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return decision, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("request policy must be an object",
			goerr.V("value", rs[0].Expressions[0].Value))
	}

	if raw, ok := data["deny"].([]any); ok {
		for _, v := range raw {
			msg, ok := v.(string)
			if !ok {
				return nil, goerr.New("deny entries must be strings", goerr.V("value", v))
			}
			decision.Deny = append(decision.Deny, msg)
		}
	}

	if m, ok := data["model"].(string); ok && m != "" {
		decision.Model = m
	}

	return decision, nil
}
