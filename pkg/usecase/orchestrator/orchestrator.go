package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/policy"
	"github.com/m-mizutani/convgen/pkg/repository"
	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrBusy           = goerr.New("a generation request is already in flight")
	ErrEmptyInput     = goerr.New("a unit pair or a prompt is required")
	ErrFieldDisabled  = goerr.New("field is disabled in the current input mode")
	ErrActiveDisabled = goerr.New("selecting an active entry requires prompt mode")
)

// Policy gates generation requests before they are sent
type Policy interface {
	Evaluate(ctx context.Context, req *policy.Request) (*policy.Decision, error)
}

// Orchestrator owns the generation form and the history list
type Orchestrator struct {
	api    adapter.API
	store  repository.HistoryStore
	policy Policy
	now    func() time.Time

	mu      sync.Mutex
	form    model.Form
	mode    model.InputMode
	loading bool
	history []*model.HistoryEntry
	active  *model.EntryID

	// text pushed up by an entry's editor, preferred over a live fetch
	pushed *pushedContent
}

type pushedContent struct {
	id      model.EntryID
	content string
}

// Option is a functional option for Orchestrator
type Option func(*Orchestrator)

// WithClock sets the time source used for entry timestamps
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithModel preselects the generation model
func WithModel(name string) Option {
	return func(o *Orchestrator) {
		o.form.Model = name
	}
}

// WithPolicy checks every submission against p
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithMode sets the initial input mode
func WithMode(mode model.InputMode) Option {
	return func(o *Orchestrator) {
		o.mode = mode
	}
}

// New loads the persisted history once and returns a ready Orchestrator
func New(ctx context.Context, api adapter.API, store repository.HistoryStore, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		api:   api,
		store: store,
		now:   time.Now,
		mode:  model.ModeUnits,
	}
	for _, opt := range opts {
		opt(o)
	}

	history, err := store.Load(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load history")
	}
	model.SortHistory(history)
	o.history = history

	return o, nil
}

// Mode returns the current input mode
func (o *Orchestrator) Mode() model.InputMode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// SetMode switches the enabled input group. Values of the disabled group
// are cleared, and leaving prompt mode drops the active entry.
func (o *Orchestrator) SetMode(mode model.InputMode) error {
	if _, err := model.ParseInputMode(string(mode)); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.mode = mode
	switch mode {
	case model.ModeUnits:
		o.form.Prompt = ""
		o.active = nil
		o.pushed = nil
	case model.ModePrompt:
		o.form.Unit1 = ""
		o.form.Unit2 = ""
	}
	return nil
}

// FieldEnabled reports whether field accepts input in the current mode
func (o *Orchestrator) FieldEnabled(field model.Field) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fieldEnabled(field)
}

func (o *Orchestrator) fieldEnabled(field model.Field) bool {
	switch field {
	case model.FieldUnit1, model.FieldUnit2:
		return o.mode == model.ModeUnits
	case model.FieldPrompt:
		return o.mode == model.ModePrompt
	default:
		return true
	}
}

// UpdateField writes one form field
func (o *Orchestrator) UpdateField(field model.Field, value string) error {
	if err := field.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.fieldEnabled(field) {
		return goerr.Wrap(ErrFieldDisabled, "cannot update field",
			goerr.V("field", field), goerr.V("mode", o.mode))
	}

	switch field {
	case model.FieldUnit1:
		o.form.Unit1 = value
	case model.FieldUnit2:
		o.form.Unit2 = value
	case model.FieldPrompt:
		o.form.Prompt = value
	case model.FieldModel:
		o.form.Model = value
	}
	return nil
}

// Form returns a snapshot of the form values
func (o *Orchestrator) Form() model.Form {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.form
}

// Loading reports whether a generation request is in flight
func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

// History returns a copy of the history list, newest first
func (o *Orchestrator) History() []*model.HistoryEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*model.HistoryEntry, len(o.history))
	for i, e := range o.history {
		c := *e
		out[i] = &c
	}
	return out
}

// Entry returns a copy of the entry with the given ID
func (o *Orchestrator) Entry(id model.EntryID) (*model.HistoryEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, err := model.FindEntry(o.history, id)
	if err != nil {
		return nil, err
	}
	c := *e
	return &c, nil
}

// Models lists the generation models offered by the service
func (o *Orchestrator) Models(ctx context.Context) ([]string, error) {
	models, err := o.api.GetModels(ctx)
	if err != nil {
		logging.ExternalCallFailed(ctx, "get_models", err)
		return nil, goerr.Wrap(err, "failed to get models")
	}
	return models, nil
}
