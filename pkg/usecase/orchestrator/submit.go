package orchestrator

import (
	"context"
	"strings"

	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/policy"
	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// submission is the state captured when a request starts
type submission struct {
	form   model.Form
	active *model.HistoryEntry
	pushed *pushedContent
}

// Submit sends the current form to the generation service. On success the
// new entry is prepended to history and persisted, the input fields are
// cleared and the active entry is dropped. On failure nothing changes.
func (o *Orchestrator) Submit(ctx context.Context) (*model.HistoryEntry, error) {
	sub, err := o.begin()
	if err != nil {
		return nil, err
	}
	defer o.finish()

	if err := o.checkPolicy(ctx, sub); err != nil {
		return nil, err
	}

	var pageLink string
	if sub.form.HasUnitPair() {
		pageLink, err = o.createUnitPage(ctx, sub.form)
	} else {
		pageLink, err = o.createPromptPage(ctx, sub)
	}
	if err != nil {
		return nil, err
	}

	entry := &model.HistoryEntry{
		ID:        model.NewEntryID(),
		Model:     sub.form.Model,
		PageLink:  pageLink,
		Timestamp: o.now().UnixMilli(),
	}
	if sub.form.HasUnitPair() {
		entry.Unit1 = sub.form.Unit1
		entry.Unit2 = sub.form.Unit2
	} else {
		entry.Prompt = sub.form.Prompt
	}
	if err := entry.Validate(); err != nil {
		logging.From(ctx).Error("generated entry rejected", "error", err)
		return nil, goerr.Wrap(err, "service returned an unusable page")
	}

	o.mu.Lock()
	o.history = append([]*model.HistoryEntry{entry}, o.history...)
	o.persist(ctx)
	o.form.Unit1 = ""
	o.form.Unit2 = ""
	o.form.Prompt = ""
	o.active = nil
	o.pushed = nil
	o.mu.Unlock()

	logging.From(ctx).Info("page generated", "id", entry.ID, "page_link", entry.PageLink)

	c := *entry
	return &c, nil
}

func (o *Orchestrator) begin() (*submission, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.loading {
		return nil, ErrBusy
	}
	if !o.form.HasUnitPair() && !o.form.HasPrompt() {
		return nil, ErrEmptyInput
	}

	sub := &submission{form: o.form}
	if o.active != nil && o.mode == model.ModePrompt {
		active, err := model.FindEntry(o.history, *o.active)
		if err != nil {
			return nil, err
		}
		c := *active
		sub.active = &c
		if o.pushed != nil && o.pushed.id == active.ID {
			p := *o.pushed
			sub.pushed = &p
		}
	}

	o.loading = true
	return sub, nil
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.loading = false
	o.mu.Unlock()
}

// checkPolicy rejects denied submissions and applies the model the policy picks
func (o *Orchestrator) checkPolicy(ctx context.Context, sub *submission) error {
	if o.policy == nil {
		return nil
	}

	req := &policy.Request{
		Mode:   string(model.ModePrompt),
		Prompt: sub.form.Prompt,
		Model:  sub.form.Model,
		Active: sub.active != nil,
	}
	if sub.form.HasUnitPair() {
		req = &policy.Request{
			Mode:  string(model.ModeUnits),
			Unit1: sub.form.Unit1,
			Unit2: sub.form.Unit2,
			Model: sub.form.Model,
		}
	}

	decision, err := o.policy.Evaluate(ctx, req)
	if err != nil {
		return goerr.Wrap(err, "failed to evaluate request policy")
	}
	if !decision.Allowed() {
		logging.From(ctx).Warn("request denied by policy", "reasons", decision.Deny)
		return goerr.Wrap(policy.ErrDenied, strings.Join(decision.Deny, "; "))
	}

	sub.form.Model = decision.Model
	return nil
}

func (o *Orchestrator) createUnitPage(ctx context.Context, form model.Form) (string, error) {
	resp, err := o.api.CreateUnitConversionPage(ctx, adapter.CreateUnitConversionPageInput{
		Unit1: form.Unit1,
		Unit2: form.Unit2,
		Model: form.Model,
	})
	if err != nil {
		logging.ExternalCallFailed(ctx, "create_unit_conversion_page", err)
		return "", goerr.Wrap(err, "failed to create unit conversion page",
			goerr.V("unit1", form.Unit1), goerr.V("unit2", form.Unit2))
	}
	return resp.FileName, nil
}

func (o *Orchestrator) createPromptPage(ctx context.Context, sub *submission) (string, error) {
	prompt, err := o.combinedPrompt(ctx, sub)
	if err != nil {
		return "", err
	}

	resp, err := o.api.CreateConvertPage(ctx, adapter.CreateConvertPageInput{
		Prompt: prompt,
		Model:  sub.form.Model,
	})
	if err != nil {
		logging.ExternalCallFailed(ctx, "create_convert_page", err)
		return "", goerr.Wrap(err, "failed to create convert page")
	}
	return resp.FileName, nil
}

// combinedPrompt appends the active entry's source to the prompt. Text pushed
// by that entry's editor wins; otherwise the source is fetched live.
func (o *Orchestrator) combinedPrompt(ctx context.Context, sub *submission) (string, error) {
	if sub.active == nil {
		return sub.form.Prompt, nil
	}

	var content string
	if sub.pushed != nil {
		content = sub.pushed.content
	} else {
		fetched, err := o.api.GetFileContent(ctx, sub.active.PageLink)
		if err != nil {
			logging.ExternalCallFailed(ctx, "get_file_content", err)
			return "", goerr.Wrap(err, "failed to fetch active entry content",
				goerr.V("page_link", sub.active.PageLink))
		}
		content = fetched
	}

	if strings.TrimSpace(content) == "" {
		return sub.form.Prompt, nil
	}
	return sub.form.Prompt + "\n\n" + content, nil
}

// persist mirrors the history list to the store. Must hold o.mu.
func (o *Orchestrator) persist(ctx context.Context) {
	if err := o.store.Save(ctx, o.history); err != nil {
		logging.From(ctx).Error("failed to persist history", "error", err)
	}
}
