package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/usecase/historyitem"
	"github.com/m-mizutani/convgen/pkg/usecase/orchestrator"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const shellHelp = `Commands:
  mode [units|prompt]     show or switch the input mode
  set <field> <value>     set unit1, unit2, prompt or model
  form                    show the current form
  submit                  generate a page from the form
  list                    list history, newest first
  active <ref>            toggle the entry appended to the next prompt
  open <ref>              open the entry's editor and print its source
  edit <ref>              edit the open buffer in $EDITOR
  save <ref>              save the open buffer to the service
  close <ref>             close the entry's editor
  models                  list generation models
  clear                   clear the history
  quit                    leave the shell
<ref> is a list position or an entry ID prefix.
`

func shellCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive session with form, history and editors",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.load(ctx, c)
			if err != nil {
				return err
			}

			api, err := cfg.newAPI()
			if err != nil {
				return err
			}
			orch, closer, err := cfg.newOrchestrator(ctx, api, model.ModeUnits)
			if err != nil {
				return err
			}
			defer closer()

			sh := newShell(orch, api, c.Root().Writer, cfg.pageBaseURL)
			sh.errOut = c.Root().ErrWriter

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          sh.prompt(),
				AutoComplete:    shellCompleter(),
				InterruptPrompt: "^C",
				EOFPrompt:       "quit",
				Stdout:          c.Root().Writer,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to start readline")
			}
			defer rl.Close()

			fmt.Fprintf(c.Root().Writer, "convgen shell. Type 'help' for commands.\n")
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				quit, err := sh.exec(ctx, line)
				if err != nil {
					fmt.Fprintf(c.Root().Writer, "Error: %v\n", err)
				}
				if quit {
					break
				}
				rl.SetPrompt(sh.prompt())
			}
			return nil
		},
	}
}

func shellCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("mode",
			readline.PcItem(string(model.ModeUnits)),
			readline.PcItem(string(model.ModePrompt)),
		),
		readline.PcItem("set",
			readline.PcItem(string(model.FieldUnit1)),
			readline.PcItem(string(model.FieldUnit2)),
			readline.PcItem(string(model.FieldPrompt)),
			readline.PcItem(string(model.FieldModel)),
		),
		readline.PcItem("form"),
		readline.PcItem("submit"),
		readline.PcItem("list"),
		readline.PcItem("active"),
		readline.PcItem("open"),
		readline.PcItem("edit"),
		readline.PcItem("save"),
		readline.PcItem("close"),
		readline.PcItem("models"),
		readline.PcItem("clear"),
		readline.PcItem("quit"),
	)
}

// shell drives one Orchestrator and its history items from text commands
type shell struct {
	orch     *orchestrator.Orchestrator
	api      adapter.API
	out      io.Writer
	errOut   io.Writer
	pageBase string

	items  map[model.EntryID]*historyitem.Item
	editFn func(ctx context.Context, content string) (string, error)
}

func newShell(orch *orchestrator.Orchestrator, api adapter.API, out io.Writer, pageBase string) *shell {
	return &shell{
		orch:     orch,
		api:      api,
		out:      out,
		errOut:   io.Discard,
		pageBase: pageBase,
		items:    map[model.EntryID]*historyitem.Item{},
		editFn:   editText,
	}
}

func (s *shell) prompt() string {
	return fmt.Sprintf("convgen[%s]> ", s.orch.Mode())
}

// exec runs one command line. quit is true when the session should end.
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprint(s.out, shellHelp)
		return false, nil
	case "mode":
		return false, s.mode(rest)
	case "set":
		return false, s.set(rest)
	case "form":
		s.printForm()
		return false, nil
	case "submit":
		return false, s.submit(ctx)
	case "list":
		s.list()
		return false, nil
	case "models":
		return false, s.models(ctx)
	case "clear":
		return false, s.clear(ctx)
	case "active", "open", "edit", "save", "close":
		item, err := s.item(rest)
		if err != nil {
			return false, err
		}
		return false, s.itemCommand(ctx, cmd, item)
	default:
		return false, goerr.New("unknown command, type 'help'", goerr.V("command", cmd))
	}
}

func (s *shell) mode(arg string) error {
	if arg == "" {
		fmt.Fprintf(s.out, "%s\n", s.orch.Mode())
		return nil
	}
	mode, err := model.ParseInputMode(arg)
	if err != nil {
		return err
	}
	return s.orch.SetMode(mode)
}

func (s *shell) set(arg string) error {
	name, value, _ := strings.Cut(arg, " ")
	return s.orch.UpdateField(model.Field(name), strings.TrimSpace(value))
}

func (s *shell) printForm() {
	form := s.orch.Form()
	fmt.Fprintf(s.out, "mode:   %s\n", s.orch.Mode())
	fmt.Fprintf(s.out, "unit1:  %s\n", form.Unit1)
	fmt.Fprintf(s.out, "unit2:  %s\n", form.Unit2)
	fmt.Fprintf(s.out, "prompt: %s\n", form.Prompt)
	fmt.Fprintf(s.out, "model:  %s\n", form.Model)
	if id, ok := s.orch.Active(); ok {
		fmt.Fprintf(s.out, "active: %s\n", id)
	}
}

func (s *shell) submit(ctx context.Context) error {
	stop := startSpinner(s.errOut, "Generating...")
	entry, err := s.orch.Submit(ctx)
	stop()
	if err != nil {
		return err
	}

	item := s.itemFor(entry)
	fmt.Fprintf(s.out, "%s\t%s\n", item.DisplayText(), item.Link(s.pageBase))
	return nil
}

func (s *shell) list() {
	history := s.orch.History()
	if len(history) == 0 {
		fmt.Fprintf(s.out, "No history\n")
		return
	}

	for i, e := range history {
		item := s.itemFor(e)
		marks := ""
		if item.IsActive() {
			marks += " *active"
		}
		if _, open := item.State().(model.EditorOpen); open {
			marks += " [editing]"
		}
		fmt.Fprintf(s.out, "%d\t%s\t%s\t%s%s\n", i+1, shortID(e.ID), item.DisplayText(), item.Link(s.pageBase), marks)
	}
}

func (s *shell) models(ctx context.Context) error {
	models, err := s.orch.Models(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Fprintf(s.out, "%s\n", m)
	}
	return nil
}

func (s *shell) clear(ctx context.Context) error {
	if err := s.orch.ClearHistory(ctx); err != nil {
		return err
	}
	s.items = map[model.EntryID]*historyitem.Item{}
	fmt.Fprintf(s.out, "History cleared\n")
	return nil
}

func (s *shell) itemCommand(ctx context.Context, cmd string, item *historyitem.Item) error {
	switch cmd {
	case "active":
		active, err := item.ToggleActive()
		if err != nil {
			return err
		}
		if active {
			fmt.Fprintf(s.out, "Active: %s\n", item.DisplayText())
		} else {
			fmt.Fprintf(s.out, "Inactive: %s\n", item.DisplayText())
		}
		return nil

	case "open":
		content, err := item.OpenEditor(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s\n", content)
		return nil

	case "edit":
		state, ok := item.State().(model.EditorOpen)
		if !ok {
			return historyitem.ErrEditorClosed
		}
		edited, err := s.editFn(ctx, state.Content)
		if err != nil {
			return err
		}
		return item.Edit(edited)

	case "save":
		return reportSave(s.out, item.Save(ctx))

	case "close":
		item.CloseEditor()
		return nil
	}
	return nil
}

func (s *shell) item(ref string) (*historyitem.Item, error) {
	entry, err := resolveEntry(s.orch.History(), ref)
	if err != nil {
		return nil, err
	}
	return s.itemFor(entry), nil
}

func (s *shell) itemFor(entry *model.HistoryEntry) *historyitem.Item {
	if item, ok := s.items[entry.ID]; ok {
		return item
	}
	item := historyitem.New(entry, s.api, s.orch)
	s.items[entry.ID] = item
	return item
}

func shortID(id model.EntryID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}
