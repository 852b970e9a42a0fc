package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/usecase/historyitem"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func generateCommand() *cli.Command {
	var (
		cfg    config
		unit1  string
		unit2  string
		prompt string
		active string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "unit1",
			Aliases:     []string{"from"},
			Usage:       "Source unit",
			Destination: &unit1,
		},
		&cli.StringFlag{
			Name:        "unit2",
			Aliases:     []string{"to"},
			Usage:       "Target unit",
			Destination: &unit2,
		},
		&cli.StringFlag{
			Name:        "prompt",
			Usage:       "Free text description of the page (exclusive with --unit1/--unit2)",
			Destination: &prompt,
		},
		&cli.StringFlag{
			Name:        "active",
			Usage:       "History entry (index or ID) whose source is appended to the prompt",
			Destination: &active,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:    "generate",
		Aliases: []string{"gen"},
		Usage:   "Generate a conversion page from a unit pair or a prompt",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.load(ctx, c)
			if err != nil {
				return err
			}

			mode := model.ModeUnits
			switch {
			case prompt != "" && (unit1 != "" || unit2 != ""):
				return goerr.New("--prompt cannot be combined with --unit1/--unit2")
			case prompt != "":
				mode = model.ModePrompt
			case active != "":
				return goerr.New("--active requires --prompt")
			}

			api, err := cfg.newAPI()
			if err != nil {
				return err
			}
			orch, closer, err := cfg.newOrchestrator(ctx, api, mode)
			if err != nil {
				return err
			}
			defer closer()

			if mode == model.ModePrompt {
				if err := orch.UpdateField(model.FieldPrompt, prompt); err != nil {
					return err
				}
			} else {
				if err := orch.UpdateField(model.FieldUnit1, unit1); err != nil {
					return err
				}
				if err := orch.UpdateField(model.FieldUnit2, unit2); err != nil {
					return err
				}
			}

			if active != "" {
				entry, err := resolveEntry(orch.History(), active)
				if err != nil {
					return err
				}
				if _, err := orch.SetActiveEntry(entry.ID); err != nil {
					return err
				}
			}

			stop := startSpinner(c.Root().ErrWriter, "Generating...")
			entry, err := orch.Submit(ctx)
			stop()
			if err != nil {
				return goerr.Wrap(err, "failed to generate page")
			}

			item := historyitem.New(entry, api, orch)
			fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\n", entry.ID, item.DisplayText(), item.Link(cfg.pageBaseURL))
			return nil
		},
	}
}

// startSpinner shows a loading indicator on w while a request is in flight
func startSpinner(w io.Writer, suffix string) func() {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}
