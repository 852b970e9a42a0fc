package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/usecase/historyitem"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var (
		cfg config
		ref string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "History entry to show (index or ID)",
			Destination: &ref,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Print the source of a generated page",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.load(ctx, c)
			if err != nil {
				return err
			}

			item, closer, err := cfg.openItem(ctx, ref)
			if err != nil {
				return err
			}
			defer closer()

			content, err := item.OpenEditor(ctx)
			item.CloseEditor()
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "%s", content)
			return nil
		},
	}
}

func editCommand() *cli.Command {
	var (
		cfg  config
		ref  string
		file string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "History entry to edit (index or ID)",
			Destination: &ref,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Usage:       "Replace the source with this file instead of opening $EDITOR",
			Destination: &file,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "edit",
		Usage: "Edit and save the source of a generated page",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.load(ctx, c)
			if err != nil {
				return err
			}

			item, closer, err := cfg.openItem(ctx, ref)
			if err != nil {
				return err
			}
			defer closer()

			content, err := item.OpenEditor(ctx)
			if err != nil {
				fmt.Fprintf(c.Root().ErrWriter, "Failed to load file content: %v\n", err)
			}
			defer item.CloseEditor()

			var edited string
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return goerr.Wrap(err, "failed to read file", goerr.V("path", file))
				}
				edited = string(data)
			} else {
				edited, err = editText(ctx, content)
				if err != nil {
					return err
				}
			}

			if err := item.Edit(edited); err != nil {
				return err
			}
			return reportSave(c.Root().Writer, item.Save(ctx))
		},
	}
}

// openItem loads the history and wraps the referenced entry in an Item
func (cfg *config) openItem(ctx context.Context, ref string) (*historyitem.Item, closeFunc, error) {
	api, err := cfg.newAPI()
	if err != nil {
		return nil, nil, err
	}
	orch, closer, err := cfg.newOrchestrator(ctx, api, model.ModeUnits)
	if err != nil {
		return nil, nil, err
	}

	entry, err := resolveEntry(orch.History(), ref)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return historyitem.New(entry, api, orch), closer, nil
}
