package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/usecase/historyitem"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	var (
		cfg    config
		limit  int64
		asJSON bool
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of entries to list (0 for all)",
			Destination: &limit,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print entries as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:    "history",
		Aliases: []string{"list", "ls"},
		Usage:   "List generated pages, newest first",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.load(ctx, c)
			if err != nil {
				return err
			}

			store, closer, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer closer()

			history, err := store.Load(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to load history")
			}
			model.SortHistory(history)
			if limit > 0 && int64(len(history)) > limit {
				history = history[:limit]
			}

			if asJSON {
				data, err := json.MarshalIndent(history, "", "  ")
				if err != nil {
					return goerr.Wrap(err, "failed to marshal history")
				}
				fmt.Fprintf(c.Root().Writer, "%s\n", string(data))
				return nil
			}

			if len(history) == 0 {
				fmt.Fprintf(c.Root().Writer, "No history\n")
				return nil
			}
			for i, e := range history {
				item := historyitem.New(e, nil, nil)
				fmt.Fprintf(c.Root().Writer, "%d\t%s\t%s\t%s\t%s\n",
					i+1, e.ID, e.CreatedAt().Format("2006-01-02 15:04:05"), item.DisplayText(), item.Link(cfg.pageBaseURL))
			}
			return nil
		},
	}
}

func clearCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "clear",
		Usage: "Clear the history locally and on the service",
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

			if err := orch.ClearHistory(ctx); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "History cleared\n")
			return nil
		},
	}
}

func modelsCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "models",
		Usage: "List generation models offered by the service",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.load(ctx, c)
			if err != nil {
				return err
			}

			api, err := cfg.newAPI()
			if err != nil {
				return err
			}

			models, err := api.GetModels(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to get models")
			}
			for _, m := range models {
				fmt.Fprintf(c.Root().Writer, "%s\n", m)
			}
			return nil
		},
	}
}
