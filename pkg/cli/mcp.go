package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/service/mcp"
	"github.com/m-mizutani/convgen/pkg/usecase/function"
	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "http",
			Usage:       "Serve streamable HTTP on this address instead of stdio",
			Sources:     cli.EnvVars("CONVGEN_MCP_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve page generation and history as MCP tools",
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

			server := mcp.NewServer(orch, function.New(api), Version)
			if addr == "" {
				return server.RunStdio(ctx)
			}

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			logging.From(ctx).Info("serving MCP over HTTP", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return goerr.Wrap(err, "MCP HTTP server failed", goerr.V("addr", addr))
			}
			return nil
		},
	}
}
