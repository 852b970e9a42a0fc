package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

// Version is reported to MCP clients
var Version = "dev"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	if err := newApp().Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "convgen",
		Usage:   "Generate unit conversion pages and keep their history",
		Version: Version,
		Commands: []*cli.Command{
			generateCommand(),
			historyCommand(),
			showCommand(),
			editCommand(),
			clearCommand(),
			modelsCommand(),
			functionCommand(),
			convertCommand(),
			shellCommand(),
			mcpCommand(),
		},
	}
}
