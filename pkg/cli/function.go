package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/usecase/function"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func functionCommand() *cli.Command {
	var (
		cfg    config
		prompt string
		input  float64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "prompt",
			Usage:       "Description of the conversion function",
			Destination: &prompt,
			Required:    true,
		},
		&cli.FloatFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Apply the generated function to this value",
			Destination: &input,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "function",
		Usage: "Generate a conversion function from a prompt",
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
			uc := function.New(api)

			stop := startSpinner(c.Root().ErrWriter, "Generating...")
			fn, err := uc.Generate(ctx, prompt)
			stop()
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "# %s\n%s\n", fn.FunctionName, fn.Code)
			if !c.IsSet("input") {
				return nil
			}

			output, err := uc.Run(ctx, fn, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "%s(%v) = %v\n", fn.FunctionName, input, output)
			return nil
		},
	}
}

func convertCommand() *cli.Command {
	var (
		cfg      config
		codeFile string
		name     string
		input    float64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "code-file",
			Usage:       "File holding the function source",
			Destination: &codeFile,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "function",
			Usage:       "Name of the function to call",
			Destination: &name,
			Required:    true,
		},
		&cli.FloatFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Value to convert",
			Destination: &input,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "convert",
		Usage: "Run a conversion function on the service",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.load(ctx, c)
			if err != nil {
				return err
			}

			code, err := os.ReadFile(codeFile)
			if err != nil {
				return goerr.Wrap(err, "failed to read code file", goerr.V("path", codeFile))
			}

			api, err := cfg.newAPI()
			if err != nil {
				return err
			}

			output, err := function.New(api).Run(ctx, &adapter.FunctionResult{
				Code:         string(code),
				FunctionName: name,
			}, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "%v\n", output)
			return nil
		},
	}
}
