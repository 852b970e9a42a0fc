package function

import (
	"context"
	"strings"

	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// UseCase generates conversion functions and runs them on the service
type UseCase struct {
	api adapter.API
}

func New(api adapter.API) *UseCase {
	return &UseCase{api: api}
}

// Generate asks the service for a conversion function matching prompt
func (u *UseCase) Generate(ctx context.Context, prompt string) (*adapter.FunctionResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, goerr.New("prompt is required")
	}

	fn, err := u.api.ProcessPrompt(ctx, prompt)
	if err != nil {
		logging.ExternalCallFailed(ctx, "process-prompt", err)
		return nil, goerr.Wrap(err, "failed to generate function")
	}
	return fn, nil
}

// Run executes a generated function on input and returns its output
func (u *UseCase) Run(ctx context.Context, fn *adapter.FunctionResult, input float64) (any, error) {
	if fn == nil || fn.Code == "" || fn.FunctionName == "" {
		return nil, goerr.New("function code and name are required")
	}

	result, err := u.api.Convert(ctx, adapter.ConvertInput{
		Code:         fn.Code,
		FunctionName: fn.FunctionName,
		Input:        input,
	})
	if err != nil {
		logging.ExternalCallFailed(ctx, "convert", err)
		return nil, goerr.Wrap(err, "failed to run function", goerr.V("function_name", fn.FunctionName))
	}
	return result.Output, nil
}

// GenerateAndRun generates a function for prompt and applies it to input
func (u *UseCase) GenerateAndRun(ctx context.Context, prompt string, input float64) (*adapter.FunctionResult, any, error) {
	fn, err := u.Generate(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}

	output, err := u.Run(ctx, fn, input)
	if err != nil {
		return fn, nil, err
	}
	return fn, output, nil
}
