package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// editText opens content in $VISUAL or $EDITOR and returns the result
func editText(ctx context.Context, content string) (string, error) {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	tmp, err := os.CreateTemp("", "convgen-*.html")
	if err != nil {
		return "", goerr.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", goerr.Wrap(err, "failed to write temp file", goerr.V("path", tmp.Name()))
	}
	if err := tmp.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to close temp file", goerr.V("path", tmp.Name()))
	}

	args := append(strings.Fields(editor), tmp.Name())
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", goerr.Wrap(err, "editor exited with error", goerr.V("editor", editor))
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return "", goerr.Wrap(err, "failed to read edited file", goerr.V("path", tmp.Name()))
	}
	return string(data), nil
}

// reportSave prints the save outcome and passes err through
func reportSave(w io.Writer, err error) error {
	if err != nil {
		fmt.Fprintf(w, "Failed to save file: %v\n", err)
		return err
	}
	fmt.Fprintf(w, "File saved successfully\n")
	return nil
}
