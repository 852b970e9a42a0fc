package repository

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// File stores the serialized history list in a single JSON file
type File struct {
	path string
}

// NewFile creates a file-backed store. The file is created on first Save.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, goerr.New("history file path is required")
	}
	return &File{path: path}, nil
}

// DefaultFilePath returns ~/.convgen/history.json
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, ".convgen", HistoryKey+".json"), nil
}

func (f *File) Load(ctx context.Context) ([]*model.HistoryEntry, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*model.HistoryEntry{}, nil
		}
		return nil, goerr.Wrap(err, "failed to read history file", goerr.V("path", f.path))
	}

	entries, err := decodeHistory(ctx, data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode history file", goerr.V("path", f.path))
	}
	return entries, nil
}

func (f *File) Save(ctx context.Context, entries []*model.HistoryEntry) error {
	data, err := encodeHistory(entries)
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, data, 0o600)
}

func (f *File) Clear(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerr.Wrap(err, "failed to remove history file", goerr.V("path", f.path))
	}
	return nil
}

// writeFileAtomic writes to a sibling temp file and renames it over path
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create history directory", goerr.V("path", path))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp file", goerr.V("path", path))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write temp file", goerr.V("path", tmpName))
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to set temp file mode", goerr.V("path", tmpName))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close temp file", goerr.V("path", tmpName))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return goerr.Wrap(err, "failed to replace history file", goerr.V("path", path))
	}
	return nil
}
