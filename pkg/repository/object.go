package repository

import (
	"context"
	"errors"
	"io"

	"github.com/m-mizutani/convgen/pkg/adapter"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Object stores the serialized history list as one object in a bucket
type Object struct {
	storage adapter.Storage
	key     string
}

// NewObject creates a store writing to <prefix>history.json in storage
func NewObject(storage adapter.Storage, prefix string) *Object {
	return &Object{
		storage: storage,
		key:     prefix + HistoryKey + ".json",
	}
}

func (o *Object) Load(ctx context.Context) ([]*model.HistoryEntry, error) {
	reader, err := o.storage.Get(ctx, o.key)
	if err != nil {
		if errors.Is(err, adapter.ErrObjectNotFound) {
			return []*model.HistoryEntry{}, nil
		}
		return nil, goerr.Wrap(err, "failed to open history object", goerr.V("key", o.key))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read history object", goerr.V("key", o.key))
	}

	return decodeHistory(ctx, data)
}

func (o *Object) Save(ctx context.Context, entries []*model.HistoryEntry) error {
	data, err := encodeHistory(entries)
	if err != nil {
		return err
	}

	writer, err := o.storage.Put(ctx, o.key)
	if err != nil {
		return goerr.Wrap(err, "failed to create storage writer", goerr.V("key", o.key))
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return goerr.Wrap(err, "failed to write history object", goerr.V("key", o.key))
	}
	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer", goerr.V("key", o.key))
	}
	return nil
}

func (o *Object) Clear(ctx context.Context) error {
	return o.storage.Delete(ctx, o.key)
}
