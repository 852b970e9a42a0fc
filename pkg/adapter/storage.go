package adapter

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// ErrObjectNotFound means no history object has been written under the key yet
var ErrObjectNotFound = goerr.New("object not found")

// Storage keeps serialized history lists as bucket objects
type Storage interface {
	// Put streams a history list; the object appears once the writer is closed
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get streams back a previously written history list
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete drops a history list. A key that was never written is fine.
	Delete(ctx context.Context, key string) error
}

// gcsHistoryBucket backs Storage with one Cloud Storage bucket
type gcsHistoryBucket struct {
	bucketName string
	client     *storage.Client
}

// NewStorage connects to bucketName with application default credentials
func NewStorage(ctx context.Context, bucketName string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &gcsHistoryBucket{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *gcsHistoryBucket) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	return writer, nil
}

func (s *gcsHistoryBucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(ErrObjectNotFound, "no object in bucket",
				goerr.V("bucket", s.bucketName), goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.V("key", key))
	}

	return reader, nil
}

func (s *gcsHistoryBucket) Delete(ctx context.Context, key string) error {
	obj := s.client.Bucket(s.bucketName).Object(key)
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return goerr.Wrap(err, "failed to delete from storage", goerr.V("key", key))
	}
	return nil
}
