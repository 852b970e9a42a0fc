package repository

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
)

const defaultCollection = "convgen_history"

// Firestore stores each history entry as a document in one collection
type Firestore struct {
	client     *firestore.Client
	collection string
}

type FirestoreOption func(*Firestore)

// WithCollection overrides the collection name
func WithCollection(name string) FirestoreOption {
	return func(r *Firestore) {
		r.collection = name
	}
}

type firestoreEntry struct {
	Entry    model.HistoryEntry `firestore:"entry"`
	Position int                `firestore:"position"`
}

// NewFirestore creates a Firestore-backed store
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.New("project is required")
	}
	if databaseID == "" {
		return nil, goerr.New("database is required")
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	r := &Firestore{
		client:     client,
		collection: defaultCollection,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) Load(ctx context.Context) ([]*model.HistoryEntry, error) {
	iter := r.client.Collection(r.collection).OrderBy("position", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	entries := []*model.HistoryEntry{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate history documents")
		}

		var stored firestoreEntry
		if err := doc.DataTo(&stored); err != nil {
			return nil, goerr.Wrap(err, "failed to decode history document", goerr.V("doc", doc.Ref.ID))
		}
		entry := stored.Entry
		if err := entry.Validate(); err != nil {
			logging.From(ctx).Warn("skip invalid history document", "doc", doc.Ref.ID, "error", err)
			continue
		}
		entry.EnsureID()
		entries = append(entries, &entry)
	}

	model.SortHistory(entries)
	return entries, nil
}

func (r *Firestore) Save(ctx context.Context, entries []*model.HistoryEntry) error {
	keep := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keep[string(e.ID)] = struct{}{}
	}

	stale, err := r.documentRefs(ctx)
	if err != nil {
		return err
	}

	bw := r.client.BulkWriter(ctx)
	defer bw.End()
	var jobs []*firestore.BulkWriterJob

	for _, ref := range stale {
		if _, ok := keep[ref.ID]; ok {
			continue
		}
		job, err := bw.Delete(ref)
		if err != nil {
			return goerr.Wrap(err, "failed to enqueue delete", goerr.V("doc", ref.ID))
		}
		jobs = append(jobs, job)
	}

	coll := r.client.Collection(r.collection)
	for i, e := range entries {
		job, err := bw.Set(coll.Doc(string(e.ID)), firestoreEntry{Entry: *e, Position: i})
		if err != nil {
			return goerr.Wrap(err, "failed to enqueue set", goerr.V("id", e.ID))
		}
		jobs = append(jobs, job)
	}

	bw.Flush()
	return waitJobs(jobs)
}

func (r *Firestore) Clear(ctx context.Context) error {
	refs, err := r.documentRefs(ctx)
	if err != nil {
		return err
	}

	bw := r.client.BulkWriter(ctx)
	defer bw.End()
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Delete(ref)
		if err != nil {
			return goerr.Wrap(err, "failed to enqueue delete", goerr.V("doc", ref.ID))
		}
		jobs = append(jobs, job)
	}

	bw.Flush()
	return waitJobs(jobs)
}

func (r *Firestore) documentRefs(ctx context.Context) ([]*firestore.DocumentRef, error) {
	iter := r.client.Collection(r.collection).DocumentRefs(ctx)

	var refs []*firestore.DocumentRef
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list history documents")
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func waitJobs(jobs []*firestore.BulkWriterJob) error {
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "bulk write failed")
		}
	}
	return nil
}
