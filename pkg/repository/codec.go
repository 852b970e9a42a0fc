package repository

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/convgen/pkg/model"
	"github.com/m-mizutani/convgen/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

var entrySchema = mustResolveEntrySchema()

func mustResolveEntrySchema() *jsonschema.Resolved {
	str := func() *jsonschema.Schema { return &jsonschema.Schema{Type: "string"} }

	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"id":        str(),
			"unit1":     str(),
			"unit2":     str(),
			"prompt":    str(),
			"model":     str(),
			"pageLink":  str(),
			"timestamp": {Type: "integer"},
		},
		Required: []string{"pageLink", "timestamp"},
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic("history entry schema does not resolve: " + err.Error())
	}
	return resolved
}

// encodeHistory serializes entries in list order
func encodeHistory(entries []*model.HistoryEntry) ([]byte, error) {
	if entries == nil {
		entries = []*model.HistoryEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal history")
	}
	return append(data, '\n'), nil
}

// decodeHistory parses a serialized list. Records that fail validation are
// dropped with a warning so one corrupt record does not hide the rest.
func decodeHistory(ctx context.Context, data []byte) ([]*model.HistoryEntry, error) {
	if len(data) == 0 {
		return []*model.HistoryEntry{}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, goerr.Wrap(err, "history is not a JSON array")
	}

	entries := make([]*model.HistoryEntry, 0, len(raws))
	for i, raw := range raws {
		entry, err := decodeEntry(raw)
		if err != nil {
			logging.From(ctx).Warn("skip invalid history record", "index", i, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	model.SortHistory(entries)
	return entries, nil
}

func decodeEntry(raw json.RawMessage) (*model.HistoryEntry, error) {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, goerr.Wrap(err, "failed to parse record")
	}
	if err := entrySchema.Validate(instance); err != nil {
		return nil, goerr.Wrap(err, "record does not match schema")
	}

	var entry model.HistoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, goerr.Wrap(err, "failed to decode record")
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	entry.EnsureID()

	return &entry, nil
}
