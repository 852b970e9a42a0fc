package model

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrEntryNotFound = goerr.New("history entry not found")
	ErrInvalidEntry  = goerr.New("invalid history entry")
)

type EntryID string

// NewEntryID generates a new unique EntryID
func NewEntryID() EntryID {
	return EntryID(uuid.New().String())
}

// legacyEntryID derives a stable ID for records persisted before entries carried one
func legacyEntryID(pageLink string, timestamp int64) EntryID {
	name := "convgen:" + pageLink + "@" + strconv.FormatInt(timestamp, 10)
	return EntryID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String())
}

// HistoryEntry is one persisted record of a successful page generation.
type HistoryEntry struct {
	ID        EntryID `json:"id" firestore:"id"`
	Unit1     string  `json:"unit1,omitempty" firestore:"unit1,omitempty"`
	Unit2     string  `json:"unit2,omitempty" firestore:"unit2,omitempty"`
	Prompt    string  `json:"prompt,omitempty" firestore:"prompt,omitempty"`
	Model     string  `json:"model,omitempty" firestore:"model,omitempty"`
	PageLink  string  `json:"pageLink" firestore:"pageLink"`
	Timestamp int64   `json:"timestamp" firestore:"timestamp"`
}

// IsUnitPair reports whether the entry was created in unit-pair mode
func (e *HistoryEntry) IsUnitPair() bool {
	return e.Unit1 != "" && e.Unit2 != ""
}

// DisplayText returns the label shown for the entry in history listings
func (e *HistoryEntry) DisplayText() string {
	if e.IsUnitPair() {
		return "Convert: " + e.Unit1 + " to " + e.Unit2
	}
	return "Prompt: " + e.Prompt
}

// CreatedAt converts Timestamp to time.Time
func (e *HistoryEntry) CreatedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Validate checks that exactly one of the unit pair or the prompt is populated
func (e *HistoryEntry) Validate() error {
	if e.PageLink == "" {
		return goerr.Wrap(ErrInvalidEntry, "pageLink is empty", goerr.V("id", e.ID))
	}

	hasUnits := e.Unit1 != "" || e.Unit2 != ""
	switch {
	case hasUnits && !e.IsUnitPair():
		return goerr.Wrap(ErrInvalidEntry, "unit pair is incomplete",
			goerr.V("unit1", e.Unit1), goerr.V("unit2", e.Unit2))
	case hasUnits && e.Prompt != "":
		return goerr.Wrap(ErrInvalidEntry, "both unit pair and prompt are set", goerr.V("id", e.ID))
	case !hasUnits && e.Prompt == "":
		return goerr.Wrap(ErrInvalidEntry, "neither unit pair nor prompt is set", goerr.V("id", e.ID))
	}
	return nil
}

// EnsureID assigns a deterministic ID to entries that were stored without one
func (e *HistoryEntry) EnsureID() {
	if e.ID == "" {
		e.ID = legacyEntryID(e.PageLink, e.Timestamp)
	}
}

// SortHistory orders entries newest first. Entries sharing a timestamp keep
// their relative order.
func SortHistory(entries []*HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
}

// FindEntry returns the entry with the given ID
func FindEntry(entries []*HistoryEntry, id EntryID) (*HistoryEntry, error) {
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, goerr.Wrap(ErrEntryNotFound, "no entry with id", goerr.V("id", id))
}
