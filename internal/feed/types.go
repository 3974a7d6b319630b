package feed

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// SchemaVersion is bumped on breaking envelope layout changes. Readers
// reject envelopes carrying any other version and fall back.
const SchemaVersion = 1

const (
	SourceReddit  = "reddit"
	SourceBluesky = "bluesky"
	SourceRSS     = "rss"
)

// Item is one normalized unit of content from any provider.
type Item struct {
	Source          string    `json:"source"`
	ExternalID      string    `json:"external_id"`
	Author          string    `json:"author,omitempty"`
	Title           string    `json:"title,omitempty"`
	Body            string    `json:"body,omitempty"`
	URL             string    `json:"url"`
	PublishedAt     time.Time `json:"published_at"`
	EngagementScore int64     `json:"engagement_score,omitempty"`
}

// Key returns the global dedup key. Two items with the same key are the
// same item regardless of any other field.
func (i Item) Key() string {
	return i.Source + "/" + i.ExternalID
}

// SourceStatus records the per-provider outcome of one aggregation run.
type SourceStatus struct {
	Source    string `json:"source"`
	Enabled   bool   `json:"enabled"`
	Succeeded bool   `json:"succeeded"`
	ItemCount int    `json:"item_count"`
	Error     string `json:"error,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Envelope is the published snapshot: the full ordered item set plus the
// per-source status of the run that produced it.
type Envelope struct {
	SchemaVersion  int                     `json:"schema_version"`
	GeneratedAt    time.Time               `json:"generated_at"`
	Items          []Item                  `json:"items"`
	SourceStatuses map[string]SourceStatus `json:"source_statuses"`
}

// NewEnvelope returns a minimal valid empty envelope.
func NewEnvelope() *Envelope {
	return &Envelope{
		SchemaVersion:  SchemaVersion,
		GeneratedAt:    time.Now().UTC(),
		Items:          []Item{},
		SourceStatuses: map[string]SourceStatus{},
	}
}

// Less orders items newest first, then by engagement descending, then by
// (source, external_id) ascending so equal runs produce identical output.
func Less(a, b Item) bool {
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.After(b.PublishedAt)
	}
	if a.EngagementScore != b.EngagementScore {
		return a.EngagementScore > b.EngagementScore
	}
	return a.Key() < b.Key()
}

// SortItems sorts in place per the envelope ordering rule.
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return Less(items[i], items[j])
	})
}

// ErrSchemaVersion reports an envelope whose schema version this build
// does not understand.
type ErrSchemaVersion struct {
	Got int
}

func (e *ErrSchemaVersion) Error() string {
	return fmt.Sprintf("unsupported envelope schema version %d (want %d)", e.Got, SchemaVersion)
}

// Encode serializes the envelope as its canonical JSON document.
func Encode(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses and validates a serialized envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks the structural invariants a consumer relies on.
func (e *Envelope) Validate() error {
	if e.SchemaVersion != SchemaVersion {
		return &ErrSchemaVersion{Got: e.SchemaVersion}
	}
	if e.GeneratedAt.IsZero() {
		return fmt.Errorf("envelope missing generated_at")
	}
	if e.Items == nil {
		return fmt.Errorf("envelope items must not be null")
	}
	if e.SourceStatuses == nil {
		return fmt.Errorf("envelope source_statuses must not be null")
	}
	return nil
}
