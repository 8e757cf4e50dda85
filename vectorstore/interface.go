package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("vectorstore: document not found")
	ErrMalformedDocument = errors.New("vectorstore: malformed document")
)

// Store indexes cache documents by embedding and expires them after a TTL.
// Implementations must be safe for concurrent use.
type Store interface {
	// UpsertWithTTL stores doc and schedules its expiry.
	UpsertWithTTL(ctx context.Context, doc Document, ttl time.Duration) error
	// Search returns up to k matches ordered by descending score.
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	// Get returns ErrNotFound for unknown or expired ids.
	Get(ctx context.Context, id string) (*Document, error)
	Delete(ctx context.Context, id string) error
	// Query lists ids of live documents matching filter.
	Query(ctx context.Context, filter Filter) ([]string, error)
}

// Document is the stored form of a cache entry.
type Document struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	Signature  string    `json:"signature"`
	Response   string    `json:"response"`
	Embedding  []float32 `json:"embedding"`
	CreatedAt  int64     `json:"created_at"`
	TTLMinutes int       `json:"ttl_minutes"`
}

// Validate rejects documents that cannot be served as a cache entry.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty id", ErrMalformedDocument)
	}
	if len(d.Embedding) == 0 {
		return fmt.Errorf("%w: document %s has no embedding", ErrMalformedDocument, d.ID)
	}
	return nil
}

// Match is a single nearest-neighbour hit.
type Match struct {
	ID    string
	Score float32
}

// Filter narrows Query. An empty Signature matches every document.
type Filter struct {
	Signature string
}

func (f Filter) Matches(doc *Document) bool {
	return f.Signature == "" || doc.Signature == f.Signature
}
