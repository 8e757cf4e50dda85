package cache

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=mocks/service.go -package=mocks rag_gateway/cache Service

// Service is the semantic cache engine. Engine is the in-process
// implementation; cache/grpc.Client talks to a remote one.
type Service interface {
	// Lookup returns (nil, nil) on a miss.
	Lookup(ctx context.Context, prompt, signature string, opts LookupOptions) (*Entry, error)
	// Put stores a fresh entry and returns its id.
	Put(ctx context.Context, prompt, signature, response string, ttlMinutes int) (string, error)
	// Clear deletes entries with the given signature, or all entries if it is empty.
	Clear(ctx context.Context, signature string) (int, error)
}

// Entry is a cached answer. Entries are never updated; a newer answer for the
// same prompt is a new entry.
type Entry struct {
	ID         string
	Prompt     string
	Signature  string
	Response   string
	Embedding  []float32
	CreatedAt  int64
	TTLMinutes int
}

type LookupOptions struct {
	SimilarityThreshold float64
	CandidateCount      int
}

const (
	DefaultSimilarityThreshold = 0.85
	DefaultCandidateCount      = 3
	DefaultTTLMinutes          = 1440
	DefaultWriteTimeout        = 10 * time.Second
)

type Options struct {
	SimilarityThreshold float64
	CandidateCount      int
	TTLMinutes          int
	// WriteTimeout bounds the write-back after a miss, which runs detached
	// from the request's cancellation.
	WriteTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: DefaultSimilarityThreshold,
		CandidateCount:      DefaultCandidateCount,
		TTLMinutes:          DefaultTTLMinutes,
		WriteTimeout:        DefaultWriteTimeout,
	}
}

// withDefaults fills unset counts and durations. The threshold is taken as is.
func (o Options) withDefaults() Options {
	if o.CandidateCount <= 0 {
		o.CandidateCount = DefaultCandidateCount
	}
	if o.TTLMinutes <= 0 {
		o.TTLMinutes = DefaultTTLMinutes
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

func (o Options) lookup() LookupOptions {
	return LookupOptions{SimilarityThreshold: o.SimilarityThreshold, CandidateCount: o.CandidateCount}
}

type Source string

const (
	SourceHit  Source = "hit"
	SourceMiss Source = "miss"
)

// UncachedID is returned as Result.ID when the fresh answer could not be stored.
const UncachedID = "uncached"

type Result struct {
	Source   Source
	ID       string
	Response string
	// Degraded is set when the lookup or the write-back failed.
	Degraded bool
}

// Generator produces a fresh answer on a miss.
type Generator func(ctx context.Context) (string, error)

var (
	ErrEmbedding  = errors.New("cache: embedding failed")
	ErrStore      = errors.New("cache: store failed")
	ErrCacheWrite = errors.New("cache: write failed")
)
