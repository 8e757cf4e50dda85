// Package app builds the gateway's components from configuration. Each
// component is created on first use and shared afterwards, so a process only
// dials the backends it actually needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rag_gateway/cache"
	cachegrpc "rag_gateway/cache/grpc"
	"rag_gateway/completion"
	completiongrpc "rag_gateway/completion/grpc"
	completionopenai "rag_gateway/completion/openai"
	"rag_gateway/config"
	"rag_gateway/conversation"
	"rag_gateway/docstore"
	"rag_gateway/docstore/bolt"
	redisdocs "rag_gateway/docstore/redis"
	"rag_gateway/embedding"
	embeddinggrpc "rag_gateway/embedding/grpc"
	embeddingopenai "rag_gateway/embedding/openai"
	"rag_gateway/embedding/resilient"
	"rag_gateway/knowledge"
	knowledgeqdrant "rag_gateway/knowledge/qdrant"
	"rag_gateway/vectorstore"
	"rag_gateway/vectorstore/memory"
	vectorqdrant "rag_gateway/vectorstore/qdrant"
)

// Resources owns every backend connection it opens. It is safe for
// concurrent use; Close releases connections in reverse order of creation.
type Resources struct {
	cfg    *config.Config
	logger *zap.Logger

	mu            sync.Mutex
	closers       []func() error
	redis         *redis.Client
	qdrant        *qdrant.Client
	bolt          *bolt.Store
	docs          docstore.Store
	vectors       vectorstore.Store
	qdrantStore   *vectorqdrant.Store
	embedder      embedding.Service
	cacheService  cache.Service
	completion    completion.Service
	conversations *conversation.Store
	passages      knowledge.Store
}

func New(cfg *config.Config, logger *zap.Logger) *Resources {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resources{cfg: cfg, logger: logger}
}

func (r *Resources) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// Redis returns the shared client after checking the server answers.
func (r *Resources) Redis(ctx context.Context) (*redis.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redisLocked(ctx)
}

func (r *Resources) redisLocked(ctx context.Context) (*redis.Client, error) {
	if r.redis != nil {
		return r.redis, nil
	}
	c := r.cfg.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("fail to connect to redis at %s: %w", c.Addr, err)
	}
	r.logger.Info("connected to redis", zap.String("addr", c.Addr))
	r.redis = client
	r.onClose(client.Close)
	return client, nil
}

func (r *Resources) qdrantLocked() (*qdrant.Client, error) {
	if r.qdrant != nil {
		return r.qdrant, nil
	}
	c := r.cfg.Qdrant
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to create qdrant client: %w", err)
	}
	r.qdrant = client
	r.onClose(client.Close)
	return client, nil
}

// DocStore returns the document store selected by cache.doc_store.
func (r *Resources) DocStore(ctx context.Context) (docstore.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docStoreLocked(ctx)
}

func (r *Resources) docStoreLocked(ctx context.Context) (docstore.Store, error) {
	if r.docs != nil {
		return r.docs, nil
	}
	switch r.cfg.Cache.DocStore {
	case "bolt":
		store, err := bolt.Open(r.cfg.Bolt.Path, bolt.Options{Bucket: r.cfg.Bolt.Bucket})
		if err != nil {
			return nil, err
		}
		r.bolt = store
		r.docs = store
		r.onClose(store.Close)
	default:
		client, err := r.redisLocked(ctx)
		if err != nil {
			return nil, err
		}
		r.docs = redisdocs.New(client, r.cfg.Redis.KeyPrefix)
	}
	return r.docs, nil
}

// VectorStore returns the store selected by cache.backend.
func (r *Resources) VectorStore(ctx context.Context) (vectorstore.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vectorStoreLocked(ctx)
}

func (r *Resources) vectorStoreLocked(ctx context.Context) (vectorstore.Store, error) {
	if r.vectors != nil {
		return r.vectors, nil
	}
	if r.cfg.Cache.Backend == "memory" {
		r.logger.Warn("using in-memory vector store, cache is lost on restart")
		r.vectors = memory.New()
		return r.vectors, nil
	}

	docs, err := r.docStoreLocked(ctx)
	if err != nil {
		return nil, err
	}
	client, err := r.qdrantLocked()
	if err != nil {
		return nil, err
	}
	store, err := vectorqdrant.New(ctx, client, vectorqdrant.Config{
		Collection: r.cfg.Qdrant.Collection,
		Dimensions: r.cfg.Embedding.Dimensions,
	}, docs, r.logger)
	if err != nil {
		return nil, err
	}
	r.qdrantStore = store
	r.vectors = store
	return store, nil
}

// Embedder returns the embedding provider, local or remote, behind the rate
// limiter, retries and circuit breaker.
func (r *Resources) Embedder() (embedding.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.embedderLocked()
}

func (r *Resources) embedderLocked() (embedding.Service, error) {
	if r.embedder != nil {
		return r.embedder, nil
	}
	c := r.cfg.Embedding
	var next embedding.Service
	if c.Remote != "" {
		client, err := embeddinggrpc.NewClient(c.Remote)
		if err != nil {
			return nil, err
		}
		r.onClose(client.Close)
		next = client
		r.logger.Info("using remote embedding service", zap.String("addr", c.Remote))
	} else {
		next = embeddingopenai.New(c.Endpoint, c.Model, c.APIKeyEnv, c.Dimensions, c.Timeout())
	}
	r.embedder = resilient.New(next, resilient.Config{
		Name:              "embedding",
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		MaxRetries:        c.MaxRetries,
		CallTimeout:       c.Timeout(),
	}, r.logger)
	return r.embedder, nil
}

// LocalEmbedder returns the provider without the resilience wrapper, for the
// embedding server which clients already wrap.
func (r *Resources) LocalEmbedder() embedding.Service {
	c := r.cfg.Embedding
	return embeddingopenai.New(c.Endpoint, c.Model, c.APIKeyEnv, c.Dimensions, c.Timeout())
}

// CacheService returns a remote cache client when cache.remote is set and the
// in-process engine otherwise.
func (r *Resources) CacheService(ctx context.Context) (cache.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cacheService != nil {
		return r.cacheService, nil
	}
	if addr := r.cfg.Cache.Remote; addr != "" {
		client, err := cachegrpc.NewClient(addr)
		if err != nil {
			return nil, err
		}
		r.onClose(client.Close)
		r.logger.Info("using remote cache service", zap.String("addr", addr))
		r.cacheService = client
		return client, nil
	}

	embedder, err := r.embedderLocked()
	if err != nil {
		return nil, err
	}
	store, err := r.vectorStoreLocked(ctx)
	if err != nil {
		return nil, err
	}
	r.cacheService = cache.NewEngine(embedder, store, r.logger)
	return r.cacheService, nil
}

// CacheOptions maps the cache section onto per-call options.
func (r *Resources) CacheOptions() cache.Options {
	opts := cache.DefaultOptions()
	opts.SimilarityThreshold = r.cfg.Cache.SimilarityThreshold
	opts.CandidateCount = r.cfg.Cache.CandidateCount
	opts.TTLMinutes = r.cfg.Cache.TTLMinutes
	return opts
}

func (r *Resources) Completion() (completion.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completion != nil {
		return r.completion, nil
	}
	c := r.cfg.Completion
	if c.Remote != "" {
		client, err := completiongrpc.NewClient(c.Remote)
		if err != nil {
			return nil, err
		}
		r.onClose(client.Close)
		r.logger.Info("using remote completion service", zap.String("addr", c.Remote))
		r.completion = client
		return client, nil
	}
	r.completion = completionopenai.New(c.Endpoint, c.APIKeyEnv, c.Timeout(), r.logger)
	return r.completion, nil
}

// Conversations returns nil when conversation memory is disabled.
func (r *Resources) Conversations(ctx context.Context) (*conversation.Store, error) {
	if !r.cfg.Conversation.Enabled {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conversations != nil {
		return r.conversations, nil
	}
	client, err := r.redisLocked(ctx)
	if err != nil {
		return nil, err
	}
	r.conversations = conversation.New(client, r.cfg.Redis.KeyPrefix, r.cfg.Conversation.TTL())
	return r.conversations, nil
}

// Passages returns the knowledge store: a Qdrant collection, or an in-process
// store with the memory backend.
func (r *Resources) Passages(ctx context.Context) (knowledge.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.passages != nil {
		return r.passages, nil
	}
	if r.cfg.Cache.Backend == "memory" {
		r.passages = knowledge.NewMemoryStore()
		return r.passages, nil
	}
	client, err := r.qdrantLocked()
	if err != nil {
		return nil, err
	}
	store, err := knowledgeqdrant.New(ctx, client, knowledgeqdrant.Config{
		Collection: r.cfg.Knowledge.Collection,
		Dimensions: r.cfg.Embedding.Dimensions,
	}, r.logger)
	if err != nil {
		return nil, err
	}
	r.passages = store
	return store, nil
}

// Retriever returns nil when retrieval is disabled.
func (r *Resources) Retriever(ctx context.Context) (*knowledge.Retriever, error) {
	if !r.cfg.Knowledge.Enabled {
		return nil, nil
	}
	store, err := r.Passages(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := r.Embedder()
	if err != nil {
		return nil, err
	}
	return knowledge.NewRetriever(embedder, store, r.cfg.Knowledge.TopK, r.logger), nil
}

func (r *Resources) Indexer(ctx context.Context) (*knowledge.Indexer, error) {
	store, err := r.Passages(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := r.Embedder()
	if err != nil {
		return nil, err
	}
	return knowledge.NewIndexer(embedder, store, knowledge.IndexerOptions{
		ChunkRunes: r.cfg.Knowledge.ChunkRunes,
		Extensions: r.cfg.Knowledge.Extensions,
	}, r.logger), nil
}

// RunJanitor calls Prune every interval until ctx is done.
func (r *Resources) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Prune(ctx); err != nil {
				r.logger.Warn("fail to prune cache", zap.Error(err))
			}
		}
	}
}

// Prune removes expired entries from backends without native expiry. It only
// touches stores that have already been opened.
func (r *Resources) Prune(ctx context.Context) error {
	r.mu.Lock()
	qs, bs := r.qdrantStore, r.bolt
	r.mu.Unlock()

	var errs []error
	if qs != nil {
		if err := qs.Prune(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if bs != nil {
		n, err := bs.Sweep(ctx)
		if err != nil {
			errs = append(errs, err)
		} else if n > 0 {
			r.logger.Info("swept expired documents", zap.Int("count", n))
		}
	}
	return errors.Join(errs...)
}

func (r *Resources) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
