package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cache wraps a Service with the read-through policy used by request handlers:
// the cache is an optimization, so only generation failures reach the caller.
type Cache struct {
	svc     Service
	logger  *zap.Logger
	metrics *Metrics
}

func New(svc Service, logger *zap.Logger, metrics *Metrics) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{svc: svc, logger: logger, metrics: metrics}
}

// LookupOrGenerate returns a cached answer for prompt or calls generate exactly
// once and stores its answer. Errors from generate are returned unchanged.
func (c *Cache) LookupOrGenerate(ctx context.Context, prompt, signature string, generate Generator, opts Options) (Result, error) {
	opts = opts.withDefaults()

	start := time.Now()
	entry, err := c.svc.Lookup(ctx, prompt, signature, opts.lookup())
	degraded := false
	switch {
	case err != nil:
		degraded = true
		c.metrics.lookup(outcomeError, time.Since(start))
		c.logger.Warn("cache lookup failed, treating as miss", zap.Error(err))
	case entry != nil:
		c.metrics.lookup(outcomeHit, time.Since(start))
		return Result{Source: SourceHit, ID: entry.ID, Response: entry.Response}, nil
	default:
		c.metrics.lookup(outcomeMiss, time.Since(start))
	}

	response, err := generate(ctx)
	if err != nil {
		c.metrics.generation(outcomeError)
		return Result{}, err
	}
	c.metrics.generation(outcomeOK)

	// The answer is already computed; store it even if the caller has gone away.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.WriteTimeout)
	defer cancel()
	id, err := c.svc.Put(wctx, prompt, signature, response, opts.TTLMinutes)
	if err != nil {
		c.metrics.write(outcomeError)
		c.logger.Error("fail to store cache entry", zap.Error(err))
		return Result{Source: SourceMiss, ID: UncachedID, Response: response, Degraded: true}, nil
	}
	c.metrics.write(outcomeOK)
	c.logger.Debug("stored cache entry", zap.String("id", id))
	return Result{Source: SourceMiss, ID: id, Response: response, Degraded: degraded}, nil
}

// Clear removes entries by signature; an empty signature clears everything.
func (c *Cache) Clear(ctx context.Context, signature string) (int, error) {
	return c.svc.Clear(ctx, signature)
}
