// Package gateway serves the HTTP API: an OpenAI-compatible chat endpoint and
// a query endpoint with conversation memory, both read through the semantic cache.
package gateway

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rag_gateway/cache"
	"rag_gateway/completion"
	"rag_gateway/conversation"
	"rag_gateway/knowledge"
)

// Conversations stores per-session chat history.
type Conversations interface {
	AddMessage(ctx context.Context, sessionID, role, content string) error
	History(ctx context.Context, sessionID string, limit int) ([]conversation.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// Retriever finds the passages placed in /api/query prompts.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]knowledge.Hit, error)
}

type Option func(*Server)

// WithRetriever adds retrieved passages to /api/query prompts.
func WithRetriever(r Retriever) Option {
	return func(s *Server) {
		s.retriever = r
	}
}

// Config holds the generation defaults used when a request leaves them out.
// They also make up the cache signature.
type Config struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	HistoryLimit int
	CacheOptions cache.Options
	DebugMode    bool
}

type Server struct {
	cfg           Config
	cache         *cache.Cache
	completion    completion.Service
	conversations Conversations
	retriever     Retriever
	gatherer      prometheus.Gatherer
	logger        *zap.Logger
	engine        *gin.Engine
}

// New builds the router. conversations may be nil, which disables the
// conversation routes and history in /api/query.
func New(cfg Config, c *cache.Cache, compl completion.Service, conversations Conversations, gatherer prometheus.Gatherer, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = conversation.DefaultHistoryLimit
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:           cfg,
		cache:         c,
		completion:    compl,
		conversations: conversations,
		gatherer:      gatherer,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	if s.cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), cors())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	r.POST("/v1/chat/completions", s.handleChatCompletions)

	api := r.Group("/api")
	{
		api.POST("/query", s.handleQuery)
		api.DELETE("/cache", s.handleClearCache)
		if s.conversations != nil {
			api.GET("/conversation/history", s.handleHistory)
			api.DELETE("/conversation/clear", s.handleClearHistory)
		}
	}

	if s.cfg.DebugMode {
		s.logger.Info("debug mode on, serving pprof")
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Any("/debug/pprof/*any", gin.WrapH(mux))
	}
	return r
}

// cors answers browser preflight requests and allows any origin.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
			h.Set("Access-Control-Allow-Headers", requested)
		} else {
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		h.Set("Access-Control-Max-Age", "86400")
		c.AbortWithStatus(http.StatusNoContent)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
