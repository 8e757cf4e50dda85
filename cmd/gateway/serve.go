package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rag_gateway/app"
	"rag_gateway/cache"
	"rag_gateway/config"
	"rag_gateway/gateway"
)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	res := app.New(cfg, logger)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn("fail to close resources", zap.Error(err))
		}
	}()

	cacheSvc, err := res.CacheService(ctx)
	if err != nil {
		return fmt.Errorf("fail to init semantic cache service: %w", err)
	}
	compl, err := res.Completion()
	if err != nil {
		return fmt.Errorf("fail to init completion service: %w", err)
	}
	var conversations gateway.Conversations
	if convs, err := res.Conversations(ctx); err != nil {
		return fmt.Errorf("fail to init conversation store: %w", err)
	} else if convs != nil {
		conversations = convs
	}

	var opts []gateway.Option
	if retriever, err := res.Retriever(ctx); err != nil {
		return fmt.Errorf("fail to init document retriever: %w", err)
	} else if retriever != nil {
		opts = append(opts, gateway.WithRetriever(retriever))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c := cache.New(cacheSvc, logger, cache.NewMetrics(reg))

	gw := gateway.New(gateway.Config{
		Model:        cfg.Completion.Model,
		Temperature:  cfg.Completion.Temperature,
		MaxTokens:    cfg.Completion.MaxTokens,
		SystemPrompt: cfg.Completion.SystemPrompt,
		HistoryLimit: cfg.Conversation.HistoryLimit,
		CacheOptions: res.CacheOptions(),
		DebugMode:    cfg.Server.DebugMode,
	}, c, compl, conversations, reg, logger, opts...)

	if interval := cfg.Server.JanitorInterval(); interval > 0 && cfg.Cache.Remote == "" {
		go res.RunJanitor(ctx, interval)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.Int("port", cfg.Server.Port))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error running http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	return server.Shutdown(sctx)
}
