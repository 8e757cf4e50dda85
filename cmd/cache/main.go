package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"rag_gateway/app"
	cachegrpc "rag_gateway/cache/grpc"
	"rag_gateway/config"
	"rag_gateway/logger"
	"rag_gateway/rpc"
)

func main() {
	var configPath string
	var port int
	cmd := &cobra.Command{
		Use:          "cache",
		Short:        "Serve the semantic cache engine over gRPC",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			l, err := logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer l.Sync()

			// this process is the cache, never a client of another one
			cfg.Cache.Remote = ""
			if !cmd.Flags().Changed("port") {
				port = cfg.Cache.GRPCPort
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res := app.New(cfg, l)
			defer res.Close()
			svc, err := res.CacheService(ctx)
			if err != nil {
				return fmt.Errorf("failed to create cache service: %w", err)
			}

			if interval := cfg.Server.JanitorInterval(); interval > 0 {
				go res.RunJanitor(ctx, interval)
			}

			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}
			srv := cachegrpc.NewServer(svc)
			return rpc.Serve(ctx, lis, l, func(r grpc.ServiceRegistrar) { srv.Register(r) })
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("GATEWAY_CONFIG"), "path to the YAML config file")
	cmd.Flags().IntVar(&port, "port", 0, "listen port, overrides cache.grpc_port")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
