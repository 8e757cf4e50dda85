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
	"rag_gateway/config"
	embeddinggrpc "rag_gateway/embedding/grpc"
	"rag_gateway/logger"
	"rag_gateway/rpc"
)

func main() {
	var configPath string
	var port int
	cmd := &cobra.Command{
		Use:          "embedding",
		Short:        "Serve the embedding provider over gRPC",
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

			if !cmd.Flags().Changed("port") {
				port = cfg.Embedding.GRPCPort
			}
			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			srv := embeddinggrpc.NewServer(app.New(cfg, l).LocalEmbedder())
			return rpc.Serve(ctx, lis, l, func(r grpc.ServiceRegistrar) { srv.Register(r) })
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("GATEWAY_CONFIG"), "path to the YAML config file")
	cmd.Flags().IntVar(&port, "port", 0, "listen port, overrides embedding.grpc_port")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
