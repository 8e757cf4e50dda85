package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rag_gateway/config"
	"rag_gateway/logger"
)

type loader func() (*config.Config, *zap.Logger, error)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "LLM gateway with a semantic response cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("GATEWAY_CONFIG"), "path to the YAML config file")

	load := func() (*config.Config, *zap.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		l, err := logger.New(cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		return cfg, l, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newCacheCmd(load),
		newSignatureCmd(load),
		newIndexCmd(load),
	)
	return root
}
