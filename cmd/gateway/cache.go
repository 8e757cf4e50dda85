package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rag_gateway/app"
	"rag_gateway/cache"
)

func newCacheCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the semantic cache",
	}
	cmd.AddCommand(newCacheClearCmd(load), newCachePruneCmd(load))
	return cmd
}

func newCacheClearCmd(load loader) *cobra.Command {
	var signature string
	var all bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached responses for a signature",
		Long:  "Delete cached responses for a signature. Without --signature the signature of the configured defaults is used; --all clears every entry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			res := app.New(cfg, logger)
			defer res.Close()

			svc, err := res.CacheService(cmd.Context())
			if err != nil {
				return err
			}
			switch {
			case all:
				signature = ""
			case signature == "":
				c := cfg.Completion
				signature = cache.BuildSignature(c.Model, c.Temperature, c.MaxTokens, c.SystemPrompt)
			}
			n, err := svc.Clear(cmd.Context(), signature)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&signature, "signature", "", "signature to clear")
	cmd.Flags().BoolVar(&all, "all", false, "clear every signature")
	return cmd
}

func newCachePruneCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired entries from the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			res := app.New(cfg, logger)
			defer res.Close()

			if _, err := res.VectorStore(cmd.Context()); err != nil {
				return err
			}
			return res.Prune(cmd.Context())
		},
	}
}
