package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"rag_gateway/app"
)

func newIndexCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "index <dir>",
		Short: "Embed the documents under dir into the knowledge collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Cache.Backend == "memory" {
				return errors.New("the memory backend keeps nothing after exit, index into qdrant instead")
			}
			res := app.New(cfg, logger)
			defer res.Close()

			indexer, err := res.Indexer(cmd.Context())
			if err != nil {
				return fmt.Errorf("fail to init indexer: %w", err)
			}
			n, err := indexer.IndexDir(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d passages\n", n)
			return nil
		},
	}
}
