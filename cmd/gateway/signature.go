package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rag_gateway/cache"
)

func newSignatureCmd(load loader) *cobra.Command {
	var model, system string
	var temperature float64
	var maxTokens int
	cmd := &cobra.Command{
		Use:   "signature",
		Short: "Print the cache signature for a set of generation parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			c := cfg.Completion
			if !cmd.Flags().Changed("model") {
				model = c.Model
			}
			if !cmd.Flags().Changed("temperature") {
				temperature = c.Temperature
			}
			if !cmd.Flags().Changed("max-tokens") {
				maxTokens = c.MaxTokens
			}
			if !cmd.Flags().Changed("system") {
				system = c.SystemPrompt
			}
			fmt.Fprintln(cmd.OutOrStdout(), cache.BuildSignature(model, temperature, maxTokens, system))
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model name")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "max tokens")
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	return cmd
}
