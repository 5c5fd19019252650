package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reachloop/research-core/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "research-core",
	Short: "In-market research and lead pipeline",
	Long:  "Scrapes community content and business listings per tenant, verifies extracted leads, and drip-reveals relevance-ranked results over a rolling window.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
