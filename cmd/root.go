package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openhouse-labs/scheme-intel/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "scheme-intel",
	Short: "Knowledge resolution engine for housing schemes",
	Long:  "Stores multi-source extracted facts about house types, resolves canonical values under tier precedence, builds versioned intelligence profiles, and routes purchaser questions to knowledge layers.",
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
