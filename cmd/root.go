package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteresolve/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "siteresolve",
	Short: "Pick the website of each facility from its search candidates",
	Long: `Resolves facilities that lack a known website. Each facility's normalized name is
compared against the site token of every candidate URL found by search, and URLs
on a known brand's site are flagged. Batch results are written back alongside
the input table and recorded as runs.`,
	SilenceUsage: true,
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
