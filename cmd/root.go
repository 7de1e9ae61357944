package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeffnawroth/source-taster/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "source-taster",
	Short: "Match and verify bibliographic references against scholarly databases",
	Long: `Scores extracted references against candidate records field by field, and
verifies them source by source until a good enough match is found.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env file may supply SOURCETASTER_* variables.
		_ = godotenv.Load()

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

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("settings", "", "matching settings file (yaml or json); overrides config")
	pf.String("fields", "", "field weights as name=weight pairs, e.g. title=60,author=40; unlisted fields are disabled")
	pf.String("rules", "", "comma-separated normalization rules (\"none\" disables all)")
	pf.String("locale", "", "BCP 47 language tag for case folding")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
