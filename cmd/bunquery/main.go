package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/bunquery"
	"github.com/kartikbazzad/bunbase/bunquery/internal/config"
	"github.com/kartikbazzad/bunbase/bunquery/internal/logger"
)

const envPrefix = "BUNQUERY"

var (
	configFile string
	dataDir    string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "bunquery",
	Short:         "Embedded JSON document database with a declarative query engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envPrefix, configFile)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.Storage.Path = dataDir
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data", "d", "", "database directory (overrides storage.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR")

	rootCmd.AddCommand(serveCmd(), queryCmd(), importCmd(), exportCmd(), indexCmd(), shellCmd())
}

// openDB opens the configured database. The caller closes it.
func openDB() (*bunquery.Database, error) {
	db, err := bunquery.Open(bunquery.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %q: %w", cfg.Storage.Path, err)
	}
	return db, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
