// Package cmd contains the imagegen CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"imagegen/config"
	"imagegen/logger"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "imagegen",
	Short: "On-demand image transformation service",
	Long: `imagegen serves tenant-scoped source images resized, converted and
re-encoded on request, caching every result by its transform parameters.

Example usage:
  imagegen serve                       # start the HTTP server
  imagegen cache purge                 # drop expired entries from the pebble cache
  imagegen token --tenant acme         # sign a development bearer token`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./imagegen.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Log.File, cfg.Log.Console); err != nil {
		return err
	}
	level := logger.ParseLevel(cfg.Log.Level)
	if verbose {
		level = logger.DEBUG
	}
	logger.SetLevel(level)
	return nil
}
