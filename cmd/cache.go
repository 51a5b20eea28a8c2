package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"imagegen/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Result cache maintenance",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired entries from the pebble result cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Cache.Backend != "pebble" {
			fmt.Fprintf(cmd.OutOrStdout(), "cache backend %q expires entries itself; nothing to purge\n", cfg.Cache.Backend)
			return nil
		}
		store, err := cache.Open(cfg.Cache, cfg.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.(*cache.PebbleStore).Purge(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
