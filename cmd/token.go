package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"imagegen/auth"
	"imagegen/models"
	"imagegen/routes"
)

var (
	tokenTenant string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token for a tenant with the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenTenant == "" {
			return errors.New("--tenant is required")
		}
		now := time.Now()
		claims := &models.TenantClaims{
			Issuer:   cfg.Auth.Issuer,
			Subject:  tokenTenant,
			IssuedAt: now.Unix(),
		}
		if tokenTTL > 0 {
			claims.ExpiresAt = now.Add(tokenTTL).Unix()
		}
		token, err := auth.SignToken(claims, []byte(cfg.Auth.Secret))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		info := routes.BuildInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "imagegen %s (commit %s, built %s, %s)\n",
			info.Version, info.GitCommit, info.BuildTime, info.GoVersion)
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenTenant, "tenant", "", "tenant id placed in the token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	rootCmd.AddCommand(tokenCmd, versionCmd)
}
