package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-extractor/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the event ingest API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		now := time.Now()
		token, err := auth.NewAdapter(cfg.JWTSecret).GenerateToken(&domain.TokenClaims{
			Subject:   tokenSubject,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(tokenTTL).Unix(),
		})
		if err != nil {
			return err
		}
		cmd.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "platform", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
