package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fuelupapp/fuelup-server/internal/auth"
)

func newTokenCmd(g *globals) *cobra.Command {
	var (
		userID  string
		keyHex  string
		ttl time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user",
		Long: `Mint a PASETO access token signed with the server key.

The key is read from the configured key path and created there if missing,
unless --key supplies it as hex.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			var key []byte
			if keyHex != "" {
				key, err = auth.ParseKey(keyHex)
			} else {
				key, err = auth.LoadOrGenerateKey(cfg.Auth.KeyPath)
			}
			if err != nil {
				return err
			}

			duration := cfg.Auth.AccessTokenDuration
			if ttl > 0 {
				duration = ttl
			}
			tokens, err := auth.NewTokenService(key, duration)
			if err != nil {
				return err
			}

			token, expiresAt, err := tokens.GenerateAccessToken(userID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"userId":      userID,
				"accessToken": token,
				"expiresAt":   expiresAt.UTC().Format(time.RFC3339),
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID the token authenticates")
	cmd.Flags().StringVar(&keyHex, "key", "", "Hex signing key (overrides the key file)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: ACCESS_TOKEN_DURATION)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
