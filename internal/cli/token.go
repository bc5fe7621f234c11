package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "claimguard/internal/jwt_token"
	"claimguard/internal/platform/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <executive-id>",
	Short: "Mint a dashboard access token for an executive",
	Long: `Token signs an access token with the configured JWT key. It is meant for
local demos; production tokens come from the identity provider.

Example:
  claimguard token ceo-001 --ttl 2h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Server.TokenTTL
		}
		svc := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
		token, err := svc.GenerateAccessToken(args[0], ttl)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		cmd.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default CLAIMGUARD_TOKEN_TTL)")
}
