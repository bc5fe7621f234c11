// Package cli holds the claimguard command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "claimguard",
	Short: "ClaimGuard - AI-assisted healthcare claim validation demos",
	Long: `ClaimGuard runs executive demonstration sessions that push healthcare
claims through AI reasoning and regulatory compliance checks under a hard
per-session AI budget.

Configuration is read from CLAIMGUARD_* environment variables.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("claimguard " + version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
