// Package cli implements the Breathe command-line interface using Cobra.
// Commands run against the configured store directly; `breathe serve`
// exposes the same engine over HTTP.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var userID string

var rootCmd = &cobra.Command{
	Use:   "breathe",
	Short: "Breathe: smoke-free streaks and achievements",
	Long: `Breathe tracks a smoke-free streak from a daily log and awards
achievements for milestones, savings, health recovery and activity.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", defaultUser(), "User ID to act as (env BREATHE_USER)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultUser() string {
	if u := os.Getenv("BREATHE_USER"); u != "" {
		return u
	}
	return "local"
}
