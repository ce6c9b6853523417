// Package cli implements syncctl, the operator command line for the sync engine.
package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Token   string
	Format  string // "json" | "text"
	Timeout time.Duration
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for syncctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Operate the storefront and warehouse sync engine",
		Long: `syncctl drives the sync engine: schema migrations, onboarding pipelines,
conflict review, job diagnostics and operator tokens.

API commands talk to a running server. migrate and token read the server
configuration (config.toml and SYNC_* environment variables) directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOr("SYNCCTL_SERVER", "http://localhost:8080"), "sync API base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", envOr("SYNCCTL_TOKEN", ""), "operator bearer token")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "API request timeout")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPipelineCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}
