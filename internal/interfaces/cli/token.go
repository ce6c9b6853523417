package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/syncbridge/backend/internal/infrastructure/auth"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

// TokenOptions holds flags for token issue.
type TokenOptions struct {
	*RootOptions
	Subject string
	Role    string
	TTL     time.Duration
}

// NewTokenCommand creates the token command group.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	return newTokenCommand(rootOpts, func() (config.AuthConfig, error) {
		cfg, err := config.Load()
		if err != nil {
			return config.AuthConfig{}, err
		}
		return cfg.Auth, nil
	})
}

func newTokenCommand(rootOpts *RootOptions, loadAuth func() (config.AuthConfig, error)) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage operator API tokens",
	}

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign an operator token with the configured secret",
		Example: `  syncctl token issue --subject alice
  syncctl token issue --subject dashboard --role viewer --ttl 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			authCfg, err := loadAuth()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			tokens, err := auth.NewOperatorTokens(authCfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid auth configuration", err)
			}
			if opts.Role != auth.RoleOperator && opts.Role != auth.RoleViewer {
				return WrapExitError(ExitCommandError, "invalid --role",
					fmt.Errorf("must be %s or %s", auth.RoleOperator, auth.RoleViewer))
			}
			signed, expiresAt, err := tokens.Issue(opts.Subject, opts.Role, opts.TTL)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to sign token", err)
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"token":      signed,
					"subject":    opts.Subject,
					"role":       opts.Role,
					"expires_at": expiresAt.UTC(),
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	issue.Flags().StringVar(&opts.Subject, "subject", "", "operator name recorded in logs (required)")
	issue.Flags().StringVar(&opts.Role, "role", auth.RoleOperator, "operator or viewer")
	issue.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("subject")

	cmd.AddCommand(issue)
	return cmd
}
