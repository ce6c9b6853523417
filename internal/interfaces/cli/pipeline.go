package cli

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// PipelineOptions holds flags for the pipeline commands.
type PipelineOptions struct {
	*RootOptions
	ChannelID string
	ClientID  string
	SyncType  string
	SyncFrom  string
}

// NewPipelineCommand creates the pipeline command group.
func NewPipelineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PipelineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Start and control channel onboarding pipelines",
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Start or resume the onboarding of a channel",
		Example: `  syncctl pipeline start --channel 7f0c... --client 1b2e...
  syncctl pipeline start --channel 7f0c... --client 1b2e... --from 2024-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipelineStart(cmd, opts)
		},
	}
	start.Flags().StringVar(&opts.ChannelID, "channel", "", "channel id (required)")
	start.Flags().StringVar(&opts.ClientID, "client", "", "client id (required)")
	start.Flags().StringVar(&opts.SyncType, "sync-type", "", "sync type (default INITIAL_ONBOARDING)")
	start.Flags().StringVar(&opts.SyncFrom, "from", "", "only reconcile fulfillment since this date (YYYY-MM-DD or RFC3339)")
	_ = start.MarkFlagRequired("channel")
	_ = start.MarkFlagRequired("client")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the pipeline of a channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"channel_id": {opts.ChannelID}}
			if opts.SyncType != "" {
				query.Set("sync_type", opts.SyncType)
			}
			return showPipeline(cmd, opts.RootOptions, "/pipelines/status", query)
		},
	}
	status.Flags().StringVar(&opts.ChannelID, "channel", "", "channel id (required)")
	status.Flags().StringVar(&opts.SyncType, "sync-type", "", "sync type (default INITIAL_ONBOARDING)")
	_ = status.MarkFlagRequired("channel")

	get := &cobra.Command{
		Use:   "get <pipeline-id>",
		Short: "Show a pipeline by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUIDArg(args[0])
			if err != nil {
				return err
			}
			return showPipeline(cmd, opts.RootOptions, "/pipelines/"+id.String(), nil)
		},
	}

	cmd.AddCommand(start, status, get)
	for _, action := range []struct{ name, short string }{
		{"pause", "Pause a running pipeline at its next step boundary"},
		{"resume", "Resume a paused pipeline"},
		{"retry", "Retry a failed pipeline from its failed step"},
		{"cancel", "Cancel a pipeline"},
	} {
		cmd.AddCommand(newPipelineControlCommand(opts.RootOptions, action.name, action.short))
	}
	return cmd
}

func newPipelineControlCommand(opts *RootOptions, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <pipeline-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUIDArg(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			var p dto.PipelineResponse
			if err := NewClient(opts).Post(ctx, "/pipelines/"+id.String()+"/"+action, nil, &p); err != nil {
				return err
			}
			return printPipeline(cmd, opts, p)
		},
	}
}

func runPipelineStart(cmd *cobra.Command, opts *PipelineOptions) error {
	req := dto.StartPipelineRequest{
		ChannelID: opts.ChannelID,
		ClientID:  opts.ClientID,
		SyncType:  opts.SyncType,
	}
	if opts.SyncFrom != "" {
		from, err := parseDate(opts.SyncFrom)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --from", err)
		}
		req.SyncFromDate = &from
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()
	var out struct {
		PipelineID uuid.UUID `json:"pipeline_id"`
	}
	if err := NewClient(opts.RootOptions).Post(ctx, "/pipelines", req, &out); err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %s started\n", out.PipelineID)
	return err
}

func showPipeline(cmd *cobra.Command, opts *RootOptions, path string, query url.Values) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()
	var p dto.PipelineResponse
	if err := NewClient(opts).Get(ctx, path, query, &p); err != nil {
		return err
	}
	return printPipeline(cmd, opts, p)
}

func printPipeline(cmd *cobra.Command, opts *RootOptions, p dto.PipelineResponse) error {
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), p)
	}
	return renderPipeline(cmd.OutOrStdout(), p)
}

func parseUUIDArg(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, WrapExitError(ExitCommandError, "invalid id "+s, err)
	}
	return id, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
