package cli

import (
	"context"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/syncbridge/backend/internal/infrastructure/queue"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// NewJobsCommand creates the jobs command group.
func NewJobsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the sync job queues",
	}

	var limit int
	failures := &cobra.Command{
		Use:   "failures",
		Short: "List jobs that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			var out []queue.FailureRecord
			query := url.Values{"limit": {strconv.Itoa(limit)}}
			if err := NewClient(opts).Get(ctx, "/jobs/failures", query, &out); err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return renderFailures(cmd.OutOrStdout(), out)
		},
	}
	failures.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of failures")

	var queueName string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count jobs per state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			var out map[string]int64
			var query url.Values
			if queueName != "" {
				query = url.Values{"queue": {queueName}}
			}
			if err := NewClient(opts).Get(ctx, "/jobs/stats", query, &out); err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return renderStats(cmd.OutOrStdout(), out)
		},
	}
	stats.Flags().StringVarP(&queueName, "queue", "q", "", "restrict to one queue")

	cmd.AddCommand(failures, stats)
	return cmd
}

// NewConflictsCommand creates the conflicts command group.
func NewConflictsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Review field conflicts awaiting a decision",
	}

	var entityType, clientID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List unresolved conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			query := url.Values{"entity_type": {entityType}}
			if clientID != "" {
				query.Set("client_id", clientID)
			}
			var out []dto.SyncLogResponse
			if err := NewClient(opts).Get(ctx, "/conflicts", query, &out); err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return renderConflicts(cmd.OutOrStdout(), out)
		},
	}
	list.Flags().StringVar(&entityType, "entity", "order", "entity type (order|product)")
	list.Flags().StringVar(&clientID, "client", "", "restrict to one client")

	cmd.AddCommand(list)
	return cmd
}
