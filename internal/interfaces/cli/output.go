package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/syncbridge/backend/internal/infrastructure/queue"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the server rejected the request
	ExitCommandError = 2 // bad flags, unreachable server, unreadable config
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// renderPipeline prints a pipeline summary followed by its step table.
func renderPipeline(w io.Writer, p dto.PipelineResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Pipeline\t%s\n", p.ID)
	fmt.Fprintf(tw, "Channel\t%s\n", p.ChannelID)
	fmt.Fprintf(tw, "Type\t%s\n", p.SyncType)
	fmt.Fprintf(tw, "Status\t%s (step %d/%d)\n", p.Status, p.CurrentStep, p.TotalSteps)
	fmt.Fprintf(tw, "Retries\t%d/%d\n", p.RetryCount, p.MaxRetries)
	if p.SyncFromDate != nil {
		fmt.Fprintf(tw, "Sync from\t%s\n", formatTime(p.SyncFromDate))
	}
	fmt.Fprintf(tw, "Started\t%s\n", formatTime(p.StartedAt))
	fmt.Fprintf(tw, "Completed\t%s\n", formatTime(p.CompletedAt))
	if p.LastError != "" {
		fmt.Fprintf(tw, "Last error\t%s\n", p.LastError)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(p.Steps) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tNAME\tSTATUS\tPROCESSED\tFAILED\tSKIPPED\tERROR")
	for _, s := range p.Steps {
		errMsg := s.ErrorMessage
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.StepNumber, s.Name, s.Status, s.ItemsProcessed, s.ItemsFailed, s.ItemsSkipped, errMsg)
	}
	return tw.Flush()
}

// renderFailures prints terminal job failures newest first.
func renderFailures(w io.Writer, failures []queue.FailureRecord) error {
	if len(failures) == 0 {
		_, err := fmt.Fprintln(w, "No failed jobs")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FAILED AT\tQUEUE\tJOB\tRETRIES\tERROR")
	for _, f := range failures {
		failedAt := f.FailedAt
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			formatTime(&failedAt), f.QueueName, f.JobID, f.RetryCount, oneLine(f.Error))
	}
	return tw.Flush()
}

// renderStats prints job counts per state in a stable order.
func renderStats(w io.Writer, stats map[string]int64) error {
	states := make([]string, 0, len(stats))
	for s := range stats {
		states = append(states, s)
	}
	sort.Strings(states)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tJOBS")
	for _, s := range states {
		fmt.Fprintf(tw, "%s\t%d\n", s, stats[s])
	}
	return tw.Flush()
}

// renderConflicts prints unresolved conflicts with their competing values.
func renderConflicts(w io.Writer, entries []dto.SyncLogResponse) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No unresolved conflicts")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tENTITY\tEXTERNAL ID\tORIGIN\tFIELD\tLOCAL\tINCOMING")
	for _, e := range entries {
		for _, c := range e.Changes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.EntityType, dash(e.ExternalID), e.Origin, c.Field, c.Before, c.After)
		}
	}
	return tw.Flush()
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
