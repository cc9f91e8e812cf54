package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/possync/internal/model"
)

// StatusResult is the JSON payload of the status command.
type StatusResult struct {
	Database  string               `json:"database"`
	Queue     model.QueueCounts    `json:"queue"`
	Dead      int                  `json:"dead"`
	Conflicts int                  `json:"conflicts"`
	Reference []model.SyncMetadata `json:"reference"`
	AutoSync  bool                 `json:"auto_sync"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue, conflict and cache status",
		Long: `Show the local sync state: queue counts by status, items that exhausted
their retries, pending conflicts and when each reference cache was last
refreshed. Does not contact the remote system.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	eng := a.newEngine()

	counts, err := eng.QueueCounts(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count queue", err)
	}
	failed, err := a.store.ListQueueItems(ctx, model.QueueStatusFailed)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list failed items", err)
	}
	conflicts, err := eng.PendingConflicts(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list conflicts", err)
	}
	meta, err := a.store.ListSyncMetadata(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read cache metadata", err)
	}

	result := StatusResult{
		Database:  a.cfg.Database.Path,
		Queue:     counts,
		Conflicts: len(conflicts),
		Reference: meta,
		AutoSync:  a.cfg.Sync.AutoSync,
	}
	maxRetries := eng.Policy().MaxRetries
	for i := range failed {
		if failed[i].IsDead(maxRetries) {
			result.Dead++
		}
	}

	return a.out.Success(result)
}

func (r StatusResult) writeText(w io.Writer) {
	fmt.Fprintf(w, "Database:  %s\n", r.Database)
	fmt.Fprintf(w, "Auto-sync: %t\n", r.AutoSync)
	fmt.Fprintf(w, "Queue:     %d pending, %d syncing, %d failed (%d dead), %d completed\n",
		r.Queue.Pending, r.Queue.Syncing, r.Queue.Failed, r.Dead, r.Queue.Completed)
	fmt.Fprintf(w, "Conflicts: %d pending\n", r.Conflicts)
	fmt.Fprintln(w, "Reference caches:")
	if len(r.Reference) == 0 {
		fmt.Fprintln(w, "  never refreshed")
	}
	for _, m := range r.Reference {
		fmt.Fprintf(w, "  %-13s %5d rows, watermark %s\n", m.Entity, m.RecordCount, m.LastSyncAt.UTC().Format(time.RFC3339))
	}
}
