package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/possync/internal/engine"
	"github.com/roach88/possync/internal/refcache"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Refresh bool
	Full    bool
}

// SyncResult is the JSON payload of the sync command.
type SyncResult struct {
	Pass      engine.PassResult `json:"pass"`
	Reference []refcache.Report `json:"reference,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass now",
		Long: `Push every eligible queued mutation to the remote system once and exit.

Manual passes ignore the auto-sync setting. With --refresh the reference
caches are refreshed after the pass; --full forces a full reload of them.

Example:
  possync sync
  possync sync --refresh --full --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "also refresh reference caches")
	cmd.Flags().BoolVar(&opts.Full, "full", false, "force a full reference reload (implies --refresh)")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	eng := a.newEngine()

	pass, err := eng.RunSyncPass(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "sync pass failed", err)
	}
	result := SyncResult{Pass: pass}

	var refreshErr error
	if opts.Refresh || opts.Full {
		mode := refcache.ModeAuto
		if opts.Full {
			mode = refcache.ModeFull
		}
		result.Reference, refreshErr = eng.RefreshReference(ctx, mode)
	}

	if err := a.out.Success(result); err != nil {
		return err
	}

	if refreshErr != nil {
		return WrapExitError(ExitFailure, "reference refresh failed", refreshErr)
	}
	return nil
}

func (r SyncResult) writeText(w io.Writer) {
	writePass(w, r.Pass)
	reportList(r.Reference).writeText(w)
}

func writePass(w io.Writer, p engine.PassResult) {
	if p.Skipped {
		fmt.Fprintf(w, "Pass skipped: %s\n", p.SkipReason)
		return
	}
	fmt.Fprintf(w, "Pass %d (%s): %d processed, %d succeeded, %d failed, %d conflicts, %d deferred\n",
		p.Seq, p.Trigger, p.Processed, p.Succeeded, p.Failed, p.Conflicts, p.Deferred)
	if p.Dead > 0 {
		fmt.Fprintf(w, "  %d items cannot be synced and need attention (possync retry)\n", p.Dead)
	}
	if p.Recovered > 0 {
		fmt.Fprintf(w, "  %d interrupted items recovered\n", p.Recovered)
	}
	if p.Purged > 0 {
		fmt.Fprintf(w, "  %d completed items purged\n", p.Purged)
	}
}
