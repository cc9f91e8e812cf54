package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/possync/internal/store"
)

// RetryOptions holds flags for the retry command.
type RetryOptions struct {
	*RootOptions
	Item int64
}

// NewRetryCommand creates the retry command.
func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RetryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Return failed queue items to pending",
		Long: `Return failed queue items, including those that exhausted their retries,
to pending with their retry count cleared. They are picked up by the next
pass.

Example:
  possync retry
  possync retry --item 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetry(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Item, "item", 0, "retry only this queue item id")

	return cmd
}

func runRetry(opts *RetryOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	eng := a.newEngine()

	var n int64
	if opts.Item > 0 {
		if err := eng.RetryItem(ctx, opts.Item); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return codedError(ExitCommandError, ErrCodeNotFound, "failed to retry item", err)
			}
			return codedError(ExitFailure, ErrCodeInvalidInput, "failed to retry item", err)
		}
		n = 1
	} else if n, err = eng.RetryFailed(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to retry items", err)
	}

	return a.out.Done(map[string]int64{"reset": n}, "%d items returned to pending.", n)
}

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	OlderThan time.Duration
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete completed queue items",
		Long: `Delete completed queue items last updated more than --older-than ago.
Pending, failed and conflicted items are never purged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.OlderThan, "older-than", 24*time.Hour, "minimum age of purged items")

	return cmd
}

func runPurge(opts *PurgeOptions, cmd *cobra.Command) error {
	if opts.OlderThan < 0 {
		return codedError(ExitCommandError, ErrCodeInvalidInput, "--older-than must not be negative", nil)
	}
	a, err := openApp(cmd, opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.newEngine().PurgeCompleted(commandContext(cmd), opts.OlderThan)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to purge", err)
	}
	return a.out.Done(map[string]int64{"purged": n}, "%d completed items purged.", n)
}
