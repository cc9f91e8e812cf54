package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/possync/internal/conflict"
	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/store"
)

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List pending conflicts",
		Long: `List conflicts waiting for a decision, oldest first.

A conflicted queue item is not retried until its conflict is resolved or
dismissed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConflicts(rootOpts, cmd)
		},
	}
}

func runConflicts(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	conflicts, err := a.newEngine().PendingConflicts(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list conflicts", err)
	}
	return a.out.Success(conflictList(conflicts))
}

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	As string
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve a conflict",
		Long: `Resolve a pending conflict.

  keep_local   requeue the local mutation for the next pass
  merge        same as keep_local
  keep_server  drop the local mutation
  skip         drop the local mutation

Example:
  possync resolve 0192f0c4-... --as keep_server`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "resolution: keep_local|keep_server|skip|merge (required)")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func runResolve(opts *ResolveOptions, id string, cmd *cobra.Command) error {
	resolution, err := model.ParseResolution(opts.As)
	if err != nil {
		return codedError(ExitCommandError, ErrCodeInvalidInput, "invalid --as", err)
	}

	a, err := openApp(cmd, opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.newEngine().ResolveConflict(commandContext(cmd), id, resolution)
	if err != nil {
		return conflictError("failed to resolve conflict", err)
	}
	return a.out.Done(c, "Conflict %s resolved as %s.", c.ID, c.Resolution)
}

// NewDismissCommand creates the dismiss command.
func NewDismissCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <conflict-id>",
		Short: "Dismiss a conflict",
		Long: `Delete a conflict without a resolution. Its queue item goes back under
the normal retry policy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDismiss(rootOpts, args[0], cmd)
		},
	}
}

func runDismiss(opts *RootOptions, id string, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.newEngine().DismissConflict(commandContext(cmd), id); err != nil {
		return conflictError("failed to dismiss conflict", err)
	}
	return a.out.Done(map[string]string{"dismissed": id}, "Conflict %s dismissed.", id)
}

func conflictError(message string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return codedError(ExitCommandError, ErrCodeNotFound, message, err)
	case errors.Is(err, conflict.ErrAlreadyResolved):
		return codedError(ExitFailure, ErrCodeInvalidInput, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}
