package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/refcache"
)

// RefreshOptions holds flags for the refresh command.
type RefreshOptions struct {
	*RootOptions
	Entities []string
	Full     bool
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefreshOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh reference caches",
		Long: `Pull customers, promotions and stock levels from the remote system.

A cache that was never refreshed is loaded in full; otherwise only rows
changed since its last refresh are pulled. A failure in one cache does not
stop the others.

Example:
  possync refresh
  possync refresh --entity promotions --full`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Entities, "entity", nil, "cache to refresh: customers|promotions|stock_levels (repeatable, default all)")
	cmd.Flags().BoolVar(&opts.Full, "full", false, "reload the cache in full")

	return cmd
}

func runRefresh(opts *RefreshOptions, cmd *cobra.Command) error {
	entities, err := parseEntities(opts.Entities)
	if err != nil {
		return err
	}
	mode := refcache.ModeAuto
	if opts.Full {
		mode = refcache.ModeFull
	}

	a, err := openApp(cmd, opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer a.Close()

	reports, refreshErr := a.newEngine().RefreshReference(commandContext(cmd), mode, entities...)
	if err := a.out.Success(reportList(reports)); err != nil {
		return err
	}
	if refreshErr != nil {
		return WrapExitError(ExitFailure, "reference refresh failed", refreshErr)
	}
	return nil
}

func parseEntities(names []string) ([]model.ReferenceEntity, error) {
	var out []model.ReferenceEntity
	for _, n := range names {
		e, err := model.ParseReferenceEntity(n)
		if err != nil {
			return nil, codedError(ExitCommandError, ErrCodeInvalidInput, "invalid --entity", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ClearCacheOptions holds flags for the clear-cache command.
type ClearCacheOptions struct {
	*RootOptions
	Entity string
}

// NewClearCacheCommand creates the clear-cache command.
func NewClearCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearCacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Empty one reference cache",
		Long: `Delete every cached row of one reference cache and forget its last
refresh time, so the next refresh reloads it in full.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClearCache(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Entity, "entity", "", "cache to clear: customers|promotions|stock_levels (required)")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func runClearCache(opts *ClearCacheOptions, cmd *cobra.Command) error {
	entity, err := model.ParseReferenceEntity(opts.Entity)
	if err != nil {
		return codedError(ExitCommandError, ErrCodeInvalidInput, "invalid --entity", err)
	}
	a, err := openApp(cmd, opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.ClearCache(commandContext(cmd), entity); err != nil {
		return WrapExitError(ExitFailure, "failed to clear cache", err)
	}
	return a.out.Done(map[string]string{"cleared": string(entity)}, "Cache %s cleared.", entity)
}
