package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync engine in the foreground",
		Long: `Run the sync engine until interrupted.

A pass runs at startup, then on every sync interval and shortly after the
remote system becomes reachable again. The remote is probed on the
configured probe interval. Ctrl-C stops the engine after the pass in
flight finishes.

Example:
  possync run --config /etc/possync.yaml
  POSSYNC_REMOTE_DSN=postgres://pos@db/pos possync run --db ./register.db -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(rootOpts, cmd)
		},
	}
	return cmd
}

func runEngine(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	eng := a.newEngine()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := eng.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start engine", err)
	}
	a.out.VerboseLog("Engine started (db=%s, interval=%s).", a.cfg.Database.Path, a.cfg.Sync.Interval)
	if !a.json() {
		fmt.Fprintln(cmd.OutOrStdout(), "Sync engine running. Press Ctrl-C to stop.")
	}

	<-ctx.Done()
	eng.Stop()

	st := eng.State().Snapshot()
	return a.out.Done(st, "Stopped after %d passes.", st.Passes)
}
