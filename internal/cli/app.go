package cli

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/possync/internal/config"
	"github.com/roach88/possync/internal/engine"
	"github.com/roach88/possync/internal/logging"
	"github.com/roach88/possync/internal/refcache"
	"github.com/roach88/possync/internal/remote"
	"github.com/roach88/possync/internal/store"
)

// app is the wiring shared by every command: config, logger, local store
// and, for commands that talk to the remote system, a remote connection.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  *store.Store
	remote remote.Remote
	out    *OutputFormatter

	closers []io.Closer
}

// openApp loads config and opens the local store. When withRemote is set
// the remote system is dialled as well.
func openApp(cmd *cobra.Command, opts *RootOptions, withRemote bool) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, codedError(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	log, err := logging.New(out.GetErrWriter(), logging.Options{Level: level, Format: cfg.Log.Format})
	if err != nil {
		return nil, codedError(ExitCommandError, ErrCodeConfig, "failed to configure logging", err)
	}

	a := &app{cfg: cfg, log: log, out: out}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, codedError(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	a.store = st
	a.closers = append(a.closers, st)
	log.Debug().Str("path", cfg.Database.Path).Msg("database ready")

	if withRemote {
		if cfg.Remote.DSN == "" {
			a.Close()
			return nil, codedError(ExitCommandError, ErrCodeRemote,
				"remote dsn not configured (set remote.dsn or "+config.EnvRemoteDSN+")", nil)
		}
		dial := opts.Dial
		if dial == nil {
			dial = dialPostgres
		}
		rem, closer, err := dial(commandContext(cmd), cfg.Remote.DSN, log)
		if err != nil {
			a.Close()
			return nil, codedError(ExitFailure, ErrCodeRemote, "failed to connect to remote", err)
		}
		a.remote = rem
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}
	return a, nil
}

func dialPostgres(ctx context.Context, dsn string, log zerolog.Logger) (remote.Remote, io.Closer, error) {
	pg, err := remote.OpenPostgres(ctx, dsn, log)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg, nil
}

// Close releases the remote connection and the store, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

// newEngine builds an engine over the app's store and remote. Without a
// remote, only queue and conflict management operations may be used.
func (a *app) newEngine(extra ...engine.Option) *engine.Engine {
	opts := []engine.Option{
		engine.WithLogger(a.log),
		engine.WithPolicy(a.cfg.Policy()),
		engine.WithInterval(a.cfg.Sync.Interval),
		engine.WithDebounce(a.cfg.Sync.Debounce),
		engine.WithRetention(a.cfg.Sync.CompletedRetention),
		engine.WithAutoSync(a.cfg.Sync.AutoSync),
	}
	var w remote.Writer
	if a.remote != nil {
		w = a.remote
		opts = append(opts,
			engine.WithRefresher(refcache.NewRefresher(a.store, a.remote, refcache.WithLogger(a.log))),
			engine.WithRefreshOnPass(a.cfg.Sync.RefreshReference),
			engine.WithProbe(a.remote, a.cfg.Remote.ProbeInterval),
		)
	}
	return engine.New(a.store, w, append(opts, extra...)...)
}

// commandContext returns the command's context, or Background if unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (a *app) json() bool {
	return a.out.json()
}
