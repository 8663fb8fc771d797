package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/claude/liftlog/internal/config"
	"github.com/claude/liftlog/internal/prefs"
	"github.com/claude/liftlog/internal/remote"
	"github.com/claude/liftlog/internal/tracing"
	"github.com/claude/liftlog/internal/workout"
	"tailscale.com/tsnet"
)

// app holds what every subcommand needs: the remote store, local state and
// the resolved user.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	client *remote.Client
	state  *prefs.StateDB
	tp     *tracing.Provider
	ts     *tsnet.Server
	userID int
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadClient(cfgFile)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	a := &app{
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}

	a.tp, err = tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	opts := []remote.Option{remote.WithLogger(a.log)}
	if a.tp.Enabled() {
		opts = append(opts, remote.WithTracer(a.tp.Tracer()))
	}
	ttl, err := cfg.Client.RoutineTTL()
	if err != nil {
		a.Close()
		return nil, err
	}
	if ttl > 0 {
		opts = append(opts, remote.WithRoutineTTL(ttl))
	}
	if ts := cfg.Client.Tailscale; ts.Enabled {
		a.ts, err = startTailnet(ts, cfg.Client.StateDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, remote.WithHTTPClient(a.ts.HTTPClient()))
	}
	a.client = remote.NewClient(cfg.Client.ServerURL, opts...)

	a.state, err = prefs.OpenStateDB(cfg.Client.StateDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.userID, err = a.resolveUser(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func startTailnet(cfg config.TailscaleConfig, stateDir string) (*tsnet.Server, error) {
	hostname := cfg.Hostname
	if hostname == "" || hostname == "liftlog" {
		hostname = "liftlog-train"
	}
	dir := cfg.StateDir
	if dir == "" {
		dir = filepath.Join(stateDir, "tsnet")
	}
	s := &tsnet.Server{Hostname: hostname, Dir: dir}
	if err := s.Start(); err != nil {
		return nil, fmt.Errorf("tsnet start: %w", err)
	}
	return s, nil
}

// resolveUser picks the user in order: --user, client.user_id, the server's
// answer to /me. When the server cannot be reached the last user seen is
// reused so a live session can still be shown.
func (a *app) resolveUser(ctx context.Context) (int, error) {
	switch {
	case userID > 0:
		return userID, a.state.SetLastUser(ctx, userID)
	case a.cfg.Client.UserID > 0:
		return a.cfg.Client.UserID, a.state.SetLastUser(ctx, a.cfg.Client.UserID)
	}

	meCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	me, err := a.client.Me(meCtx, 0)
	if err == nil {
		return me.ID, a.state.SetLastUser(ctx, me.ID)
	}

	last, ok, lerr := a.state.LastUser(ctx)
	if lerr != nil || !ok {
		return 0, fmt.Errorf("resolving user: %w", errors.Join(err, lerr))
	}
	a.log.Warn("server unreachable, using last known user", "user_id", last, "error", err)
	return last, nil
}

// engine builds a workout engine for the resolved user and loads any session
// left live on the server.
func (a *app) engine(ctx context.Context) (*workout.Engine, error) {
	ec, err := a.cfg.Training.Engine()
	if err != nil {
		return nil, err
	}
	e := workout.NewEngine(a.client, a.state, a.userID, ec, a.log)
	if err := e.Load(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (a *app) Close() {
	if a.state != nil {
		_ = a.state.Close()
	}
	if a.tp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tp.Shutdown(ctx); err != nil {
			a.log.Warn("tracing shutdown", "error", err)
		}
	}
	if a.ts != nil {
		_ = a.ts.Close()
	}
}
