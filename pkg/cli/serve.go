package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harrisonrobin/hubsync/pkg/engine"
	"github.com/harrisonrobin/hubsync/pkg/profile"
	"github.com/harrisonrobin/hubsync/pkg/roster"
	"github.com/harrisonrobin/hubsync/pkg/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with scheduled refresh",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.cfg.JWTSecret == "" {
			return fmt.Errorf("jwt_secret is not set (config or HUBSYNC_JWT_SECRET)")
		}

		r, err := roster.Load(a.cfg.RosterFile)
		if err != nil {
			return err
		}
		profiles, err := profile.Open(a.cfg.ProfileDB)
		if err != nil {
			return err
		}
		defer profiles.Close()

		sched := engine.NewScheduler(a.engine, a.cfg.RefreshInterval.Std(), a.log)
		sched.SetAutoRefresh(a.cfg.AutoRefresh)

		if err := a.load(ctx); err != nil {
			a.log.Warn("initial refresh failed", "error", err)
		}

		srv := server.New(server.Options{
			Addr:      a.cfg.ListenAddr,
			Secret:    a.cfg.JWTSecret,
			Engine:    a.engine,
			Scheduler: sched,
			Roster:    r,
			Profiles:  profiles,
			Gatherer:  a.registry,
			Logger:    a.log,
		})

		errCh := make(chan error, 2)
		go func() { errCh <- sched.Run(ctx) }()
		go srv.SweepSessions(ctx, time.Minute)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				stop()
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.log.Info("shutting down")
		return srv.Stop(shutdownCtx)
	},
}
