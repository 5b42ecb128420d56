package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Devdesai111/RevUp-sub000/internal/api"
	"github.com/Devdesai111/RevUp-sub000/internal/banner"
	"github.com/Devdesai111/RevUp-sub000/internal/config"
	"github.com/Devdesai111/RevUp-sub000/internal/jobs"
	"github.com/Devdesai111/RevUp-sub000/internal/logging"
	"github.com/Devdesai111/RevUp-sub000/internal/recalc"
)

const (
	shutdownTimeout = 15 * time.Second
	tokenExpiry     = 24 * time.Hour
)

func newServeCmd() *cobra.Command {
	var (
		addr    string
		noSweep bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API, the worker pool and the missed-day sweeper",
		Long: `Start the HTTP API, the recalculation workers and the scheduled
missed-day sweeper in one process. SIGINT or SIGTERM drains in-flight
requests and jobs before exiting.

Examples:
  revup serve
  revup serve --addr :9090
  revup serve --no-sweep`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.API == nil {
				cfg.API = config.DefaultConfig().API
				cfg.API.JWTSecret = os.ExpandEnv(cfg.API.JWTSecret)
			}
			if addr != "" {
				cfg.API.Addr = addr
			}
			if noSweep && cfg.Sweep != nil {
				cfg.Sweep.Enabled = false
			}
			if cfg.API.JWTSecret == "" {
				return fmt.Errorf("api.jwt_secret is required (set REVUP_JWT_SECRET)")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			hupCh := make(chan os.Signal, 1)
			signal.Notify(hupCh, syscall.SIGHUP)
			defer signal.Stop(hupCh)
			defer func() { _ = logging.Close() }()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			log := logging.WithComponent("serve")

			pool := jobs.NewPool(a.queue, a.engine, cfg.Workers.Count, logging.WithComponent("workers"))
			pool.Start(ctx)
			defer pool.Stop()

			sweeper := jobs.NewSweeper(a.store, a.queue, a.notifier, cfg.SweeperConfig(), logging.WithComponent("sweeper"))
			if err := sweeper.Start(ctx); err != nil {
				return err
			}
			defer sweeper.Stop()

			srv := api.NewServer(a.store, a.queue, a.engine,
				api.NewTokenService(cfg.API.JWTSecret, tokenExpiry),
				api.WithHub(a.hub),
				api.WithOutcomes(a.counters, recalc.Outcomes...),
				api.WithPool(pool),
				api.WithHealth(a.probes()...),
				api.WithTimeout(cfg.API.RequestTimeout.Std()),
			)
			httpSrv := &http.Server{
				Addr:              cfg.API.Addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			banner.StartupWithHealth(os.Stdout, version, cfg.API.Addr, cfg)
			if st := sweeper.Status(); st.Running {
				fmt.Println(row("Next sweep", st.NextRun.Format(time.RFC3339)))
			}

		wait:
			for {
				select {
				case <-hupCh:
					if err := logging.Rotate(); err != nil {
						log.Warn("log rotation failed", "error", err)
						continue
					}
					log.Info("log file rotated")
				case <-sigCh:
					log.Info("shutting down")
					break wait
				case err := <-errCh:
					return fmt.Errorf("api server failed: %w", err)
				}
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				log.Warn("api shutdown incomplete", "error", err)
			}
			cancel()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides api.addr)")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "disable the missed-day sweeper")

	return cmd
}
