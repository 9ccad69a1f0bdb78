package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var noJobs bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), ctx, !noJobs)
		},
	}
	cmd.Flags().BoolVar(&noJobs, "no-jobs", false, "Do not start the cron scheduler")
	return cmd
}

func serve(parent context.Context, cc *commandContext, withJobs bool) error {
	cfg, log := cc.cfg, cc.log
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var certFile, keyFile string
	if cfg.EnableTLS {
		tlsCfg, cert, key, err := buildTLSConfig(cfg)
		if err != nil {
			return fmt.Errorf("TLS setup: %w", err)
		}
		srv.TLSConfig, certFile, keyFile = tlsCfg, cert, key
	}

	if withJobs {
		a.scheduler.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.Bool("tls", cfg.EnableTLS))
		var err error
		if cfg.EnableTLS {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if withJobs {
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			log.Warn("jobs still running at shutdown", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}
