package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cartograph/internal/orchestrator"
	"github.com/tonimelisma/cartograph/internal/queryserver"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch the directory and serve its knowledge graph over HTTP",
		Long: `Runs the filesystem watcher, the graph reconciliation loop, and the
query server until interrupted. SIGINT/SIGTERM trigger a graceful
shutdown (a second signal forces an immediate exit); SIGHUP reloads
configuration from the watch root without restarting the watch.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	ctx := shutdownContext(context.Background(), cc.Logger)

	o := orchestrator.New(cc.Holder, indexDefsFrom(cc.Holder.Config()), cc.Logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cc.Holder.Config().Host, cc.Holder.Config().Port),
		Handler:           queryserver.New(o.Graph, cc.Holder, cc.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go watchReload(ctx, cc)

	errCh := make(chan error, 2)

	go func() {
		if err := o.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("orchestrator: %w", err)

			return
		}

		errCh <- nil
	}()

	go func() {
		cc.Logger.Info("query server listening", "addr", srv.Addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("query server: %w", err)

			return
		}

		errCh <- nil
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		cc.Logger.Warn("query server shutdown error", "error", err.Error())
	}

	var firstErr error

	for range 2 {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// shutdownContext returns a context canceled on the first SIGINT/SIGTERM,
// force-exiting the process on a second one so a hung shutdown never
// blocks forever.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", "signal", sig.String())
			os.Exit(1)
		case <-parent.Done():
		}
	}()

	return ctx
}

// watchReload reloads configuration from the watch root on every SIGHUP,
// pushing the result into the shared Holder so the orchestrator and query
// server both pick it up without a restart.
func watchReload(ctx context.Context, cc *CLIContext) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	for {
		select {
		case <-ctx.Done():
			return

		case <-sighup:
			cc.Logger.Info("SIGHUP received, reloading config")

			if err := cc.Holder.Reload(cc.Logger); err != nil {
				cc.Logger.Error("config reload failed, keeping previous config", "error", err.Error())
			}
		}
	}
}
