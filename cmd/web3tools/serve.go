package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/grassrootseconomics/web3tools/internal/api"
	"github.com/grassrootseconomics/web3tools/internal/stats"
	"github.com/urfave/cli"
)

var serveCommand = cli.Command{
	Name:   "serve",
	Usage:  "serve the lookups, metrics and stats over HTTP",
	Action: serveAction,
}

// serveAction runs the HTTP API until a shutdown signal arrives or the
// listener fails.
func serveAction(_ *cli.Context) error {
	ctx, stop := notifyShutdown()
	defer stop()

	tools, err := newTools()
	if err != nil {
		return err
	}
	defer tools.Close()
	lo.Debug("loaded chain client", "timeout", tools.Timeout())

	stats := stats.New(stats.StatsOpts{
		Logg: lo,
	})
	lo.Debug("bootstrapped stats provider")

	apiAddr := ko.String("api.address")
	if apiAddr == "" {
		apiAddr = defaultAPIAddress
	}
	apiServer := &http.Server{
		Addr: apiAddr,
		Handler: api.New(api.APIOpts{
			Fetcher:        tools,
			Stats:          stats,
			Logg:           lo,
			RequestContext: tools.RequestContext,
		}),
	}
	lo.Debug("bootstrapped API server")

	serveErr := make(chan error, 1)
	go func() {
		lo.Info("starting API server", "address", apiAddr, "build", build)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		lo.Info("shutdown signal received, initiating graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulShutdownPeriod)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			lo.Error("graceful shutdown timeout exceeded, forcing exit")
		}
		return err
	}

	lo.Info("graceful shutdown complete")
	return nil
}
