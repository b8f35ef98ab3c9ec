// Package main provides the web3tools command line.
// web3tools answers read-only questions about an EVM chain (receipts, blocks,
// gas estimates, gas price and past logs) by forwarding them to a node, either
// one-shot from the shell or through the HTTP API started by `serve`.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/grassrootseconomics/web3tools/internal/pool"
	"github.com/grassrootseconomics/web3tools/internal/util"
	"github.com/grassrootseconomics/web3tools/pkg/web3tools"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli"
)

const (
	// defaultGracefulShutdownPeriod defines the maximum time allowed for graceful shutdown
	// before forcefully terminating the application.
	defaultGracefulShutdownPeriod = time.Second * 30

	// defaultWorkerPoolMultiplier is the multiplier used to calculate default worker pool size
	// based on CPU count when pool_size is not explicitly configured.
	defaultWorkerPoolMultiplier = 3

	// defaultAPIAddress is used by serve when api.address is not configured.
	defaultAPIAddress = ":5000"
)

var (
	// build is set during compilation via -ldflags "-X main.build=<version>"
	build = "dev"

	// lo is the global structured logger instance
	lo *slog.Logger

	// ko is the global configuration instance
	ko *koanf.Koanf

	errNoEndpoint = errors.New("no rpc endpoint configured, set chain.rpc_endpoint, W3TOOLS_CHAIN__RPC_ENDPOINT or --rpc")
)

func main() {
	lo = util.InitLogger()

	app := cli.NewApp()
	app.Name = "web3tools"
	app.Usage = "read-only lookups against an EVM node"
	app.Version = build
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Value: "config.toml",
			Usage: "path to configuration file (TOML format)",
		},
		cli.StringFlag{
			Name:  "rpc",
			Usage: "node endpoint (http, ws or ipc), overrides chain.rpc_endpoint",
		},
		cli.IntFlag{
			Name:  "timeout",
			Usage: "request timeout in milliseconds, overrides chain.timeout_ms",
		},
	}
	app.Before = loadConfig
	app.Commands = []cli.Command{
		receiptCommand,
		blockCommand,
		estimateGasCommand,
		gasPriceCommand,
		logsCommand,
		serveCommand,
	}

	if err := app.Run(os.Args); err != nil {
		lo.Error("web3tools failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies flag overrides.
func loadConfig(c *cli.Context) error {
	ko = util.InitConfig(lo, c.String("config"))

	return flagOverrides{
		rpcURL:     c.String("rpc"),
		timeoutMs:  c.Int("timeout"),
		timeoutSet: c.IsSet("timeout"),
	}.apply(ko)
}

// newTools builds the chain client from the loaded configuration.
func newTools() (*web3tools.Tools, error) {
	o, err := toolsOpts(ko)
	if err != nil {
		return nil, err
	}
	o.Logg = lo

	return web3tools.New(o)
}

// newPool builds the worker pool used when a command receives several inputs.
// Every lookup it runs is bounded by tools.RequestContext.
func newPool(tools *web3tools.Tools) *pool.Pool {
	poolSize := ko.Int("core.pool_size")
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() * defaultWorkerPoolMultiplier
		lo.Debug("using default worker pool size", "cpu_count", runtime.NumCPU(), "pool_size", poolSize)
	}

	return pool.New(pool.PoolOpts{
		Logg:           lo,
		WorkerCount:    poolSize,
		Fetcher:        tools,
		RequestContext: tools.RequestContext,
	})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// notifyShutdown creates a context that is cancelled when the application receives
// a shutdown signal (SIGINT, SIGTERM, or interrupt).
func notifyShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
}
