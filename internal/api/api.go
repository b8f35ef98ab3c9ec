// Package api provides HTTP API endpoints for web3tools.
// It exposes the five chain lookups under /v1 together with Prometheus
// metrics, lookup statistics and a health check.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/grassrootseconomics/web3tools/internal/stats"
	"github.com/grassrootseconomics/web3tools/pkg/web3tools"
	"github.com/uptrace/bunrouter"
)

const (
	// metricsPath is the HTTP path for Prometheus metrics endpoint
	metricsPath = "/metrics"
	// statsPath is the HTTP path for service statistics endpoint
	statsPath = "/stats"
	// healthPath is the HTTP path for health check endpoint
	healthPath = "/health"

	// maxBodySize caps request bodies for the POST lookups.
	maxBodySize = 1 << 20
)

// Operation names used for stats and metrics labels.
const (
	OpReceipt     = "receipt"
	OpBlock       = "block"
	OpEstimateGas = "estimate_gas"
	OpGasPrice    = "gas_price"
	OpLogs        = "logs"
)

type (
	// Fetcher is the lookup surface served by the API.
	Fetcher interface {
		FetchTransactionReceipt(context.Context, common.Hash) (*types.Receipt, error)
		FetchBlockDetails(context.Context, rpc.BlockNumberOrHash) (*types.Block, error)
		EstimateGasUsage(context.Context, ethereum.CallMsg) (uint64, error)
		FetchGasPrice(context.Context) (*big.Int, error)
		GetPastLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error)
	}

	// APIOpts contains configuration options for creating the API router.
	APIOpts struct {
		Fetcher        Fetcher      // Chain lookups
		Stats          *stats.Stats // Per-operation statistics
		Logg           *slog.Logger // Structured logger, discarded when nil
		RequestContext ContextFunc  // Per-lookup context, e.g. web3tools.Tools.RequestContext
	}

	// ContextFunc derives the context for a single lookup from the request context.
	ContextFunc func(context.Context) (context.Context, context.CancelFunc)

	api struct {
		fetcher    Fetcher
		stats      *stats.Stats
		logg       *slog.Logger
		requestCtx ContextFunc
	}

	resultResponse struct {
		Result interface{} `json:"result"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

// New creates a new HTTP router with all API endpoints registered.
func New(o APIOpts) *bunrouter.Router {
	if o.Logg == nil {
		o.Logg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Stats == nil {
		o.Stats = stats.New(stats.StatsOpts{Logg: o.Logg})
	}
	if o.RequestContext == nil {
		o.RequestContext = context.WithCancel
	}

	a := &api{
		fetcher:    o.Fetcher,
		stats:      o.Stats,
		logg:       o.Logg,
		requestCtx: o.RequestContext,
	}

	router := bunrouter.New()

	router.GET(metricsPath, metricsHandler())
	router.GET(statsPath, a.statsHandler)
	router.GET(healthPath, healthHandler())

	router.WithGroup("/v1", func(g *bunrouter.Group) {
		g.GET("/receipt/:hash", a.receiptHandler)
		g.GET("/block/:id", a.blockHandler)
		g.POST("/estimate-gas", a.estimateGasHandler)
		g.GET("/gas-price", a.gasPriceHandler)
		g.POST("/logs", a.logsHandler)
	})

	return router
}

// metricsHandler returns a handler that serves Prometheus metrics.
func metricsHandler() bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, _ bunrouter.Request) error {
		metrics.WritePrometheus(w, true)
		return nil
	}
}

// healthHandler returns a handler for health checks.
func healthHandler() bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, _ bunrouter.Request) error {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
		return nil
	}
}

func (a *api) statsHandler(w http.ResponseWriter, _ bunrouter.Request) error {
	return writeJSON(w, http.StatusOK, a.stats.APIStatsResponse())
}

func (a *api) receiptHandler(w http.ResponseWriter, req bunrouter.Request) error {
	var txHash common.Hash
	if err := txHash.UnmarshalText([]byte(req.Param("hash"))); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	ctx, cancel := a.requestCtx(req.Context())
	defer cancel()

	started := time.Now()
	receipt, err := a.fetcher.FetchTransactionReceipt(ctx, txHash)
	a.stats.Record(OpReceipt, started, err)
	if err != nil {
		return a.upstreamError(w, OpReceipt, err)
	}

	return writeResult(w, receipt)
}

func (a *api) blockHandler(w http.ResponseWriter, req bunrouter.Request) error {
	id, err := web3tools.ParseBlockID(req.Param("id"))
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	var fullTx bool
	if v := req.URL.Query().Get("full"); v != "" {
		if fullTx, err = strconv.ParseBool(v); err != nil {
			return writeError(w, http.StatusBadRequest, err)
		}
	}

	ctx, cancel := a.requestCtx(req.Context())
	defer cancel()

	started := time.Now()
	block, err := a.fetcher.FetchBlockDetails(ctx, id)
	a.stats.Record(OpBlock, started, err)
	if err != nil {
		return a.upstreamError(w, OpBlock, err)
	}

	fields, err := web3tools.MarshalBlock(block, fullTx)
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err)
	}

	return writeResult(w, fields)
}

func (a *api) estimateGasHandler(w http.ResponseWriter, req bunrouter.Request) error {
	body, err := readBody(w, req)
	if err != nil {
		return writeError(w, bodyErrorStatus(err), err)
	}

	args, err := web3tools.ParseCallArgs(body)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	ctx, cancel := a.requestCtx(req.Context())
	defer cancel()

	started := time.Now()
	gas, err := a.fetcher.EstimateGasUsage(ctx, args.CallMsg())
	a.stats.Record(OpEstimateGas, started, err)
	if err != nil {
		return a.upstreamError(w, OpEstimateGas, err)
	}

	return writeResult(w, gas)
}

func (a *api) gasPriceHandler(w http.ResponseWriter, req bunrouter.Request) error {
	ctx, cancel := a.requestCtx(req.Context())
	defer cancel()

	started := time.Now()
	price, err := a.fetcher.FetchGasPrice(ctx)
	a.stats.Record(OpGasPrice, started, err)
	if err != nil {
		return a.upstreamError(w, OpGasPrice, err)
	}

	return writeResult(w, price.String())
}

func (a *api) logsHandler(w http.ResponseWriter, req bunrouter.Request) error {
	body, err := readBody(w, req)
	if err != nil {
		return writeError(w, bodyErrorStatus(err), err)
	}

	q, err := web3tools.ParseFilter(body)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}

	ctx, cancel := a.requestCtx(req.Context())
	defer cancel()

	started := time.Now()
	logs, err := a.fetcher.GetPastLogs(ctx, q)
	a.stats.Record(OpLogs, started, err)
	if err != nil {
		return a.upstreamError(w, OpLogs, err)
	}

	if logs == nil {
		logs = []types.Log{}
	}
	return writeResult(w, logs)
}

func (a *api) upstreamError(w http.ResponseWriter, op string, err error) error {
	a.logg.Error("chain lookup failed", "operation", op, "error", err)
	return writeError(w, http.StatusBadGateway, err)
}

func readBody(w http.ResponseWriter, req bunrouter.Request) ([]byte, error) {
	defer req.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodySize))
}

func bodyErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeResult(w http.ResponseWriter, v interface{}) error {
	return writeJSON(w, http.StatusOK, resultResponse{Result: v})
}

func writeError(w http.ResponseWriter, status int, err error) error {
	return writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
