// Package web3tools provides a narrow, stable call surface over the go-ethereum
// RPC client. Every lookup forwards its arguments to exactly one ethclient call
// and returns the result unmodified.
package web3tools

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"
)

const (
	// DefaultTimeout is the request timeout used when ToolsOpts.Timeout is zero.
	DefaultTimeout = 10 * time.Second
)

type (
	// ToolsOpts contains configuration options for creating a new Tools instance.
	ToolsOpts struct {
		ProviderURL string        // Node endpoint (http, ws or ipc)
		Timeout     time.Duration // Request timeout, DefaultTimeout when zero
		Logg        *slog.Logger  // Structured logger, optional
	}

	// Tools wraps a single, exclusively owned ethclient.Client.
	// It holds no mutable state and is safe for concurrent use.
	Tools struct {
		client  backend
		timeout time.Duration
		// httpTransport is set when the http.Client enforces timeout per request.
		httpTransport bool
	}

	// backend is the subset of *ethclient.Client that Tools delegates to.
	backend interface {
		TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error)
		BlockByNumber(context.Context, *big.Int) (*types.Block, error)
		BlockByHash(context.Context, common.Hash) (*types.Block, error)
		EstimateGas(context.Context, ethereum.CallMsg) (uint64, error)
		SuggestGasPrice(context.Context) (*big.Int, error)
		FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error)
		Close()
	}
)

var _ backend = (*ethclient.Client)(nil)

// New creates a Tools instance connected to the given provider endpoint.
// HTTP endpoints are not contacted until the first lookup; websocket and IPC
// endpoints are dialed immediately by go-ethereum.
func New(o ToolsOpts) (*Tools, error) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client, err := newClient(o.ProviderURL, timeout)
	if err != nil {
		return nil, err
	}

	if o.Logg != nil {
		o.Logg.Debug("web3tools client configured", "provider", o.ProviderURL, "timeout", timeout)
	}

	return &Tools{
		client:        client,
		timeout:       timeout,
		httpTransport: isHTTPEndpoint(o.ProviderURL),
	}, nil
}

func isHTTPEndpoint(providerURL string) bool {
	u, err := url.Parse(providerURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// newClient dials the provider with the timeout applied to the transport.
func newClient(providerURL string, timeout time.Duration) (*ethclient.Client, error) {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	wsDialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	rpcClient, err := rpc.DialOptions(
		context.Background(),
		providerURL,
		rpc.WithHTTPClient(httpClient),
		rpc.WithWebsocketDialer(wsDialer),
	)
	if err != nil {
		return nil, err
	}

	return ethclient.NewClient(rpcClient), nil
}

// Timeout returns the request timeout the underlying client was configured with.
func (t *Tools) Timeout() time.Duration {
	return t.timeout
}

// RequestContext derives the context a caller should pass to one lookup.
// Over HTTP the transport already times each request out and ctx is only made
// cancellable. Websocket and IPC connections have no per-request deadline in
// go-ethereum, so there ctx is bounded by the configured timeout.
// The lookups never apply this themselves.
func (t *Tools) RequestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.httpTransport {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

// Close releases the underlying client.
func (t *Tools) Close() {
	t.client.Close()
}

// FetchTransactionReceipt returns the receipt for txHash.
// A nil receipt with a nil error means the transaction is unknown or not yet mined.
func (t *Tools) FetchTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := t.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return receipt, err
}

// FetchBlockDetails returns the block identified by number, tag or hash.
// A nil block with a nil error means the node does not know the block.
func (t *Tools) FetchBlockDetails(ctx context.Context, id rpc.BlockNumberOrHash) (*types.Block, error) {
	var (
		block *types.Block
		err   error
	)

	if hash, ok := id.Hash(); ok {
		block, err = t.client.BlockByHash(ctx, hash)
	} else {
		block, err = t.client.BlockByNumber(ctx, blockNumberArg(id))
	}

	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return block, err
}

// EstimateGasUsage returns the gas the node expects msg to consume.
// Reverts and malformed calls are reported by the node and returned as is.
func (t *Tools) EstimateGasUsage(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return t.client.EstimateGas(ctx, msg)
}

// FetchGasPrice returns the node's current gas price in wei.
func (t *Tools) FetchGasPrice(ctx context.Context) (*big.Int, error) {
	return t.client.SuggestGasPrice(ctx)
}

// GetPastLogs returns the logs matching q in the order the node reports them.
func (t *Tools) GetPastLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return t.client.FilterLogs(ctx, q)
}

// blockNumberArg converts the number part of id into the form ethclient expects.
// Tags are negative rpc.BlockNumber values which ethclient encodes back into
// their names; a missing number selects the latest block.
func blockNumberArg(id rpc.BlockNumberOrHash) *big.Int {
	number, ok := id.Number()
	if !ok {
		return nil
	}
	return big.NewInt(number.Int64())
}
