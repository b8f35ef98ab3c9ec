// Package pool provides a worker pool for running many independent lookups
// concurrently. Each input still maps to exactly one wrapper call; the pool
// only bounds how many of them are in flight at once.
package pool

import (
	"context"
	"io"
	"log/slog"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

type (
	// Fetcher is the subset of web3tools.Tools the pool fans out over.
	Fetcher interface {
		FetchTransactionReceipt(context.Context, common.Hash) (*types.Receipt, error)
		FetchBlockDetails(context.Context, rpc.BlockNumberOrHash) (*types.Block, error)
	}

	// PoolOpts contains configuration options for creating a new Pool.
	PoolOpts struct {
		Logg           *slog.Logger // Structured logger, discarded when nil
		WorkerCount    int          // Number of worker goroutines
		Fetcher        Fetcher      // Lookup client
		RequestContext ContextFunc  // Per-lookup context, e.g. web3tools.Tools.RequestContext
	}

	// ContextFunc derives the context for a single lookup.
	ContextFunc func(context.Context) (context.Context, context.CancelFunc)

	// Pool manages a worker pool for concurrent lookups.
	Pool struct {
		logg       *slog.Logger
		workerPool pond.Pool
		fetcher    Fetcher
		requestCtx ContextFunc
	}
)

// New creates a new Pool instance with the specified number of workers.
func New(o PoolOpts) *Pool {
	if o.Logg == nil {
		o.Logg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.RequestContext == nil {
		o.RequestContext = context.WithCancel
	}

	return &Pool{
		logg: o.Logg,
		workerPool: pond.NewPool(
			o.WorkerCount,
		),
		fetcher:    o.Fetcher,
		requestCtx: o.RequestContext,
	}
}

// Stop gracefully stops the worker pool, waiting for all in-flight tasks to complete.
func (p *Pool) Stop() {
	p.workerPool.StopAndWait()
}

// Receipts fetches the receipt of every hash concurrently.
// Results are in input order; unknown hashes yield nil entries.
func (p *Pool) Receipts(ctx context.Context, hashes []common.Hash) ([]*types.Receipt, error) {
	receipts := make([]*types.Receipt, len(hashes))
	group := p.workerPool.NewGroupContext(ctx)

	for i, hash := range hashes {
		group.SubmitErr(func() error {
			reqCtx, cancel := p.requestCtx(ctx)
			defer cancel()

			receipt, err := p.fetcher.FetchTransactionReceipt(reqCtx, hash)
			if err != nil {
				p.logg.Error("receipt lookup failed", "tx_hash", hash, "error", err)
				return err
			}
			receipts[i] = receipt
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return receipts, nil
}

// Blocks fetches every block concurrently.
// Results are in input order; unknown blocks yield nil entries.
func (p *Pool) Blocks(ctx context.Context, ids []rpc.BlockNumberOrHash) ([]*types.Block, error) {
	blocks := make([]*types.Block, len(ids))
	group := p.workerPool.NewGroupContext(ctx)

	for i, id := range ids {
		group.SubmitErr(func() error {
			reqCtx, cancel := p.requestCtx(ctx)
			defer cancel()

			block, err := p.fetcher.FetchBlockDetails(reqCtx, id)
			if err != nil {
				p.logg.Error("block lookup failed", "block", id.String(), "error", err)
				return err
			}
			blocks[i] = block
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return blocks, nil
}

// Size returns the number of lookups currently waiting in the queue.
func (p *Pool) Size() uint64 {
	return p.workerPool.WaitingTasks()
}

// ActiveWorkers returns the number of workers currently running lookups.
func (p *Pool) ActiveWorkers() int64 {
	return p.workerPool.RunningWorkers()
}
