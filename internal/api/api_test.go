package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/grassrootseconomics/web3tools/internal/stats"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("dial tcp: connection refused")

type stubFetcher struct {
	receipt  *types.Receipt
	block    *types.Block
	gas      uint64
	price    *big.Int
	logs     []types.Log
	err      error
	lastMsg  ethereum.CallMsg
	lastQ    ethereum.FilterQuery
	lastID   rpc.BlockNumberOrHash
	lastHash common.Hash
	deadline bool
}

func (s *stubFetcher) FetchTransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	s.lastHash = hash
	return s.receipt, s.err
}

func (s *stubFetcher) FetchBlockDetails(_ context.Context, id rpc.BlockNumberOrHash) (*types.Block, error) {
	s.lastID = id
	return s.block, s.err
}

func (s *stubFetcher) EstimateGasUsage(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	s.lastMsg = msg
	return s.gas, s.err
}

func (s *stubFetcher) FetchGasPrice(ctx context.Context) (*big.Int, error) {
	_, s.deadline = ctx.Deadline()
	return s.price, s.err
}

func (s *stubFetcher) GetPastLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	s.lastQ = q
	return s.logs, s.err
}

func newTestRouter(fetcher Fetcher) (http.Handler, *stats.Stats) {
	logg := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := stats.New(stats.StatsOpts{Logg: logg})
	return New(APIOpts{Fetcher: fetcher, Stats: st, Logg: logg}), st
}

func serve(t *testing.T, h http.Handler, method, target, body string) (int, map[string]json.RawMessage) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, reader))

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func TestReceipt(t *testing.T) {
	txHash := common.HexToHash("0x7a")

	t.Run("found", func(t *testing.T) {
		fetcher := &stubFetcher{receipt: &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			TxHash:            txHash,
			GasUsed:           21000,
			CumulativeGasUsed: 21000,
			Logs:              []*types.Log{},
			BlockNumber:       big.NewInt(5),
		}}
		h, st := newTestRouter(fetcher)

		code, resp := serve(t, h, http.MethodGet, "/v1/receipt/"+txHash.Hex(), "")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, txHash, fetcher.lastHash)

		var receipt types.Receipt
		require.NoError(t, json.Unmarshal(resp["result"], &receipt))
		require.Equal(t, txHash, receipt.TxHash)
		require.Equal(t, uint64(1), st.Calls(OpReceipt))
	})

	t.Run("not found is a null result", func(t *testing.T) {
		h, _ := newTestRouter(&stubFetcher{})

		code, resp := serve(t, h, http.MethodGet, "/v1/receipt/"+txHash.Hex(), "")
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `null`, string(resp["result"]))
	})

	t.Run("bad hash", func(t *testing.T) {
		h, _ := newTestRouter(&stubFetcher{})

		code, resp := serve(t, h, http.MethodGet, "/v1/receipt/0x12", "")
		require.Equal(t, http.StatusBadRequest, code)
		require.Contains(t, resp, "error")
	})

	t.Run("upstream failure", func(t *testing.T) {
		h, st := newTestRouter(&stubFetcher{err: errUpstream})

		code, resp := serve(t, h, http.MethodGet, "/v1/receipt/"+txHash.Hex(), "")
		require.Equal(t, http.StatusBadGateway, code)
		require.JSONEq(t, `"dial tcp: connection refused"`, string(resp["error"]))
		require.Equal(t, uint64(1), st.Errors(OpReceipt))
	})
}

func TestBlock(t *testing.T) {
	block := types.NewBlockWithHeader(&types.Header{Number: big.NewInt(100), Difficulty: big.NewInt(1)})

	t.Run("by decimal number", func(t *testing.T) {
		fetcher := &stubFetcher{block: block}
		h, _ := newTestRouter(fetcher)

		code, resp := serve(t, h, http.MethodGet, "/v1/block/100", "")
		require.Equal(t, http.StatusOK, code)

		number, ok := fetcher.lastID.Number()
		require.True(t, ok)
		require.Equal(t, rpc.BlockNumber(100), number)

		var fields map[string]interface{}
		require.NoError(t, json.Unmarshal(resp["result"], &fields))
		require.Equal(t, "0x64", fields["number"])
		require.Equal(t, block.Hash().Hex(), fields["hash"])
	})

	t.Run("by tag", func(t *testing.T) {
		fetcher := &stubFetcher{block: block}
		h, _ := newTestRouter(fetcher)

		code, _ := serve(t, h, http.MethodGet, "/v1/block/latest?full=true", "")
		require.Equal(t, http.StatusOK, code)

		number, ok := fetcher.lastID.Number()
		require.True(t, ok)
		require.Equal(t, rpc.LatestBlockNumber, number)
	})

	t.Run("not found", func(t *testing.T) {
		h, _ := newTestRouter(&stubFetcher{})

		code, resp := serve(t, h, http.MethodGet, "/v1/block/0x10", "")
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `null`, string(resp["result"]))
	})

	t.Run("bad identifier", func(t *testing.T) {
		h, _ := newTestRouter(&stubFetcher{})

		code, _ := serve(t, h, http.MethodGet, "/v1/block/tip", "")
		require.Equal(t, http.StatusBadRequest, code)
	})
}

func TestEstimateGas(t *testing.T) {
	fetcher := &stubFetcher{gas: 21000}
	h, _ := newTestRouter(fetcher)

	code, resp := serve(t, h, http.MethodPost, "/v1/estimate-gas",
		`{"to":"0x0000000000000000000000000000000000000abc","value":"0x1"}`)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `21000`, string(resp["result"]))
	require.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000abc"), *fetcher.lastMsg.To)
	require.Equal(t, int64(1), fetcher.lastMsg.Value.Int64())

	code, _ = serve(t, h, http.MethodPost, "/v1/estimate-gas", `{"to":`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestGasPrice(t *testing.T) {
	h, _ := newTestRouter(&stubFetcher{price: big.NewInt(1_000_000_000)})

	code, resp := serve(t, h, http.MethodGet, "/v1/gas-price", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `"1000000000"`, string(resp["result"]))
}

func TestLogs(t *testing.T) {
	logA := types.Log{Address: common.HexToAddress("0xabc"), Topics: []common.Hash{}, BlockNumber: 150, Index: 1}
	logB := types.Log{Address: common.HexToAddress("0xabc"), Topics: []common.Hash{}, BlockNumber: 120, Index: 0}

	t.Run("ordered", func(t *testing.T) {
		fetcher := &stubFetcher{logs: []types.Log{logA, logB}}
		h, _ := newTestRouter(fetcher)

		code, resp := serve(t, h, http.MethodPost, "/v1/logs",
			`{"address":"0x0000000000000000000000000000000000000abc","fromBlock":"0x64","toBlock":"0xc8"}`)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, int64(100), fetcher.lastQ.FromBlock.Int64())
		require.Equal(t, int64(200), fetcher.lastQ.ToBlock.Int64())

		var got []map[string]interface{}
		require.NoError(t, json.Unmarshal(resp["result"], &got))
		require.Len(t, got, 2)
		require.Equal(t, "0x96", got[0]["blockNumber"])
		require.Equal(t, "0x78", got[1]["blockNumber"])
	})

	t.Run("empty", func(t *testing.T) {
		h, _ := newTestRouter(&stubFetcher{})

		code, resp := serve(t, h, http.MethodPost, "/v1/logs", `{}`)
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `[]`, string(resp["result"]))
	})
}

func TestHealthAndStats(t *testing.T) {
	h, _ := newTestRouter(&stubFetcher{})

	code, resp := serve(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `"healthy"`, string(resp["status"]))

	code, resp = serve(t, h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, resp, "operations")
}

func TestRequestContext(t *testing.T) {
	t.Run("request context only by default", func(t *testing.T) {
		fetcher := &stubFetcher{price: big.NewInt(1)}
		h, _ := newTestRouter(fetcher)

		code, _ := serve(t, h, http.MethodGet, "/v1/gas-price", "")
		require.Equal(t, http.StatusOK, code)
		require.False(t, fetcher.deadline)
	})

	t.Run("lookup bounded by request context func", func(t *testing.T) {
		fetcher := &stubFetcher{price: big.NewInt(1)}
		h := New(APIOpts{
			Fetcher: fetcher,
			RequestContext: func(ctx context.Context) (context.Context, context.CancelFunc) {
				return context.WithTimeout(ctx, time.Second)
			},
		})

		code, _ := serve(t, h, http.MethodGet, "/v1/gas-price", "")
		require.Equal(t, http.StatusOK, code)
		require.True(t, fetcher.deadline)
	})
}

func TestBodyTooLarge(t *testing.T) {
	fetcher := &stubFetcher{}
	h, st := newTestRouter(fetcher)

	oversized := `{"address":"0x0000000000000000000000000000000000000abc","pad":"` +
		strings.Repeat("a", maxBodySize) + `"}`

	code, resp := serve(t, h, http.MethodPost, "/v1/logs", oversized)
	require.Equal(t, http.StatusRequestEntityTooLarge, code)
	require.JSONEq(t, `"http: request body too large"`, string(resp["error"]))
	require.Nil(t, fetcher.lastQ.Addresses)
	require.Zero(t, st.Calls(OpLogs))

	code, _ = serve(t, h, http.MethodPost, "/v1/estimate-gas", oversized)
	require.Equal(t, http.StatusRequestEntityTooLarge, code)
}
