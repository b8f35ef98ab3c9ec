package web3tools

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// MarshalBlock renders block in the eth_getBlockByNumber response shape.
// types.Block carries no JSON encoding of its own. With fullTx set the
// transactions are rendered in full, otherwise only their hashes.
// A nil block renders as nil.
func MarshalBlock(block *types.Block, fullTx bool) (map[string]any, error) {
	if block == nil {
		return nil, nil
	}

	enc, err := json.Marshal(block.Header())
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(enc, &fields); err != nil {
		return nil, err
	}

	fields["size"] = hexutil.Uint64(block.Size())

	txs := block.Transactions()
	if fullTx {
		fields["transactions"] = txs
	} else {
		hashes := make([]common.Hash, len(txs))
		for i, tx := range txs {
			hashes[i] = tx.Hash()
		}
		fields["transactions"] = hashes
	}

	uncles := block.Uncles()
	uncleHashes := make([]common.Hash, len(uncles))
	for i, uncle := range uncles {
		uncleHashes[i] = uncle.Hash()
	}
	fields["uncles"] = uncleHashes

	if withdrawals := block.Withdrawals(); withdrawals != nil {
		fields["withdrawals"] = withdrawals
	}

	return fields, nil
}
