package web3tools

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/eth/filters"
)

// CallArgs is the JSON transaction object accepted by eth_estimateGas.
type CallArgs struct {
	From                 *common.Address   `json:"from"`
	To                   *common.Address   `json:"to"`
	Gas                  *hexutil.Uint64   `json:"gas"`
	GasPrice             *hexutil.Big      `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big      `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big      `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big      `json:"value"`
	Data                 *hexutil.Bytes    `json:"data"`
	Input                *hexutil.Bytes    `json:"input"`
	AccessList           *types.AccessList `json:"accessList,omitempty"`
}

var (
	callArgsQuantities = []string{"gas", "gasPrice", "maxFeePerGas", "maxPriorityFeePerGas", "value"}
	filterQuantities   = []string{"fromBlock", "toBlock"}
)

// ParseCallArgs decodes a JSON transaction object. Quantities may be hex
// strings or decimal numbers.
func ParseCallArgs(raw []byte) (CallArgs, error) {
	raw, err := hexQuantities(raw, callArgsQuantities)
	if err != nil {
		return CallArgs{}, err
	}

	var args CallArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return CallArgs{}, err
	}
	return args, nil
}

// CallMsg converts the arguments into the message ethclient sends.
// input takes precedence over data when both are present.
func (a CallArgs) CallMsg() ethereum.CallMsg {
	msg := ethereum.CallMsg{
		To:        a.To,
		GasPrice:  a.GasPrice.ToInt(),
		GasFeeCap: a.MaxFeePerGas.ToInt(),
		GasTipCap: a.MaxPriorityFeePerGas.ToInt(),
		Value:     a.Value.ToInt(),
	}

	if a.From != nil {
		msg.From = *a.From
	}
	if a.Gas != nil {
		msg.Gas = uint64(*a.Gas)
	}

	switch {
	case a.Input != nil:
		msg.Data = *a.Input
	case a.Data != nil:
		msg.Data = *a.Data
	}

	if a.AccessList != nil {
		msg.AccessList = *a.AccessList
	}

	return msg
}

// ParseFilter decodes a JSON-RPC log filter object (address, topics,
// fromBlock, toBlock, blockHash) into a filter query. Block numbers may be
// hex, decimal or a tag.
func ParseFilter(raw []byte) (ethereum.FilterQuery, error) {
	raw, err := hexQuantities(raw, filterQuantities)
	if err != nil {
		return ethereum.FilterQuery{}, err
	}

	var crit filters.FilterCriteria
	if err := json.Unmarshal(raw, &crit); err != nil {
		return ethereum.FilterQuery{}, err
	}
	return ethereum.FilterQuery(crit), nil
}

// hexQuantities rewrites decimal values of keys (bare numbers or digit-only
// strings) into the hex form go-ethereum decodes. Anything else, including
// input that is not a JSON object, is returned untouched for the typed
// decoder to accept or reject.
func hexQuantities(raw []byte, keys []string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return raw, nil
	}

	var rewritten bool
	for _, key := range keys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		digits, ok := decimalText(v)
		if !ok {
			continue
		}
		n, ok := new(big.Int).SetString(digits, 10)
		if !ok {
			continue
		}

		enc, err := json.Marshal(hexutil.EncodeBig(n))
		if err != nil {
			return nil, err
		}
		fields[key] = enc
		rewritten = true
	}

	if !rewritten {
		return raw, nil
	}
	return json.Marshal(fields)
}

func decimalText(v json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		s = string(v)
	}
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}
