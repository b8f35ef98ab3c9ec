package web3tools

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ParseBlockID parses a block identifier given as a decimal number, a 0x hex
// number, a 32 byte hex hash or one of the tags latest, earliest, pending,
// safe and finalized.
func ParseBlockID(s string) (rpc.BlockNumberOrHash, error) {
	s = strings.TrimSpace(s)

	if n, err := strconv.ParseUint(s, 10, 63); err == nil {
		return rpc.BlockNumberOrHashWithNumber(rpc.BlockNumber(n)), nil
	}

	var id rpc.BlockNumberOrHash
	if err := id.UnmarshalJSON(strconv.AppendQuote(nil, s)); err != nil {
		return rpc.BlockNumberOrHash{}, fmt.Errorf("invalid block identifier %q: %w", s, err)
	}

	return id, nil
}
