package main

import (
	"time"

	"github.com/grassrootseconomics/web3tools/pkg/web3tools"
	"github.com/knadh/koanf/v2"
)

// flagOverrides holds the global flags that take precedence over file and env config.
type flagOverrides struct {
	rpcURL     string
	timeoutMs  int
	timeoutSet bool
}

// apply writes the overrides into k. An empty rpcURL and an unset timeout
// leave the loaded values alone.
func (f flagOverrides) apply(k *koanf.Koanf) error {
	if f.rpcURL != "" {
		if err := k.Set("chain.rpc_endpoint", f.rpcURL); err != nil {
			return err
		}
	}
	if f.timeoutSet {
		if err := k.Set("chain.timeout_ms", f.timeoutMs); err != nil {
			return err
		}
	}

	return nil
}

// toolsOpts reads the chain client settings from k. A zero or missing
// timeout_ms is passed through so web3tools.New applies its default.
func toolsOpts(k *koanf.Koanf) (web3tools.ToolsOpts, error) {
	endpoint := k.String("chain.rpc_endpoint")
	if endpoint == "" {
		return web3tools.ToolsOpts{}, errNoEndpoint
	}

	return web3tools.ToolsOpts{
		ProviderURL: endpoint,
		Timeout:     time.Duration(k.Int("chain.timeout_ms")) * time.Millisecond,
	}, nil
}
