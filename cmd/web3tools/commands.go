package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/grassrootseconomics/web3tools/pkg/web3tools"
	"github.com/urfave/cli"
)

var (
	receiptCommand = cli.Command{
		Name:      "receipt",
		Usage:     "fetch transaction receipts (null while pending or unknown)",
		ArgsUsage: "TXHASH [TXHASH...]",
		Action:    receiptAction,
	}

	blockCommand = cli.Command{
		Name:      "block",
		Usage:     "fetch blocks by number, tag or hash",
		ArgsUsage: "ID [ID...]",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "full",
				Usage: "include full transaction objects instead of hashes",
			},
		},
		Action: blockAction,
	}

	estimateGasCommand = cli.Command{
		Name:      "estimate-gas",
		Usage:     "estimate the gas a transaction object would use",
		ArgsUsage: "TXJSON (or - for stdin; quantities as hex or decimal)",
		Action:    estimateGasAction,
	}

	gasPriceCommand = cli.Command{
		Name:   "gas-price",
		Usage:  "print the current gas price in wei",
		Action: gasPriceAction,
	}

	logsCommand = cli.Command{
		Name:      "logs",
		Usage:     "fetch past logs matching a filter object",
		ArgsUsage: "FILTERJSON (or - for stdin; block numbers as hex, decimal or tag)",
		Action:    logsAction,
	}
)

func receiptAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("receipt: at least one transaction hash is required")
	}

	hashes := make([]common.Hash, c.NArg())
	for i, arg := range c.Args() {
		if err := hashes[i].UnmarshalText([]byte(arg)); err != nil {
			return fmt.Errorf("receipt: invalid transaction hash %q: %w", arg, err)
		}
	}

	tools, err := newTools()
	if err != nil {
		return err
	}
	defer tools.Close()

	ctx, stop := notifyShutdown()
	defer stop()

	if len(hashes) == 1 {
		reqCtx, cancel := tools.RequestContext(ctx)
		defer cancel()

		receipt, err := tools.FetchTransactionReceipt(reqCtx, hashes[0])
		if err != nil {
			return err
		}
		return printJSON(receipt)
	}

	p := newPool(tools)
	defer p.Stop()

	receipts, err := p.Receipts(ctx, hashes)
	if err != nil {
		return err
	}
	return printJSON(receipts)
}

func blockAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("block: at least one block identifier is required")
	}

	ids := make([]rpc.BlockNumberOrHash, c.NArg())
	for i, arg := range c.Args() {
		id, err := web3tools.ParseBlockID(arg)
		if err != nil {
			return fmt.Errorf("block: %w", err)
		}
		ids[i] = id
	}

	tools, err := newTools()
	if err != nil {
		return err
	}
	defer tools.Close()

	ctx, stop := notifyShutdown()
	defer stop()

	fullTx := c.Bool("full")

	if len(ids) == 1 {
		reqCtx, cancel := tools.RequestContext(ctx)
		defer cancel()

		block, err := tools.FetchBlockDetails(reqCtx, ids[0])
		if err != nil {
			return err
		}
		fields, err := web3tools.MarshalBlock(block, fullTx)
		if err != nil {
			return err
		}
		return printJSON(fields)
	}

	p := newPool(tools)
	defer p.Stop()

	blocks, err := p.Blocks(ctx, ids)
	if err != nil {
		return err
	}

	rendered := make([]map[string]interface{}, len(blocks))
	for i, block := range blocks {
		if rendered[i], err = web3tools.MarshalBlock(block, fullTx); err != nil {
			return err
		}
	}
	return printJSON(rendered)
}

func estimateGasAction(c *cli.Context) error {
	raw, err := jsonArg(c)
	if err != nil {
		return fmt.Errorf("estimate-gas: %w", err)
	}

	args, err := web3tools.ParseCallArgs(raw)
	if err != nil {
		return fmt.Errorf("estimate-gas: invalid transaction object: %w", err)
	}

	tools, err := newTools()
	if err != nil {
		return err
	}
	defer tools.Close()

	ctx, stop := notifyShutdown()
	defer stop()

	reqCtx, cancel := tools.RequestContext(ctx)
	defer cancel()

	gas, err := tools.EstimateGasUsage(reqCtx, args.CallMsg())
	if err != nil {
		return err
	}
	return printJSON(gas)
}

func gasPriceAction(_ *cli.Context) error {
	tools, err := newTools()
	if err != nil {
		return err
	}
	defer tools.Close()

	ctx, stop := notifyShutdown()
	defer stop()

	reqCtx, cancel := tools.RequestContext(ctx)
	defer cancel()

	price, err := tools.FetchGasPrice(reqCtx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(os.Stdout, price.String())
	return err
}

func logsAction(c *cli.Context) error {
	raw, err := jsonArg(c)
	if err != nil {
		return fmt.Errorf("logs: %w", err)
	}

	q, err := web3tools.ParseFilter(raw)
	if err != nil {
		return fmt.Errorf("logs: invalid filter object: %w", err)
	}

	tools, err := newTools()
	if err != nil {
		return err
	}
	defer tools.Close()

	ctx, stop := notifyShutdown()
	defer stop()

	reqCtx, cancel := tools.RequestContext(ctx)
	defer cancel()

	logs, err := tools.GetPastLogs(reqCtx, q)
	if err != nil {
		return err
	}
	return printJSON(logs)
}

// jsonArg returns the first argument, or stdin when it is "-".
func jsonArg(c *cli.Context) ([]byte, error) {
	arg := c.Args().First()
	switch arg {
	case "":
		return nil, errors.New("a JSON object argument is required")
	case "-":
		return io.ReadAll(os.Stdin)
	default:
		return []byte(arg), nil
	}
}
