// Command tables for maker-cli, grounded on cmd/lncli/commands.go's
// one-cli.Command-per-RPC shape, reframed onto the rpcwire control plane
// instead of a gRPC client.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli"

	"github.com/coinswapd/maker/rpcwire"
)

func commands() []cli.Command {
	return []cli.Command{
		pingCommand,
		balanceCommand,
		utxosCommand,
		newAddressCommand,
		sendToAddressCommand,
		torAddressCommand,
		dataDirCommand,
		stopCommand,
	}
}

var pingCommand = cli.Command{
	Name:   "ping",
	Usage:  "Check whether the daemon is reachable",
	Action: actionFunc(func(c *rpcClient, ctx *cli.Context) error {
		if _, err := c.call(&rpcwire.Ping{}); err != nil {
			return err
		}
		fmt.Println("pong")
		return nil
	}),
}

var balanceCommand = cli.Command{
	Name:      "balance",
	Usage:     "Show one UTXO category's confirmed balance",
	ArgsUsage: "seed|swap|contract|fidelity",
	Action: actionFunc(func(c *rpcClient, ctx *cli.Context) error {
		kind, err := balanceKind(ctx.Args().First())
		if err != nil {
			return err
		}
		reply, err := c.call(rpcwire.NewBalanceQuery(kind))
		if err != nil {
			return err
		}
		fmt.Printf("%d sats\n", reply.(*rpcwire.Balance).Sats)
		return nil
	}),
}

var utxosCommand = cli.Command{
	Name:      "utxos",
	Usage:     "List one UTXO category's coins",
	ArgsUsage: "seed|swap|contract|fidelity",
	Action: actionFunc(func(c *rpcClient, ctx *cli.Context) error {
		kind, err := utxoKind(ctx.Args().First())
		if err != nil {
			return err
		}
		reply, err := c.call(rpcwire.NewUtxoQuery(kind))
		if err != nil {
			return err
		}
		printUtxos(reply.(*rpcwire.UtxoList).Utxos)
		return nil
	}),
}

var newAddressCommand = cli.Command{
	Name:  "newaddress",
	Usage: "Generate a fresh wallet address",
	Action: actionFunc(func(c *rpcClient, ctx *cli.Context) error {
		reply, err := c.call(&rpcwire.NewAddress{})
		if err != nil {
			return err
		}
		fmt.Println(reply.(*rpcwire.Address).Address)
		return nil
	}),
}

var sendToAddressCommand = cli.Command{
	Name:      "sendtoaddress",
	Usage:     "Spend from the seed balance to an address",
	ArgsUsage: "<address> <amount_sat> <fee_sat>",
	Action: actionFunc(func(c *rpcClient, ctx *cli.Context) error {
		args := ctx.Args()
		if len(args) != 3 {
			return fmt.Errorf("sendtoaddress: expected <address> <amount_sat> <fee_sat>")
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("sendtoaddress: invalid amount: %w", err)
		}
		fee, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("sendtoaddress: invalid fee: %w", err)
		}
		reply, err := c.call(&rpcwire.SendToAddress{
			ToAddress: args[0],
			AmountSat: amount,
			FeeSat:    fee,
		})
		if err != nil {
			return err
		}
		txid := reply.(*rpcwire.Txid).Txid
		fmt.Printf("%x\n", reverseBytes(txid[:]))
		return nil
	}),
}

var torAddressCommand = cli.Command{
	Name:  "toraddress",
	Usage: "Show the daemon's advertised onion address, if any",
	Action: actionFunc(func(c *rpcClient, ctx *cli.Context) error {
		reply, err := c.call(&rpcwire.GetTorAddress{})
		if err != nil {
			return err
		}
		addr := reply.(*rpcwire.TorAddress).OnionAddress
		if addr == "" {
			addr = "(none)"
		}
		fmt.Println(addr)
		return nil
	}),
}

var dataDirCommand = cli.Command{
	Name:  "datadir",
	Usage: "Show the daemon's data directory",
	Action: actionFunc(func(c *rpcClient, ctx *cli.Context) error {
		reply, err := c.call(&rpcwire.GetDataDir{})
		if err != nil {
			return err
		}
		fmt.Println(reply.(*rpcwire.DataDir).Path)
		return nil
	}),
}

var stopCommand = cli.Command{
	Name:  "stop",
	Usage: "Request an orderly daemon shutdown",
	Action: actionFunc(func(c *rpcClient, ctx *cli.Context) error {
		_, err := c.call(&rpcwire.Stop{})
		return err
	}),
}

func balanceKind(s string) (rpcwire.MessageType, error) {
	switch s {
	case "seed":
		return rpcwire.MsgSeedBalance, nil
	case "swap":
		return rpcwire.MsgSwapBalance, nil
	case "contract":
		return rpcwire.MsgContractBalance, nil
	case "fidelity":
		return rpcwire.MsgFidelityBalance, nil
	default:
		return 0, fmt.Errorf("balance: unknown category %q", s)
	}
}

func utxoKind(s string) (rpcwire.MessageType, error) {
	switch s {
	case "seed":
		return rpcwire.MsgSeedUtxo, nil
	case "swap":
		return rpcwire.MsgSwapUtxo, nil
	case "contract":
		return rpcwire.MsgContractUtxo, nil
	case "fidelity":
		return rpcwire.MsgFidelityUtxo, nil
	default:
		return 0, fmt.Errorf("utxos: unknown category %q", s)
	}
}

func printUtxos(utxos []rpcwire.Utxo) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Txid", "Vout", "Value (sats)", "Address", "Confirmed"})
	for _, u := range utxos {
		t.AppendRow(table.Row{
			fmt.Sprintf("%x", reverseBytes(u.Txid[:])),
			u.Vout,
			u.Value,
			u.Address,
			u.Confirmed,
		})
	}
	t.Render()
}

// reverseBytes flips a chainhash-style reversed-byte txid back into the
// big-endian display order every block explorer uses.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// actionFunc adapts a (*rpcClient, *cli.Context) handler into a plain
// cli.ActionFunc, dialing the daemon once per invocation and closing the
// connection on the way out.
func actionFunc(fn func(*rpcClient, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := dial(ctx.GlobalString("rpcserver"))
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(c, ctx)
	}
}
