// Package chainrpc wraps github.com/btcsuite/btcd/rpcclient behind the
// narrow Node interface this daemon actually needs, grounded on
// chainregistry.go's rpcclient.ConnConfig wiring (ported from the
// teacher's older btcrpcclient import path to the current
// github.com/btcsuite/btcd/rpcclient).
package chainrpc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// Node is the chain-query surface the Maker core depends on: liveness, block height,
// an output's confirmation count, a transaction's confirmation count, and
// broadcast. NetworkInfo is supplemented purely for a startup log line.
type Node interface {
	BlockchainInfo() (*btcjson.GetBlockChainInfoResult, error)
	BlockCount() (int64, error)
	TxOutConfirmations(txid *chainhash.Hash, vout uint32) (int64, bool, error)
	RawTransactionConfirmations(txid *chainhash.Hash) (int64, error)
	SendRawTransaction(tx *wire.MsgTx) (*chainhash.Hash, error)
	NetworkInfo() (*btcjson.GetNetworkInfoResult, error)
}

// Config mirrors rpcclient.ConnConfig's fields this daemon exposes through
// its own TOML config.
type Config struct {
	Host         string
	User         string
	Pass         string
	DisableTLS   bool
	HTTPPostMode bool
}

// Client is the production Node backed by a real btcd/bitcoind-compatible
// RPC endpoint.
type Client struct {
	rpc *rpcclient.Client
}

// New dials the configured node, matching chainregistry.go's
// rpcclient.New(connCfg, nil) call (no websocket notification handlers —
// this Node interface is synchronous request/response only).
func New(cfg Config) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		DisableTLS:   cfg.DisableTLS,
		HTTPPostMode: cfg.HTTPPostMode,
	}
	rpc, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("chainrpc: failed to connect to node: %w", err)
	}
	return &Client{rpc: rpc}, nil
}

func (c *Client) BlockchainInfo() (*btcjson.GetBlockChainInfoResult, error) {
	return c.rpc.GetBlockChainInfo()
}

func (c *Client) BlockCount() (int64, error) {
	return c.rpc.GetBlockCount()
}

// TxOutConfirmations returns (confirmations, found, err). found is false
// when the output doesn't exist or is already spent — locating the funding
// output and querying its confirmations tolerates an output that's no
// longer there.
func (c *Client) TxOutConfirmations(txid *chainhash.Hash, vout uint32) (int64, bool, error) {
	out, err := c.rpc.GetTxOut(txid, vout, true)
	if err != nil {
		return 0, false, fmt.Errorf("chainrpc: get_tx_out(%v, %d): %w", txid, vout, err)
	}
	if out == nil {
		return 0, false, nil
	}
	return out.Confirmations, true, nil
}

// RawTransactionConfirmations returns the confirmation count reported by
// get_raw_transaction_info, or an error if the node has no knowledge of the
// transaction at all (it may still be unconfirmed and in the mempool, in
// which case confirmations is 0, not an error).
func (c *Client) RawTransactionConfirmations(txid *chainhash.Hash) (int64, error) {
	info, err := c.rpc.GetRawTransactionVerbose(txid)
	if err != nil {
		return 0, fmt.Errorf("chainrpc: get_raw_transaction_info(%v): %w", txid, err)
	}
	return int64(info.Confirmations), nil
}

func (c *Client) SendRawTransaction(tx *wire.MsgTx) (*chainhash.Hash, error) {
	return c.rpc.SendRawTransaction(tx, false)
}

func (c *Client) NetworkInfo() (*btcjson.GetNetworkInfoResult, error) {
	return c.rpc.GetNetworkInfo()
}

// Shutdown tears down the underlying rpcclient connection.
func (c *Client) Shutdown() {
	c.rpc.Shutdown()
}

var _ Node = (*Client)(nil)
