// RPC server: the local control plane this daemon exposes, grounded on
// rpcserver.go's per-request-type dispatch but transported over rpcwire's
// framing instead of gRPC, since this daemon's control surface is a small,
// fixed set of wallet/daemon queries rather than lnd's full API.
package maker

import (
	"context"
	"net"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/coinswapd/maker/rpcwire"
	"github.com/coinswapd/maker/wallet"
)

// RPCServer answers rpcwire requests against a Supervisor's wallet and
// daemon state.
type RPCServer struct {
	sup *Supervisor
}

// NewRPCServer constructs an RPCServer bound to sup.
func NewRPCServer(sup *Supervisor) *RPCServer {
	return &RPCServer{sup: sup}
}

// Serve accepts and handles rpcwire connections until ctx is cancelled or
// the Supervisor's shutdown flag is set.
func (s *RPCServer) Serve(ctx context.Context, ln net.Listener) error {
	rpcLog.Infof("RPC server listening on %v", ln.Addr())

	type deadliner interface {
		SetDeadline(time.Time) error
	}

	for {
		if ctx.Err() != nil || s.sup.shuttingDown.Load() {
			return nil
		}

		if d, ok := ln.(deadliner); ok {
			_ = d.SetDeadline(time.Now().Add(HeartbeatInterval))
		}

		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}

		go s.handleConn(conn)
	}
}

func (s *RPCServer) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		req, err := rpcwire.ReadMessage(conn)
		if err != nil {
			return
		}

		reply := s.dispatch(req)
		if err := rpcwire.WriteMessage(conn, reply); err != nil {
			return
		}

		if _, ok := req.(*rpcwire.Stop); ok {
			return
		}
	}
}

func (s *RPCServer) dispatch(req rpcwire.Message) rpcwire.Message {
	switch m := req.(type) {
	case *rpcwire.Ping:
		return &rpcwire.Pong{}

	case *rpcwire.UtxoQuery:
		return s.handleUtxoQuery(m)

	case *rpcwire.BalanceQuery:
		return s.handleBalanceQuery(m)

	case *rpcwire.NewAddress:
		addr, _, err := s.sup.wal.NewAddress()
		if err != nil {
			return errorMsg(err)
		}
		return &rpcwire.Address{Address: addr.EncodeAddress()}

	case *rpcwire.SendToAddress:
		return s.handleSendToAddress(m)

	case *rpcwire.GetTorAddress:
		return &rpcwire.TorAddress{OnionAddress: s.sup.cfg.OnionAddress}

	case *rpcwire.GetDataDir:
		return &rpcwire.DataDir{Path: s.sup.cfg.DataDir}

	case *rpcwire.Stop:
		s.sup.Stop()
		return &rpcwire.Pong{}

	default:
		return &rpcwire.ErrorMsg{Reason: "unrecognized request"}
	}
}

func (s *RPCServer) handleUtxoQuery(m *rpcwire.UtxoQuery) rpcwire.Message {
	category, ok := utxoCategoryForKind(m.Kind())
	if !ok {
		return &rpcwire.ErrorMsg{Reason: "unrecognized utxo category"}
	}

	utxos := s.sup.wal.ListUtxos(category)
	out := make([]rpcwire.Utxo, len(utxos))
	for i, u := range utxos {
		addr := scriptToAddress(u.PkScript, s.sup.wal.Net())
		out[i] = rpcwire.Utxo{
			Txid:      u.OutPoint.Hash,
			Vout:      u.OutPoint.Index,
			Value:     u.Value,
			Address:   addr,
			Confirmed: u.Confirmed,
		}
	}
	return &rpcwire.UtxoList{Utxos: out}
}

func (s *RPCServer) handleBalanceQuery(m *rpcwire.BalanceQuery) rpcwire.Message {
	category, ok := utxoCategoryForKind(m.Kind())
	if !ok {
		return &rpcwire.ErrorMsg{Reason: "unrecognized balance category"}
	}
	return &rpcwire.Balance{Sats: s.sup.wal.Balance(category)}
}

func (s *RPCServer) handleSendToAddress(m *rpcwire.SendToAddress) rpcwire.Message {
	addr, err := btcutil.DecodeAddress(m.ToAddress, s.sup.wal.Net())
	if err != nil {
		return errorMsg(err)
	}
	txid, err := s.sup.wal.SendToAddress(addr, m.AmountSat, m.FeeSat)
	if err != nil {
		return errorMsg(err)
	}
	return &rpcwire.Txid{Txid: *txid}
}

func utxoCategoryForKind(kind rpcwire.MessageType) (wallet.Category, bool) {
	switch kind {
	case rpcwire.MsgSeedUtxo, rpcwire.MsgSeedBalance:
		return wallet.CategorySeed, true
	case rpcwire.MsgSwapUtxo, rpcwire.MsgSwapBalance:
		return wallet.CategorySwap, true
	case rpcwire.MsgContractUtxo, rpcwire.MsgContractBalance:
		return wallet.CategoryContract, true
	case rpcwire.MsgFidelityUtxo, rpcwire.MsgFidelityBalance:
		return wallet.CategoryFidelity, true
	default:
		return 0, false
	}
}

func errorMsg(err error) *rpcwire.ErrorMsg {
	return &rpcwire.ErrorMsg{Reason: err.Error()}
}

// scriptToAddress is supplemented purely for the RPC surface's
// human-readable address fields; the swap/contract core never needs an
// address, only scripts. A script with no single canonical address (a
// contract's HTLC script, say) reports an empty string rather than an
// error — callers just see no address for that entry.
func scriptToAddress(pkScript []byte, net *chaincfg.Params) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, net)
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].EncodeAddress()
}
