// Protocol Handler: advances one peer's ConnectionState by exactly one
// message, grounded on peer.go's per-message readHandler dispatch but
// collapsed from a goroutine-per-peer read loop into a single
// request-in/reply-out function the Supervisor's connection loop calls
// once per frame: synchronous request/reply, not an independent per-peer
// actor.
package maker

import (
	"crypto/sha256"
	"sync/atomic"

	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/coinswapd/maker/chainrpc"
	"github.com/coinswapd/maker/contractutil"
	"github.com/coinswapd/maker/wallet"
	"github.com/coinswapd/maker/wire"
)

// ProtocolVersion is the handshake value this Maker advertises in
// MakerHello.
const ProtocolVersion = 1

// MakerBehavior lets tests and chaos-mode config make this Maker misbehave
// at a specific protocol stage, the same "special behavior" hooks the
// safety-property tests are checked against.
type MakerBehavior int

const (
	BehaviorNormal MakerBehavior = iota

	// BehaviorCloseAtReqContractSigsForSender refuses to presign its
	// outgoing contract, simulating a Maker that disappears before ever
	// committing to the route.
	BehaviorCloseAtReqContractSigsForSender

	// BehaviorCloseAtProofOfFunding refuses to validate incoming funding,
	// simulating a Maker that vanishes right as the previous hop
	// confirms.
	BehaviorCloseAtProofOfFunding

	// BehaviorCloseAtContractSigsForRecvrAndSender refuses to acknowledge
	// route finalization.
	BehaviorCloseAtContractSigsForRecvrAndSender

	// BehaviorCloseAtContractSigsForRecvr validates but withholds its
	// reply, simulating a Maker that has already signed but never
	// delivers the signature back.
	BehaviorCloseAtContractSigsForRecvr

	// BehaviorCloseAtHashPreimage withholds acknowledgement of a reveal,
	// forcing every hop onto the timelock-refund path.
	BehaviorCloseAtHashPreimage

	// BehaviorBroadcastContractAfterSetup broadcasts its own outgoing
	// contract transaction instead of cooperating at
	// PrivateKeyHandover, the adversarial case the Recovery Engine's
	// Contract Observer exists to catch.
	BehaviorBroadcastContractAfterSetup
)

// Handler dispatches one inbound message against a peer's ConnectionState.
type Handler struct {
	wal      *wallet.Wallet
	node     chainrpc.Node
	behavior MakerBehavior

	swapIDCounter uint64
}

// NewHandler constructs a Handler bound to wal/node, misbehaving per
// behavior (BehaviorNormal for production use).
func NewHandler(wal *wallet.Wallet, node chainrpc.Node, behavior MakerBehavior) *Handler {
	return &Handler{wal: wal, node: node, behavior: behavior}
}

// Handle advances state by processing msg, returning the reply this Maker
// sends back, or an error. A returned error with no reply means the
// connection should be dropped without a response, matching the
// BehaviorCloseAt* hooks' simulated-disappearance semantics.
func (h *Handler) Handle(state *ConnectionState, msg wire.Message) (wire.Message, error) {
	switch state.ExpectedNextMessage {

	case ExpectTakerHello:
		m, ok := msg.(*wire.TakerHello)
		if !ok {
			return nil, wrapf(ErrProtocol, "expected TakerHello, got %v", msg.MsgType())
		}
		state.TakerAddress = m.TakerAddress
		state.ExpectedNextMessage = ExpectNewlyConnectedTaker
		return &wire.MakerHello{ProtocolVersion: ProtocolVersion}, nil

	case ExpectNewlyConnectedTaker:
		if _, ok := msg.(*wire.NewlyConnectedTaker); !ok {
			return nil, wrapf(ErrProtocol, "expected NewlyConnectedTaker, got %v", msg.MsgType())
		}
		state.SwapID = atomic.AddUint64(&h.swapIDCounter, 1)
		state.ExpectedNextMessage = ExpectReqContractSigsForSender
		return &wire.Ack{}, nil

	case ExpectReqContractSigsForSender:
		if h.behavior == BehaviorCloseAtReqContractSigsForSender {
			return nil, wrapf(ErrSpecialBehavior, "refusing to presign as sender")
		}
		m, ok := msg.(*wire.ReqContractSigsForSender)
		if !ok {
			return nil, wrapf(ErrProtocol, "expected ReqContractSigsForSender, got %v", msg.MsgType())
		}
		sigs := make([][]byte, len(m.TxsInfo))
		for i := range m.TxsInfo {
			coin, sig, err := VerifyAndSignSenderTx(h.wal, &m.TxsInfo[i])
			if err != nil {
				return nil, err
			}
			if err := h.trackSwapcoin(&coin.swapCoinCommon, false); err != nil {
				return nil, err
			}
			state.OutgoingSwapcoins = append(state.OutgoingSwapcoins, coin)
			sigs[i] = sig
		}
		state.ExpectedNextMessage = ExpectProofOfFunding
		return &wire.ContractSigsAsSender{Sigs: sigs}, nil

	case ExpectProofOfFunding, ExpectProofOfFundingOrContractSigsForRecvrAndSender:
		return h.handleProofOfFundingOrFinal(state, msg)

	case ExpectReqContractSigsForRecvr:
		return h.handleReqContractSigsForRecvr(state, msg)

	case ExpectHashPreimage:
		return h.handleHashPreimage(state, msg)

	case ExpectPrivateKeyHandover:
		return h.handlePrivateKeyHandover(state, msg)

	default:
		return nil, wrapf(ErrProtocol, "connection is in an unhandled state %v", state.ExpectedNextMessage)
	}
}

func (h *Handler) handleProofOfFundingOrFinal(state *ConnectionState, msg wire.Message) (wire.Message, error) {
	switch m := msg.(type) {
	case *wire.ProofOfFunding:
		if h.behavior == BehaviorCloseAtProofOfFunding {
			return nil, wrapf(ErrSpecialBehavior, "refusing to validate proof of funding")
		}
		hashValue, incoming, err := VerifyProofOfFunding(h.wal, h.node, state.OutgoingSwapcoins, m)
		if err != nil {
			return nil, err
		}
		if len(state.IncomingSwapcoins) > 0 && state.HashValue != hashValue {
			return nil, wrapf(ErrProtocol, "proof of funding's hash commitment changed mid-route")
		}
		for _, c := range incoming {
			if err := h.trackSwapcoin(&c.swapCoinCommon, true); err != nil {
				return nil, err
			}
		}
		state.HashValue = hashValue
		state.IncomingSwapcoins = incoming

		senderSigs := make([][]byte, len(state.OutgoingSwapcoins))
		for i, c := range state.OutgoingSwapcoins {
			senderSigs[i] = c.OurSig
		}
		state.ExpectedNextMessage = ExpectProofOfFundingOrContractSigsForRecvrAndSender
		return &wire.ContractSigsAsRecvrAndSender{SenderSigs: senderSigs}, nil

	case *wire.ContractSigsForRecvrAndSender:
		if h.behavior == BehaviorCloseAtContractSigsForRecvrAndSender {
			return nil, wrapf(ErrSpecialBehavior, "refusing to acknowledge route finalization")
		}
		state.ExpectedNextMessage = ExpectReqContractSigsForRecvr
		return &wire.Ack{}, nil

	default:
		return nil, wrapf(ErrProtocol, "expected ProofOfFunding or ContractSigsForRecvrAndSender, got %v", msg.MsgType())
	}
}

func (h *Handler) handleReqContractSigsForRecvr(state *ConnectionState, msg wire.Message) (wire.Message, error) {
	m, ok := msg.(*wire.ReqContractSigsForRecvr)
	if !ok {
		return nil, wrapf(ErrProtocol, "expected ReqContractSigsForRecvr, got %v", msg.MsgType())
	}

	sigs := make([][]byte, len(m.Txs))
	for i := range m.Txs {
		tx := &m.Txs[i]
		coin, err := findIncomingSwapCoin(state, tx.ContractTx)
		if err != nil {
			return nil, err
		}
		sig, err := VerifyAndSignContractTx(h.wal, coin, tx.ContractTx, tx.ContractRedeemscript)
		if err != nil {
			return nil, err
		}
		AttachCounterpartySig(coin, tx.CounterpartySig)
		sigs[i] = sig
	}

	if h.behavior == BehaviorCloseAtContractSigsForRecvr {
		return nil, wrapf(ErrSpecialBehavior, "signed but withholding contract sigs for recvr")
	}

	state.ExpectedNextMessage = ExpectHashPreimage
	return &wire.ContractSigsForRecvr{Sigs: sigs}, nil
}

// trackSwapcoin registers c's funding output as a wallet-owned UTXO under
// CategorySwap, the step that moves a SwapCoin's coin from living purely
// inside a ConnectionState to living inside the wallet per the swap
// lifecycle. confirmed is true for an incoming coin (ProofOfFunding already
// required RequiredConfirms before accepting it) and false for an outgoing
// one (the funding output this Maker itself is about to create hasn't
// confirmed yet).
func (h *Handler) trackSwapcoin(c *swapCoinCommon, confirmed bool) error {
	priv := contractutil.TweakPrivKey(h.wal.BaseKey, c.MultisigKeyNonce)
	if err := h.wal.AddUtxo(c.FundingOutpoint, c.FundingValue, c.FundingPkScript,
		wallet.CategorySwap, confirmed, priv); err != nil {
		return wrapf(ErrWallet, "failed to track swapcoin %v in wallet: %v", c.FundingOutpoint, err)
	}
	return nil
}

func findIncomingSwapCoin(state *ConnectionState, contractTx *btcwire.MsgTx) (*IncomingSwapCoin, error) {
	if len(contractTx.TxIn) != 1 {
		return nil, wrapf(ErrProtocol, "contract tx must have exactly one input, has %d", len(contractTx.TxIn))
	}
	prevOut := contractTx.TxIn[0].PreviousOutPoint
	for _, c := range state.IncomingSwapcoins {
		if c.FundingOutpoint == prevOut {
			return c, nil
		}
	}
	return nil, wrapf(ErrProtocol, "no incoming swapcoin matches funding outpoint %v", prevOut)
}

func (h *Handler) handleHashPreimage(state *ConnectionState, msg wire.Message) (wire.Message, error) {
	if h.behavior == BehaviorCloseAtHashPreimage {
		return nil, wrapf(ErrSpecialBehavior, "refusing to acknowledge hash preimage")
	}

	m, ok := msg.(*wire.HashPreimage)
	if !ok {
		return nil, wrapf(ErrProtocol, "expected HashPreimage, got %v", msg.MsgType())
	}

	digest := sha256.Sum256(m.Preimage[:])
	if digest != state.HashValue {
		return nil, wrapf(ErrProtocol, "revealed preimage does not hash to the route's commitment")
	}

	state.ExpectedNextMessage = ExpectPrivateKeyHandover
	return &wire.Ack{}, nil
}

func (h *Handler) handlePrivateKeyHandover(state *ConnectionState, msg wire.Message) (wire.Message, error) {
	if h.behavior == BehaviorBroadcastContractAfterSetup {
		rec := &RecoveryEngine{wal: h.wal, node: h.node}
		for _, c := range state.OutgoingSwapcoins {
			if err := rec.broadcastContract(&c.swapCoinCommon); err != nil {
				return nil, wrapf(ErrNodeRPC, "failed to broadcast outgoing contract for %v: %v",
					c.FundingOutpoint, err)
			}
		}
		return nil, wrapf(ErrSpecialBehavior, "broadcasting outgoing contracts instead of cooperating")
	}

	if _, ok := msg.(*wire.PrivateKeyHandover); !ok {
		return nil, wrapf(ErrProtocol, "expected PrivateKeyHandover, got %v", msg.MsgType())
	}

	privkeys := make([]wire.MultisigPrivkey, len(state.OutgoingSwapcoins))
	for i, c := range state.OutgoingSwapcoins {
		priv := contractutil.TweakPrivKey(h.wal.BaseKey, c.MultisigKeyNonce)
		var raw [32]byte
		copy(raw[:], priv.Serialize())
		privkeys[i] = wire.MultisigPrivkey{MultisigRedeemscript: c.MultisigRedeemscript, Privkey: raw}
	}

	// This Maker just handed away its own half of every outgoing funding
	// multisig, so the counterparty now holds full spending control over
	// those outputs — they're no longer this Maker's coins to track.
	// Incoming coins stay tracked: they were already transferred into the
	// wallet as soon as ProofOfFunding validated them.
	for _, c := range state.OutgoingSwapcoins {
		if err := h.wal.RemoveUtxo(c.FundingOutpoint); err != nil {
			return nil, wrapf(ErrWallet, "failed to remove outgoing swapcoin %v from wallet: %v",
				c.FundingOutpoint, err)
		}
	}
	if err := h.wal.Sync(); err != nil {
		return nil, wrapf(ErrWallet, "wallet sync failed after swap completion: %v", err)
	}

	state.Completed = true
	return &wire.PrivateKeyHandover{MultisigPrivkeys: privkeys}, nil
}
