package wire

import (
	"io"

	btcwire "github.com/btcsuite/btcd/wire"
)

// TakerHello is the first message of every connection: the handshake and
// identity announcement that puts a peer's ConnectionState into existence.
type TakerHello struct {
	ProtocolVersion uint32
	TakerAddress    string
}

func (m *TakerHello) MsgType() MessageType { return MsgTakerHello }

func (m *TakerHello) Encode(w io.Writer) error {
	if err := writeUint32(w, m.ProtocolVersion); err != nil {
		return err
	}
	return writeString(w, m.TakerAddress)
}

func (m *TakerHello) Decode(r io.Reader) error {
	var err error
	if m.ProtocolVersion, err = readUint32(r); err != nil {
		return err
	}
	m.TakerAddress, err = readString(r)
	return err
}

// MakerHello is the Maker's handshake reply.
type MakerHello struct {
	ProtocolVersion uint32
}

func (m *MakerHello) MsgType() MessageType { return MsgMakerHello }

func (m *MakerHello) Encode(w io.Writer) error {
	return writeUint32(w, m.ProtocolVersion)
}

func (m *MakerHello) Decode(r io.Reader) error {
	var err error
	m.ProtocolVersion, err = readUint32(r)
	return err
}

// NewlyConnectedTaker describes the swap the Taker wants to route through
// this hop, before any funding has happened.
type NewlyConnectedTaker struct {
	Amount     int64
	MakerCount uint8
	TxCount    uint8
}

func (m *NewlyConnectedTaker) MsgType() MessageType { return MsgNewlyConnectedTaker }

func (m *NewlyConnectedTaker) Encode(w io.Writer) error {
	if err := writeInt64(w, m.Amount); err != nil {
		return err
	}
	if err := writeUint8(w, m.MakerCount); err != nil {
		return err
	}
	return writeUint8(w, m.TxCount)
}

func (m *NewlyConnectedTaker) Decode(r io.Reader) error {
	var err error
	if m.Amount, err = readInt64(r); err != nil {
		return err
	}
	if m.MakerCount, err = readUint8(r); err != nil {
		return err
	}
	m.TxCount, err = readUint8(r)
	return err
}

// Ack is a contentless acknowledgement used where the state machine requires
// a reply but no data needs to flow.
type Ack struct{}

func (m *Ack) MsgType() MessageType        { return MsgAck }
func (m *Ack) Encode(w io.Writer) error    { return nil }
func (m *Ack) Decode(r io.Reader) error    { return nil }

// SenderTxInfo is one funding position the Taker is asking this Maker to
// pre-sign a contract transaction against, where this Maker ends up as the
// sender of that HTLC (i.e. the next hop's funding).
type SenderTxInfo struct {
	MultisigNonce [32]byte

	// TimelockNonce derives this Maker's own key for the contract's
	// timelock branch: as the sender of this hop, the Maker holds the
	// refund path, while the receiving counterparty holds the hashlock
	// (preimage-redeem) path.
	TimelockNonce [32]byte
	Timelock      uint16
	SenderContractTx     *btcwire.MsgTx
	MultisigRedeemscript []byte
	FundingInputValue    int64

	// HashValue is the swap route's public hash commitment (the
	// preimage stays secret until HashPreimage), shared by every hop so
	// each contract's hashlock branch is checkable before the preimage
	// is ever revealed.
	HashValue [32]byte

	// CounterpartyPubkey is the taker's/previous-maker's half of this
	// contract's multisig and hashlock-branch counterpart key.
	CounterpartyPubkey []byte

	// CounterpartySig is the counterparty's own half of the 2-of-2
	// signature over SenderContractTx, collected and forwarded by the
	// party coordinating the route so this Maker receives a fully
	// combinable, fully signed contract transaction in the same message
	// it's asked to add its own signature to — neither side is ever left
	// needing the other's future cooperation to use its refund path.
	CounterpartySig []byte
}

func (t *SenderTxInfo) encode(w io.Writer) error {
	if err := writeFixed32(w, t.MultisigNonce); err != nil {
		return err
	}
	if err := writeFixed32(w, t.TimelockNonce); err != nil {
		return err
	}
	if err := writeUint16(w, t.Timelock); err != nil {
		return err
	}
	if err := writeTx(w, t.SenderContractTx); err != nil {
		return err
	}
	if err := writeVarBytes(w, t.MultisigRedeemscript); err != nil {
		return err
	}
	if err := writeInt64(w, t.FundingInputValue); err != nil {
		return err
	}
	if err := writeFixed32(w, t.HashValue); err != nil {
		return err
	}
	if err := writeVarBytes(w, t.CounterpartyPubkey); err != nil {
		return err
	}
	return writeVarBytes(w, t.CounterpartySig)
}

func (t *SenderTxInfo) decode(r io.Reader) error {
	var err error
	if t.MultisigNonce, err = readFixed32(r); err != nil {
		return err
	}
	if t.TimelockNonce, err = readFixed32(r); err != nil {
		return err
	}
	if t.Timelock, err = readUint16(r); err != nil {
		return err
	}
	if t.SenderContractTx, err = readTx(r); err != nil {
		return err
	}
	if t.MultisigRedeemscript, err = readVarBytes(r); err != nil {
		return err
	}
	if t.FundingInputValue, err = readInt64(r); err != nil {
		return err
	}
	if t.HashValue, err = readFixed32(r); err != nil {
		return err
	}
	if t.CounterpartyPubkey, err = readVarBytes(r); err != nil {
		return err
	}
	t.CounterpartySig, err = readVarBytes(r)
	return err
}

// ReqContractSigsForSender asks the Maker to sign one or more contract
// transactions where the Maker will be the sender (outgoing) party.
type ReqContractSigsForSender struct {
	TxsInfo []SenderTxInfo
}

func (m *ReqContractSigsForSender) MsgType() MessageType { return MsgReqContractSigsForSender }

func (m *ReqContractSigsForSender) Encode(w io.Writer) error {
	if err := writeUint16(w, uint16(len(m.TxsInfo))); err != nil {
		return err
	}
	for i := range m.TxsInfo {
		if err := m.TxsInfo[i].encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *ReqContractSigsForSender) Decode(r io.Reader) error {
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	m.TxsInfo = make([]SenderTxInfo, n)
	for i := range m.TxsInfo {
		if err := m.TxsInfo[i].decode(r); err != nil {
			return err
		}
	}
	return nil
}

// ContractSigsAsSender carries the Maker's signatures for the contract
// transactions requested by ReqContractSigsForSender, one per entry, in
// order. All-or-nothing: the Maker never sends a partial set.
type ContractSigsAsSender struct {
	Sigs [][]byte
}

func (m *ContractSigsAsSender) MsgType() MessageType  { return MsgContractSigsAsSender }
func (m *ContractSigsAsSender) Encode(w io.Writer) error { return writeByteSlices(w, m.Sigs) }
func (m *ContractSigsAsSender) Decode(r io.Reader) error {
	sigs, err := readByteSlices(r)
	if err != nil {
		return err
	}
	m.Sigs = sigs
	return nil
}

// FundingTxInfo describes one now-confirmed funding output of the previous
// hop, handed to this Maker so it can verify the multisig/contract it is
// the receiving party of.
type FundingTxInfo struct {
	FundingTx            *btcwire.MsgTx
	FundingOutputIndex   uint32
	MultisigNonce        [32]byte
	HashlockNonce        [32]byte
	ContractRedeemscript []byte

	// ContractLocktime is the relative timelock embedded in
	// ContractRedeemscript (this hop's "hop_locktime").
	ContractLocktime uint16

	// CounterpartyMultisigPubkey/CounterpartyTimelockPubkey are the
	// other side's half of the multisig and the contract's timelock
	// branch — this Maker's own halves are derived locally from the
	// nonces above, but the counterparty's raw pubkeys have to be sent
	// since they aren't derivable from a nonce this Maker doesn't hold
	// the base key for.
	CounterpartyMultisigPubkey  []byte
	CounterpartyTimelockPubkey []byte

	// HashValue is the swap route's public hash commitment, shared by
	// every FundingTxInfo in a ProofOfFunding batch.
	HashValue [32]byte
}

func (t *FundingTxInfo) encode(w io.Writer) error {
	if err := writeTx(w, t.FundingTx); err != nil {
		return err
	}
	if err := writeUint32(w, t.FundingOutputIndex); err != nil {
		return err
	}
	if err := writeFixed32(w, t.MultisigNonce); err != nil {
		return err
	}
	if err := writeFixed32(w, t.HashlockNonce); err != nil {
		return err
	}
	if err := writeVarBytes(w, t.ContractRedeemscript); err != nil {
		return err
	}
	if err := writeUint16(w, t.ContractLocktime); err != nil {
		return err
	}
	if err := writeVarBytes(w, t.CounterpartyMultisigPubkey); err != nil {
		return err
	}
	if err := writeVarBytes(w, t.CounterpartyTimelockPubkey); err != nil {
		return err
	}
	return writeFixed32(w, t.HashValue)
}

func (t *FundingTxInfo) decode(r io.Reader) error {
	var err error
	if t.FundingTx, err = readTx(r); err != nil {
		return err
	}
	if t.FundingOutputIndex, err = readUint32(r); err != nil {
		return err
	}
	if t.MultisigNonce, err = readFixed32(r); err != nil {
		return err
	}
	if t.HashlockNonce, err = readFixed32(r); err != nil {
		return err
	}
	if t.ContractRedeemscript, err = readVarBytes(r); err != nil {
		return err
	}
	if t.ContractLocktime, err = readUint16(r); err != nil {
		return err
	}
	if t.CounterpartyMultisigPubkey, err = readVarBytes(r); err != nil {
		return err
	}
	if t.CounterpartyTimelockPubkey, err = readVarBytes(r); err != nil {
		return err
	}
	t.HashValue, err = readFixed32(r)
	return err
}

// ProofOfFunding announces that the previous hop's funding transactions
// have confirmed, carrying everything the Message Validator needs to check
// them (verify_proof_of_funding).
type ProofOfFunding struct {
	ConfirmedFundingTxes []FundingTxInfo
}

func (m *ProofOfFunding) MsgType() MessageType { return MsgProofOfFunding }

func (m *ProofOfFunding) Encode(w io.Writer) error {
	if err := writeUint16(w, uint16(len(m.ConfirmedFundingTxes))); err != nil {
		return err
	}
	for i := range m.ConfirmedFundingTxes {
		if err := m.ConfirmedFundingTxes[i].encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *ProofOfFunding) Decode(r io.Reader) error {
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	m.ConfirmedFundingTxes = make([]FundingTxInfo, n)
	for i := range m.ConfirmedFundingTxes {
		if err := m.ConfirmedFundingTxes[i].decode(r); err != nil {
			return err
		}
	}
	return nil
}

// ContractSigsAsRecvrAndSender is the Maker's reply to ProofOfFunding: its
// signature as the receiving party of the previous hop's contract, and its
// signature as the sending party of the next hop's contract, sent together
// because both become valid only once the Maker has committed to the route.
type ContractSigsAsRecvrAndSender struct {
	ReceiverSigs [][]byte
	SenderSigs   [][]byte
}

func (m *ContractSigsAsRecvrAndSender) MsgType() MessageType {
	return MsgContractSigsAsRecvrAndSender
}

func (m *ContractSigsAsRecvrAndSender) Encode(w io.Writer) error {
	if err := writeByteSlices(w, m.ReceiverSigs); err != nil {
		return err
	}
	return writeByteSlices(w, m.SenderSigs)
}

func (m *ContractSigsAsRecvrAndSender) Decode(r io.Reader) error {
	var err error
	if m.ReceiverSigs, err = readByteSlices(r); err != nil {
		return err
	}
	m.SenderSigs, err = readByteSlices(r)
	return err
}

// ContractSigsForRecvrAndSender is the Taker's counterpart of the same
// shape, sent back when the branching ProofOfFundingORContractSigsForRecvrAndSender
// state resolves to "no further hop, here are the final signatures".
type ContractSigsForRecvrAndSender struct {
	ReceiverSigs [][]byte
	SenderSigs   [][]byte
}

func (m *ContractSigsForRecvrAndSender) MsgType() MessageType {
	return MsgContractSigsForRecvrAndSender
}

func (m *ContractSigsForRecvrAndSender) Encode(w io.Writer) error {
	if err := writeByteSlices(w, m.ReceiverSigs); err != nil {
		return err
	}
	return writeByteSlices(w, m.SenderSigs)
}

func (m *ContractSigsForRecvrAndSender) Decode(r io.Reader) error {
	var err error
	if m.ReceiverSigs, err = readByteSlices(r); err != nil {
		return err
	}
	m.SenderSigs, err = readByteSlices(r)
	return err
}

// RecvrTxInfo is one contract transaction the Maker is asked to sign as the
// receiving party (its incoming swapcoin).
type RecvrTxInfo struct {
	MultisigRedeemscript []byte
	ContractTx           *btcwire.MsgTx
	ContractRedeemscript []byte

	// CounterpartySig is the previous hop's own half of the 2-of-2
	// signature over ContractTx, forwarded alongside the signing request
	// so the Maker ends up holding a fully combinable contract
	// transaction the moment it adds its own signature.
	CounterpartySig []byte
}

func (t *RecvrTxInfo) encode(w io.Writer) error {
	if err := writeVarBytes(w, t.MultisigRedeemscript); err != nil {
		return err
	}
	if err := writeTx(w, t.ContractTx); err != nil {
		return err
	}
	if err := writeVarBytes(w, t.ContractRedeemscript); err != nil {
		return err
	}
	return writeVarBytes(w, t.CounterpartySig)
}

func (t *RecvrTxInfo) decode(r io.Reader) error {
	var err error
	if t.MultisigRedeemscript, err = readVarBytes(r); err != nil {
		return err
	}
	if t.ContractTx, err = readTx(r); err != nil {
		return err
	}
	if t.ContractRedeemscript, err = readVarBytes(r); err != nil {
		return err
	}
	t.CounterpartySig, err = readVarBytes(r)
	return err
}

// ReqContractSigsForRecvr asks the Maker to sign its incoming swapcoins'
// contract transactions, the mirror of ReqContractSigsForSender.
type ReqContractSigsForRecvr struct {
	Txs []RecvrTxInfo
}

func (m *ReqContractSigsForRecvr) MsgType() MessageType { return MsgReqContractSigsForRecvr }

func (m *ReqContractSigsForRecvr) Encode(w io.Writer) error {
	if err := writeUint16(w, uint16(len(m.Txs))); err != nil {
		return err
	}
	for i := range m.Txs {
		if err := m.Txs[i].encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *ReqContractSigsForRecvr) Decode(r io.Reader) error {
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	m.Txs = make([]RecvrTxInfo, n)
	for i := range m.Txs {
		if err := m.Txs[i].decode(r); err != nil {
			return err
		}
	}
	return nil
}

// ContractSigsForRecvr carries the Maker's signatures replying to
// ReqContractSigsForRecvr, one per entry in order.
type ContractSigsForRecvr struct {
	Sigs [][]byte
}

func (m *ContractSigsForRecvr) MsgType() MessageType  { return MsgContractSigsForRecvr }
func (m *ContractSigsForRecvr) Encode(w io.Writer) error { return writeByteSlices(w, m.Sigs) }
func (m *ContractSigsForRecvr) Decode(r io.Reader) error {
	sigs, err := readByteSlices(r)
	if err != nil {
		return err
	}
	m.Sigs = sigs
	return nil
}

// HashPreimage reveals the swap's shared hash preimage, letting every hop
// redeem its incoming contract via the hashlock branch instead of waiting
// out the timelock.
type HashPreimage struct {
	SenderMultisigRedeemscripts   [][]byte
	ReceiverMultisigRedeemscripts [][]byte
	Preimage                      [32]byte
}

func (m *HashPreimage) MsgType() MessageType { return MsgHashPreimage }

func (m *HashPreimage) Encode(w io.Writer) error {
	if err := writeByteSlices(w, m.SenderMultisigRedeemscripts); err != nil {
		return err
	}
	if err := writeByteSlices(w, m.ReceiverMultisigRedeemscripts); err != nil {
		return err
	}
	return writeFixed32(w, m.Preimage)
}

func (m *HashPreimage) Decode(r io.Reader) error {
	var err error
	if m.SenderMultisigRedeemscripts, err = readByteSlices(r); err != nil {
		return err
	}
	if m.ReceiverMultisigRedeemscripts, err = readByteSlices(r); err != nil {
		return err
	}
	m.Preimage, err = readFixed32(r)
	return err
}

// MultisigPrivkey hands a fully-cooperative counterparty the private key
// side of one funding multisig, for a no-contract-needed cooperative close.
type MultisigPrivkey struct {
	MultisigRedeemscript []byte
	Privkey              [32]byte
}

func (p *MultisigPrivkey) encode(w io.Writer) error {
	if err := writeVarBytes(w, p.MultisigRedeemscript); err != nil {
		return err
	}
	return writeFixed32(w, p.Privkey)
}

func (p *MultisigPrivkey) decode(r io.Reader) error {
	var err error
	if p.MultisigRedeemscript, err = readVarBytes(r); err != nil {
		return err
	}
	p.Privkey, err = readFixed32(r)
	return err
}

// PrivateKeyHandover is the final leg of a swap leg's cooperative close: the
// sender hands over the multisig private keys it holds. It's used
// symmetrically — both as the Taker's final inbound message to the Maker,
// and as the Maker's own reply handing over its half.
type PrivateKeyHandover struct {
	MultisigPrivkeys []MultisigPrivkey
}

func (m *PrivateKeyHandover) MsgType() MessageType { return MsgPrivateKeyHandover }

func (m *PrivateKeyHandover) Encode(w io.Writer) error {
	if err := writeUint16(w, uint16(len(m.MultisigPrivkeys))); err != nil {
		return err
	}
	for i := range m.MultisigPrivkeys {
		if err := m.MultisigPrivkeys[i].encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *PrivateKeyHandover) Decode(r io.Reader) error {
	n, err := readUint16(r)
	if err != nil {
		return err
	}
	m.MultisigPrivkeys = make([]MultisigPrivkey, n)
	for i := range m.MultisigPrivkeys {
		if err := m.MultisigPrivkeys[i].decode(r); err != nil {
			return err
		}
	}
	return nil
}
