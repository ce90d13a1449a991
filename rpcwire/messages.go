package rpcwire

import "io"

// Ping/Pong lets maker-cli's ping command confirm the daemon is alive,
// mirroring original_source's deterministic RPC greeting.
type Ping struct{}

func (m *Ping) MsgType() MessageType     { return MsgPing }
func (m *Ping) Encode(w io.Writer) error { return nil }
func (m *Ping) Decode(r io.Reader) error { return nil }

type Pong struct{}

func (m *Pong) MsgType() MessageType     { return MsgPong }
func (m *Pong) Encode(w io.Writer) error { return nil }
func (m *Pong) Decode(r io.Reader) error { return nil }

// UtxoQuery asks for one of the four UTXO categories (seed, swap, contract,
// fidelity). kind pins which request this is; it isn't serialized since the
// envelope's own type tag already carries it.
type UtxoQuery struct {
	kind MessageType
}

func NewUtxoQuery(kind MessageType) *UtxoQuery { return &UtxoQuery{kind: kind} }
func (m *UtxoQuery) Kind() MessageType         { return m.kind }
func (m *UtxoQuery) MsgType() MessageType      { return m.kind }
func (m *UtxoQuery) Encode(w io.Writer) error  { return nil }
func (m *UtxoQuery) Decode(r io.Reader) error  { return nil }

// Utxo is one entry of a UtxoList response.
type Utxo struct {
	Txid       [32]byte
	Vout       uint32
	Value      int64
	Address    string
	Confirmed  bool
}

func (u *Utxo) encode(w io.Writer) error {
	if _, err := w.Write(u.Txid[:]); err != nil {
		return err
	}
	if err := writeUint32(w, u.Vout); err != nil {
		return err
	}
	if err := writeInt64(w, u.Value); err != nil {
		return err
	}
	if err := writeString(w, u.Address); err != nil {
		return err
	}
	var confirmed uint8
	if u.Confirmed {
		confirmed = 1
	}
	return writeUint8(w, confirmed)
}

func (u *Utxo) decode(r io.Reader) error {
	if _, err := io.ReadFull(r, u.Txid[:]); err != nil {
		return err
	}
	var err error
	if u.Vout, err = readUint32(r); err != nil {
		return err
	}
	if u.Value, err = readInt64(r); err != nil {
		return err
	}
	if u.Address, err = readString(r); err != nil {
		return err
	}
	confirmed, err := readUint8(r)
	u.Confirmed = confirmed != 0
	return err
}

type UtxoList struct {
	Utxos []Utxo
}

func (m *UtxoList) MsgType() MessageType { return MsgUtxoList }

func (m *UtxoList) Encode(w io.Writer) error {
	if err := writeUint32(w, uint32(len(m.Utxos))); err != nil {
		return err
	}
	for i := range m.Utxos {
		if err := m.Utxos[i].encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *UtxoList) Decode(r io.Reader) error {
	n, err := readUint32(r)
	if err != nil {
		return err
	}
	m.Utxos = make([]Utxo, n)
	for i := range m.Utxos {
		if err := m.Utxos[i].decode(r); err != nil {
			return err
		}
	}
	return nil
}

// BalanceQuery asks for one of the four category balances.
type BalanceQuery struct {
	kind MessageType
}

func NewBalanceQuery(kind MessageType) *BalanceQuery { return &BalanceQuery{kind: kind} }
func (m *BalanceQuery) Kind() MessageType            { return m.kind }
func (m *BalanceQuery) MsgType() MessageType         { return m.kind }
func (m *BalanceQuery) Encode(w io.Writer) error     { return nil }
func (m *BalanceQuery) Decode(r io.Reader) error     { return nil }

type Balance struct {
	Sats int64
}

func (m *Balance) MsgType() MessageType     { return MsgBalance }
func (m *Balance) Encode(w io.Writer) error { return writeInt64(w, m.Sats) }
func (m *Balance) Decode(r io.Reader) error {
	v, err := readInt64(r)
	m.Sats = v
	return err
}

type NewAddress struct{}

func (m *NewAddress) MsgType() MessageType     { return MsgNewAddress }
func (m *NewAddress) Encode(w io.Writer) error { return nil }
func (m *NewAddress) Decode(r io.Reader) error { return nil }

type Address struct {
	Address string
}

func (m *Address) MsgType() MessageType     { return MsgAddress }
func (m *Address) Encode(w io.Writer) error { return writeString(w, m.Address) }
func (m *Address) Decode(r io.Reader) error {
	v, err := readString(r)
	m.Address = v
	return err
}

// SendToAddress requests a spend from the seed balance:
// SendToAddress{address, amount, fee}.
type SendToAddress struct {
	ToAddress string
	AmountSat int64
	FeeSat    int64
}

func (m *SendToAddress) MsgType() MessageType { return MsgSendToAddress }

func (m *SendToAddress) Encode(w io.Writer) error {
	if err := writeString(w, m.ToAddress); err != nil {
		return err
	}
	if err := writeInt64(w, m.AmountSat); err != nil {
		return err
	}
	return writeInt64(w, m.FeeSat)
}

func (m *SendToAddress) Decode(r io.Reader) error {
	var err error
	if m.ToAddress, err = readString(r); err != nil {
		return err
	}
	if m.AmountSat, err = readInt64(r); err != nil {
		return err
	}
	m.FeeSat, err = readInt64(r)
	return err
}

type Txid struct {
	Txid [32]byte
}

func (m *Txid) MsgType() MessageType { return MsgTxid }
func (m *Txid) Encode(w io.Writer) error {
	_, err := w.Write(m.Txid[:])
	return err
}
func (m *Txid) Decode(r io.Reader) error {
	_, err := io.ReadFull(r, m.Txid[:])
	return err
}

type GetTorAddress struct{}

func (m *GetTorAddress) MsgType() MessageType     { return MsgGetTorAddress }
func (m *GetTorAddress) Encode(w io.Writer) error { return nil }
func (m *GetTorAddress) Decode(r io.Reader) error { return nil }

type TorAddress struct {
	OnionAddress string
}

func (m *TorAddress) MsgType() MessageType     { return MsgTorAddress }
func (m *TorAddress) Encode(w io.Writer) error { return writeString(w, m.OnionAddress) }
func (m *TorAddress) Decode(r io.Reader) error {
	v, err := readString(r)
	m.OnionAddress = v
	return err
}

type GetDataDir struct{}

func (m *GetDataDir) MsgType() MessageType     { return MsgGetDataDir }
func (m *GetDataDir) Encode(w io.Writer) error { return nil }
func (m *GetDataDir) Decode(r io.Reader) error { return nil }

type DataDir struct {
	Path string
}

func (m *DataDir) MsgType() MessageType     { return MsgDataDir }
func (m *DataDir) Encode(w io.Writer) error { return writeString(w, m.Path) }
func (m *DataDir) Decode(r io.Reader) error {
	v, err := readString(r)
	m.Path = v
	return err
}

// Stop sets the shutdown flag and returns; the daemon closes the RPC
// connection itself once it has acted on it.
type Stop struct{}

func (m *Stop) MsgType() MessageType     { return MsgStop }
func (m *Stop) Encode(w io.Writer) error { return nil }
func (m *Stop) Decode(r io.Reader) error { return nil }

// ErrorMsg is returned in place of the expected reply whenever a request
// fails; maker-cli surfaces its Reason to the operator verbatim.
type ErrorMsg struct {
	Reason string
}

func (m *ErrorMsg) MsgType() MessageType     { return MsgError }
func (m *ErrorMsg) Encode(w io.Writer) error { return writeString(w, m.Reason) }
func (m *ErrorMsg) Decode(r io.Reader) error {
	v, err := readString(r)
	m.Reason = v
	return err
}
