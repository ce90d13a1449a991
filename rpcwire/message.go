// Package rpcwire frames the Maker's local control-plane protocol with the
// same length-prefixed, self-describing envelope as the peer wire protocol
// (wire), but in a distinct message-type namespace and transport (a loopback
// listener rather than the peer-to-peer socket).
package rpcwire

import (
	"bytes"
	"fmt"
	"io"
)

const MaxMessagePayload = 1 << 20

type MessageType uint16

const (
	MsgPing            MessageType = 1
	MsgPong            MessageType = 2
	MsgSeedUtxo        MessageType = 3
	MsgSwapUtxo        MessageType = 4
	MsgContractUtxo    MessageType = 5
	MsgFidelityUtxo    MessageType = 6
	MsgUtxoList        MessageType = 7
	MsgSeedBalance     MessageType = 8
	MsgSwapBalance     MessageType = 9
	MsgContractBalance MessageType = 10
	MsgFidelityBalance MessageType = 11
	MsgBalance         MessageType = 12
	MsgNewAddress      MessageType = 13
	MsgAddress         MessageType = 14
	MsgSendToAddress   MessageType = 15
	MsgTxid            MessageType = 16
	MsgGetTorAddress   MessageType = 17
	MsgTorAddress      MessageType = 18
	MsgGetDataDir      MessageType = 19
	MsgDataDir         MessageType = 20
	MsgStop            MessageType = 21
	MsgError           MessageType = 22
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "Ping"
	case MsgPong:
		return "Pong"
	case MsgSeedUtxo, MsgSwapUtxo, MsgContractUtxo, MsgFidelityUtxo:
		return "UtxoQuery"
	case MsgUtxoList:
		return "UtxoList"
	case MsgSeedBalance, MsgSwapBalance, MsgContractBalance, MsgFidelityBalance:
		return "BalanceQuery"
	case MsgBalance:
		return "Balance"
	case MsgNewAddress:
		return "NewAddress"
	case MsgAddress:
		return "Address"
	case MsgSendToAddress:
		return "SendToAddress"
	case MsgTxid:
		return "Txid"
	case MsgGetTorAddress:
		return "GetTorAddress"
	case MsgTorAddress:
		return "TorAddress"
	case MsgGetDataDir:
		return "GetDataDir"
	case MsgDataDir:
		return "DataDir"
	case MsgStop:
		return "Stop"
	case MsgError:
		return "Error"
	default:
		return fmt.Sprintf("<unknown %d>", uint16(t))
	}
}

// UnknownMessage mirrors wire.UnknownMessage for the RPC namespace.
type UnknownMessage struct {
	Type MessageType
}

func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unknown rpc message type: %v", u.Type)
}

type Message interface {
	Decode(r io.Reader) error
	Encode(w io.Writer) error
	MsgType() MessageType
}

func makeEmptyMessage(msgType MessageType) (Message, error) {
	switch msgType {
	case MsgPing:
		return &Ping{}, nil
	case MsgPong:
		return &Pong{}, nil
	case MsgSeedUtxo, MsgSwapUtxo, MsgContractUtxo, MsgFidelityUtxo:
		return &UtxoQuery{kind: msgType}, nil
	case MsgUtxoList:
		return &UtxoList{}, nil
	case MsgSeedBalance, MsgSwapBalance, MsgContractBalance, MsgFidelityBalance:
		return &BalanceQuery{kind: msgType}, nil
	case MsgBalance:
		return &Balance{}, nil
	case MsgNewAddress:
		return &NewAddress{}, nil
	case MsgAddress:
		return &Address{}, nil
	case MsgSendToAddress:
		return &SendToAddress{}, nil
	case MsgTxid:
		return &Txid{}, nil
	case MsgGetTorAddress:
		return &GetTorAddress{}, nil
	case MsgTorAddress:
		return &TorAddress{}, nil
	case MsgGetDataDir:
		return &GetDataDir{}, nil
	case MsgDataDir:
		return &DataDir{}, nil
	case MsgStop:
		return &Stop{}, nil
	case MsgError:
		return &ErrorMsg{}, nil
	default:
		return nil, &UnknownMessage{Type: msgType}
	}
}

// WriteMessage mirrors wire.WriteMessage's framing: 4-byte length, 2-byte
// type, payload.
func WriteMessage(w io.Writer, msg Message) error {
	var payload bytes.Buffer
	if err := msg.Encode(&payload); err != nil {
		return fmt.Errorf("rpcwire: failed to encode %v: %w", msg.MsgType(), err)
	}

	total := 2 + payload.Len()
	if total > MaxMessagePayload {
		return fmt.Errorf("rpcwire: %v payload of %d bytes exceeds max %d",
			msg.MsgType(), total, MaxMessagePayload)
	}

	if err := writeUint32(w, uint32(total)); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(msg.MsgType())); err != nil {
		return err
	}
	_, err := w.Write(payload.Bytes())
	return err
}

func ReadMessage(r io.Reader) (Message, error) {
	total, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if total > MaxMessagePayload {
		return nil, fmt.Errorf("rpcwire: frame of %d bytes exceeds max %d",
			total, MaxMessagePayload)
	}
	if total < 2 {
		return nil, fmt.Errorf("rpcwire: frame of %d bytes too short for a type tag", total)
	}

	buf := make([]byte, total)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	msgType := MessageType(endian.Uint16(buf[:2]))
	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}

	if err := msg.Decode(bytes.NewReader(buf[2:])); err != nil {
		return nil, fmt.Errorf("rpcwire: failed to decode %v: %w", msgType, err)
	}
	return msg, nil
}
