// Package wire implements the Maker's peer-to-peer protocol framing: a
// length-prefixed, self-describing binary envelope around tagged protocol
// messages, generalizing lnwire's type-tag-plus-payload framing with an
// explicit length prefix and a trailing TLV extension section.
package wire

import (
	"bytes"
	"fmt"
	"io"
)

// MaxMessagePayload caps the size of a single frame's payload (message type
// + fixed fields + TLV trailer), mirroring lnwire.MaxMessagePayload's role
// of bounding what a peer can make us allocate.
const MaxMessagePayload = 1 << 20

// MessageType tags the payload that follows in a frame.
type MessageType uint16

const (
	MsgTakerHello                  MessageType = 1
	MsgMakerHello                  MessageType = 2
	MsgNewlyConnectedTaker         MessageType = 3
	MsgAck                         MessageType = 4
	MsgReqContractSigsForSender    MessageType = 5
	MsgContractSigsAsSender        MessageType = 6
	MsgProofOfFunding              MessageType = 7
	MsgContractSigsAsRecvrAndSender MessageType = 8
	MsgContractSigsForRecvrAndSender MessageType = 9
	MsgReqContractSigsForRecvr     MessageType = 10
	MsgContractSigsForRecvr        MessageType = 11
	MsgHashPreimage                MessageType = 12
	MsgPrivateKeyHandover          MessageType = 13
)

func (t MessageType) String() string {
	switch t {
	case MsgTakerHello:
		return "TakerHello"
	case MsgMakerHello:
		return "MakerHello"
	case MsgNewlyConnectedTaker:
		return "NewlyConnectedTaker"
	case MsgAck:
		return "Ack"
	case MsgReqContractSigsForSender:
		return "ReqContractSigsForSender"
	case MsgContractSigsAsSender:
		return "ContractSigsAsSender"
	case MsgProofOfFunding:
		return "ProofOfFunding"
	case MsgContractSigsAsRecvrAndSender:
		return "ContractSigsAsRecvrAndSender"
	case MsgContractSigsForRecvrAndSender:
		return "ContractSigsForRecvrAndSender"
	case MsgReqContractSigsForRecvr:
		return "ReqContractSigsForRecvr"
	case MsgContractSigsForRecvr:
		return "ContractSigsForRecvr"
	case MsgHashPreimage:
		return "HashPreimage"
	case MsgPrivateKeyHandover:
		return "PrivateKeyHandover"
	default:
		return fmt.Sprintf("<unknown %d>", uint16(t))
	}
}

// UnknownMessage is returned by ReadMessage when a peer sends a type tag we
// don't recognize, mirroring lnwire.UnknownMessage.
type UnknownMessage struct {
	Type MessageType
}

func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unknown message type: %v", u.Type)
}

// Message is implemented by every concrete protocol message. The trailing
// TLV stream is not part of a Message: it travels beside it as
// ExtraOpaqueData (WriteMessage's extra argument, ReadMessage's second
// result), so a handler that understands a newer optional field can read it
// without the envelope needing to know about it.
type Message interface {
	Decode(r io.Reader) error
	Encode(w io.Writer) error
	MsgType() MessageType
}

// ExtraOpaqueData is a raw, possibly-empty trailing TLV stream attached to a
// frame. No message currently defines an optional field, so this is always
// empty on the wire today; it exists so a future optional field doesn't
// require bumping every MessageType's wire format.
type ExtraOpaqueData []byte

func makeEmptyMessage(msgType MessageType) (Message, error) {
	switch msgType {
	case MsgTakerHello:
		return &TakerHello{}, nil
	case MsgMakerHello:
		return &MakerHello{}, nil
	case MsgNewlyConnectedTaker:
		return &NewlyConnectedTaker{}, nil
	case MsgAck:
		return &Ack{}, nil
	case MsgReqContractSigsForSender:
		return &ReqContractSigsForSender{}, nil
	case MsgContractSigsAsSender:
		return &ContractSigsAsSender{}, nil
	case MsgProofOfFunding:
		return &ProofOfFunding{}, nil
	case MsgContractSigsAsRecvrAndSender:
		return &ContractSigsAsRecvrAndSender{}, nil
	case MsgContractSigsForRecvrAndSender:
		return &ContractSigsForRecvrAndSender{}, nil
	case MsgReqContractSigsForRecvr:
		return &ReqContractSigsForRecvr{}, nil
	case MsgContractSigsForRecvr:
		return &ContractSigsForRecvr{}, nil
	case MsgHashPreimage:
		return &HashPreimage{}, nil
	case MsgPrivateKeyHandover:
		return &PrivateKeyHandover{}, nil
	default:
		return nil, &UnknownMessage{Type: msgType}
	}
}

// WriteMessage serializes msg into a length-prefixed frame: 4-byte payload
// length, 2-byte type tag, fixed payload, trailing TLV stream.
func WriteMessage(w io.Writer, msg Message, extra ExtraOpaqueData) error {
	var payload bytes.Buffer
	if err := msg.Encode(&payload); err != nil {
		return fmt.Errorf("wire: failed to encode %v: %w", msg.MsgType(), err)
	}

	total := 2 + payload.Len() + len(extra)
	if total > MaxMessagePayload {
		return fmt.Errorf("wire: %v payload of %d bytes exceeds max %d",
			msg.MsgType(), total, MaxMessagePayload)
	}

	if err := writeUint32(w, uint32(total)); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(msg.MsgType())); err != nil {
		return err
	}
	if _, err := w.Write(payload.Bytes()); err != nil {
		return err
	}
	if len(extra) > 0 {
		if _, err := w.Write(extra); err != nil {
			return err
		}
	}
	return nil
}

// ReadMessage deserializes one frame from r. Any bytes left over after the
// message's own Decode call consumes its fixed fields are returned as the
// trailing TLV stream.
func ReadMessage(r io.Reader) (Message, ExtraOpaqueData, error) {
	total, err := readUint32(r)
	if err != nil {
		return nil, nil, err
	}
	if total > MaxMessagePayload {
		return nil, nil, fmt.Errorf("wire: frame of %d bytes exceeds max %d",
			total, MaxMessagePayload)
	}
	if total < 2 {
		return nil, nil, fmt.Errorf("wire: frame of %d bytes too short for a type tag", total)
	}

	buf := make([]byte, total)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, err
	}

	msgType := MessageType(endian.Uint16(buf[:2]))
	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, nil, err
	}

	body := bytes.NewReader(buf[2:])
	if err := msg.Decode(body); err != nil {
		return nil, nil, fmt.Errorf("wire: failed to decode %v: %w", msgType, err)
	}

	remaining := body.Len()
	var extra ExtraOpaqueData
	if remaining > 0 {
		extra = make([]byte, remaining)
		if _, err := io.ReadFull(body, extra); err != nil {
			return nil, nil, err
		}
	}

	return msg, extra, nil
}
