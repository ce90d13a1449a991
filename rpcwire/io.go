package rpcwire

import (
	"encoding/binary"
	"io"
)

var endian = binary.BigEndian

const maxVarBytesLen = 1 << 24

func writeUint8(w io.Writer, v uint8) error   { return binary.Write(w, endian, v) }
func readUint8(r io.Reader) (uint8, error)    { var v uint8; err := binary.Read(r, endian, &v); return v, err }
func writeUint16(w io.Writer, v uint16) error { return binary.Write(w, endian, v) }
func readUint16(r io.Reader) (uint16, error)  { var v uint16; err := binary.Read(r, endian, &v); return v, err }
func writeUint32(w io.Writer, v uint32) error { return binary.Write(w, endian, v) }
func readUint32(r io.Reader) (uint32, error)  { var v uint32; err := binary.Read(r, endian, &v); return v, err }
func writeInt64(w io.Writer, v int64) error   { return binary.Write(w, endian, v) }
func readInt64(r io.Reader) (int64, error)    { var v int64; err := binary.Read(r, endian, &v); return v, err }

func writeVarBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader) ([]byte, error) {
	l, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if l > maxVarBytesLen {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, l)
	_, err = io.ReadFull(r, b)
	return b, err
}

func writeString(w io.Writer, s string) error { return writeVarBytes(w, []byte(s)) }

func readString(r io.Reader) (string, error) {
	b, err := readVarBytes(r)
	return string(b), err
}
