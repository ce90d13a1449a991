package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	btcwire "github.com/btcsuite/btcd/wire"
)

// endian matches the byte order lnwire and breacharbiter.go use for their
// manual Encode/Decode pairs.
var endian = binary.BigEndian

const (
	// maxVarBytesLen bounds a single length-prefixed byte slice so a
	// corrupt or hostile peer can't make us allocate an unbounded buffer
	// off a 4-byte length field.
	maxVarBytesLen = 1 << 24

	// maxSliceItems bounds the element count of a length-prefixed list.
	maxSliceItems = 1 << 12
)

func writeUint8(w io.Writer, v uint8) error {
	return binary.Write(w, endian, v)
}

func readUint8(r io.Reader) (uint8, error) {
	var v uint8
	err := binary.Read(r, endian, &v)
	return v, err
}

func writeUint16(w io.Writer, v uint16) error {
	return binary.Write(w, endian, v)
}

func readUint16(r io.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, endian, &v)
	return v, err
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, endian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, endian, &v)
	return v, err
}

func writeUint64(w io.Writer, v uint64) error {
	return binary.Write(w, endian, v)
}

func readUint64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, endian, &v)
	return v, err
}

func writeInt64(w io.Writer, v int64) error {
	return binary.Write(w, endian, v)
}

func readInt64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, endian, &v)
	return v, err
}

func writeVarBytes(w io.Writer, b []byte) error {
	if len(b) > maxVarBytesLen {
		return fmt.Errorf("wire: byte slice of length %d exceeds max %d",
			len(b), maxVarBytesLen)
	}
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
		return nil, fmt.Errorf("wire: byte slice of length %d exceeds max %d",
			l, maxVarBytesLen)
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeFixed32(w io.Writer, b [32]byte) error {
	_, err := w.Write(b[:])
	return err
}

func readFixed32(r io.Reader) ([32]byte, error) {
	var b [32]byte
	_, err := io.ReadFull(r, b[:])
	return b, err
}

func writeString(w io.Writer, s string) error {
	return writeVarBytes(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readVarBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeByteSlices(w io.Writer, items [][]byte) error {
	if len(items) > maxSliceItems {
		return fmt.Errorf("wire: slice of %d items exceeds max %d",
			len(items), maxSliceItems)
	}
	if err := writeUint16(w, uint16(len(items))); err != nil {
		return err
	}
	for _, item := range items {
		if err := writeVarBytes(w, item); err != nil {
			return err
		}
	}
	return nil
}

func readByteSlices(r io.Reader) ([][]byte, error) {
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	if int(n) > maxSliceItems {
		return nil, fmt.Errorf("wire: slice of %d items exceeds max %d",
			n, maxSliceItems)
	}
	out := make([][]byte, n)
	for i := range out {
		b, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func writeTx(w io.Writer, tx *btcwire.MsgTx) error {
	if tx == nil {
		return writeVarBytes(w, nil)
	}
	buf := make([]byte, 0, tx.SerializeSize())
	bw := &byteSliceWriter{buf: buf}
	if err := tx.Serialize(bw); err != nil {
		return err
	}
	return writeVarBytes(w, bw.buf)
}

func readTx(r io.Reader) (*btcwire.MsgTx, error) {
	raw, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	if err := tx.Deserialize(&byteSliceReader{buf: raw}); err != nil {
		return nil, err
	}
	return tx, nil
}

// byteSliceWriter/byteSliceReader avoid pulling in bytes.Buffer just to
// round-trip a MsgTx through writeVarBytes.
type byteSliceWriter struct{ buf []byte }

func (b *byteSliceWriter) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

type byteSliceReader struct {
	buf []byte
	off int
}

func (b *byteSliceReader) Read(p []byte) (int, error) {
	if b.off >= len(b.buf) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.off:])
	b.off += n
	return n, nil
}
