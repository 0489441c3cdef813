// Package protocol frames history commands for the TCP transport.
//
//	[magic 1B][op 1B][keyLen 2B][valLen 4B][key][value]
//
// Key carries the document id. Value carries the arguments, usually an
// 8-byte big-endian index followed by node text.
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	MagicNumber = 0x48

	OpOpen     = 0x01
	OpClose    = 0x02
	OpAdd      = 0x03
	OpChange   = 0x04
	OpDelete   = 0x05
	OpChildren = 0x06
	OpText     = 0x07
	OpUndo     = 0x08
	OpRedo     = 0x09
	OpTree     = 0x0A

	RespOK  = 0x00
	RespErr = 0xFF
	RespVal = 0x01

	// MaxFrameSize bounds the value of a single frame.
	MaxFrameSize = 16 << 20
)

var (
	ErrInvalidMagic  = errors.New("invalid magic number")
	ErrShortValue    = errors.New("value too short")
	ErrFrameTooLarge = errors.New("frame too large")
)

type Packet struct {
	Op    byte
	Key   []byte
	Value []byte
}

func Encode(w io.Writer, op byte, key []byte, value []byte) error {
	if len(value) > MaxFrameSize || len(key) > math.MaxUint16 {
		return ErrFrameTooLarge
	}
	header := make([]byte, 8)
	header[0] = MagicNumber
	header[1] = op
	binary.BigEndian.PutUint16(header[2:4], uint16(len(key)))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(value)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(key) > 0 {
		if _, err := w.Write(key); err != nil {
			return err
		}
	}
	if len(value) > 0 {
		if _, err := w.Write(value); err != nil {
			return err
		}
	}
	return nil
}

func Decode(r io.Reader) (*Packet, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != MagicNumber {
		return nil, ErrInvalidMagic
	}

	op := header[1]
	kLen := binary.BigEndian.Uint16(header[2:4])
	vLen := binary.BigEndian.Uint32(header[4:8])
	if vLen > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	key := make([]byte, kLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}

	val := make([]byte, vLen)
	if _, err := io.ReadFull(r, val); err != nil {
		return nil, err
	}

	return &Packet{Op: op, Key: key, Value: val}, nil
}

// PutIndex encodes idx followed by an optional text.
func PutIndex(idx int, text string) []byte {
	buf := make([]byte, 8+len(text))
	binary.BigEndian.PutUint64(buf, uint64(int64(idx)))
	copy(buf[8:], text)
	return buf
}

// ReadIndex splits a value produced by PutIndex.
func ReadIndex(b []byte) (int, string, error) {
	if len(b) < 8 {
		return 0, "", ErrShortValue
	}
	return int(int64(binary.BigEndian.Uint64(b))), string(b[8:]), nil
}

// EncodeIndices writes [count 4B][idx 8B]*count.
func EncodeIndices(idx []int) []byte {
	buf := make([]byte, 4+8*len(idx))
	binary.BigEndian.PutUint32(buf, uint32(len(idx)))
	for i, v := range idx {
		binary.BigEndian.PutUint64(buf[4+8*i:], uint64(int64(v)))
	}
	return buf
}

func DecodeIndices(b []byte) ([]int, error) {
	if len(b) < 4 {
		return nil, ErrShortValue
	}
	n := int(binary.BigEndian.Uint32(b))
	if len(b) < 4+8*n {
		return nil, ErrShortValue
	}
	out := make([]int, n)
	for i := range out {
		out[i] = int(int64(binary.BigEndian.Uint64(b[4+8*i:])))
	}
	return out, nil
}
