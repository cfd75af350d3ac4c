// Package wire implements the chain's canonical binary serialization:
// compact-size integers, length-prefixed byte vectors, and fixed-width
// little-endian integers. Ported from the
// teacher's binary.go and generalized to the spec's naming.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ErrTruncated is returned when a read runs out of input mid-field.
var ErrTruncated = fmt.Errorf("wire: truncated")

// ErrOverlong is returned when a declared length exceeds a sane bound
// for the field being read (guards against OOM from a hostile size
// prefix).
var ErrOverlong = fmt.Errorf("wire: overlong field")

// MaxVectorLen bounds any single compact-size-prefixed vector we will
// allocate for while parsing untrusted input.
const MaxVectorLen = 32 * 1024 * 1024

// ReadCompactSize reads a Bitcoin-style variable-length integer.
func ReadCompactSize(r io.Reader) (uint64, error) {
	var buf [8]byte

	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return 0, ErrTruncated
	}

	var n int
	switch buf[0] {
	case 0xfd:
		n = 2
	case 0xfe:
		n = 4
	case 0xff:
		n = 8
	default:
		return uint64(buf[0]), nil
	}

	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return 0, ErrTruncated
	}

	var result uint64
	for i := 0; i < n; i++ {
		result |= uint64(buf[i]) << uint(i*8)
	}
	return result, nil
}

// WriteCompactSize writes i in the Bitcoin compact-size encoding.
func WriteCompactSize(w io.Writer, i uint64) error {
	if i < 0xfd {
		_, err := w.Write([]byte{byte(i)})
		return err
	}
	if i <= math.MaxUint16 {
		if _, err := w.Write([]byte{0xfd}); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, uint16(i))
	}
	if i <= math.MaxUint32 {
		if _, err := w.Write([]byte{0xfe}); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, uint32(i))
	}
	if _, err := w.Write([]byte{0xff}); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, i)
}

// CompactSizeLen returns the number of bytes WriteCompactSize(i) would
// emit, used by the Size() methods' accounting without serializing.
func CompactSizeLen(i uint64) int {
	switch {
	case i < 0xfd:
		return 1
	case i <= math.MaxUint16:
		return 3
	case i <= math.MaxUint32:
		return 5
	default:
		return 9
	}
}

// ReadVarBytes reads a compact-size-prefixed byte vector.
func ReadVarBytes(r io.Reader) ([]byte, error) {
	n, err := ReadCompactSize(r)
	if err != nil {
		return nil, err
	}
	if n > MaxVectorLen {
		return nil, ErrOverlong
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrTruncated
	}
	return buf, nil
}

// WriteVarBytes writes a compact-size-prefixed byte vector.
func WriteVarBytes(w io.Writer, b []byte) error {
	if err := WriteCompactSize(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadUint32LE reads a little-endian uint32.
func ReadUint32LE(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteUint32LE writes a little-endian uint32.
func WriteUint32LE(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadInt64LE reads a little-endian int64.
func ReadInt64LE(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, ErrTruncated
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// WriteInt64LE writes a little-endian int64.
func WriteInt64LE(w io.Writer, v int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadInt32LE reads a little-endian int32.
func ReadInt32LE(r io.Reader) (int32, error) {
	v, err := ReadUint32LE(r)
	return int32(v), err
}

// WriteInt32LE writes a little-endian int32.
func WriteInt32LE(w io.Writer, v int32) error {
	return WriteUint32LE(w, uint32(v))
}
