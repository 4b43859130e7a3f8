// Package core defines BaaLS's canonical data model: accounts, transactions,
// blocks and chain state, along with the single canonical encoding used
// wherever bytes are hashed or signed.
package core

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCodec wraps every decode failure raised while parsing canonical bytes.
var ErrCodec = errors.New("codec error")

// encoder builds the canonical byte form of a structure: fixed field order,
// big-endian fixed-width integers, length-prefixed variable fields. This is
// the one serializer used for hashing and signing throughout BaaLS.
type encoder struct {
	buf []byte
}

func newEncoder() *encoder { return &encoder{buf: make([]byte, 0, 256)} }

func (e *encoder) byte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) u64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *encoder) i64(v int64) { e.u64(uint64(v)) }

func (e *encoder) u32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *encoder) fixed(b []byte) { e.buf = append(e.buf, b...) }

// bytesField writes a u32 length prefix followed by the raw bytes. Used for
// every variable-length field so decode never has to guess a boundary.
func (e *encoder) bytesField(b []byte) {
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) stringField(s string) { e.bytesField([]byte(s)) }

func (e *encoder) bytes() []byte { return e.buf }

// decoder reads canonical bytes back out in the exact order they were
// written. A decoder never mutates its input slice.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(b []byte) *decoder { return &decoder{buf: b} }

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) requireByte() (byte, error) {
	if d.remaining() < 1 {
		return 0, fmt.Errorf("%w: truncated byte", ErrCodec)
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) requireU32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, fmt.Errorf("%w: truncated u32", ErrCodec)
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) requireU64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, fmt.Errorf("%w: truncated u64", ErrCodec)
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) requireI64() (int64, error) {
	v, err := d.requireU64()
	return int64(v), err
}

func (d *decoder) requireFixed(n int) ([]byte, error) {
	if d.remaining() < n {
		return nil, fmt.Errorf("%w: truncated fixed field (want %d, have %d)", ErrCodec, n, d.remaining())
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+n])
	d.pos += n
	return out, nil
}

func (d *decoder) requireBytesField() ([]byte, error) {
	n, err := d.requireU32()
	if err != nil {
		return nil, err
	}
	return d.requireFixed(int(n))
}

func (d *decoder) requireStringField() (string, error) {
	b, err := d.requireBytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) finish() error {
	if d.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCodec, d.remaining())
	}
	return nil
}
