// Package netmsg implements the size-bounded little-endian message buffer
// used for server-to-client messages, and the codecs of the messages the
// VM emits.
package netmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MaxDatagram is the capacity of a multicast buffer.
const MaxDatagram = 32000

var (
	// ErrOverflow is returned when a write does not fit and the buffer does
	// not allow overflow.
	ErrOverflow = errors.New("message buffer overflow")
	// ErrShortRead is returned when a read runs past the end of a message.
	ErrShortRead = errors.New("read past end of message")
)

// SizeBuf accumulates one message. When AllowOverflow is set, a write that
// does not fit clears the buffer and marks it overflowed instead of failing.
type SizeBuf struct {
	AllowOverflow bool

	data       []byte
	maxSize    int
	overflowed bool
}

// NewSizeBuf returns an empty buffer holding at most maxSize bytes.
func NewSizeBuf(maxSize int) *SizeBuf {
	return &SizeBuf{data: make([]byte, 0, maxSize), maxSize: maxSize}
}

func (b *SizeBuf) space(n int) ([]byte, error) {
	if len(b.data)+n > b.maxSize {
		if !b.AllowOverflow {
			return nil, fmt.Errorf("%w: %d bytes over %d", ErrOverflow, len(b.data)+n, b.maxSize)
		}
		if n > b.maxSize {
			return nil, fmt.Errorf("%w: %d is > full buffer size", ErrOverflow, n)
		}
		b.Clear()
		b.overflowed = true
	}
	start := len(b.data)
	b.data = b.data[:start+n]
	return b.data[start:], nil
}

// Write appends raw bytes.
func (b *SizeBuf) Write(p []byte) (int, error) {
	dst, err := b.space(len(p))
	if err != nil {
		return 0, err
	}
	return copy(dst, p), nil
}

// WriteByte appends one byte.
func (b *SizeBuf) WriteByte(c byte) error {
	dst, err := b.space(1)
	if err != nil {
		return err
	}
	dst[0] = c
	return nil
}

// WriteShort appends the low 16 bits of v.
func (b *SizeBuf) WriteShort(v int) error {
	dst, err := b.space(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(dst, uint16(v))
	return nil
}

// WriteLong appends a 32-bit integer.
func (b *SizeBuf) WriteLong(v int32) error {
	dst, err := b.space(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(dst, uint32(v))
	return nil
}

// WriteFloat appends a 32-bit float.
func (b *SizeBuf) WriteFloat(f float32) error {
	dst, err := b.space(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
	return nil
}

// WriteString appends s and its NUL terminator.
func (b *SizeBuf) WriteString(s string) error {
	dst, err := b.space(len(s) + 1)
	if err != nil {
		return err
	}
	copy(dst, s)
	dst[len(s)] = 0
	return nil
}

// Bytes returns the message written so far.
func (b *SizeBuf) Bytes() []byte { return b.data }

// Len returns the number of bytes written.
func (b *SizeBuf) Len() int { return len(b.data) }

// Overflowed reports whether the buffer was cleared by an overflow.
func (b *SizeBuf) Overflowed() bool { return b.overflowed }

// Clear empties the buffer.
func (b *SizeBuf) Clear() {
	b.data = b.data[:0]
	b.overflowed = false
}

// Reader consumes a message written by SizeBuf.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: need %d bytes at %d of %d", ErrShortRead, n, r.pos, len(r.data))
	}
	p := r.data[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

// ReadByte consumes one byte.
func (r *Reader) ReadByte() (byte, error) {
	p, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadShort consumes a signed 16-bit integer.
func (r *Reader) ReadShort() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint16 consumes an unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	p, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

// ReadLong consumes a 32-bit integer.
func (r *Reader) ReadLong() (int32, error) {
	p, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(p)), nil
}

// ReadFloat consumes a 32-bit float.
func (r *Reader) ReadFloat() (float32, error) {
	p, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(p)), nil
}

// ReadString consumes a NUL-terminated string. A missing terminator ends the
// string at the end of the message.
func (r *Reader) ReadString() string {
	rest := r.data[r.pos:]
	for i, c := range rest {
		if c == 0 {
			r.pos += i + 1
			return string(rest[:i])
		}
	}
	r.pos = len(r.data)
	return string(rest)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }
