// Package frame wraps a message so that it can be recognised and checked
// when read back from an arbitrary bit sequence.
//
// Layout, most significant bit first:
//
//	magic (8) | head (8) | head check (2) | [length (32) | length CRC-8 (8)] | message | CRC-8 (8)
//
// A head below 0x80 is the message length itself. A head of 0x80 announces
// the long form, where a big-endian 32-bit length and its CRC-8 follow. The
// head check holds the parity of the odd and of the even head bits, so any
// single flipped bit in the header is caught before the length is trusted.
// The trailing CRC-8 covers the head, the long length and the message.
package frame

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/sigurn/crc8"
)

const Magic byte = 0xB5

const (
	// MaxShort is the longest message that uses the short form.
	MaxShort = 0x7f
	longHead = 0x80

	shortOverhead = 8 + 8 + 2 + 8
	longOverhead  = shortOverhead + 32 + 8
)

var (
	ErrMagicMismatch    = errors.New("frame: magic mismatch")
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
	ErrTruncatedFrame   = errors.New("frame: truncated")
	ErrMessageTooLong   = errors.New("frame: message longer than 4 GiB")
)

var crcTable = crc8.MakeTable(crc8.CRC8)

// headCheck returns two parity bits: bit 1 over head bits 7, 5, 3 and 1,
// bit 0 over head bits 6, 4, 2 and 0.
func headCheck(head byte) byte {
	var odd, even byte
	for i := 0; i < 8; i += 2 {
		even ^= (head >> uint(i)) & 1
		odd ^= (head >> uint(i+1)) & 1
	}
	return odd<<1 | even
}

// header returns the head byte and, for long messages, the length bytes.
func header(n int) (byte, []byte) {
	if n <= MaxShort {
		return byte(n), nil
	}
	return longHead, binary.BigEndian.AppendUint32(nil, uint32(n))
}

// Encode returns the framed message as one element per bit.
func Encode(message []byte) ([]byte, error) {
	if uint64(len(message)) > math.MaxUint32 {
		return nil, ErrMessageTooLong
	}
	head, length := header(len(message))
	body := make([]byte, 0, 1+len(length)+len(message))
	body = append(body, head)
	body = append(body, length...)
	body = append(body, message...)

	out := make([]byte, 0, BitLen(len(message)))
	out = appendBits(out, Magic, 8)
	out = appendBits(out, head, 8)
	out = appendBits(out, headCheck(head), 2)
	if length != nil {
		for _, b := range length {
			out = appendBits(out, b, 8)
		}
		out = appendBits(out, crc8.Checksum(length, crcTable), 8)
	}
	for _, b := range message {
		out = appendBits(out, b, 8)
	}
	return appendBits(out, crc8.Checksum(body, crcTable), 8), nil
}

// Overhead returns the number of bits Encode adds to a message of n bytes.
func Overhead(n int) int {
	if n <= MaxShort {
		return shortOverhead
	}
	return longOverhead
}

// BitLen returns the length in bits of the frame for a message of n bytes.
func BitLen(n int) int { return 8*n + Overhead(n) }

// MaxMessage returns the largest message length whose frame fits in the
// given number of bits, or 0 when not even an empty frame fits.
func MaxMessage(bits int) int {
	if n := (bits - longOverhead) / 8; n > MaxShort {
		return n
	}
	if bits < shortOverhead {
		return 0
	}
	return min((bits-shortOverhead)/8, MaxShort)
}

func appendBits(out []byte, v byte, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		out = append(out, (v>>uint(i))&1)
	}
	return out
}

type bitReader struct {
	bits []byte
	pos  int
}

func (r *bitReader) remaining() int { return len(r.bits) - r.pos }

func (r *bitReader) read(n int) (byte, bool) {
	if r.remaining() < n {
		return 0, false
	}
	var b byte
	for _, bit := range r.bits[r.pos : r.pos+n] {
		b = b<<1 | bit&1
	}
	r.pos += n
	return b, true
}

func (r *bitReader) bytes(n int) ([]byte, bool) {
	if r.remaining()/8 < n {
		return nil, false
	}
	out := make([]byte, n)
	for i := range out {
		out[i], _ = r.read(8)
	}
	return out, true
}

// Decode reads a frame from the start of bits (one element per bit, as
// produced by Encode). Bits after the frame are ignored.
func Decode(bits []byte) ([]byte, error) {
	r := &bitReader{bits: bits}
	magic, ok := r.read(8)
	if !ok || magic != Magic {
		return nil, ErrMagicMismatch
	}
	head, ok := r.read(8)
	if !ok {
		return nil, ErrTruncatedFrame
	}
	check, ok := r.read(2)
	if !ok {
		return nil, ErrTruncatedFrame
	}
	if check != headCheck(head) {
		return nil, ErrChecksumMismatch
	}

	body := []byte{head}
	n := uint64(head)
	if head&longHead != 0 {
		if head != longHead {
			return nil, ErrChecksumMismatch
		}
		length, ok := r.bytes(4)
		if !ok {
			return nil, ErrTruncatedFrame
		}
		sum, ok := r.read(8)
		if !ok {
			return nil, ErrTruncatedFrame
		}
		if crc8.Checksum(length, crcTable) != sum {
			return nil, ErrChecksumMismatch
		}
		body = append(body, length...)
		n = uint64(binary.BigEndian.Uint32(length))
	}
	if n >= uint64(r.remaining()/8) {
		return nil, ErrTruncatedFrame
	}

	message, _ := r.bytes(int(n))
	body = append(body, message...)
	sum, _ := r.read(8)
	if crc8.Checksum(body, crcTable) != sum {
		return nil, ErrChecksumMismatch
	}
	return message, nil
}
