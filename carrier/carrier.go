// Package carrier finds the places in a content stream where bits can be
// hidden without changing what the stream draws, and reads and writes them.
package carrier

import (
	"errors"
	"fmt"
)

// Kind identifies a carrier technique.
type Kind int

const (
	WhitespaceRun Kind = iota
	OperatorSynonymPair
	NumericTrailingPrecision
	CommentPadding
)

// Kinds lists every site kind in report order.
var Kinds = []Kind{WhitespaceRun, OperatorSynonymPair, NumericTrailingPrecision, CommentPadding}

func (k Kind) String() string {
	switch k {
	case WhitespaceRun:
		return "whitespace"
	case OperatorSynonymPair:
		return "operator-pair"
	case NumericTrailingPrecision:
		return "numeric"
	case CommentPadding:
		return "comment"
	default:
		return "unknown"
	}
}

var (
	binaryAlphabet     = []byte{' ', '\t'}
	quaternaryAlphabet = []byte{' ', '\t', '\n', '\r'}
)

// Site is one carrier location inside a stream. Start and End delimit the
// bytes it owns. Sites are only meaningful for the buffer they were scanned
// from, or a buffer derived from it by writing site values.
type Site struct {
	Kind  Kind
	Bits  int
	Start int
	End   int

	alphabet []byte
	// Pair sites: the separator span, and whether the group that sorts
	// first by slot name is currently second.
	sepStart, sepEnd int
	swapped          bool
}

// Decode reads the value held by the site.
func (s Site) Decode(buf []byte) uint {
	switch s.Kind {
	case WhitespaceRun, CommentPadding:
		last := buf[s.End-1]
		for i, c := range s.alphabet {
			if c == last {
				return uint(i)
			}
		}
		return 0
	case NumericTrailingPrecision:
		return uint(buf[s.End-1]-'0') & 1
	case OperatorSynonymPair:
		if s.swapped {
			return 1
		}
		return 0
	}
	return 0
}

// Encode writes value into buf. The number of bytes never changes.
func (s Site) Encode(buf []byte, value uint) error {
	if value >= 1<<uint(s.Bits) {
		return fmt.Errorf("value %d does not fit in %d bits", value, s.Bits)
	}
	if s.End > len(buf) || s.Start < 0 || s.Start >= s.End {
		return errors.New("site outside buffer")
	}
	switch s.Kind {
	case WhitespaceRun, CommentPadding:
		buf[s.End-1] = s.alphabet[value]
	case NumericTrailingPrecision:
		d := buf[s.End-1] - '0'
		if uint(d&1) != value {
			buf[s.End-1] = '0' + (d ^ 1)
		}
	case OperatorSynonymPair:
		if s.Decode(buf) == value {
			return nil
		}
		span := buf[s.Start:s.End]
		swapped := make([]byte, 0, len(span))
		swapped = append(swapped, buf[s.sepEnd:s.End]...)
		swapped = append(swapped, buf[s.sepStart:s.sepEnd]...)
		swapped = append(swapped, buf[s.Start:s.sepStart]...)
		copy(span, swapped)
	default:
		return fmt.Errorf("unknown site kind %d", s.Kind)
	}
	return nil
}

// Capacity returns the number of bits the sites carry.
func Capacity(sites []Site) int {
	n := 0
	for _, s := range sites {
		n += s.Bits
	}
	return n
}

// Apply writes values[i] into sites[i]. Value encodings are written before
// pairs are swapped so that every site is addressed at the position it was
// scanned at.
func Apply(buf []byte, sites []Site, values []uint) error {
	if len(values) > len(sites) {
		return fmt.Errorf("%d values for %d sites", len(values), len(sites))
	}
	for pass := 0; pass < 2; pass++ {
		for i, v := range values {
			if (sites[i].Kind == OperatorSynonymPair) != (pass == 1) {
				continue
			}
			if err := sites[i].Encode(buf, v); err != nil {
				return fmt.Errorf("site %d (%s at %d): %w", i, sites[i].Kind, sites[i].Start, err)
			}
		}
	}
	return nil
}

// Read returns the value of every site.
func Read(buf []byte, sites []Site) []uint {
	out := make([]uint, len(sites))
	for i, s := range sites {
		out[i] = s.Decode(buf)
	}
	return out
}
