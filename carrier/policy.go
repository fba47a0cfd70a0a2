package carrier

import (
	"errors"
	"fmt"
	"sort"
)

const (
	AlphabetBinary     = "binary"
	AlphabetQuaternary = "quaternary"
)

// Policy selects which carrier kinds are used and how.
type Policy struct {
	Whitespace bool `toml:"whitespace"`
	// WhitespaceAlphabet is "binary" (space, tab) or "quaternary"
	// (space, tab, LF, CR).
	WhitespaceAlphabet string `toml:"whitespace_alphabet"`

	Comments bool `toml:"comments"`

	Numeric           bool     `toml:"numeric"`
	NumericOperators  []string `toml:"numeric_operators"`
	Epsilon           float64  `toml:"epsilon"`
	MinFractionDigits int      `toml:"min_fraction_digits"`

	Pairs bool `toml:"pairs"`
	// PairSlots maps an operator to the piece of graphics state it sets.
	// Operators sharing a slot are never swapped with each other.
	PairSlots map[string]string `toml:"pair_slots"`

	SkipInlineImages bool `toml:"skip_inline_images"`
}

// DefaultPolicy enables every carrier kind with conservative settings.
func DefaultPolicy() Policy {
	slots := map[string]string{}
	for _, op := range []string{"w", "J", "j", "M", "d", "ri", "i", "Tc", "Tw", "Tz", "TL", "Tf", "Tr", "Ts"} {
		slots[op] = op
	}
	for _, op := range []string{"G", "RG", "K", "CS", "SC", "SCN"} {
		slots[op] = "stroke_color"
	}
	for _, op := range []string{"g", "rg", "k", "cs", "sc", "scn"} {
		slots[op] = "fill_color"
	}
	return Policy{
		Whitespace:         true,
		WhitespaceAlphabet: AlphabetBinary,
		Comments:           true,
		Numeric:            true,
		NumericOperators:   []string{"m", "l", "c", "v", "y", "re", "Td", "TD"},
		Epsilon:            0.001,
		MinFractionDigits:  4,
		Pairs:              true,
		PairSlots:          slots,
		SkipInlineImages:   true,
	}
}

// Validate reports the first setting that leaves p unusable.
func (p Policy) Validate() error {
	if p.Whitespace {
		switch p.WhitespaceAlphabet {
		case AlphabetBinary, AlphabetQuaternary:
		default:
			return fmt.Errorf("unknown whitespace alphabet %q", p.WhitespaceAlphabet)
		}
	}
	if p.Numeric {
		if len(p.NumericOperators) == 0 {
			return errors.New("numeric carriers enabled without operators")
		}
		if p.Epsilon <= 0 {
			return fmt.Errorf("epsilon must be positive, got %g", p.Epsilon)
		}
		if p.MinFractionDigits < 1 {
			return fmt.Errorf("min_fraction_digits must be at least 1, got %d", p.MinFractionDigits)
		}
	}
	if p.Pairs {
		if len(p.PairSlots) == 0 {
			return errors.New("operator pairs enabled without slots")
		}
		ops := make([]string, 0, len(p.PairSlots))
		for op := range p.PairSlots {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			if p.PairSlots[op] == "" {
				return fmt.Errorf("operator %q has an empty slot name", op)
			}
		}
	}
	if !p.Whitespace && !p.Comments && !p.Numeric && !p.Pairs {
		return errors.New("no carrier kind enabled")
	}
	return nil
}

func (p Policy) alphabet() []byte {
	if p.WhitespaceAlphabet == AlphabetQuaternary {
		return quaternaryAlphabet
	}
	return binaryAlphabet
}
