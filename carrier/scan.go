package carrier

import (
	"bytes"
	"errors"
	"math"

	"github.com/wudi/pdfsteg/contentstream"
	"github.com/wudi/pdfsteg/security"
)

// ErrInlineImage is returned by Scan for streams with inline images when the
// policy excludes them.
var ErrInlineImage = errors.New("stream contains inline images")

// Scanner finds carrier sites in decoded content streams. It holds no
// mutable state and may be shared between goroutines.
type Scanner struct {
	policy     Policy
	tokenizer  contentstream.Tokenizer
	numericOps map[string]bool
}

// NewScanner returns a scanner for p, or the error from p.Validate.
func NewScanner(p Policy, limits security.Limits) (*Scanner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{policy: p, tokenizer: contentstream.Tokenizer{Limits: limits}, numericOps: map[string]bool{}}
	for _, op := range p.NumericOperators {
		s.numericOps[op] = true
	}
	return s, nil
}

// Policy returns the policy the scanner was built with.
func (s *Scanner) Policy() Policy { return s.policy }

// pairBlock is two adjacent operations that may trade places.
type pairBlock struct {
	a, b    contentstream.Operation
	swapped bool
}

// Scan returns the sites of data in extraction order. Tokenizer failures
// are returned as *contentstream.TokenizeError.
func (s *Scanner) Scan(data []byte) ([]Site, error) {
	tokens, err := s.tokenizer.Tokenize(data)
	if err != nil {
		return nil, err
	}
	if s.policy.SkipInlineImages {
		for _, tok := range tokens {
			if tok.Kind == contentstream.InlineImage {
				return nil, ErrInlineImage
			}
		}
	}
	ops, err := contentstream.Operations(tokens)
	if err != nil {
		return nil, err
	}

	numeric := make(map[int]bool)
	if s.policy.Numeric {
		for _, op := range ops {
			if !s.numericOps[op.Operator] {
				continue
			}
			for i := op.First; i < op.Last; i++ {
				if tokens[i].Kind == contentstream.Number && s.precise(tokens[i].Raw) {
					numeric[i] = true
				}
			}
		}
	}
	var blocks []pairBlock
	if s.policy.Pairs {
		blocks = s.pairs(tokens, ops)
	}

	var sites []Site
	addRange := func(from, to int) {
		for i := from; i <= to; i++ {
			if site, ok := s.valueSite(tokens[i], numeric[i]); ok {
				sites = append(sites, site)
			}
		}
	}
	next := 0
	for _, b := range blocks {
		addRange(next, b.a.First-1)
		sites = append(sites, Site{
			Kind:     OperatorSynonymPair,
			Bits:     1,
			Start:    tokens[b.a.First].Start,
			End:      tokens[b.b.Last].End,
			sepStart: tokens[b.a.Last].End,
			sepEnd:   tokens[b.b.First].Start,
			swapped:  b.swapped,
		})
		first, second := b.a, b.b
		if b.swapped {
			first, second = second, first
		}
		addRange(first.First, first.Last)
		addRange(b.a.Last+1, b.b.First-1)
		addRange(second.First, second.Last)
		next = b.b.Last + 1
	}
	addRange(next, len(tokens)-1)
	return sites, nil
}

func (s *Scanner) valueSite(tok contentstream.Token, numeric bool) (Site, bool) {
	switch {
	case tok.Kind == contentstream.Whitespace && s.policy.Whitespace && len(tok.Raw) >= 2:
		alphabet := s.policy.alphabet()
		bits := 1
		if len(alphabet) == 4 {
			bits = 2
		}
		return Site{Kind: WhitespaceRun, Bits: bits, Start: tok.Start, End: tok.End, alphabet: alphabet}, true
	case tok.Kind == contentstream.Comment && s.policy.Comments && len(tok.Raw) >= 2:
		if last := tok.Raw[len(tok.Raw)-1]; last == ' ' || last == '\t' {
			return Site{Kind: CommentPadding, Bits: 1, Start: tok.Start, End: tok.End, alphabet: binaryAlphabet}, true
		}
	case numeric:
		return Site{Kind: NumericTrailingPrecision, Bits: 1, Start: tok.Start, End: tok.End}, true
	}
	return Site{}, false
}

// precise reports whether the last digit of a number is below the
// rendering precision, so that changing it by one unit is invisible.
func (s *Scanner) precise(raw []byte) bool {
	dot := bytes.IndexByte(raw, '.')
	if dot < 0 {
		return false
	}
	digits := len(raw) - dot - 1
	if digits < s.policy.MinFractionDigits {
		return false
	}
	for _, c := range raw[dot+1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return math.Pow(10, -float64(digits)) <= s.policy.Epsilon*(1+1e-9)
}

// pairs splits runs of whitespace-linked state-setting operations into
// consecutive pairs, starting at the left of each run. Pairing is aligned
// rather than greedy so that swapping a pair never changes how its
// neighbours are paired.
func (s *Scanner) pairs(tokens []contentstream.Token, ops []contentstream.Operation) []pairBlock {
	slot := func(op contentstream.Operation) (string, bool) {
		name, ok := s.policy.PairSlots[op.Operator]
		return name, ok
	}
	isWS := func(i int) bool { return tokens[i].Kind == contentstream.Whitespace }
	linked := func(k int) bool {
		if _, ok := slot(ops[k]); !ok {
			return false
		}
		if _, ok := slot(ops[k+1]); !ok {
			return false
		}
		from, to := ops[k].Last+1, ops[k+1].First-1
		if from > to {
			return false
		}
		for i := from; i <= to; i++ {
			if !isWS(i) {
				return false
			}
		}
		return true
	}

	var blocks []pairBlock
	for k := 0; k < len(ops); {
		if _, ok := slot(ops[k]); !ok {
			k++
			continue
		}
		start, end := k, k
		for end+1 < len(ops) && linked(end) {
			end++
		}
		k = end + 1

		if first := ops[start].First; first > 0 && !isWS(first-1) {
			start++
		}
		if last := ops[end].Last; last < len(tokens)-1 && !isWS(last+1) {
			end--
		}
		for j := start; j+1 <= end; j += 2 {
			sa, _ := slot(ops[j])
			sb, _ := slot(ops[j+1])
			if sa == sb {
				continue
			}
			blocks = append(blocks, pairBlock{a: ops[j], b: ops[j+1], swapped: sa > sb})
		}
	}
	return blocks
}
