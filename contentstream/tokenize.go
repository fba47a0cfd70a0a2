package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfsteg/scanner"
	"github.com/wudi/pdfsteg/security"
)

// Tokenizer splits content streams into tokens under resource limits.
type Tokenizer struct {
	Limits security.Limits
}

// Tokenize uses the default limits.
func Tokenize(data []byte) ([]Token, error) {
	return (&Tokenizer{}).Tokenize(data)
}

// Tokenize returns tokens covering data with no gaps and no overlaps.
// Errors are always *TokenizeError.
func (t *Tokenizer) Tokenize(data []byte) ([]Token, error) {
	limits := t.Limits.WithDefaults()
	s := scanner.New(bytes.NewReader(data), scanner.Config{
		Layout:          true,
		MaxStringLength: limits.MaxStringLength,
		MaxInlineImage:  limits.MaxStreamLength,
		MaxArrayDepth:   limits.MaxNestingDepth,
		MaxDictDepth:    limits.MaxNestingDepth,
		WindowSize:      int64(len(data)) + 1,
	})

	type open struct {
		kind  Kind
		start int
	}
	var (
		tokens  []Token
		stack   []open
		biStart = -1
	)
	fail := func(off int64, err error) ([]Token, error) {
		return nil, &TokenizeError{Offset: off, Err: err}
	}
	emit := func(kind Kind, start, end int) {
		if len(stack) > 0 || biStart >= 0 {
			return // part of an enclosing composite
		}
		tokens = append(tokens, Token{Kind: kind, Start: start, End: end, Raw: data[start:end:end]})
	}

	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(s.Position(), err)
		}
		start, end := int(tok.Pos), int(tok.End)
		switch tok.Type {
		case scanner.TokenWhitespace:
			emit(Whitespace, start, end)
		case scanner.TokenComment:
			emit(Comment, start, end)
		case scanner.TokenNumber:
			emit(Number, start, end)
		case scanner.TokenString:
			emit(String, start, end)
		case scanner.TokenHexString:
			emit(HexString, start, end)
		case scanner.TokenName:
			emit(Name, start, end)
		case scanner.TokenBoolean:
			emit(Bool, start, end)
		case scanner.TokenNull:
			emit(Null, start, end)
		case scanner.TokenArray:
			stack = append(stack, open{kind: Array, start: start})
		case scanner.TokenDict:
			stack = append(stack, open{kind: Dict, start: start})
		case scanner.TokenInlineImage:
			if biStart < 0 || len(stack) > 0 {
				return fail(tok.Pos, errors.New("inline image data outside BI"))
			}
			tokens = append(tokens, Token{Kind: InlineImage, Start: biStart, End: end, Raw: data[biStart:end:end]})
			biStart = -1
		case scanner.TokenKeyword:
			switch tok.Str {
			case "]", ">>":
				want := Array
				if tok.Str == ">>" {
					want = Dict
				}
				if len(stack) == 0 || stack[len(stack)-1].kind != want {
					return fail(tok.Pos, fmt.Errorf("%w: unexpected %q", errUnbalanced, tok.Str))
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				emit(top.kind, top.start, end)
			case "BI":
				if len(stack) > 0 || biStart >= 0 {
					return fail(tok.Pos, errors.New("nested inline image"))
				}
				biStart = start
			default:
				if !validOperator(tok.Str) {
					return fail(tok.Pos, fmt.Errorf("unexpected %q", tok.Str))
				}
				if len(stack) > 0 {
					return fail(tok.Pos, fmt.Errorf("operator %q inside %s", tok.Str, stack[len(stack)-1].kind))
				}
				emit(Operator, start, end)
			}
		default:
			return fail(tok.Pos, fmt.Errorf("unexpected %s token", tok.Type))
		}
	}
	if len(stack) > 0 {
		return fail(int64(stack[len(stack)-1].start), fmt.Errorf("%w: unterminated %s", errUnbalanced, stack[len(stack)-1].kind))
	}
	if biStart >= 0 {
		return fail(int64(biStart), errors.New("inline image without data"))
	}
	return tokens, nil
}

// validOperator accepts the shapes content stream operators take: a letter
// or quote followed by letters, digits, '*' or quotes.
func validOperator(op string) bool {
	if op == "" {
		return false
	}
	for i := 0; i < len(op); i++ {
		c := op[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c == '\'', c == '"':
		case i > 0 && (c >= '0' && c <= '9' || c == '*'):
		default:
			return false
		}
	}
	return true
}
