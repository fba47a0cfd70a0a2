// Package contentstream tokenizes page content streams without interpreting
// them. Every byte of the input belongs to exactly one token, so callers can
// rewrite spans in place.
package contentstream

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Whitespace Kind = iota
	Comment
	Number
	String
	HexString
	Name
	Array
	Dict
	Bool
	Null
	Operator
	InlineImage
)

func (k Kind) String() string {
	switch k {
	case Whitespace:
		return "whitespace"
	case Comment:
		return "comment"
	case Number:
		return "number"
	case String:
		return "string"
	case HexString:
		return "hexstring"
	case Name:
		return "name"
	case Array:
		return "array"
	case Dict:
		return "dict"
	case Bool:
		return "bool"
	case Null:
		return "null"
	case Operator:
		return "operator"
	case InlineImage:
		return "inline-image"
	default:
		return "unknown"
	}
}

// Token is a lexical unit of a content stream. Raw aliases the tokenized
// buffer.
type Token struct {
	Kind  Kind
	Start int
	End   int
	Raw   []byte
}

// IsOperand reports whether t can precede an operator as an operand.
func (t Token) IsOperand() bool {
	switch t.Kind {
	case Number, String, HexString, Name, Array, Dict, Bool, Null:
		return true
	}
	return false
}

// Skippable reports whether t is whitespace or a comment.
func (t Token) Skippable() bool { return t.Kind == Whitespace || t.Kind == Comment }

// TokenizeError reports content that is not a valid sequence of operands
// and operators. Offset is relative to the start of the stream.
type TokenizeError struct {
	Offset int64
	Err    error
}

func (e *TokenizeError) Error() string {
	return fmt.Sprintf("content stream offset %d: %v", e.Offset, e.Err)
}

func (e *TokenizeError) Unwrap() error { return e.Err }

var (
	errUnbalanced      = errors.New("unbalanced brackets")
	errDanglingOperand = errors.New("operands without operator")
)

// Operation is an operator together with the operands that precede it.
// First and Last are token indexes; the operation's bytes run from
// tokens[First].Start to tokens[Last].End and may include whitespace and
// comments between operands.
type Operation struct {
	Operator string
	Operands []Token
	First    int
	Last     int
}

// Operations groups tokens into operations. An inline image forms an
// operation of its own with operator "BI".
func Operations(tokens []Token) ([]Operation, error) {
	var ops []Operation
	first := -1
	var operands []Token
	for i, tok := range tokens {
		switch {
		case tok.Skippable():
			continue
		case tok.IsOperand():
			if first < 0 {
				first = i
			}
			operands = append(operands, tok)
		case tok.Kind == InlineImage:
			if first >= 0 {
				return nil, &TokenizeError{Offset: int64(tokens[first].Start), Err: errDanglingOperand}
			}
			ops = append(ops, Operation{Operator: "BI", First: i, Last: i})
		default:
			if first < 0 {
				first = i
			}
			ops = append(ops, Operation{Operator: string(tok.Raw), Operands: operands, First: first, Last: i})
			first, operands = -1, nil
		}
	}
	if first >= 0 {
		return nil, &TokenizeError{Offset: int64(tokens[first].Start), Err: errDanglingOperand}
	}
	return ops, nil
}
