package raw

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfsteg/recovery"
	"github.com/wudi/pdfsteg/scanner"
)

// Indirect is one "N G obj ... endobj" definition read from a file.
type Indirect struct {
	Ref    ObjectRef
	Object Object
	Span   Span
}

// LengthFunc resolves the /Length of a stream dictionary. It returns false
// when the length is absent or cannot be determined, in which case the
// payload is delimited by its endstream marker.
type LengthFunc func(dict *DictObj) (int64, bool)

// ObjectReader builds objects from scanner tokens with one token of
// lookahead.
type ObjectReader struct {
	s        scanner.Scanner
	buf      []scanner.Token
	rec      recovery.Strategy
	loc      recovery.Location
	lastEnd  int64
	prevEnd  int64
	maxDepth int
}

// NewObjectReader wraps s. A nil strategy fails on every problem.
func NewObjectReader(s scanner.Scanner, rec recovery.Strategy) *ObjectReader {
	return &ObjectReader{s: s, rec: rec, maxDepth: 64}
}

// SetMaxDepth bounds array and dictionary nesting.
func (r *ObjectReader) SetMaxDepth(n int) {
	if n > 0 {
		r.maxDepth = n
	}
}

func (r *ObjectReader) next() (scanner.Token, error) {
	var tok scanner.Token
	if l := len(r.buf); l > 0 {
		tok = r.buf[l-1]
		r.buf = r.buf[:l-1]
	} else {
		var err error
		tok, err = r.s.Next()
		if err != nil {
			return scanner.Token{}, err
		}
	}
	r.prevEnd, r.lastEnd = r.lastEnd, tok.End
	return tok, nil
}

func (r *ObjectReader) unread(tok scanner.Token) {
	r.buf = append(r.buf, tok)
	r.lastEnd = r.prevEnd
}

// ReadObject reads one direct object.
func (r *ObjectReader) ReadObject() (Object, error) {
	return r.parseObject(0)
}

// ReadIndirect reads the indirect object whose header starts at offset.
func (r *ObjectReader) ReadIndirect(offset int64, length LengthFunc) (Indirect, error) {
	if err := r.s.Seek(offset); err != nil {
		return Indirect{}, err
	}
	r.buf = r.buf[:0]
	tokNum, err := r.next()
	if err != nil {
		return Indirect{}, unexpectedEOF(err)
	}
	tokGen, err := r.next()
	if err != nil {
		return Indirect{}, unexpectedEOF(err)
	}
	tokObj, err := r.next()
	if err != nil {
		return Indirect{}, unexpectedEOF(err)
	}
	if tokNum.Type != scanner.TokenNumber || !tokNum.IsInt || tokGen.Type != scanner.TokenNumber || !tokGen.IsInt ||
		tokObj.Type != scanner.TokenKeyword || tokObj.Str != "obj" {
		return Indirect{}, fmt.Errorf("no object header at offset %d", offset)
	}
	ref := ObjectRef{Num: int(tokNum.Int), Gen: int(tokGen.Int)}
	r.loc = recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser"}
	r.s.SetRecoveryLocation(r.loc)

	obj, err := r.ReadObject()
	if err != nil {
		return Indirect{}, fmt.Errorf("object %v: %w", ref, err)
	}
	if dict, ok := obj.(*DictObj); ok {
		n, known := int64(-1), false
		if length != nil {
			n, known = length(dict)
		}
		if !known {
			n = -1
		}
		r.s.SetNextStreamLength(n)
		tok, err := r.next()
		switch {
		case err != nil && !errors.Is(err, io.EOF):
			return Indirect{}, fmt.Errorf("object %v: %w", ref, err)
		case err == nil && tok.Type == scanner.TokenStream:
			data := make([]byte, len(tok.Bytes))
			copy(data, tok.Bytes)
			obj = &StreamObj{Dict: dict, Data: data, Source: Span{Start: tok.DataPos, End: tok.DataPos + int64(len(data))}}
		case err == nil:
			r.s.SetNextStreamLength(-1)
			r.unread(tok)
		}
	}

	tok, err := r.next()
	if err == nil && tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
		return Indirect{Ref: ref, Object: obj, Span: Span{Start: tokNum.Pos, End: tok.End}}, nil
	}
	if err == nil {
		r.unread(tok)
	} else if !errors.Is(err, io.EOF) {
		return Indirect{}, fmt.Errorf("object %v: %w", ref, err)
	}
	if !recovery.Tolerates(r.rec, nil, errors.New("missing endobj"), r.loc) {
		return Indirect{}, fmt.Errorf("object %v: missing endobj", ref)
	}
	return Indirect{Ref: ref, Object: obj, Span: Span{Start: tokNum.Pos, End: r.lastEnd}}, nil
}

func (r *ObjectReader) parseObject(depth int) (Object, error) {
	if depth > r.maxDepth {
		return nil, errors.New("nesting depth exceeded")
	}
	tok, err := r.next()
	if err != nil {
		return nil, unexpectedEOF(err)
	}
	switch tok.Type {
	case scanner.TokenName:
		return NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenString:
		return StringObj{Bytes: append([]byte(nil), tok.Bytes...)}, nil
	case scanner.TokenHexString:
		return HexStringObj{Bytes: append([]byte(nil), tok.Bytes...)}, nil
	case scanner.TokenArray:
		return r.parseArray(depth + 1)
	case scanner.TokenDict:
		return r.parseDict(depth + 1)
	case scanner.TokenRef:
		return RefObj{R: ObjectRef{Num: tok.Ref.Num, Gen: tok.Ref.Gen}}, nil
	case scanner.TokenKeyword:
		if tok.Str == "endobj" {
			return nil, errors.New("unexpected endobj")
		}
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", tok.Str, tok.Pos)
	}
	return nil, fmt.Errorf("unexpected %s token at offset %d", tok.Type, tok.Pos)
}

func (r *ObjectReader) parseArray(depth int) (Object, error) {
	arr := &ArrayObj{}
	for {
		tok, err := r.next()
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		r.unread(tok)
		item, err := r.parseObject(depth)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *ObjectReader) parseDict(depth int) (Object, error) {
	d := Dict()
	for {
		tok, err := r.next()
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			// A dictionary cut short by endobj is a common producer bug.
			if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
				loc := r.loc
				loc.ByteOffset = tok.Pos
				if recovery.Tolerates(r.rec, nil, errors.New("unexpected endobj in dict (missing >>?)"), loc) {
					r.unread(tok)
					return d, nil
				}
			}
			return nil, fmt.Errorf("expected name in dict at offset %d, got %s", tok.Pos, tok.Type)
		}
		val, err := r.parseObject(depth)
		if err != nil {
			return nil, err
		}
		d.Set(NameObj{Val: tok.Str}, val)
	}
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
