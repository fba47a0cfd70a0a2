package contentstream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type kindText struct {
	Kind Kind
	Text string
}

func summarize(tokens []Token) []kindText {
	out := make([]kindText, len(tokens))
	for i, t := range tokens {
		out[i] = kindText{t.Kind, string(t.Raw)}
	}
	return out
}

func TestTokenizeCoversEveryByte(t *testing.T) {
	src := []byte("q 1 0 0 1 72.5 -3 cm % note \n/F1 12 Tf [(a) -20 (b)] TJ\n<< /MCID 0 >> BDC EMC <48> Tj true null T* Q")
	tokens, err := Tokenize(src)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	var rebuilt []byte
	pos := 0
	for _, tok := range tokens {
		if tok.Start != pos {
			t.Fatalf("gap or overlap at %d (token starts at %d)", pos, tok.Start)
		}
		rebuilt = append(rebuilt, tok.Raw...)
		pos = tok.End
	}
	if !bytes.Equal(rebuilt, src) {
		t.Fatalf("tokens do not reproduce input:\n%q\n%q", rebuilt, src)
	}

	want := []kindText{
		{Operator, "q"}, {Whitespace, " "}, {Number, "1"}, {Whitespace, " "}, {Number, "0"}, {Whitespace, " "},
		{Number, "0"}, {Whitespace, " "}, {Number, "1"}, {Whitespace, " "}, {Number, "72.5"}, {Whitespace, " "},
		{Number, "-3"}, {Whitespace, " "}, {Operator, "cm"}, {Whitespace, " "}, {Comment, "% note "},
		{Whitespace, "\n"}, {Name, "/F1"}, {Whitespace, " "}, {Number, "12"}, {Whitespace, " "}, {Operator, "Tf"},
		{Whitespace, " "}, {Array, "[(a) -20 (b)]"}, {Whitespace, " "}, {Operator, "TJ"}, {Whitespace, "\n"},
		{Dict, "<< /MCID 0 >>"}, {Whitespace, " "}, {Operator, "BDC"}, {Whitespace, " "}, {Operator, "EMC"},
		{Whitespace, " "}, {HexString, "<48>"}, {Whitespace, " "}, {Operator, "Tj"}, {Whitespace, " "},
		{Bool, "true"}, {Whitespace, " "}, {Null, "null"}, {Whitespace, " "}, {Operator, "T*"},
		{Whitespace, " "}, {Operator, "Q"},
	}
	if diff := cmp.Diff(want, summarize(tokens)); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenizeInlineImageIsOpaque(t *testing.T) {
	src := []byte("q BI /W 2 /H 1 /BPC 8 /CS /G ID \x00Q) ( EI Q")
	tokens, err := Tokenize(src)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	want := []kindText{
		{Operator, "q"}, {Whitespace, " "},
		{InlineImage, "BI /W 2 /H 1 /BPC 8 /CS /G ID \x00Q) ( EI"},
		{Whitespace, " "}, {Operator, "Q"},
	}
	if diff := cmp.Diff(want, summarize(tokens)); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
	ops, err := Operations(tokens)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 3 || ops[1].Operator != "BI" {
		t.Fatalf("unexpected operations %+v", ops)
	}
}

func TestTokenizeErrors(t *testing.T) {
	cases := map[string]string{
		"bad number":      "1.2.3 w",
		"unterminated":    "(abc Tj",
		"unbalanced ]":    "1 2 ] re",
		"unclosed [":      "[1 2 d",
		"mismatched":      "[1 >> d",
		"stray paren":     "1 w ) Q",
		"stray brace":     "{ 1 w }",
		"stray gt":        "1 w > Q",
		"operator in arr": "[1 w] d",
		"ID without BI":   "ID x EI",
		"missing EI":      "BI /W 1 ID abc",
	}
	for name, src := range cases {
		_, err := Tokenize([]byte(src))
		var tokErr *TokenizeError
		if !errors.As(err, &tokErr) {
			t.Errorf("%s: expected TokenizeError, got %v", name, err)
		}
	}
}

func TestOperationsGroupsOperands(t *testing.T) {
	tokens, err := Tokenize([]byte("0.5 w\n1 0 0 RG  q % c\n Q"))
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	ops, err := Operations(tokens)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	type opSummary struct {
		Op       string
		Operands int
		Text     string
	}
	var got []opSummary
	for _, op := range ops {
		text := ""
		for i := op.First; i <= op.Last; i++ {
			text += string(tokens[i].Raw)
		}
		got = append(got, opSummary{op.Operator, len(op.Operands), text})
	}
	want := []opSummary{{"w", 1, "0.5 w"}, {"RG", 3, "1 0 0 RG"}, {"q", 0, "q"}, {"Q", 0, "Q"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("operations mismatch (-want +got):\n%s", diff)
	}
}

func TestOperationsDanglingOperands(t *testing.T) {
	tokens, err := Tokenize([]byte("q 1 2"))
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	_, err = Operations(tokens)
	var tokErr *TokenizeError
	if !errors.As(err, &tokErr) || tokErr.Offset != 2 {
		t.Fatalf("expected dangling operand error at 2, got %v", err)
	}
}

func TestTokenizeEmpty(t *testing.T) {
	tokens, err := Tokenize(nil)
	if err != nil || len(tokens) != 0 {
		t.Fatalf("expected no tokens, got %v %v", tokens, err)
	}
}
