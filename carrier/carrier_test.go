package carrier

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfsteg/contentstream"
	"github.com/wudi/pdfsteg/security"
)

func newScanner(t *testing.T, mutate func(*Policy)) *Scanner {
	t.Helper()
	p := DefaultPolicy()
	if mutate != nil {
		mutate(&p)
	}
	s, err := NewScanner(p, security.Limits{})
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	return s
}

func kinds(sites []Site) []Kind {
	out := make([]Kind, len(sites))
	for i, s := range sites {
		out[i] = s.Kind
	}
	return out
}

func TestScanSiteKinds(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []Kind
	}{
		{"whitespace run", "q  Q", []Kind{WhitespaceRun}},
		{"single spaces", "q Q q Q", []Kind{}},
		{"comment padding", "% pad \nq Q", []Kind{CommentPadding}},
		{"comment without padding", "% pad\nq Q", []Kind{}},
		{"numeric", "10.12345 20.5 m 1.2345 2.3456 l S", []Kind{NumericTrailingPrecision, NumericTrailingPrecision, NumericTrailingPrecision}},
		{"numeric not on allow-list", "0.12345 w", []Kind{}},
		{"three digits", "1.234 2.345 m", []Kind{}},
		{"pair", "1 w 0 J", []Kind{OperatorSynonymPair}},
		{"same slot", "1 g 0 rg", []Kind{}},
		{"pair needs whitespace separator", "/F1 12 Tf[1] 0 d", []Kind{}},
		{"pair outer side", "Q[1] 0 d 1 w", []Kind{}},
		{"aligned pairing", "1 g 0 rg 1 w 0 J", []Kind{OperatorSynonymPair}},
		{"array is one operand", "[0.12345 1] 0 d", []Kind{}},
	}
	s := newScanner(t, nil)
	for _, tc := range cases {
		sites, err := s.Scan([]byte(tc.src))
		if err != nil {
			t.Fatalf("%s: scan: %v", tc.name, err)
		}
		if diff := cmp.Diff(tc.want, kinds(sites)); diff != "" {
			t.Errorf("%s: kinds mismatch (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestWhitespaceAlphabets(t *testing.T) {
	buf := []byte("q   Q")
	sites, err := newScanner(t, nil).Scan(buf)
	if err != nil || len(sites) != 1 || sites[0].Bits != 1 {
		t.Fatalf("unexpected sites %+v (%v)", sites, err)
	}
	if err := sites[0].Encode(buf, 1); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(buf) != "q  \tQ" || sites[0].Decode(buf) != 1 {
		t.Fatalf("binary encode produced %q", buf)
	}
	if err := sites[0].Encode(buf, 2); err == nil {
		t.Fatalf("binary site accepted a 2-bit value")
	}

	quad := newScanner(t, func(p *Policy) { p.WhitespaceAlphabet = AlphabetQuaternary })
	buf = []byte("q  Q")
	sites, _ = quad.Scan(buf)
	if len(sites) != 1 || sites[0].Bits != 2 {
		t.Fatalf("expected one 2-bit site, got %+v", sites)
	}
	for v, want := range []string{"q  Q", "q \tQ", "q \nQ", "q \rQ"} {
		if err := sites[0].Encode(buf, uint(v)); err != nil {
			t.Fatalf("encode %d: %v", v, err)
		}
		if string(buf) != want || sites[0].Decode(buf) != uint(v) {
			t.Fatalf("value %d: got %q", v, buf)
		}
	}
}

func TestNumericParity(t *testing.T) {
	buf := []byte("10.12345 20.00010 m")
	sites, err := newScanner(t, nil).Scan(buf)
	if err != nil || len(sites) != 2 {
		t.Fatalf("unexpected sites %+v (%v)", sites, err)
	}
	if got := Read(buf, sites); !cmp.Equal(got, []uint{1, 0}) {
		t.Fatalf("read %v", got)
	}
	if err := Apply(buf, sites, []uint{0, 1}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if string(buf) != "10.12344 20.00011 m" {
		t.Fatalf("unexpected numeric encoding %q", buf)
	}

	strict := newScanner(t, func(p *Policy) { p.Epsilon = 0.000001 })
	if sites, _ := strict.Scan(buf); len(sites) != 0 {
		t.Fatalf("epsilon not honoured: %+v", sites)
	}
}

func TestPairSwap(t *testing.T) {
	buf := []byte("1  w 0 J")
	s := newScanner(t, nil)
	sites, err := s.Scan(buf)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// "J" sorts before "w", so the stream starts in swapped order and the
	// whitespace inside the w group follows the J group.
	if diff := cmp.Diff([]Kind{OperatorSynonymPair, WhitespaceRun}, kinds(sites)); diff != "" {
		t.Fatalf("kinds mismatch (-want +got):\n%s", diff)
	}
	if got := Read(buf, sites); !cmp.Equal(got, []uint{1, 0}) {
		t.Fatalf("read %v", got)
	}
	if err := Apply(buf, sites, []uint{0, 1}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if string(buf) != "0 J 1 \tw" {
		t.Fatalf("unexpected swap result %q", buf)
	}
	again, err := s.Scan(buf)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if got := Read(buf, again); !cmp.Equal(got, []uint{0, 1}) {
		t.Fatalf("values after swap %v", got)
	}
}

func TestEncodingPreservesSites(t *testing.T) {
	src := "q % a \n1 0 0 RG  0.5 w 1 J  2 j 4 M\n10.00001 20.00002 m 30.12345 40.5 l S\n" +
		"BT /F1 12 Tf  0 Tc 100 Tz  1 Ts 0 Tr 12 TL 72.25000 700.00000 Td (x) Tj ET  Q"
	s := newScanner(t, func(p *Policy) { p.WhitespaceAlphabet = AlphabetQuaternary })
	base, err := s.Scan([]byte(src))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		buf := []byte(src)
		values := make([]uint, len(base))
		for i, site := range base {
			values[i] = uint(rng.Intn(1 << uint(site.Bits)))
		}
		if err := Apply(buf, base, values); err != nil {
			t.Fatalf("apply: %v", err)
		}
		if len(buf) != len(src) {
			t.Fatalf("length changed")
		}
		sites, err := s.Scan(buf)
		if err != nil {
			t.Fatalf("round %d: rescan %q: %v", round, buf, err)
		}
		if diff := cmp.Diff(kinds(base), kinds(sites)); diff != "" {
			t.Fatalf("round %d: site kinds changed (-want +got):\n%s", round, diff)
		}
		if got := Read(buf, sites); !cmp.Equal(got, values) {
			t.Fatalf("round %d: read %v, wrote %v in %q", round, got, values, buf)
		}
	}
}

func TestScanIsIdempotent(t *testing.T) {
	s := newScanner(t, nil)
	src := []byte("1 w 0 J  q 1.23456 2 m  Q % x \n")
	a, err := s.Scan(src)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	b, _ := s.Scan(src)
	if diff := cmp.Diff(a, b, cmp.AllowUnexported(Site{})); diff != "" {
		t.Fatalf("scan not idempotent:\n%s", diff)
	}
	if Capacity(a) != len(a) {
		t.Fatalf("binary sites should carry one bit each")
	}
}

func TestScanRejectsUnsuitableStreams(t *testing.T) {
	s := newScanner(t, nil)
	if _, err := s.Scan([]byte("q  BI /W 1 /H 1 ID x EI  Q")); !errors.Is(err, ErrInlineImage) {
		t.Fatalf("expected ErrInlineImage, got %v", err)
	}
	lenient := newScanner(t, func(p *Policy) { p.SkipInlineImages = false })
	sites, err := lenient.Scan([]byte("q  BI /W 1 /H 1 ID x EI  Q"))
	if err != nil || len(sites) != 2 {
		t.Fatalf("expected two whitespace sites, got %+v (%v)", sites, err)
	}

	var tokErr *contentstream.TokenizeError
	if _, err := s.Scan([]byte("q (unterminated")); !errors.As(err, &tokErr) {
		t.Fatalf("expected TokenizeError, got %v", err)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	bad := []func(*Policy){
		func(p *Policy) { p.WhitespaceAlphabet = "ternary" },
		func(p *Policy) { p.Epsilon = 0 },
		func(p *Policy) { p.MinFractionDigits = 0 },
		func(p *Policy) { p.NumericOperators = nil },
		func(p *Policy) { p.PairSlots = map[string]string{"w": ""} },
		func(p *Policy) { p.Whitespace, p.Comments, p.Numeric, p.Pairs = false, false, false, false },
	}
	for i, mutate := range bad {
		p := DefaultPolicy()
		mutate(&p)
		if _, err := NewScanner(p, security.Limits{}); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
