package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfsteg/filters"
	"github.com/wudi/pdfsteg/ir/raw"
	"github.com/wudi/pdfsteg/recovery"
	"github.com/wudi/pdfsteg/scanner"
)

// EntryType distinguishes the three kinds of cross-reference entries.
type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

// Entry is one cross-reference entry. Offset and Gen are set for in-use
// objects; Stream and Index locate compressed objects.
type Entry struct {
	Type   EntryType
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table holds the merged cross-reference information of a document.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	ObjStream(objNum int) (streamNum, index int, found bool)
	Objects() []int
	Type() string
	Trailer() *raw.DictObj
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	Filters      filters.Limits
}

// NewResolver returns a resolver for classic tables, xref streams and
// hybrid files. When the recovery strategy tolerates it, a document whose
// cross-reference data is unusable is repaired by a linear scan.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 50
	}
	return &resolver{cfg: cfg}
}

type resolver struct {
	cfg ResolverConfig
}

func (r *resolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	t, err := r.resolveChain(ctx, data)
	if err == nil {
		return t, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !recovery.Tolerates(r.cfg.Recovery, ctx, err, recovery.Location{Component: "xref"}) {
		return nil, err
	}
	return Repair(ctx, data)
}

func (r *resolver) resolveChain(ctx context.Context, data []byte) (*table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := &table{entries: make(map[int]Entry)}
	cache := make(map[int64]section)
	read := func(off int64) (section, error) {
		if sec, ok := cache[off]; ok {
			return sec, nil
		}
		sec, err := r.readSection(ctx, data, off)
		if err != nil {
			return section{}, err
		}
		cache[off] = sec
		return sec, nil
	}
	visited := make(map[int64]bool)
	for off, depth := start, 0; off >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("xref chain deeper than %d sections", r.cfg.MaxXRefDepth)
		}
		if visited[off] {
			return nil, fmt.Errorf("xref chain loops back to offset %d", off)
		}
		visited[off] = true

		sec, err := read(off)
		if err != nil {
			return nil, err
		}
		if t.trailer == nil {
			t.trailer = sec.trailer
			t.kind = sec.kind
		}
		// Hybrid files: the table's companion stream comes right after the
		// table itself in precedence.
		if stm, ok := raw.IntValue(sec.trailer.KV["XRefStm"]); ok {
			hybrid, err := read(stm)
			if err != nil {
				return nil, fmt.Errorf("XRefStm: %w", err)
			}
			t.mergeHybrid(sec.entries, hybrid.entries)
		} else {
			t.merge(sec.entries)
		}

		prev, ok := raw.IntValue(sec.trailer.KV["Prev"])
		if !ok {
			break
		}
		off = prev
	}
	if err := t.validate(int64(len(data))); err != nil {
		return nil, err
	}
	return t, nil
}

type section struct {
	kind    string
	entries map[int]Entry
	trailer *raw.DictObj
}

func (r *resolver) readSection(ctx context.Context, data []byte, off int64) (section, error) {
	if off < 0 || off >= int64(len(data)) {
		return section{}, fmt.Errorf("xref offset out of range: %d", off)
	}
	p := off
	for p < int64(len(data)) && scanner.IsWhitespace(data[p]) {
		p++
	}
	if bytes.HasPrefix(data[p:], []byte("xref")) {
		return r.readTable(data, p)
	}
	return r.readStream(ctx, data, off)
}

func (r *resolver) newScanner(data []byte) scanner.Scanner {
	return scanner.New(bytes.NewReader(data), scanner.Config{MaxDictDepth: 32, MaxArrayDepth: 32})
}

// readTable parses a classic "xref ... trailer << >>" section.
func (r *resolver) readTable(data []byte, off int64) (section, error) {
	s := r.newScanner(data)
	if err := s.Seek(off); err != nil {
		return section{}, err
	}
	if tok, err := s.Next(); err != nil || tok.Str != "xref" {
		return section{}, errors.New("xref keyword not found at offset")
	}
	entries := make(map[int]Entry)
	for {
		tok, err := s.Next()
		if err != nil {
			return section{}, fmt.Errorf("unexpected end of xref section: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		startObj, ok := intToken(tok)
		if !ok {
			return section{}, fmt.Errorf("invalid xref subsection header at offset %d", tok.Pos)
		}
		countTok, err := s.Next()
		if err != nil {
			return section{}, fmt.Errorf("unexpected end of xref section: %w", err)
		}
		count, ok := intToken(countTok)
		if !ok || count < 0 {
			return section{}, fmt.Errorf("invalid xref subsection count at offset %d", countTok.Pos)
		}
		for i := int64(0); i < count; i++ {
			offTok, err1 := s.Next()
			genTok, err2 := s.Next()
			kindTok, err3 := s.Next()
			if err1 != nil || err2 != nil || err3 != nil {
				return section{}, errors.New("unexpected end of xref section")
			}
			entryOff, ok1 := intToken(offTok)
			gen, ok2 := intToken(genTok)
			if !ok1 || !ok2 || kindTok.Type != scanner.TokenKeyword || (kindTok.Str != "n" && kindTok.Str != "f") {
				return section{}, fmt.Errorf("invalid xref entry at offset %d", offTok.Pos)
			}
			num := int(startObj + i)
			if kindTok.Str == "f" {
				entries[num] = Entry{Type: EntryFree, Gen: int(gen)}
				continue
			}
			entries[num] = Entry{Type: EntryInUse, Offset: entryOff, Gen: int(gen)}
		}
	}
	obj, err := raw.NewObjectReader(s, nil).ReadObject()
	if err != nil {
		return section{}, fmt.Errorf("parse trailer: %w", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return section{}, errors.New("trailer is not a dictionary")
	}
	return section{kind: string(raw.XRefTable), entries: entries, trailer: trailer}, nil
}

// readStream parses a cross-reference stream object (PDF 1.5).
func (r *resolver) readStream(ctx context.Context, data []byte, off int64) (section, error) {
	rd := raw.NewObjectReader(r.newScanner(data), nil)
	ind, err := rd.ReadIndirect(off, func(d *raw.DictObj) (int64, bool) {
		return raw.IntValue(d.KV["Length"])
	})
	if err != nil {
		return section{}, fmt.Errorf("xref stream: %w", err)
	}
	st, ok := ind.Object.(*raw.StreamObj)
	if !ok {
		return section{}, fmt.Errorf("object at offset %d is not an xref stream", off)
	}
	if typ, _ := raw.NameValue(st.Dict.KV["Type"]); typ != "XRef" {
		return section{}, fmt.Errorf("object at offset %d is not an xref stream", off)
	}
	names, params := filters.ExtractFilters(st.Dict)
	payload := st.Data
	if len(names) > 0 {
		payload, err = filters.NewStandardPipeline(r.cfg.Filters).Decode(ctx, st.Data, names, params)
		if err != nil {
			return section{}, fmt.Errorf("decode xref stream: %w", err)
		}
	}
	entries, err := decodeStreamEntries(st.Dict, payload)
	if err != nil {
		return section{}, err
	}
	return section{kind: string(raw.XRefStream), entries: entries, trailer: st.Dict}, nil
}

func decodeStreamEntries(dict *raw.DictObj, payload []byte) (map[int]Entry, error) {
	wArr, ok := dict.KV["W"].(*raw.ArrayObj)
	if !ok || wArr.Len() != 3 {
		return nil, errors.New("xref stream /W must be an array of three integers")
	}
	var w [3]int
	for i := range w {
		n, ok := raw.IntValue(wArr.Items[i])
		if !ok || n < 0 || n > 8 {
			return nil, errors.New("invalid xref stream /W entry")
		}
		w[i] = int(n)
	}
	size, ok := raw.IntValue(dict.KV["Size"])
	if !ok {
		return nil, errors.New("xref stream missing /Size")
	}
	index := []int64{0, size}
	if idx, ok := dict.KV["Index"].(*raw.ArrayObj); ok {
		index = index[:0]
		for _, item := range idx.Items {
			n, ok := raw.IntValue(item)
			if !ok {
				return nil, errors.New("invalid xref stream /Index")
			}
			index = append(index, n)
		}
		if len(index)%2 != 0 {
			return nil, errors.New("odd-length xref stream /Index")
		}
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, errors.New("xref stream /W is all zero")
	}
	entries := make(map[int]Entry)
	pos := 0
	for i := 0; i < len(index); i += 2 {
		for n := int64(0); n < index[i+1]; n++ {
			if pos+rowLen > len(payload) {
				return nil, errors.New("xref stream shorter than its /Index declares")
			}
			row := payload[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			num := int(index[i] + n)
			switch typ {
			case 0:
				entries[num] = Entry{Type: EntryFree, Gen: int(f3)}
			case 1:
				entries[num] = Entry{Type: EntryInUse, Offset: f2, Gen: int(f3)}
			case 2:
				entries[num] = Entry{Type: EntryCompressed, Stream: int(f2), Index: int(f3)}
			}
			// Unknown types are references to the null object.
		}
	}
	return entries, nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intToken(tok scanner.Token) (int64, bool) {
	if tok.Type != scanner.TokenNumber || !tok.IsInt || tok.Int < 0 {
		return 0, false
	}
	return tok.Int, true
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], "\x00\t\n\f\r ")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	if off <= 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("xref offset out of range: %d", off)
	}
	return off, nil
}

type table struct {
	kind    string
	entries map[int]Entry
	trailer *raw.DictObj
}

// merge adds entries of an older section; newer entries win.
func (t *table) merge(older map[int]Entry) {
	for num, e := range older {
		if _, ok := t.entries[num]; !ok {
			t.entries[num] = e
		}
	}
}

// mergeHybrid merges a hybrid section: the classic table wins, except that
// its free entries may be filled by the companion xref stream.
func (t *table) mergeHybrid(tableEntries, streamEntries map[int]Entry) {
	combined := make(map[int]Entry, len(tableEntries)+len(streamEntries))
	for num, e := range tableEntries {
		combined[num] = e
	}
	for num, e := range streamEntries {
		if cur, ok := combined[num]; !ok || cur.Type == EntryFree {
			combined[num] = e
		}
	}
	t.merge(combined)
}

func (t *table) validate(size int64) error {
	if t.trailer == nil {
		return errors.New("trailer missing")
	}
	declared, ok := raw.IntValue(t.trailer.KV["Size"])
	if !ok {
		return errors.New("trailer missing /Size")
	}
	for num, e := range t.entries {
		if e.Type == EntryFree {
			continue
		}
		if int64(num) >= declared {
			return fmt.Errorf("xref entry %d beyond trailer /Size %d", num, declared)
		}
		if e.Type == EntryInUse && (e.Offset <= 0 || e.Offset >= size) {
			return fmt.Errorf("xref entry %d offset %d out of range", num, e.Offset)
		}
	}
	return nil
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Type != EntryInUse {
		return 0, 0, false
	}
	return e.Offset, e.Gen, true
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Type != EntryCompressed {
		return 0, 0, false
	}
	return e.Stream, e.Index, true
}

// Objects lists in-use and compressed object numbers in ascending order.
func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Type != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string          { return t.kind }
func (t *table) Trailer() *raw.DictObj { return t.trailer }
