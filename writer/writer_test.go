package writer_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/wudi/pdfsteg/internal/pdftest"
	"github.com/wudi/pdfsteg/ir/raw"
	"github.com/wudi/pdfsteg/parser"
	"github.com/wudi/pdfsteg/writer"
)

func parse(t *testing.T, data []byte) *raw.Document {
	t.Helper()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestSerializeUnmodifiedIsIdentity(t *testing.T) {
	data := pdftest.Pages("BT  1 Tw ET")
	out, err := writer.Serialize(parse(t, data))
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("unmodified document changed")
	}
}

func TestSerializePatchesInPlace(t *testing.T) {
	data := pdftest.Pages("BT  1 Tw ET")
	doc := parse(t, data)
	ref := doc.PageContents(doc.Pages[0])[0]
	if err := doc.SetStreamData(ref, []byte("BT \t1 Tw ET")); err != nil {
		t.Fatalf("set data: %v", err)
	}
	out, err := writer.Serialize(doc)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(out) != len(data) {
		t.Fatalf("length changed: %d -> %d", len(data), len(out))
	}
	var diffs []int
	for i := range data {
		if data[i] != out[i] {
			diffs = append(diffs, i)
		}
	}
	st, _ := doc.Stream(ref)
	if len(diffs) != 1 || int64(diffs[0]) != st.Source.Start+3 {
		t.Fatalf("unexpected differing offsets %v", diffs)
	}
	again := parse(t, out)
	got, _ := again.Stream(ref)
	if string(got.Data) != "BT \t1 Tw ET" {
		t.Fatalf("re-parsed payload %q", got.Data)
	}
	if len(data) > 0 && &doc.Source[0] == &out[0] {
		t.Fatalf("output aliases the source buffer")
	}
}

func TestSerializeRebuildsXRefWhenLengthChanges(t *testing.T) {
	data := pdftest.Pages("BT ET", "q Q")
	doc := parse(t, data)
	first := doc.PageContents(doc.Pages[0])[0]
	second := doc.PageContents(doc.Pages[1])[0]
	if err := doc.SetStreamData(first, []byte("BT /F1 12 Tf (longer text) Tj ET")); err != nil {
		t.Fatalf("set data: %v", err)
	}
	out, err := writer.Serialize(doc)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	span := doc.Spans[first]
	if !bytes.Equal(out[:span.Start], data[:span.Start]) {
		t.Fatalf("bytes before the modified object changed")
	}

	again := parse(t, out)
	st, _ := again.Stream(first)
	if string(st.Data) != "BT /F1 12 Tf (longer text) Tj ET" {
		t.Fatalf("re-parsed payload %q", st.Data)
	}
	if n, _ := raw.IntValue(st.Dict.KV["Length"]); n != int64(len(st.Data)) {
		t.Fatalf("/Length %d does not match payload %d", n, len(st.Data))
	}
	other, _ := again.Stream(second)
	if string(other.Data) != "q Q" {
		t.Fatalf("untouched stream changed: %q", other.Data)
	}
	if _, ok := again.Trailer.KV["Prev"]; ok {
		t.Fatalf("rebuilt trailer must not chain to the old xref")
	}
	if n, _ := raw.IntValue(again.Trailer.KV["Size"]); n != 7 {
		t.Fatalf("expected /Size 7, got %d", n)
	}
}

func TestSerializeAppendsNewObjects(t *testing.T) {
	data := pdftest.Pages("BT ET")
	doc := parse(t, data)
	info := raw.Dict()
	info.Set(raw.NameLiteral("Producer"), raw.Str([]byte("a (b) c")))
	ref := raw.ObjectRef{Num: 9}
	doc.SetObject(ref, info)
	doc.Trailer.Set(raw.NameLiteral("Info"), raw.RefObj{R: ref})

	out, err := writer.Serialize(doc)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	again := parse(t, out)
	got, ok := again.ResolveDict(again.Trailer.KV["Info"])
	if !ok {
		t.Fatalf("info dictionary not reachable")
	}
	s, _ := got.KV["Producer"].(raw.StringObj)
	if string(s.Bytes) != "a (b) c" {
		t.Fatalf("string not escaped correctly: %q", s.Bytes)
	}
}

func TestSerializeFlattensObjectStreams(t *testing.T) {
	data := pdftest.CompressedPages("BT ET", "q Q")
	doc := parse(t, data)
	if doc.XRef != raw.XRefStream || !doc.Compressed[raw.ObjectRef{Num: 3}] {
		t.Fatalf("fixture not compressed: %s %v", doc.XRef, doc.Compressed)
	}
	content := doc.PageContents(doc.Pages[0])[0]
	if err := doc.SetStreamData(content, []byte("BT /F1 12 Tf (longer text) Tj ET")); err != nil {
		t.Fatalf("set data: %v", err)
	}
	out, err := writer.Serialize(doc)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	again := parse(t, out)
	if again.XRef != raw.XRefTable || again.HasCompressed() {
		t.Fatalf("expected a classic table without compressed entries, got %s %v", again.XRef, again.Compressed)
	}
	if len(again.Pages) != 2 || again.Pages[0].Num != 3 || again.Pages[1].Num != 5 {
		t.Fatalf("unexpected pages %v", again.Pages)
	}
	st, _ := again.Stream(content)
	if string(st.Data) != "BT /F1 12 Tf (longer text) Tj ET" {
		t.Fatalf("re-parsed payload %q", st.Data)
	}
	other, _ := again.Stream(again.PageContents(again.Pages[1])[0])
	if string(other.Data) != "q Q" {
		t.Fatalf("untouched stream changed: %q", other.Data)
	}
	for _, num := range []int{7, 8} {
		if _, ok := again.Objects[raw.ObjectRef{Num: num}]; ok {
			t.Fatalf("object %d should no longer be indexed", num)
		}
	}
	for _, key := range []string{"Type", "W", "Index", "Length"} {
		if _, ok := again.Trailer.KV[key]; ok {
			t.Fatalf("trailer kept xref stream key /%s", key)
		}
	}
	if n, _ := raw.IntValue(again.Trailer.KV["Size"]); n != 7 {
		t.Fatalf("expected /Size 7, got %d", n)
	}
}

func TestSerializeCompressedInPlacePatchKeepsXRefStream(t *testing.T) {
	data := pdftest.CompressedPages("BT  1 Tw ET")
	doc := parse(t, data)
	ref := doc.PageContents(doc.Pages[0])[0]
	if err := doc.SetStreamData(ref, []byte("BT \t1 Tw ET")); err != nil {
		t.Fatalf("set data: %v", err)
	}
	out, err := writer.Serialize(doc)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(out) != len(data) {
		t.Fatalf("length changed: %d -> %d", len(data), len(out))
	}
	again := parse(t, out)
	if again.XRef != raw.XRefStream || !again.HasCompressed() {
		t.Fatalf("in-place patch should leave the xref stream alone")
	}
}

func TestSerializeObject(t *testing.T) {
	d := raw.Dict()
	d.Set(raw.NameLiteral("A B"), raw.NumberFloat(0.25))
	d.Set(raw.NameLiteral("K"), raw.NewArray(raw.Bool(true), raw.NullObj{}, raw.HexStringObj{Bytes: []byte{0xab}}, raw.Ref(3, 0)))
	got := string(writer.SerializeObject(raw.ObjectRef{Num: 4}, d))
	want := "4 0 obj\n<</A#20B 0.25 /K [true null <AB> 3 0 R] >>\nendobj"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
