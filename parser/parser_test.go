package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdfsteg/internal/pdftest"
	"github.com/wudi/pdfsteg/ir/raw"
	"github.com/wudi/pdfsteg/recovery"
)

func TestDocumentParserParsesClassicXRef(t *testing.T) {
	data := pdftest.Pages("BT ET", "q Q")
	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.Trailer == nil {
		t.Fatalf("trailer not captured")
	}
	if got := doc.Version; got != "1.7" {
		t.Fatalf("expected version 1.7, got %q", got)
	}
	if len(doc.Objects) != 6 {
		t.Fatalf("expected 6 objects, got %d", len(doc.Objects))
	}
	if doc.XRef != raw.XRefTable {
		t.Fatalf("expected classic xref, got %s", doc.XRef)
	}
	want := []raw.ObjectRef{{Num: 3}, {Num: 5}}
	if len(doc.Pages) != 2 || doc.Pages[0] != want[0] || doc.Pages[1] != want[1] {
		t.Fatalf("unexpected pages %v", doc.Pages)
	}
	contents := doc.PageContents(doc.Pages[1])
	if len(contents) != 1 {
		t.Fatalf("expected one content stream, got %v", contents)
	}
	st, _ := doc.Stream(contents[0])
	if string(st.Data) != "q Q" {
		t.Fatalf("unexpected content %q", st.Data)
	}
	if got := string(data[st.Source.Start:st.Source.End]); got != "q Q" {
		t.Fatalf("payload span covers %q", got)
	}
	span := doc.Spans[contents[0]]
	if !bytes.HasPrefix(data[span.Start:], []byte("6 0 obj")) || !bytes.HasSuffix(data[:span.End], []byte("endobj")) {
		t.Fatalf("object span does not cover the definition: %q", data[span.Start:span.End])
	}
}

func buildIncrementalPDF() []byte {
	base := pdftest.New().
		Add(1, "<< /Type /Catalog /Pages 2 0 R >>").
		Add(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	data := base.Bytes()
	buf := bytes.NewBuffer(data)
	obj2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	obj3 := buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")
	xrefOff := buf.Len()
	fmt.Fprintf(buf, "xref\n2 2\n%010d 00000 n \n%010d 00000 n \n", obj2, obj3)
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", base.XRefOffset(), xrefOff)
	return buf.Bytes()
}

func TestDocumentParserFollowsPrevChain(t *testing.T) {
	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), buildIncrementalPDF())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	obj2, ok := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	if !ok {
		t.Fatalf("expected dict for object 2, got %T", doc.Objects[raw.ObjectRef{Num: 2}])
	}
	if n, _ := raw.IntValue(obj2.KV["Count"]); n != 1 {
		t.Fatalf("expected Count 1 after update, got %d", n)
	}
	if len(doc.Pages) != 1 || doc.Pages[0].Num != 3 {
		t.Fatalf("expected the page from the update, got %v", doc.Pages)
	}
	if _, ok := doc.Trailer.Get(raw.NameObj{Val: "Prev"}); !ok {
		t.Fatalf("Prev not propagated on final trailer")
	}
}

func TestDocumentParserLoadsObjectStreams(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 4 0 R >>\nendobj\n")

	body := "4 0 5 42 << /Type /Pages /Kids [5 0 R] /Count 1 >> << /Type /Page /Parent 4 0 R >>"
	first := len("4 0 5 42 ")
	var z bytes.Buffer
	w := zlib.NewWriter(&z)
	w.Write([]byte(body))
	w.Close()
	off3 := buf.Len()
	fmt.Fprintf(buf, "3 0 obj\n<< /Type /ObjStm /N 2 /First %d /Filter /FlateDecode /Length %d >>\nstream\n", first, z.Len())
	buf.Write(z.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	xrefOff := buf.Len()
	row := func(typ byte, f2, f3 int) []byte {
		return []byte{typ, byte(f2 >> 8), byte(f2), byte(f3)}
	}
	var rows []byte
	rows = append(rows, row(0, 0, 255)...)
	rows = append(rows, row(1, off1, 0)...)
	rows = append(rows, row(1, xrefOff, 0)...)
	rows = append(rows, row(1, off3, 0)...)
	rows = append(rows, row(2, 3, 0)...)
	rows = append(rows, row(2, 3, 1)...)
	fmt.Fprintf(buf, "2 0 obj\n<< /Type /XRef /Size 6 /Root 1 0 R /W [1 2 1] /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.XRef != raw.XRefStream || !doc.HasCompressed() {
		t.Fatalf("expected xref stream with compressed objects, got %s %v", doc.XRef, doc.Compressed)
	}
	if len(doc.Pages) != 1 || doc.Pages[0].Num != 5 {
		t.Fatalf("unexpected pages %v", doc.Pages)
	}
}

func TestDocumentParserMalformed(t *testing.T) {
	valid := pdftest.Pages("BT ET")
	truncated := valid[:len(valid)/2]
	wrongOffset := bytes.Replace(valid, []byte("xref\n0 5\n0000000000 65535 f \n00000000"), []byte("xref\n0 5\n0000000000 65535 f \n00000001"), 1)

	cases := map[string][]byte{
		"empty":        {},
		"no header":    []byte("hello world"),
		"truncated":    truncated,
		"wrong offset": wrongOffset,
		"encrypted":    bytes.Replace(valid, []byte("/Root 1 0 R"), []byte("/Root 1 0 R /Encrypt 9 0 R"), 1),
	}
	for name, data := range cases {
		_, err := NewDocumentParser(Config{}).Parse(context.Background(), data)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestDocumentParserLenientRepairsOffsets(t *testing.T) {
	valid := pdftest.Pages("BT ET")
	// Shift every object by inserting bytes after the header.
	shifted := bytes.Replace(valid, []byte("%PDF-1.7\n"), []byte("%PDF-1.7\n% padding\n"), 1)

	if _, err := NewDocumentParser(Config{}).Parse(context.Background(), shifted); err == nil {
		t.Fatalf("strict parse should reject mismatched offsets")
	}
	rec := recovery.NewLenientStrategy(nil)
	doc, err := NewDocumentParser(Config{Recovery: rec}).Parse(context.Background(), shifted)
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if doc.XRef != raw.XRefRepaired {
		t.Fatalf("expected repaired xref, got %s", doc.XRef)
	}
	if len(doc.Pages) != 1 {
		t.Fatalf("expected one page, got %v", doc.Pages)
	}
	if len(rec.Recorded()) == 0 {
		t.Fatalf("lenient strategy should record the repair")
	}
}

func TestDocumentParserPageTreeCycle(t *testing.T) {
	data := pdftest.New().
		Add(1, "<< /Type /Catalog /Pages 2 0 R >>").
		Add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		Add(3, "<< /Type /Pages /Kids [2 0 R] /Count 1 >>").
		Bytes()
	_, err := NewDocumentParser(Config{}).Parse(context.Background(), data)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed page tree, got %v", err)
	}
}

func TestDocumentParserIndirectLength(t *testing.T) {
	data := pdftest.New().
		Add(1, "<< /Type /Catalog /Pages 2 0 R >>").
		Add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		Add(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>").
		Add(4, "<< /Length 5 0 R >>\nstream\nendstream inside\nendstream").
		Add(5, "16").
		Bytes()
	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	st, _ := doc.Stream(raw.ObjectRef{Num: 4})
	if string(st.Data) != "endstream inside" {
		t.Fatalf("indirect length not honoured: %q", st.Data)
	}
}
