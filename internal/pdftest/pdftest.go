// Package pdftest builds small, well-formed PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
)

type object struct {
	num  int
	body []byte
}

// Builder accumulates numbered objects and serializes them with a classic
// cross-reference table whose offsets are exact.
type Builder struct {
	objects []object
	root    int
	trailer string
	offsets map[int]int64
	xref    int64
}

func New() *Builder { return &Builder{root: 1} }

// Add appends object num with the given body, e.g. "<< /Type /Catalog >>".
func (b *Builder) Add(num int, body string) *Builder {
	b.objects = append(b.objects, object{num: num, body: []byte(body)})
	return b
}

// AddStream appends a stream object. dict holds the dictionary entries
// without the enclosing brackets; /Length is added.
func (b *Builder) AddStream(num int, dict string, data []byte) *Builder {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<< %s/Length %d >>\nstream\n", withSpace(dict), len(data))
	buf.Write(data)
	buf.WriteString("\nendstream")
	b.objects = append(b.objects, object{num: num, body: buf.Bytes()})
	return b
}

// Root sets the catalog object number (default 1).
func (b *Builder) Root(num int) *Builder { b.root = num; return b }

// Trailer adds extra trailer entries such as "/Info 9 0 R".
func (b *Builder) Trailer(extra string) *Builder { b.trailer = extra; return b }

// Bytes serializes the document.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	b.offsets = make(map[int]int64)
	maxNum := 0
	for _, o := range b.objects {
		b.offsets[o.num] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n", o.num)
		buf.Write(o.body)
		buf.WriteString("\nendobj\n")
		if o.num > maxNum {
			maxNum = o.num
		}
	}
	b.xref = int64(buf.Len())
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", maxNum+1)
	for n := 1; n <= maxNum; n++ {
		if off, ok := b.offsets[n]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R %s>>\nstartxref\n%d\n%%%%EOF\n", maxNum+1, b.root, withSpace(b.trailer), b.xref)
	return buf.Bytes()
}

// Offsets returns the byte offset of each object from the last Bytes call.
func (b *Builder) Offsets() map[int]int64 { return b.offsets }

// XRefOffset returns the offset of the xref section from the last Bytes call.
func (b *Builder) XRefOffset() int64 { return b.xref }

// Pages builds a document with one page per content string. Objects are
// numbered: 1 catalog, 2 page tree, then a page and its content stream for
// each entry.
func Pages(contents ...string) []byte {
	b := New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	var kids bytes.Buffer
	for i := range contents {
		fmt.Fprintf(&kids, "%d 0 R ", 3+2*i)
	}
	b.Add(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), len(contents)))
	for i, c := range contents {
		page, content := 3+2*i, 4+2*i
		b.Add(page, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R >>", content))
		b.AddStream(content, "", []byte(c))
	}
	return b.Bytes()
}

// CompressedPages builds the document Pages would, but keeps the page tree
// and page dictionaries in an unfiltered object stream and indexes the file
// with a cross-reference stream. The object stream is numbered 3+2n and the
// xref stream 4+2n for n pages.
func CompressedPages(contents ...string) []byte {
	n := len(contents)
	stmNum, xrefNum := 3+2*n, 4+2*n

	var kids bytes.Buffer
	for i := range contents {
		fmt.Fprintf(&kids, "%d 0 R ", 3+2*i)
	}
	nums := []int{2}
	bodies := []string{fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), n)}
	for i := range contents {
		nums = append(nums, 3+2*i)
		bodies = append(bodies, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R >>", 4+2*i))
	}
	var header, body bytes.Buffer
	for i, num := range nums {
		fmt.Fprintf(&header, "%d %d ", num, body.Len())
		body.WriteString(bodies[i])
		body.WriteByte(' ')
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make(map[int]int)
	obj := func(num int, dict string, data []byte) {
		offsets[num] = buf.Len()
		if data == nil {
			fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, dict)
			return
		}
		fmt.Fprintf(&buf, "%d 0 obj\n<< %s/Length %d >>\nstream\n", num, withSpace(dict), len(data))
		buf.Write(data)
		buf.WriteString("\nendstream\nendobj\n")
	}
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>", nil)
	for i, c := range contents {
		obj(4+2*i, "", []byte(c))
	}
	obj(stmNum, fmt.Sprintf("/Type /ObjStm /N %d /First %d", len(nums), header.Len()), append(header.Bytes(), body.Bytes()...))

	xrefOff := buf.Len()
	offsets[xrefNum] = xrefOff
	var rows []byte
	row := func(typ byte, f2, f3 int) {
		rows = append(rows, typ, byte(f2>>24), byte(f2>>16), byte(f2>>8), byte(f2), byte(f3>>8), byte(f3))
	}
	row(0, 0, 0xffff)
	idx := make(map[int]int, len(nums))
	for i, num := range nums {
		idx[num] = i
	}
	for num := 1; num <= xrefNum; num++ {
		if i, ok := idx[num]; ok {
			row(2, stmNum, i)
		} else {
			row(1, offsets[num], 0)
		}
	}
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XRef /Size %d /Root 1 0 R /W [1 4 2] /Length %d >>\nstream\n", xrefNum, xrefNum+1, len(rows))
	buf.Write(rows)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

// WhitespaceContent returns a content stream with exactly n runs of two
// spaces between operands and no other carrier candidates.
func WhitespaceContent(n int) string {
	var buf bytes.Buffer
	buf.WriteString("BT")
	for i := 0; i < n; i++ {
		buf.WriteString("  ")
		fmt.Fprintf(&buf, "%d", i%10)
		buf.WriteString(" ")
		buf.WriteString("Tw")
	}
	buf.WriteString(" ET")
	return buf.String()
}

func withSpace(s string) string {
	if s == "" {
		return ""
	}
	return s + " "
}
