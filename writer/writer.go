// Package writer reassembles a raw.Document into PDF bytes.
//
// Everything outside modified regions is copied from the source verbatim.
// Streams whose payload kept its length are patched in place; objects that
// were marked dirty are re-serialized and a fresh classic cross-reference
// section is appended. A classic section cannot point into object streams,
// so a rebuild writes compressed objects out as top-level objects and drops
// the object and xref streams that held them.
package writer

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wudi/pdfsteg/ir/raw"
)

// trailerDrop lists xref-stream and chain keys that must not survive into a
// rebuilt classic trailer.
var trailerDrop = []string{"Prev", "XRefStm", "Type", "W", "Index", "Filter", "DecodeParms", "Length"}

type splice struct {
	start, end int64
	data       []byte
}

// Serialize returns the bytes of doc. When nothing was modified the output
// equals doc.Source.
func Serialize(doc *raw.Document) ([]byte, error) {
	out := make([]byte, len(doc.Source))
	copy(out, doc.Source)

	for _, ref := range doc.PatchedRefs() {
		if doc.IsDirty(ref) {
			continue
		}
		st, ok := doc.Stream(ref)
		if !ok {
			return nil, fmt.Errorf("patched object %v is not a stream", ref)
		}
		if st.Source.Len() != int64(len(st.Data)) || st.Source.End > int64(len(out)) {
			return nil, fmt.Errorf("object %v: payload length changed without re-serialization", ref)
		}
		copy(out[st.Source.Start:st.Source.End], st.Data)
	}

	dirty := doc.DirtyRefs()
	if len(dirty) == 0 {
		return out, nil
	}
	return rebuild(doc, out, dirty)
}

// superseded reports whether obj only carries data that a classic xref
// section replaces.
func superseded(obj raw.Object) bool {
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	typ, _ := raw.NameValue(st.Dict.KV["Type"])
	return typ == "ObjStm" || typ == "XRef"
}

// rebuild splices re-serialized objects over their old spans, appends new
// and formerly compressed objects and writes a complete xref table for the
// result.
func rebuild(doc *raw.Document, src []byte, dirty []raw.ObjectRef) ([]byte, error) {
	var splices []splice
	var appended []raw.ObjectRef
	for _, ref := range dirty {
		obj, ok := doc.Objects[ref]
		if !ok {
			return nil, fmt.Errorf("dirty object %v does not exist", ref)
		}
		span, ok := doc.Spans[ref]
		if !ok {
			if !doc.Compressed[ref] {
				appended = append(appended, ref)
			}
			continue
		}
		splices = append(splices, splice{start: span.Start, end: span.End, data: SerializeObject(ref, obj)})
	}
	for ref, ok := range doc.Compressed {
		_, live := doc.Objects[ref]
		_, placed := doc.Spans[ref]
		if ok && live && !placed {
			appended = append(appended, ref)
		}
	}
	raw.SortRefs(appended)
	sort.Slice(splices, func(i, j int) bool { return splices[i].start < splices[j].start })
	for i := 1; i < len(splices); i++ {
		if splices[i].start < splices[i-1].end {
			return nil, fmt.Errorf("object spans overlap at offset %d", splices[i].start)
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(src) + 1024)
	pos := int64(0)
	for _, sp := range splices {
		buf.Write(src[pos:sp.start])
		buf.Write(sp.data)
		pos = sp.end
	}
	buf.Write(src[pos:])

	// Object offsets move by the size change of every splice before them.
	shift := func(off int64) int64 {
		delta := int64(0)
		for _, sp := range splices {
			if sp.start >= off {
				break
			}
			delta += int64(len(sp.data)) - (sp.end - sp.start)
		}
		return off + delta
	}
	offsets := make(map[raw.ObjectRef]int64, len(doc.Spans)+len(appended))
	for ref, span := range doc.Spans {
		obj, live := doc.Objects[ref]
		if !live || superseded(obj) {
			continue
		}
		offsets[ref] = shift(span.Start)
	}

	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}
	for _, ref := range appended {
		offsets[ref] = int64(buf.Len())
		buf.Write(SerializeObject(ref, doc.Objects[ref]))
		buf.WriteByte('\n')
	}

	writeXRef(&buf, offsets, doc.Trailer)
	return buf.Bytes(), nil
}

func writeXRef(buf *bytes.Buffer, offsets map[raw.ObjectRef]int64, trailer *raw.DictObj) {
	byNum := make(map[int]raw.ObjectRef, len(offsets))
	maxObjNum := 0
	for ref := range offsets {
		if prev, ok := byNum[ref.Num]; ok && prev.Gen > ref.Gen {
			continue
		}
		byNum[ref.Num] = ref
		if ref.Num > maxObjNum {
			maxObjNum = ref.Num
		}
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n", maxObjNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxObjNum; i++ {
		if ref, ok := byNum[i]; ok {
			fmt.Fprintf(buf, "%010d %05d n \n", offsets[ref], ref.Gen)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	t := raw.Dict()
	if trailer != nil {
		for k, v := range trailer.KV {
			t.KV[k] = v
		}
	}
	for _, k := range trailerDrop {
		t.Delete(k)
	}
	t.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(maxObjNum+1)))
	buf.WriteString("trailer\n")
	buf.Write(serializePrimitive(t))
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
}
