package raw

import (
	"errors"
	"fmt"
	"sort"
)

// maxResolveDepth bounds reference chains followed by Resolve.
const maxResolveDepth = 32

// Document is the root container for raw PDF objects.
//
// Objects read from the file keep their byte span in Spans so that a writer
// can reproduce everything outside the modified regions verbatim.
type Document struct {
	Objects map[ObjectRef]Object
	Spans   map[ObjectRef]Span
	// Pages lists page objects in page-tree order.
	Pages   []ObjectRef
	Trailer *DictObj
	Version string // e.g., "1.7"
	Source  []byte
	XRef    XRefKind
	// Compressed marks objects that were stored inside object streams.
	Compressed map[ObjectRef]bool

	dirty   map[ObjectRef]bool
	patched map[ObjectRef]bool
}

// NewDocument returns an empty document backed by source.
func NewDocument(source []byte) *Document {
	return &Document{
		Objects:    make(map[ObjectRef]Object),
		Spans:      make(map[ObjectRef]Span),
		Compressed: make(map[ObjectRef]bool),
		Source:     source,
	}
}

// HasCompressed reports whether any object came from an object stream.
func (d *Document) HasCompressed() bool { return len(d.Compressed) > 0 }

// Resolve follows indirect references until it reaches a direct object.
// Missing objects resolve to NullObj, as PDF requires.
func (d *Document) Resolve(o Object) Object {
	for i := 0; i < maxResolveDepth; i++ {
		ref, ok := o.(RefObj)
		if !ok {
			return o
		}
		target, ok := d.Objects[ref.R]
		if !ok {
			return NullObj{}
		}
		o = target
	}
	return NullObj{}
}

// ResolveDict resolves o and returns it as a dictionary. A stream yields its
// dictionary.
func (d *Document) ResolveDict(o Object) (*DictObj, bool) {
	switch v := d.Resolve(o).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, v.Dict != nil
	default:
		return nil, false
	}
}

// Stream returns the stream object stored under ref.
func (d *Document) Stream(ref ObjectRef) (*StreamObj, bool) {
	st, ok := d.Objects[ref].(*StreamObj)
	return st, ok
}

// PageContents returns the content stream references of a page in drawing
// order. Entries that do not resolve to streams are dropped.
func (d *Document) PageContents(page ObjectRef) []ObjectRef {
	dict, ok := d.ResolveDict(RefObj{R: page})
	if !ok {
		return nil
	}
	contents, ok := dict.Lookup("Contents")
	if !ok {
		return nil
	}
	var refs []ObjectRef
	add := func(o Object) {
		ref, ok := o.(RefObj)
		if !ok {
			return
		}
		if _, ok := d.Stream(ref.R); ok {
			refs = append(refs, ref.R)
		}
	}
	if arr, ok := d.Resolve(contents).(*ArrayObj); ok {
		for _, item := range arr.Items {
			add(item)
		}
		return refs
	}
	add(contents)
	return refs
}

// SetStreamData replaces the payload of the stream stored under ref. When
// the length is unchanged the payload is patched in place; otherwise /Length
// is rewritten and the whole object is marked for re-serialization.
func (d *Document) SetStreamData(ref ObjectRef, data []byte) error {
	st, ok := d.Stream(ref)
	if !ok {
		return fmt.Errorf("object %v is not a stream", ref)
	}
	if st.Dict == nil {
		return errors.New("stream without dictionary")
	}
	sameLength := len(data) == len(st.Data)
	st.Data = data
	if sameLength && st.Source.Len() == int64(len(data)) {
		if d.patched == nil {
			d.patched = make(map[ObjectRef]bool)
		}
		d.patched[ref] = true
		return nil
	}
	st.Dict.Set(NameLiteral("Length"), NumberInt(int64(len(data))))
	d.MarkDirty(ref)
	return nil
}

// SetObject replaces the object stored under ref and marks it dirty.
func (d *Document) SetObject(ref ObjectRef, obj Object) {
	d.Objects[ref] = obj
	d.MarkDirty(ref)
}

// MarkDirty records that ref must be re-serialized as a whole.
func (d *Document) MarkDirty(ref ObjectRef) {
	if d.dirty == nil {
		d.dirty = make(map[ObjectRef]bool)
	}
	d.dirty[ref] = true
}

// IsDirty reports whether ref must be re-serialized.
func (d *Document) IsDirty(ref ObjectRef) bool { return d.dirty[ref] }

// DirtyRefs returns the objects marked for re-serialization in object order.
func (d *Document) DirtyRefs() []ObjectRef { return sortedRefs(d.dirty) }

// PatchedRefs returns streams whose payload was replaced in place.
func (d *Document) PatchedRefs() []ObjectRef { return sortedRefs(d.patched) }

// Refs returns every object reference in object order.
func (d *Document) Refs() []ObjectRef {
	out := make([]ObjectRef, 0, len(d.Objects))
	for ref := range d.Objects {
		out = append(out, ref)
	}
	SortRefs(out)
	return out
}

// SortRefs orders refs by object then generation number.
func SortRefs(refs []ObjectRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
}

func sortedRefs(m map[ObjectRef]bool) []ObjectRef {
	out := make([]ObjectRef, 0, len(m))
	for ref, ok := range m {
		if ok {
			out = append(out, ref)
		}
	}
	SortRefs(out)
	return out
}
