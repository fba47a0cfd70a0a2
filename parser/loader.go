package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfsteg/filters"
	"github.com/wudi/pdfsteg/ir/raw"
	"github.com/wudi/pdfsteg/recovery"
	"github.com/wudi/pdfsteg/scanner"
	"github.com/wudi/pdfsteg/security"
	"github.com/wudi/pdfsteg/xref"
)

// objectLoader reads objects at the offsets recorded in an xref table.
type objectLoader struct {
	data     []byte
	table    xref.Table
	limits   security.Limits
	recovery recovery.Strategy
	reader   *raw.ObjectReader
	objstm   map[int]*objectStream
}

type objectStream struct {
	nums []int
	objs []raw.Object
}

func newObjectLoader(data []byte, table xref.Table, limits security.Limits, rec recovery.Strategy) *objectLoader {
	o := &objectLoader{data: data, table: table, limits: limits, recovery: rec, objstm: make(map[int]*objectStream)}
	o.reader = o.newReader(data)
	return o
}

func (o *objectLoader) scannerConfig() scanner.Config {
	return scanner.Config{
		Recovery:        o.recovery,
		MaxStringLength: o.limits.MaxStringLength,
		MaxArrayDepth:   o.limits.MaxNestingDepth,
		MaxDictDepth:    o.limits.MaxNestingDepth,
		MaxStreamLength: o.limits.MaxStreamLength,
	}
}

func (o *objectLoader) newReader(data []byte) *raw.ObjectReader {
	r := raw.NewObjectReader(scanner.New(bytes.NewReader(data), o.scannerConfig()), o.recovery)
	r.SetMaxDepth(o.limits.MaxNestingDepth)
	return r
}

// loadAt reads the in-use object objNum and checks that the header found at
// its offset agrees with the xref entry.
func (o *objectLoader) loadAt(objNum int) (raw.Indirect, error) {
	offset, gen, ok := o.table.Lookup(objNum)
	if !ok {
		return raw.Indirect{}, fmt.Errorf("object %d not found in xref", objNum)
	}
	ind, err := o.reader.ReadIndirect(offset, o.streamLength)
	if err != nil {
		return raw.Indirect{}, fmt.Errorf("object %d at offset %d: %w", objNum, offset, err)
	}
	if ind.Ref.Num != objNum || ind.Ref.Gen != gen {
		return raw.Indirect{}, fmt.Errorf("object at offset %d is %d %d, xref expects %d %d", offset, ind.Ref.Num, ind.Ref.Gen, objNum, gen)
	}
	return ind, nil
}

// streamLength resolves a stream's /Length, following an indirect reference
// with a private reader so the shared scanner position is untouched.
func (o *objectLoader) streamLength(dict *raw.DictObj) (int64, bool) {
	switch v := dict.KV["Length"].(type) {
	case raw.NumberObj:
		return v.Int(), v.IsInt && v.I >= 0
	case raw.RefObj:
		offset, _, ok := o.table.Lookup(v.R.Num)
		if !ok {
			return 0, false
		}
		ind, err := o.newReader(o.data).ReadIndirect(offset, nil)
		if err != nil {
			return 0, false
		}
		n, ok := ind.Object.(raw.NumberObj)
		if !ok || !n.IsInt || n.I < 0 {
			return 0, false
		}
		return n.I, true
	default:
		return 0, false
	}
}

// loadCompressed returns the object stored at index idx of object stream
// streamNum.
func (o *objectLoader) loadCompressed(ctx context.Context, objNum, streamNum, idx int) (raw.Object, error) {
	stm, err := o.objectStream(ctx, streamNum)
	if err != nil {
		return nil, err
	}
	if idx >= 0 && idx < len(stm.nums) && stm.nums[idx] == objNum {
		return stm.objs[idx], nil
	}
	// Some writers get the index wrong; fall back to the object number.
	for i, n := range stm.nums {
		if n == objNum {
			return stm.objs[i], nil
		}
	}
	return nil, fmt.Errorf("object %d not found in object stream %d", objNum, streamNum)
}

func (o *objectLoader) objectStream(ctx context.Context, streamNum int) (*objectStream, error) {
	if stm, ok := o.objstm[streamNum]; ok {
		return stm, nil
	}
	ind, err := o.loadAt(streamNum)
	if err != nil {
		return nil, err
	}
	st, ok := ind.Object.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("object stream %d is not a stream", streamNum)
	}
	stm, err := o.parseObjectStream(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	o.objstm[streamNum] = stm
	return stm, nil
}

func (o *objectLoader) parseObjectStream(ctx context.Context, st *raw.StreamObj) (*objectStream, error) {
	n, _ := raw.IntValue(st.Dict.KV["N"])
	first, _ := raw.IntValue(st.Dict.KV["First"])
	data := st.RawData()
	if names, params := filters.ExtractFilters(st.Dict); len(names) > 0 {
		decoded, err := filters.NewStandardPipeline(filters.Limits{MaxDecompressedSize: o.limits.MaxDecompressedSize}).
			Decode(ctx, data, names, params)
		if err != nil {
			return nil, err
		}
		data = decoded
	}
	if n < 0 || first < 0 || first > int64(len(data)) {
		return nil, errors.New("object stream /N or /First out of range")
	}
	header := scanner.New(bytes.NewReader(data[:first]), scanner.Config{})
	pairs := make([]int64, 0, 2*n)
	for int64(len(pairs)) < 2*n {
		tok, err := header.Next()
		if err != nil {
			return nil, fmt.Errorf("object stream header: %w", err)
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt || tok.Int < 0 {
			return nil, errors.New("object stream header holds a non-integer")
		}
		pairs = append(pairs, tok.Int)
	}
	body := data[first:]
	stm := &objectStream{}
	for i := int64(0); i < n; i++ {
		num, off := pairs[2*i], pairs[2*i+1]
		if off > int64(len(body)) {
			return nil, fmt.Errorf("object %d offset %d beyond object stream", num, off)
		}
		obj, err := o.newReader(body[off:]).ReadObject()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", num, err)
		}
		stm.nums = append(stm.nums, int(num))
		stm.objs = append(stm.objs, obj)
	}
	return stm, nil
}
