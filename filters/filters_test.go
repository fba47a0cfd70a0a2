package filters

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdfsteg/ir/raw"
)

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), zlibBytes(t, []byte("hello world")), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("no zlib header"))
	w.Close()

	out, err := NewFlateDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "no zlib header" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	comp := zlibBytes(t, []byte{1, 10, 12, 20})

	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Colors"}, raw.NumberInt(1))
	params.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(3))

	out, err := NewFlateDecoder().Decode(context.Background(), comp, params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestPNGUpPredictorAcrossRows(t *testing.T) {
	// Two rows of an xref stream with W [1 2 1]: second row uses the Up filter.
	data := []byte{
		2, 1, 0, 15, 0,
		2, 0, 0, 16, 0,
	}
	params := raw.Dict()
	params.Set(raw.NameLiteral("Predictor"), raw.NumberInt(12))
	params.Set(raw.NameLiteral("Columns"), raw.NumberInt(4))

	out, err := applyPredictor(data, params)
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	want := []byte{1, 0, 15, 0, 1, 0, 31, 0}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("68 656c6c6f20776f726c6>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello worl`" {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("6z>"), nil); err == nil {
		t.Fatalf("expected invalid digit error")
	}
}

func TestPipelineChain(t *testing.T) {
	inner := zlibBytes(t, []byte("BT /F1 12 Tf ET"))
	var hexed bytes.Buffer
	for _, b := range inner {
		hexed.WriteString(string("0123456789abcdef"[b>>4]) + string("0123456789abcdef"[b&0xF]))
	}
	hexed.WriteByte('>')

	p := NewStandardPipeline(Limits{})
	out, err := p.Decode(context.Background(), hexed.Bytes(), []string{"AHx", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("pipeline decode: %v", err)
	}
	if string(out) != "BT /F1 12 Tf ET" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestPipelineSizeLimit(t *testing.T) {
	p := NewStandardPipeline(Limits{MaxDecompressedSize: 10})
	_, err := p.Decode(context.Background(), zlibBytes(t, bytes.Repeat([]byte("x"), 1000)), []string{"FlateDecode"}, nil)
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	p := NewStandardPipeline(Limits{})
	if p.Supports([]string{"FlateDecode", "DCTDecode"}) {
		t.Fatalf("DCTDecode should not be supported")
	}
	_, err := p.Decode(context.Background(), []byte{0x00}, []string{"JPXDecode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JPXDecode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestExtractFilters(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Filter"), raw.NewArray(raw.NameLiteral("ASCII85Decode"), raw.NameLiteral("FlateDecode")))
	pred := raw.Dict()
	pred.Set(raw.NameLiteral("Predictor"), raw.NumberInt(12))
	dict.Set(raw.NameLiteral("DecodeParms"), raw.NewArray(raw.NullObj{}, pred))

	names, params := ExtractFilters(dict)
	if len(names) != 2 || names[0] != "ASCII85Decode" || names[1] != "FlateDecode" {
		t.Fatalf("unexpected names %v", names)
	}
	if len(params) != 2 || params[0] != nil || params[1] == nil {
		t.Fatalf("params not aligned with filters: %v", params)
	}
}
