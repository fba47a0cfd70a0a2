package filters

import (
	"context"
	"testing"

	"github.com/wudi/pdfsteg/ir/raw"
)

func FuzzFilters(f *testing.F) {
	f.Add([]byte("some compressed data"), "FlateDecode")
	f.Add([]byte("some ascii85 data"), "ASCII85Decode")
	f.Add([]byte("some hex data"), "ASCIIHexDecode")
	f.Add([]byte{2, 'a', 'b', 'c', 128}, "RunLengthDecode")

	f.Fuzz(func(t *testing.T, data []byte, filterName string) {
		p := NewStandardPipeline(Limits{MaxDecompressedSize: 1024 * 1024})
		if !p.Supports([]string{filterName}) {
			return
		}
		_, _ = p.Decode(context.Background(), data, []string{filterName}, []raw.Dictionary{nil})
	})
}
