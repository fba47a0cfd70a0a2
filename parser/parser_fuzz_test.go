package parser

import (
	"context"
	"testing"

	"github.com/wudi/pdfsteg/internal/pdftest"
	"github.com/wudi/pdfsteg/recovery"
)

func FuzzDocumentParser(f *testing.F) {
	f.Add([]byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n..."))
	f.Add(pdftest.Pages("BT /F1 12 Tf (hi) Tj ET"))

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, rec := range []recovery.Strategy{recovery.NewStrictStrategy(), recovery.NewLenientStrategy(nil)} {
			p := NewDocumentParser(Config{Recovery: rec})
			_, _ = p.Parse(context.Background(), data)
		}
	})
}
