// Package normalize rewrites a PDF so that its page content streams are
// stored without compression filters, which is what the carrier scanner
// requires.
package normalize

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfsteg/filters"
	"github.com/wudi/pdfsteg/ir/raw"
	"github.com/wudi/pdfsteg/observability"
	"github.com/wudi/pdfsteg/parser"
	"github.com/wudi/pdfsteg/recovery"
	"github.com/wudi/pdfsteg/security"
	"github.com/wudi/pdfsteg/writer"
)

type Config struct {
	Limits   security.Limits
	Recovery recovery.Strategy
	Logger   observability.Logger
}

// Skipped is a content stream that was left encoded.
type Skipped struct {
	Ref    raw.ObjectRef
	Reason string
}

// Result lists what Normalize changed.
type Result struct {
	Decoded []raw.ObjectRef
	Skipped []Skipped
}

// Normalize decodes every page content stream whose filters are all
// supported and returns the rewritten document. The input is not modified.
// When nothing needs decoding the output equals the input.
func Normalize(ctx context.Context, pdf []byte, cfg Config) ([]byte, *Result, error) {
	cfg.Limits = cfg.Limits.WithDefaults()
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	doc, err := parser.NewDocumentParser(parser.Config{Recovery: cfg.Recovery, Limits: cfg.Limits, Logger: cfg.Logger}).Parse(ctx, pdf)
	if err != nil {
		return nil, nil, err
	}
	pipeline := filters.NewStandardPipeline(filters.Limits{MaxDecompressedSize: cfg.Limits.MaxDecompressedSize})

	res := &Result{}
	seen := make(map[raw.ObjectRef]bool)
	for _, page := range doc.Pages {
		for _, ref := range doc.PageContents(page) {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			st, ok := doc.Stream(ref)
			if !ok {
				continue
			}
			names, params := filters.ExtractFilters(st.Dict)
			if len(names) == 0 {
				continue
			}
			if !pipeline.Supports(names) {
				res.skip(cfg.Logger, ref, fmt.Sprintf("unsupported filter chain %v", names))
				continue
			}
			decoded, err := pipeline.Decode(ctx, st.Data, names, params)
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				if errors.Is(err, filters.ErrSizeLimit) {
					return nil, nil, fmt.Errorf("object %v: %w", ref, err)
				}
				res.skip(cfg.Logger, ref, err.Error())
				continue
			}
			st.Dict.Delete("Filter")
			st.Dict.Delete("DecodeParms")
			if err := doc.SetStreamData(ref, decoded); err != nil {
				return nil, nil, err
			}
			// The dictionary changed even if the length did not.
			doc.MarkDirty(ref)
			res.Decoded = append(res.Decoded, ref)
		}
	}
	if len(res.Decoded) == 0 {
		return append([]byte(nil), pdf...), res, nil
	}
	out, err := writer.Serialize(doc)
	if err != nil {
		return nil, nil, err
	}
	cfg.Logger.Info("content streams decoded", observability.Int("streams", len(res.Decoded)))
	return out, res, nil
}

func (r *Result) skip(logger observability.Logger, ref raw.ObjectRef, reason string) {
	r.Skipped = append(r.Skipped, Skipped{Ref: ref, Reason: reason})
	logger.Warn("content stream left encoded", observability.String("object", ref.String()), observability.String("reason", reason))
}
