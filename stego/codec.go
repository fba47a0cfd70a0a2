// Package stego hides messages in the content streams of a PDF and reads
// them back.
package stego

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfsteg/carrier"
	"github.com/wudi/pdfsteg/contentstream"
	"github.com/wudi/pdfsteg/filters"
	"github.com/wudi/pdfsteg/frame"
	"github.com/wudi/pdfsteg/ir/raw"
	"github.com/wudi/pdfsteg/observability"
	"github.com/wudi/pdfsteg/parser"
	"github.com/wudi/pdfsteg/recovery"
	"github.com/wudi/pdfsteg/security"
	"github.com/wudi/pdfsteg/writer"
)

// Config configures a Codec.
type Config struct {
	Policy carrier.Policy
	Limits security.Limits
	// Workers bounds how many streams are scanned at once.
	Workers int
	// Verify re-extracts the message from the output of Embed.
	Verify bool
	// Recovery handles malformed document structure; nil fails fast.
	Recovery recovery.Strategy
	Logger   observability.Logger
	Tracer   observability.Tracer
}

// DefaultConfig enables every carrier kind and verifies each embed.
func DefaultConfig() Config {
	return Config{
		Policy:  carrier.DefaultPolicy(),
		Limits:  security.DefaultLimits(),
		Workers: runtime.GOMAXPROCS(0),
		Verify:  true,
	}
}

// Codec embeds, extracts and measures hidden messages. It keeps no state
// between calls and is safe for concurrent use.
type Codec struct {
	cfg     Config
	scanner *carrier.Scanner
	parser  raw.Parser
}

// New fills unset fields of cfg with defaults and fails if the carrier
// policy is invalid.
func New(cfg Config) (*Codec, error) {
	cfg.Limits = cfg.Limits.WithDefaults()
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	sc, err := carrier.NewScanner(cfg.Policy, cfg.Limits)
	if err != nil {
		return nil, fmt.Errorf("carrier policy: %w", err)
	}
	p := parser.NewDocumentParser(parser.Config{Recovery: cfg.Recovery, Limits: cfg.Limits, Logger: cfg.Logger})
	return &Codec{cfg: cfg, scanner: sc, parser: p}, nil
}

// stream is one distinct page content stream in site order.
type stream struct {
	ref   raw.ObjectRef
	page  int
	data  []byte
	sites []carrier.Site
	skip  string
}

func (c *Codec) parse(ctx context.Context, pdf []byte) (*raw.Document, error) {
	ctx, span := c.cfg.Tracer.StartSpan(ctx, observability.SpanParse)
	defer span.Finish()
	doc, err := c.parser.Parse(ctx, pdf)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag("pages", len(doc.Pages))
	return doc, nil
}

// discover lists the content streams of doc in page order, each once, and
// scans them for sites in parallel.
func (c *Codec) discover(ctx context.Context, doc *raw.Document) ([]*stream, error) {
	ctx, span := c.cfg.Tracer.StartSpan(ctx, observability.SpanScan)
	defer span.Finish()

	var streams []*stream
	seen := make(map[raw.ObjectRef]bool)
	for i, page := range doc.Pages {
		for _, ref := range doc.PageContents(page) {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			streams = append(streams, &stream{ref: ref, page: i + 1})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for _, s := range streams {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c.scanStream(doc, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag("streams", len(streams))
	return streams, nil
}

// scanStream fills in the sites of s, or the reason it has none. A stream
// that cannot be scanned only costs its own capacity.
func (c *Codec) scanStream(doc *raw.Document, s *stream) {
	st, ok := doc.Stream(s.ref)
	if !ok {
		s.skip = "not a stream"
		return
	}
	if names, _ := filters.ExtractFilters(st.Dict); len(names) > 0 {
		s.skip = fmt.Sprintf("filtered (%s); run normalize first", names[0])
		return
	}
	s.data = st.Data
	sites, err := c.scanner.Scan(st.Data)
	var tokErr *contentstream.TokenizeError
	switch {
	case err == nil:
		s.sites = sites
	case errors.Is(err, carrier.ErrInlineImage):
		s.skip = "contains inline images"
	case errors.As(err, &tokErr):
		s.skip = "unparsable content: " + tokErr.Error()
		c.cfg.Logger.Warn("content stream skipped",
			observability.String("object", s.ref.String()),
			observability.Error("error", err))
	default:
		s.skip = err.Error()
	}
}

func (c *Codec) report(doc *raw.Document, streams []*stream) *Report {
	r := &Report{Pages: len(doc.Pages)}
	for _, s := range streams {
		sr := StreamReport{Ref: s.ref, Page: s.page, Sites: make(map[carrier.Kind]int), Skipped: s.skip}
		for _, site := range s.sites {
			sr.Sites[site.Kind]++
			sr.Bits += site.Bits
		}
		r.TotalBits += sr.Bits
		r.Streams = append(r.Streams, sr)
	}
	r.Bytes = r.TotalBits / 8
	r.MaxMessage = frame.MaxMessage(r.TotalBits)
	return r
}

// Stat reports how much the document can carry.
func (c *Codec) Stat(ctx context.Context, pdf []byte) (*Report, error) {
	ctx, span := c.cfg.Tracer.StartSpan(ctx, observability.SpanStat)
	defer span.Finish()
	doc, err := c.parse(ctx, pdf)
	if err != nil {
		return nil, err
	}
	streams, err := c.discover(ctx, doc)
	if err != nil {
		return nil, err
	}
	r := c.report(doc, streams)
	span.SetTag("bits", r.TotalBits)
	return r, nil
}

// Embed returns a copy of pdf carrying message. Bytes outside carrier sites
// are unchanged. On error nothing is returned.
func (c *Codec) Embed(ctx context.Context, pdf, message []byte) ([]byte, error) {
	ctx, span := c.cfg.Tracer.StartSpan(ctx, observability.SpanEmbed)
	defer span.Finish()
	out, err := c.embed(ctx, pdf, message)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return out, nil
}

func (c *Codec) embed(ctx context.Context, pdf, message []byte) ([]byte, error) {
	doc, err := c.parse(ctx, pdf)
	if err != nil {
		return nil, err
	}
	streams, err := c.discover(ctx, doc)
	if err != nil {
		return nil, err
	}
	have := 0
	for _, s := range streams {
		have += carrier.Capacity(s.sites)
	}
	if need := frame.BitLen(len(message)); need > have {
		return nil, &CapacityError{Need: need, Have: have}
	}
	bits, err := frame.Encode(message)
	if err != nil {
		return nil, err
	}

	// Bits are assigned in site order; the last site used is zero padded.
	pos := 0
	for _, s := range streams {
		if pos >= len(bits) {
			break
		}
		var values []uint
		for _, site := range s.sites {
			if pos >= len(bits) {
				break
			}
			var v uint
			for i := 0; i < site.Bits; i++ {
				v <<= 1
				if pos < len(bits) {
					v |= uint(bits[pos])
				}
				pos++
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			continue
		}
		buf := bytes.Clone(s.data)
		if err := carrier.Apply(buf, s.sites, values); err != nil {
			return nil, fmt.Errorf("object %v: %w", s.ref, err)
		}
		if err := doc.SetStreamData(s.ref, buf); err != nil {
			return nil, fmt.Errorf("object %v: %w", s.ref, err)
		}
	}
	out, err := writer.Serialize(doc)
	if err != nil {
		return nil, err
	}
	c.cfg.Logger.Debug("message embedded",
		observability.Int("message_bytes", len(message)),
		observability.Int("frame_bits", len(bits)),
		observability.Int("capacity_bits", have))

	if c.cfg.Verify {
		got, err := c.Extract(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrVerification, err)
		}
		if !bytes.Equal(got, message) {
			return nil, ErrVerification
		}
	}
	return out, nil
}

// Extract returns the message hidden in pdf.
func (c *Codec) Extract(ctx context.Context, pdf []byte) ([]byte, error) {
	ctx, span := c.cfg.Tracer.StartSpan(ctx, observability.SpanExtract)
	defer span.Finish()
	doc, err := c.parse(ctx, pdf)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	streams, err := c.discover(ctx, doc)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	var bits []byte
	for _, s := range streams {
		for i, v := range carrier.Read(s.data, s.sites) {
			for b := s.sites[i].Bits - 1; b >= 0; b-- {
				bits = append(bits, byte(v>>uint(b))&1)
			}
		}
	}
	msg, err := frame.Decode(bits)
	if err != nil {
		span.SetError(err)
		c.cfg.Logger.Debug("no hidden message", observability.String("kind", KindOf(err).String()))
		return nil, err
	}
	return msg, nil
}
