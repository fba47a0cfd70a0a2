package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/pdfsteg/ir/raw"
	"github.com/wudi/pdfsteg/observability"
	"github.com/wudi/pdfsteg/recovery"
	"github.com/wudi/pdfsteg/security"
	"github.com/wudi/pdfsteg/xref"
)

// ErrMalformed is wrapped by every error that means the input is not a
// usable PDF.
var ErrMalformed = errors.New("malformed document")

// ErrEncrypted reports a document protected by a security handler.
var ErrEncrypted = errors.New("encrypted documents are not supported")

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	Recovery recovery.Strategy
	XRef     xref.ResolverConfig
	Limits   security.Limits
	Logger   observability.Logger
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

var _ raw.Parser = (*DocumentParser)(nil)

func NewDocumentParser(cfg Config) *DocumentParser {
	cfg.Limits = cfg.Limits.WithDefaults()
	if cfg.XRef.MaxXRefDepth == 0 {
		cfg.XRef.MaxXRefDepth = cfg.Limits.MaxXRefDepth
	}
	if cfg.XRef.Recovery == nil {
		cfg.XRef.Recovery = cfg.Recovery
	}
	if cfg.XRef.Filters.MaxDecompressedSize == 0 {
		cfg.XRef.Filters.MaxDecompressedSize = cfg.Limits.MaxDecompressedSize
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &DocumentParser{cfg: cfg}
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w", ErrMalformed, fmt.Errorf(format, args...))
}

// Parse reads a complete PDF held in memory. The returned document keeps a
// reference to data.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	if p.cfg.Limits.MaxParseTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Limits.MaxParseTime)
		defer cancel()
	}
	version, err := p.headerVersion(ctx, data)
	if err != nil {
		return nil, err
	}

	table, err := xref.NewResolver(p.cfg.XRef).Resolve(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, malformed("resolve xref: %w", err)
	}

	doc, err := p.load(ctx, data, table)
	if err != nil && ctx.Err() == nil && !errors.Is(err, ErrEncrypted) && table.Type() != string(raw.XRefRepaired) &&
		recovery.Tolerates(p.cfg.Recovery, ctx, err, recovery.Location{Component: "parser"}) {
		p.cfg.Logger.Warn("xref does not match file contents, rebuilding", observability.Error("error", err))
		var repErr error
		if table, repErr = xref.Repair(ctx, data); repErr == nil {
			doc, err = p.load(ctx, data, table)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	doc.Version = version
	p.cfg.Logger.Debug("parsed document",
		observability.String("xref", string(doc.XRef)),
		observability.Int("objects", len(doc.Objects)),
		observability.Int("pages", len(doc.Pages)))
	return doc, nil
}

func (p *DocumentParser) load(ctx context.Context, data []byte, table xref.Table) (*raw.Document, error) {
	trailer := table.Trailer()
	if trailer == nil {
		return nil, errors.New("trailer missing")
	}
	if _, ok := trailer.KV["Encrypt"]; ok {
		return nil, ErrEncrypted
	}

	doc := raw.NewDocument(data)
	doc.Trailer = trailer
	doc.XRef = raw.XRefKind(table.Type())
	loader := newObjectLoader(data, table, p.cfg.Limits, p.cfg.Recovery)

	var compressed []int
	for _, objNum := range table.Objects() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if objNum == 0 {
			continue // free head entry
		}
		if _, _, ok := table.ObjStream(objNum); ok {
			compressed = append(compressed, objNum)
			continue
		}
		ind, err := loader.loadAt(objNum)
		if err != nil {
			return nil, err
		}
		doc.Objects[ind.Ref] = ind.Object
		doc.Spans[ind.Ref] = ind.Span
	}
	for _, objNum := range compressed {
		streamNum, idx, _ := table.ObjStream(objNum)
		obj, err := loader.loadCompressed(ctx, objNum, streamNum, idx)
		if err != nil {
			return nil, err
		}
		ref := raw.ObjectRef{Num: objNum}
		doc.Objects[ref] = obj
		doc.Compressed[ref] = true
	}
	if doc.XRef == raw.XRefRepaired {
		if err := p.recoverObjectStreams(ctx, doc, loader); err != nil {
			return nil, err
		}
		if _, ok := doc.Trailer.KV["Root"]; !ok {
			if root, ok := findCatalog(doc); ok {
				doc.Trailer.Set(raw.NameLiteral("Root"), raw.RefObj{R: root})
			}
		}
	}

	pages, err := p.collectPages(ctx, doc)
	if err != nil {
		return nil, err
	}
	doc.Pages = pages
	return doc, nil
}

// recoverObjectStreams registers the contents of every object stream found
// by a repair scan, which only sees top-level objects.
func (p *DocumentParser) recoverObjectStreams(ctx context.Context, doc *raw.Document, loader *objectLoader) error {
	for _, ref := range doc.Refs() {
		st, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok {
			continue
		}
		if typ, _ := raw.NameValue(st.Dict.KV["Type"]); typ != "ObjStm" {
			continue
		}
		stm, err := loader.parseObjectStream(ctx, st)
		if err != nil {
			if recovery.Tolerates(p.cfg.Recovery, ctx, err, recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser:objstm"}) {
				continue
			}
			return err
		}
		for i, num := range stm.nums {
			objRef := raw.ObjectRef{Num: num}
			if _, exists := doc.Objects[objRef]; exists {
				continue
			}
			doc.Objects[objRef] = stm.objs[i]
			doc.Compressed[objRef] = true
		}
	}
	return nil
}

func findCatalog(doc *raw.Document) (raw.ObjectRef, bool) {
	for _, ref := range doc.Refs() {
		if d, ok := doc.Objects[ref].(*raw.DictObj); ok {
			if typ, _ := raw.NameValue(d.KV["Type"]); typ == "Catalog" {
				return ref, true
			}
		}
	}
	return raw.ObjectRef{}, false
}

// collectPages walks the page tree from the catalog and returns the page
// objects in document order.
func (p *DocumentParser) collectPages(ctx context.Context, doc *raw.Document) ([]raw.ObjectRef, error) {
	catalog, ok := doc.ResolveDict(doc.Trailer.KV["Root"])
	if !ok {
		return nil, errors.New("document catalog missing")
	}
	rootRef, ok := catalog.KV["Pages"].(raw.RefObj)
	if !ok {
		return nil, errors.New("catalog /Pages is not an indirect reference")
	}
	var pages []raw.ObjectRef
	visited := make(map[raw.ObjectRef]bool)
	var walk func(ref raw.ObjectRef, depth int) error
	walk = func(ref raw.ObjectRef, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if depth > p.cfg.Limits.MaxIndirectDepth {
			return fmt.Errorf("page tree deeper than %d levels", p.cfg.Limits.MaxIndirectDepth)
		}
		if visited[ref] {
			return fmt.Errorf("page tree node %v visited twice", ref)
		}
		visited[ref] = true
		node, ok := doc.Objects[ref].(*raw.DictObj)
		if !ok {
			return fmt.Errorf("page tree node %v is not a dictionary", ref)
		}
		typ, _ := raw.NameValue(node.KV["Type"])
		kidsObj, hasKids := node.KV["Kids"]
		if typ == "Page" || (typ == "" && !hasKids) {
			pages = append(pages, ref)
			return nil
		}
		kids, ok := doc.Resolve(kidsObj).(*raw.ArrayObj)
		if !ok {
			if !hasKids {
				return nil
			}
			return fmt.Errorf("page tree node %v has invalid /Kids", ref)
		}
		for _, kid := range kids.Items {
			kidRef, ok := kid.(raw.RefObj)
			var err error
			if !ok {
				err = fmt.Errorf("page tree node %v has a direct kid", ref)
			} else {
				err = walk(kidRef.R, depth+1)
			}
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				loc := recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser:pages"}
				if !recovery.Tolerates(p.cfg.Recovery, ctx, err, loc) {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(rootRef.R, 0); err != nil {
		return nil, err
	}
	return pages, nil
}

// headerVersion finds the %PDF-x.y header, which may be preceded by junk
// within the first kilobyte.
func (p *DocumentParser) headerVersion(ctx context.Context, data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		err := errors.New("PDF header not found")
		if !recovery.Tolerates(p.cfg.Recovery, ctx, err, recovery.Location{Component: "parser:header"}) {
			return "", malformed("%w", err)
		}
		return "", nil
	}
	line := string(head[idx+5:])
	if i := strings.IndexAny(line, "\r\n \t%"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line), nil
}
