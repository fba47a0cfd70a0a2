package stego

import (
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wudi/pdfsteg/carrier"
	"github.com/wudi/pdfsteg/ir/raw"
)

// StreamReport describes the capacity of one content stream.
type StreamReport struct {
	Ref raw.ObjectRef
	// Page is the 1-based number of the first page using the stream.
	Page  int
	Bits  int
	Sites map[carrier.Kind]int
	// Skipped explains why the stream carries nothing, if it does not.
	Skipped string
}

// Report is the capacity of a document.
type Report struct {
	Pages      int
	TotalBits  int
	Bytes      int
	MaxMessage int
	Streams    []StreamReport
}

// Sites returns the number of sites of kind k over all streams.
func (r *Report) Sites(k carrier.Kind) int {
	n := 0
	for _, s := range r.Streams {
		n += s.Sites[k]
	}
	return n
}

// WriteText renders the report for humans.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	p := message.NewPrinter(language.English)
	p.Fprintf(tw, "Pages:\t%d\n", r.Pages)
	p.Fprintf(tw, "Content streams:\t%d\n", len(r.Streams))
	p.Fprintf(tw, "Capacity:\t%d bits (%d bytes)\n", r.TotalBits, r.Bytes)
	p.Fprintf(tw, "Largest message:\t%d bytes\n", r.MaxMessage)
	for _, k := range carrier.Kinds {
		p.Fprintf(tw, "  %s sites:\t%d\n", k, r.Sites(k))
	}
	if len(r.Streams) > 0 {
		fmt.Fprintln(tw, "\nStream\tPage\tBits\tNote")
		for _, s := range r.Streams {
			fmt.Fprintf(tw, "%d %d\t%d\t%d\t%s\n", s.Ref.Num, s.Ref.Gen, s.Page, s.Bits, s.Skipped)
		}
	}
	return tw.Flush()
}
