package xref

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/wudi/pdfsteg/ir/raw"
	"github.com/wudi/pdfsteg/scanner"
)

// Repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" patterns and "trailer" dictionaries; later
// definitions of an object win, as they would in an incremental update.
func Repair(ctx context.Context, data []byte) (Table, error) {
	s := scanner.New(bytes.NewReader(data), scanner.Config{MaxDictDepth: 32, MaxArrayDepth: 32})
	entries := make(map[int]Entry)
	var lastTrailer *raw.DictObj
	var window [2]scanner.Token
	seen := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		before := s.Position()
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Skip invalid bytes during the repair scan.
			if s.Position() <= before {
				if s.Seek(before+1) != nil {
					break
				}
			}
			seen = 0
			continue
		}

		switch {
		case tok.Type == scanner.TokenKeyword && tok.Str == "obj" && seen >= 2:
			num, gen := window[0], window[1]
			if num.Type == scanner.TokenNumber && num.IsInt && num.Int > 0 &&
				gen.Type == scanner.TokenNumber && gen.IsInt && gen.Int >= 0 {
				entries[int(num.Int)] = Entry{Type: EntryInUse, Offset: num.Pos, Gen: int(gen.Int)}
			}
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			obj, err := raw.NewObjectReader(s, nil).ReadObject()
			if dict, ok := obj.(*raw.DictObj); err == nil && ok {
				lastTrailer = dict
			}
			seen = 0
			continue
		}
		window[0], window[1] = window[1], tok
		if seen < 2 {
			seen++
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	maxNum := 0
	for num := range entries {
		if num > maxNum {
			maxNum = num
		}
	}
	trailer := raw.Dict()
	if lastTrailer != nil {
		for k, v := range lastTrailer.KV {
			trailer.KV[k] = v
		}
		trailer.Delete("Prev")
		trailer.Delete("XRefStm")
	}
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(maxNum+1)))

	return &table{kind: string(raw.XRefRepaired), entries: entries, trailer: trailer}, nil
}
