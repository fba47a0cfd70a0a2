package security

import "time"

// Limits defines security boundaries for parsing and processing PDFs.
// These limits help prevent resource exhaustion attacks (e.g., zip bombs, stack overflows).
type Limits struct {
	// Maximum decompressed stream size (prevent zip bombs). Default: 100 MB.
	MaxDecompressedSize int64 `toml:"max_decompressed_size"`

	// Maximum indirect reference depth, also bounds page tree nesting. Default: 100.
	MaxIndirectDepth int `toml:"max_indirect_depth"`

	// Maximum XRef chain depth (Prev entries). Default: 50.
	MaxXRefDepth int `toml:"max_xref_depth"`

	// Maximum array/dictionary nesting depth. Default: 64.
	MaxNestingDepth int `toml:"max_nesting_depth"`

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64 `toml:"max_string_length"`

	// Maximum raw stream length (bytes). Default: 50 MB.
	MaxStreamLength int64 `toml:"max_stream_length"`

	// Maximum total parse time. Default: 5m.
	MaxParseTime time.Duration `toml:"max_parse_time"`
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024, // 100 MB
		MaxIndirectDepth:    100,
		MaxXRefDepth:        50,
		MaxNestingDepth:     64,
		MaxStringLength:     10 * 1024 * 1024, // 10 MB
		MaxStreamLength:     50 * 1024 * 1024, // 50 MB
		MaxParseTime:        5 * time.Minute,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxDecompressedSize <= 0 {
		l.MaxDecompressedSize = d.MaxDecompressedSize
	}
	if l.MaxIndirectDepth <= 0 {
		l.MaxIndirectDepth = d.MaxIndirectDepth
	}
	if l.MaxXRefDepth <= 0 {
		l.MaxXRefDepth = d.MaxXRefDepth
	}
	if l.MaxNestingDepth <= 0 {
		l.MaxNestingDepth = d.MaxNestingDepth
	}
	if l.MaxStringLength <= 0 {
		l.MaxStringLength = d.MaxStringLength
	}
	if l.MaxStreamLength <= 0 {
		l.MaxStreamLength = d.MaxStreamLength
	}
	if l.MaxParseTime <= 0 {
		l.MaxParseTime = d.MaxParseTime
	}
	return l
}
