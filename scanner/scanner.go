package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"unicode"

	"github.com/wudi/pdfsteg/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal string
	TokenHexString                    // '<...>'
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // 'stream' keyword with its payload
	TokenInlineImage                  // inline image data following ID ... EI (content stream only)
	TokenKeyword                      // other keywords (obj, endobj, endstream, >>, ], operators)
	TokenWhitespace                   // run of whitespace bytes (layout mode only)
	TokenComment                      // '%' up to, not including, the end of line (layout mode only)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenHexString:
		return "hexstring"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenRef:
		return "ref"
	case TokenStream:
		return "stream"
	case TokenInlineImage:
		return "inline-image"
	case TokenKeyword:
		return "keyword"
	case TokenWhitespace:
		return "whitespace"
	case TokenComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Token is one lexical unit. Pos and End delimit the bytes it was read from.
type Token struct {
	Type  TokenType
	Pos   int64
	End   int64
	Str   string // names, keywords, the literal text of numbers
	Bytes []byte // decoded strings, stream and inline image payloads, whitespace and comment bytes
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Ref   Ref
	// DataPos is the offset of the first payload byte of a TokenStream.
	DataPos int64
}

// Ref is the object and generation number of a TokenRef.
type Ref struct{ Num, Gen int }

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	SetNextStreamLength(n int64)
	SetRecoveryLocation(loc recovery.Location)
}

type Config struct {
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	WindowSize      int64
	Recovery        recovery.Strategy
	// Layout makes the scanner report whitespace and comments as tokens and
	// disables indirect reference detection. Content streams are scanned this
	// way so that every byte belongs to a token.
	Layout bool
}

type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

var ErrInvalidNumber = errors.New("invalid number")

// pdfScanner incrementally buffers PDF data from a ReaderAt in fixed-size windows.
type pdfScanner struct {
	reader        ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	chunkSize     int64
	eof           bool
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
	lastAction    recovery.Action
}

// New returns a scanner reading r lazily in WindowSize chunks.
func New(r ReaderAt, cfg Config) Scanner {
	chunk := cfg.WindowSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	return &pdfScanner{reader: r, cfg: cfg, nextStreamLen: -1, chunkSize: chunk}
}

func (s *pdfScanner) Position() int64 { return s.pos }
func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 {
		return errors.New("seek out of range")
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	s.arrayDepth, s.dictDepth = 0, 0
	return nil
}
func (s *pdfScanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	if s.cfg.Layout {
		if err := s.ensure(s.pos); err != nil {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			return Token{}, io.EOF
		}
		switch c := s.data[s.pos]; {
		case isWhitespace(c):
			return s.scanWhitespace()
		case c == '%':
			return s.scanComment()
		}
	} else if err := s.skipWSAndComments(); err != nil {
		return Token{}, err
	}
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	if err := s.ensure(s.pos); err != nil {
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]
	// Structural tokens
	switch c {
	case '<':
		if s.peekAhead(1) == '<' { // dictionary start
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	// Keywords / numbers / booleans / null / ref
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isAlpha(c) {
		return s.scanKeyword()
	}
	// Fallback single char keyword
	s.pos++
	return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
}

// Helpers
func (s *pdfScanner) skipWSAndComments() error {
	for {
		if err := s.ensure(s.pos); err != nil {
			return err
		}
		if s.pos >= int64(len(s.data)) {
			return io.EOF
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' { // comment
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil {
					return err
				}
				if s.data[s.pos] == '\n' || s.data[s.pos] == '\r' {
					break
				}
			}
			continue
		}
		return nil
	}
}

func (s *pdfScanner) scanWhitespace() (Token, error) {
	start := s.pos
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if !isWhitespace(s.data[s.pos]) {
			break
		}
		s.pos++
	}
	return s.emit(Token{Type: TokenWhitespace, Bytes: s.data[start:s.pos:s.pos], Pos: start})
}

func (s *pdfScanner) scanComment() (Token, error) {
	start := s.pos
	for {
		s.pos++
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if isEOL(s.data[s.pos]) {
			break
		}
	}
	return s.emit(Token{Type: TokenComment, Bytes: s.data[start:s.pos:s.pos], Pos: start})
}

// ensure makes data[n] addressable, returning io.EOF if the input is shorter.
func (s *pdfScanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *pdfScanner) loadMore() error {
	buf := make([]byte, s.chunkSize)
	off := int64(len(s.data))
	n, err := s.reader.ReadAt(buf, off)
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if err == io.EOF {
		s.eof = true
		return nil
	}
	if err != nil {
		return err
	}
	if n == 0 {
		s.eof = true
	}
	return nil
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }
func isAlpha(c byte) bool      { return unicode.IsLetter(rune(c)) }

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' { // hex escape in name
			s.pos++
			a := s.hexNibble()
			b := s.hexNibble()
			out.WriteByte((a << 4) | b)
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *pdfScanner) hexNibble() byte {
	if err := s.ensure(s.pos); err != nil {
		return 0
	}
	c := s.data[s.pos]
	s.pos++
	return fromHex(c)
}

func (s *pdfScanner) scanLiteralString() (Token, error) { /* PDF 7.3.4.2 */
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		c := s.data[s.pos]
		if c == '\\' { // escape
			s.pos++
			if err := s.ensure(s.pos); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return Token{}, err
			}
			esc := s.data[s.pos]
			// Line continuation: backslash followed by EOL is ignored
			if esc == '\r' {
				s.pos++
				if err := s.ensure(s.pos); err == nil && s.data[s.pos] == '\n' {
					s.pos++
				}
				continue
			}
			if esc == '\n' {
				s.pos++
				continue
			}
			// Octal escape up to 3 digits
			if esc >= '0' && esc <= '7' {
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2; k++ {
					if err := s.ensure(s.pos); err != nil {
						break
					}
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = (val << 3) + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
				continue
			}
			buf.WriteByte(translateEscape(esc))
			s.pos++
			continue
		}
		if c == '(' {
			depth++
			buf.WriteByte(c)
			s.pos++
			continue
		}
		if c == ')' {
			depth--
			if depth == 0 {
				s.pos++
				break
			}
			buf.WriteByte(c)
			s.pos++
			continue
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("literal string too long"), "literal")
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	closed := false
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			closed = true
			break
		}
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if !isHexDigit(c) {
			if err := s.recover(errors.New("invalid hex string digit"), "hex"); err != nil {
				return Token{}, err
			}
			s.pos++
			continue
		}
		hexbuf = append(hexbuf, c)
		s.pos++
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	// If odd number of nibbles, pad with 0
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
		return Token{}, s.recover(errors.New("hex string too long"), "hex")
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, (fromHex(hexbuf[i])<<4)|fromHex(hexbuf[i+1]))
	}
	return s.emit(Token{Type: TokenHexString, Bytes: out, Pos: start})
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

// scanStream consumes the payload after a 'stream' keyword up to 'endstream'.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	// PDF 7.3.8: stream keyword must be followed by EOL before data
	if err := s.ensure(s.pos); err != nil {
		return Token{}, errors.New("stream missing EOL before data")
	}
	switch s.data[s.pos] {
	case '\r':
		s.pos++
		if err := s.ensure(s.pos); err == nil && s.data[s.pos] == '\n' {
			s.pos++
		}
	case '\n':
		s.pos++
	default:
		if err := s.recover(errors.New("stream missing EOL before data"), "stream"); err != nil {
			return Token{}, err
		}
	}
	dataStart := s.pos
	needle := []byte("endstream")

	if l := s.nextStreamLen; l >= 0 {
		s.nextStreamLen = -1
		if s.cfg.MaxStreamLength > 0 && l > s.cfg.MaxStreamLength {
			return Token{}, errors.New("stream too long")
		}
		end := dataStart + l
		if l > 0 {
			if err := s.ensure(end - 1); err != nil {
				if !errors.Is(err, io.EOF) {
					return Token{}, err
				}
				if recErr := s.recover(errors.New("stream ended before declared length"), "stream"); recErr != nil {
					return Token{}, recErr
				}
				return s.scanStreamToMarker(start, dataStart)
			}
		}
		// The declared length must land on an optional EOL followed by endstream.
		p := end
		if err := s.ensure(p); err == nil && s.data[p] == '\r' {
			p++
		}
		if err := s.ensure(p); err == nil && s.data[p] == '\n' {
			p++
		}
		if err := s.ensure(p + int64(len(needle)) - 1); err == nil && bytes.Equal(s.data[p:p+int64(len(needle))], needle) {
			payload := s.data[dataStart:end:end]
			s.pos = p + int64(len(needle))
			return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start, DataPos: dataStart})
		}
		if recErr := s.recover(errors.New("stream length does not match endstream position"), "stream"); recErr != nil {
			return Token{}, recErr
		}
	}
	return s.scanStreamToMarker(start, dataStart)
}

// scanStreamToMarker searches forward for an 'endstream' keyword that sits on
// a line or whitespace boundary.
func (s *pdfScanner) scanStreamToMarker(start, dataStart int64) (Token, error) {
	needle := []byte("endstream")
	idx := int64(-1)
	for i := dataStart; ; i++ {
		if err := s.ensure(i + int64(len(needle)) - 1); err != nil {
			if !errors.Is(err, io.EOF) {
				return Token{}, err
			}
			break
		}
		if s.cfg.MaxStreamScan > 0 && i-dataStart > s.cfg.MaxStreamScan {
			return Token{}, s.recover(errors.New("endstream not found within scan limit"), "stream")
		}
		if s.data[i] != 'e' || !bytes.Equal(s.data[i:i+int64(len(needle))], needle) {
			continue
		}
		followOK := true
		if err := s.ensure(i + int64(len(needle))); err == nil {
			followOK = isDelimiter(s.data[i+int64(len(needle))])
		}
		if hasStreamBreakBefore(s.data, i, dataStart) && followOK {
			idx = i
			break
		}
	}
	if idx == -1 {
		if err := s.recover(errors.New("unterminated stream"), "stream"); err != nil {
			return Token{}, err
		}
		s.pos = int64(len(s.data))
		return s.emit(Token{Type: TokenStream, Bytes: s.data[dataStart:], Pos: start, DataPos: dataStart})
	}
	// Trim EOL before marker
	end := idx
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		return Token{}, errors.New("stream too long")
	}
	s.pos = idx + int64(len(needle))
	return s.emit(Token{Type: TokenStream, Bytes: s.data[dataStart:end:end], Pos: start, DataPos: dataStart})
}

// scanInlineImage consumes bytes after the ID keyword up to and including the
// EI delimiter. This is a content-stream-only construct; the scanner does
// not interpret image parameters.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	// After ID there should be a single whitespace byte.
	if err := s.ensure(s.pos); err != nil || !isWhitespace(s.data[s.pos]) {
		return Token{}, s.recover(errors.New("inline image missing required whitespace after ID"), "inline_image")
	}
	s.pos++
	dataStart := s.pos
	for {
		if err := s.ensure(s.pos + 1); err != nil {
			if errors.Is(err, io.EOF) {
				return Token{}, errors.New("unterminated inline image")
			}
			return Token{}, err
		}
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' {
			prevOK := s.pos > dataStart && isWhitespace(s.data[s.pos-1])
			nextOK := true
			if err := s.ensure(s.pos + 2); err == nil {
				nextOK = isDelimiter(s.data[s.pos+2])
			}
			if prevOK && nextOK {
				payload := s.data[dataStart : s.pos-1 : s.pos-1]
				if s.cfg.MaxInlineImage > 0 && int64(len(payload)) > s.cfg.MaxInlineImage {
					return Token{}, s.recover(errors.New("inline image too long"), "inline_image")
				}
				s.pos += 2
				return s.emit(Token{Type: TokenInlineImage, Bytes: payload, Pos: start})
			}
		}
		s.pos++
		if s.cfg.MaxInlineImage > 0 && s.pos-dataStart > s.cfg.MaxInlineImage {
			return Token{}, s.recover(errors.New("inline image too long"), "inline_image")
		}
	}
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

// IsWhitespace reports whether c is PDF white-space (7.2.3).
func IsWhitespace(c byte) bool { return isWhitespace(c) }

// IsDelimiter reports whether c ends a regular token.
func IsDelimiter(c byte) bool { return isDelimiter(c) }

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if err := s.ensure(s.pos + n); err != nil {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if isDelimiter(s.data[s.pos]) {
			break
		}
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return s.emit(Token{Type: TokenBoolean, Str: kw, Bool: kw == "true", Pos: start})
	case "null":
		return s.emit(Token{Type: TokenNull, Str: kw, Pos: start})
	case "stream":
		if s.cfg.Layout {
			break
		}
		return s.scanStream(start)
	case "ID": // inline image data; caller should have parsed image dict already
		return s.scanInlineImage(start)
	}
	return s.emit(Token{Type: TokenKeyword, Str: kw, Pos: start})
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1Str := s.scanNumberString()
	if num1Str == "" {
		// A lone sign or dot: report it as a keyword and let the caller decide.
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: start})
	}
	afterFirst := s.pos

	if !s.cfg.Layout && isUnsigned(num1Str) {
		if ref, ok := s.tryRef(num1Str); ok {
			return s.emit(Token{Type: TokenRef, Ref: ref, Pos: start})
		}
		s.pos = afterFirst
	}
	tok := Token{Type: TokenNumber, Str: num1Str, Pos: start}
	if i, err := strconv.ParseInt(num1Str, 10, 64); err == nil {
		tok.Int, tok.Float, tok.IsInt = i, float64(i), true
		return s.emit(tok)
	}
	f, err := strconv.ParseFloat(num1Str, 64)
	if err != nil || !ValidNumber(num1Str) {
		if recErr := s.recover(ErrInvalidNumber, "number"); recErr != nil {
			return Token{}, recErr
		}
	}
	tok.Float, tok.Int = f, int64(f)
	return s.emit(tok)
}

// tryRef looks past a first unsigned integer for "<gen> R".
func (s *pdfScanner) tryRef(num1Str string) (Ref, bool) {
	if err := s.skipWSAndComments(); err != nil {
		return Ref{}, false
	}
	num2Str := s.scanNumberString()
	if num2Str == "" || !isUnsigned(num2Str) {
		return Ref{}, false
	}
	if err := s.skipWSAndComments(); err != nil {
		return Ref{}, false
	}
	if s.data[s.pos] != 'R' {
		return Ref{}, false
	}
	if err := s.ensure(s.pos + 1); err == nil && !isDelimiter(s.data[s.pos+1]) {
		return Ref{}, false
	}
	n1, err1 := strconv.Atoi(num1Str)
	n2, err2 := strconv.Atoi(num2Str)
	if err1 != nil || err2 != nil {
		return Ref{}, false
	}
	s.pos++
	return Ref{Num: n1, Gen: n2}, true
}

func isUnsigned(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// ValidNumber reports whether s matches the PDF number syntax
// [+-]?(digits[.digits*] | .digits).
func ValidNumber(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for {
		if err := s.ensure(s.pos); err != nil {
			break
		}
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func (s *pdfScanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	location := s.recLoc
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	s.lastAction = s.cfg.Recovery.OnError(nil, err, location)
	switch s.lastAction {
	case recovery.ActionSkip, recovery.ActionFix:
		return nil
	default:
		return err
	}
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	tok.End = s.pos
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, s.recover(errors.New("array depth exceeded"), "array")
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, s.recover(errors.New("dict depth exceeded"), "dict")
		}
	case TokenKeyword:
		if tok.Str == "]" && s.arrayDepth > 0 {
			s.arrayDepth--
		}
		if tok.Str == ">>" && s.dictDepth > 0 {
			s.dictDepth--
		}
	}
	return tok, nil
}

// hasStreamBreakBefore returns true if the position i in data is preceded by a line break or whitespace boundary,
// making it a safe candidate for an endstream marker.
func hasStreamBreakBefore(data []byte, i, dataStart int64) bool {
	if i == dataStart {
		return true
	}
	return isWhitespace(data[i-1])
}
