package facility

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// NoSearchResults is written by the scraper when a search failed.
const NoSearchResults = "NULL"

// ParseCandidates decodes the serialized candidate list stored in a facility
// row. It accepts a Python list literal such as ['https://a.com', "https://b.com"]
// or a JSON array of strings. Empty input, NULL and NaN mean no candidates.
func ParseCandidates(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToUpper(s) {
	case "", NoSearchResults, "NAN", "NONE":
		return nil, nil
	}

	p := &listParser{src: s}
	urls, err := p.parse()
	if err != nil {
		return nil, eris.Wrapf(err, "facility: parse candidate list %q", truncate(s, 80))
	}
	return urls, nil
}

type listParser struct {
	src string
	pos int
}

func (p *listParser) parse() ([]string, error) {
	if !p.consume('[') {
		return nil, p.errorf("expected '['")
	}

	var out []string
	for {
		p.skipSpace()
		if p.consume(']') {
			break
		}
		item, err := p.str()
		if err != nil {
			return nil, err
		}
		out = append(out, item)

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(']') {
			break
		}
		return nil, p.errorf("expected ',' or ']'")
	}

	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("trailing characters")
	}
	return out, nil
}

// str reads one single- or double-quoted string with backslash escapes.
func (p *listParser) str() (string, error) {
	if p.pos >= len(p.src) {
		return "", p.errorf("unexpected end of list")
	}
	quote := p.src[p.pos]
	if quote != '\'' && quote != '"' {
		return "", p.errorf("expected quoted string")
	}
	p.pos++

	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\':
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			_, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteString(p.src[p.pos : p.pos+size])
			p.pos += size
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *listParser) escape(b *strings.Builder) error {
	if p.pos+1 >= len(p.src) {
		return p.errorf("dangling escape")
	}
	c := p.src[p.pos+1]
	p.pos += 2
	switch c {
	case '\\', '\'', '"', '/':
		b.WriteByte(c)
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'u':
		if p.pos+4 > len(p.src) {
			return p.errorf("short \\u escape")
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32)
		if err != nil {
			return p.errorf("bad \\u escape")
		}
		b.WriteRune(rune(n))
		p.pos += 4
	default:
		// Unknown escapes are kept literally.
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *listParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *listParser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *listParser) errorf(msg string) error {
	return eris.Errorf("%s at offset %d", msg, p.pos)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
