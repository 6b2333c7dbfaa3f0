package convert

import (
	"fmt"
	"strings"

	"github.com/corvidbase/pgwire/internal/wire"
)

// arrayConverter assembles/disassembles PostgreSQL's "{elem,elem,...}" array
// text grammar, recursing into elem for nested arrays and delegating scalar
// elements to the component converter.
type arrayConverter struct {
	name     string
	elem     Converter
	registry *Registry
}

func (a *arrayConverter) Name() string { return a.name }
func (a *arrayConverter) Binary() bool { return false }

func (a *arrayConverter) FromBytes(col ColumnInfo, raw []byte) (any, error) {
	p := &arrayParser{src: []rune(string(raw)), elem: a.elem, col: col}

	val, err := p.parseArray()
	if err != nil {
		return nil, err
	}

	p.skipWhitespace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("array converter: trailing data after closing brace at position %d", p.pos)
	}

	return val, nil
}

// arrayParser implements a recursive-descent parser for the `{elem,...}`
// array text grammar. The whitespace skip below tests the rune at pos, not
// the index itself — an earlier draft mistakenly tested the index, which
// always succeeds or always fails regardless of content.
type arrayParser struct {
	src  []rune
	pos  int
	elem Converter
	col  ColumnInfo
}

func (p *arrayParser) skipWhitespace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func (p *arrayParser) peek() (rune, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}

	return p.src[p.pos], true
}

// parseArray parses a single '{' ... '}' level, returning a []any whose
// elements are either scalar application values, nil (SQL NULL), or nested
// []any for deeper array dimensions.
func (p *arrayParser) parseArray() ([]any, error) {
	r, ok := p.peek()
	if !ok || r != '{' {
		return nil, fmt.Errorf("array converter: expected '{' at position %d", p.pos)
	}

	p.pos++
	p.skipWhitespace()

	elements := make([]any, 0)
	first := true

	for {
		r, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("array converter: unterminated array, expected '}'")
		}

		if r == '}' {
			break
		}

		if !first {
			if r != ',' {
				return nil, fmt.Errorf("array converter: expected ',' at position %d", p.pos)
			}

			p.pos++
			p.skipWhitespace()
		}

		first = false

		val, err := p.parseElement()
		if err != nil {
			return nil, err
		}

		elements = append(elements, val)
		p.skipWhitespace()
	}

	p.pos++ // consume '}'

	return elements, nil
}

func (p *arrayParser) parseElement() (any, error) {
	r, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("array converter: unexpected end of input parsing element")
	}

	switch {
	case r == '{':
		return p.parseNested()
	case r == '"':
		return p.parseQuoted()
	case (r == 'N' || r == 'n') && p.looksLikeNull():
		p.pos += 4
		return nil, nil
	default:
		return p.parseUnquoted()
	}
}

func (p *arrayParser) looksLikeNull() bool {
	if p.pos+4 > len(p.src) {
		return false
	}

	word := string(p.src[p.pos : p.pos+4])
	if !strings.EqualFold(word, "NULL") {
		return false
	}

	if p.pos+4 == len(p.src) {
		return true
	}

	next := p.src[p.pos+4]

	return next == ',' || next == '}' || isSpace(next)
}

// parseNested handles a deeper array dimension. A multidimensional array's
// inner dimensions share the same element converter as the outer one — only
// the nesting depth changes, not the scalar component type.
func (p *arrayParser) parseNested() (any, error) {
	sub := &arrayParser{src: p.src, pos: p.pos, elem: p.elem, col: p.col}

	val, err := sub.parseArray()
	if err != nil {
		return nil, err
	}

	p.pos = sub.pos

	return val, nil
}

func (p *arrayParser) parseQuoted() (any, error) {
	p.pos++ // consume opening quote

	var b strings.Builder

	for {
		r, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("array converter: unterminated quoted element")
		}

		if r == '\\' {
			p.pos++
			esc, ok := p.peek()
			if !ok {
				return nil, fmt.Errorf("array converter: dangling escape in quoted element")
			}

			b.WriteRune(esc)
			p.pos++
			continue
		}

		if r == '"' {
			p.pos++
			break
		}

		b.WriteRune(r)
		p.pos++
	}

	return p.convertScalar(b.String())
}

func (p *arrayParser) parseUnquoted() (any, error) {
	start := p.pos

	for {
		r, ok := p.peek()
		if !ok || r == ',' || r == '}' {
			break
		}

		p.pos++
	}

	// Whitespace before the terminating ',' or '}' is not part of the token.
	token := strings.TrimRightFunc(string(p.src[start:p.pos]), isSpace)

	return p.convertScalar(token)
}

func (p *arrayParser) convertScalar(token string) (any, error) {
	if p.elem == nil {
		return token, nil
	}

	return p.elem.FromBytes(p.col, []byte(token))
}

// ToBytes encodes a []any (possibly nested for multidimensional arrays)
// back into PostgreSQL array text format.
func (a *arrayConverter) ToBytes(value any, format wire.FormatCode) (wire.FormatCode, []byte, error) {
	var b strings.Builder

	if err := a.encode(&b, value); err != nil {
		return 0, nil, err
	}

	return wire.TextFormat, []byte(b.String()), nil
}

func (a *arrayConverter) encode(b *strings.Builder, value any) error {
	slice, ok := value.([]any)
	if !ok {
		return fmt.Errorf("array converter: %T is not []any", value)
	}

	b.WriteByte('{')

	for i, el := range slice {
		if i > 0 {
			b.WriteByte(',')
		}

		if el == nil {
			b.WriteString("NULL")
			continue
		}

		if nested, ok := el.([]any); ok {
			if err := a.encode(b, nested); err != nil {
				return err
			}

			continue
		}

		_, raw, err := a.elem.ToBytes(el, wire.TextFormat)
		if err != nil {
			return err
		}

		writeQuotedArrayElement(b, raw)
	}

	b.WriteByte('}')

	return nil
}

// writeQuotedArrayElement always quotes scalar elements; simpler and always
// correct, at the cost of the cosmetic unquoted form PostgreSQL itself
// prefers for simple tokens.
func writeQuotedArrayElement(b *strings.Builder, raw []byte) {
	b.WriteByte('"')

	for _, c := range string(raw) {
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}

		b.WriteRune(c)
	}

	b.WriteByte('"')
}
