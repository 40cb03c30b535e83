// Package ifc reads IFC files in the STEP physical file format (ISO
// 10303-21) and extracts element property data from them.
//
// The reader is schema-agnostic: it parses entity instances into generic
// attribute lists and leaves interpretation to the extraction layer. This
// keeps it working across IFC2x3 and IFC4 files, which differ only in
// attributes the extractor does not depend on.
package ifc

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ValueKind discriminates parsed STEP attribute values.
type ValueKind int

const (
	KindNull    ValueKind = iota // $
	KindDerived                  // *
	KindString
	KindInt
	KindReal
	KindEnum // .ENUM.
	KindRef  // #123
	KindList // ( ... )
	KindTyped
)

// Value is one parsed attribute. Typed values (IFCLABEL('x')) carry the
// wrapping type name and their arguments in List.
type Value struct {
	Kind     ValueKind
	Str      string
	Int      int64
	Real     float64
	Ref      int64
	List     []Value
	TypeName string
}

// IsNull reports whether the value is $ or *.
func (v Value) IsNull() bool {
	return v.Kind == KindNull || v.Kind == KindDerived
}

// Entity is one instance record from the DATA section.
type Entity struct {
	ID    int64
	Type  string
	Attrs []Value
}

// Attr returns the i-th attribute, or a null value when out of range.
func (e *Entity) Attr(i int) Value {
	if i < 0 || i >= len(e.Attrs) {
		return Value{Kind: KindNull}
	}
	return e.Attrs[i]
}

// AttrString returns the i-th attribute as a string, or "".
func (e *Entity) AttrString(i int) string {
	v := e.Attr(i)
	if v.Kind == KindString || v.Kind == KindEnum {
		return v.Str
	}
	return ""
}

// Model is a parsed STEP file.
type Model struct {
	Schema   string
	entities map[int64]*Entity
	byType   map[string][]*Entity
}

// Entity resolves an instance by its numeric label.
func (m *Model) Entity(id int64) *Entity {
	return m.entities[id]
}

// Deref resolves a reference value to its entity, or nil.
func (m *Model) Deref(v Value) *Entity {
	if v.Kind != KindRef {
		return nil
	}
	return m.entities[v.Ref]
}

// EntitiesOfType returns all instances of the exact type name (upper case).
func (m *Model) EntitiesOfType(name string) []*Entity {
	return m.byType[name]
}

// Len returns the number of parsed instances.
func (m *Model) Len() int {
	return len(m.entities)
}

// Decode parses a STEP file. Header entries are scanned for the schema
// identifier; everything else outside the DATA section is skipped.
func Decode(r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p := &parser{src: data}
	m := &Model{
		entities: make(map[int64]*Entity),
		byType:   make(map[string][]*Entity),
	}

	p.skipSpace()
	if !p.consumeWord("ISO-10303-21;") {
		return nil, fmt.Errorf("not a STEP file: missing ISO-10303-21 header")
	}

	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		if p.consumeWord("END-ISO-10303-21;") {
			break
		}
		if p.peek() != '#' {
			// Header entries, section markers, FILE_SCHEMA and friends.
			stmt, err := p.rawStatement()
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(stmt, "FILE_SCHEMA") {
				m.Schema = schemaFromHeader(stmt)
			}
			continue
		}
		e, err := p.entity()
		if err != nil {
			return nil, err
		}
		m.entities[e.ID] = e
		m.byType[e.Type] = append(m.byType[e.Type], e)
	}
	return m, nil
}

func schemaFromHeader(stmt string) string {
	start := strings.IndexByte(stmt, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(stmt[start+1:], '\'')
	if end < 0 {
		return ""
	}
	return stmt[start+1 : start+1+end]
}

type parser struct {
	src []byte
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.pos++
		case c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*':
			end := strings.Index(string(p.src[p.pos+2:]), "*/")
			if end < 0 {
				p.pos = len(p.src)
				return
			}
			p.pos += 2 + end + 2
		default:
			return
		}
	}
}

func (p *parser) consumeWord(w string) bool {
	if p.pos+len(w) <= len(p.src) && string(p.src[p.pos:p.pos+len(w)]) == w {
		p.pos += len(w)
		return true
	}
	return false
}

// rawStatement consumes up to and including the next top-level semicolon,
// respecting string literals.
func (p *parser) rawStatement() (string, error) {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if c == '\'' {
			if _, err := p.stringLit(); err != nil {
				return "", err
			}
			continue
		}
		p.pos++
		if c == ';' {
			return string(p.src[start:p.pos]), nil
		}
	}
	return "", fmt.Errorf("unterminated statement at offset %d", start)
}

// entity parses "#id = TYPE(...);".
func (p *parser) entity() (*Entity, error) {
	p.pos++ // '#'
	id, err := p.integer()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() != '=' {
		return nil, fmt.Errorf("expected '=' after #%d", id)
	}
	p.pos++
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return nil, fmt.Errorf("expected type name for #%d", id)
	}
	p.skipSpace()
	args, err := p.list()
	if err != nil {
		return nil, fmt.Errorf("#%d: %w", id, err)
	}
	p.skipSpace()
	if p.peek() != ';' {
		return nil, fmt.Errorf("expected ';' after #%d", id)
	}
	p.pos++
	return &Entity{ID: id, Type: name, Attrs: args}, nil
}

func (p *parser) list() ([]Value, error) {
	if p.peek() != '(' {
		return nil, fmt.Errorf("expected '(' at offset %d", p.pos)
	}
	p.pos++
	var vals []Value
	for {
		p.skipSpace()
		if p.peek() == ')' {
			p.pos++
			return vals, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
		default:
			return nil, fmt.Errorf("expected ',' or ')' at offset %d", p.pos)
		}
	}
}

func (p *parser) value() (Value, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == '$':
		p.pos++
		return Value{Kind: KindNull}, nil
	case c == '*':
		p.pos++
		return Value{Kind: KindDerived}, nil
	case c == '#':
		p.pos++
		id, err := p.integer()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindRef, Ref: id}, nil
	case c == '\'':
		s, err := p.stringLit()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: s}, nil
	case c == '.':
		return p.enumLit()
	case c == '(':
		vals, err := p.list()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindList, List: vals}, nil
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		name := p.ident()
		if name == "" {
			return Value{}, fmt.Errorf("unexpected character %q at offset %d", c, p.pos)
		}
		p.skipSpace()
		args, err := p.list()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindTyped, TypeName: name, List: args}, nil
	}
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			p.pos++
			continue
		}
		break
	}
	return strings.ToUpper(string(p.src[start:p.pos]))
}

func (p *parser) integer() (int64, error) {
	start := p.pos
	for !p.eof() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected integer at offset %d", start)
	}
	return strconv.ParseInt(string(p.src[start:p.pos]), 10, 64)
}

func (p *parser) number() (Value, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	isReal := false
	for !p.eof() {
		c := p.src[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' || c == 'E' || c == 'e' {
			isReal = true
			p.pos++
			if (c == 'E' || c == 'e') && !p.eof() && (p.peek() == '-' || p.peek() == '+') {
				p.pos++
			}
			continue
		}
		break
	}
	text := string(p.src[start:p.pos])
	if isReal {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("bad real %q at offset %d", text, start)
		}
		return Value{Kind: KindReal, Real: f}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("bad integer %q at offset %d", text, start)
	}
	return Value{Kind: KindInt, Int: n}, nil
}

// stringLit parses a STEP string, decoding the '' quote escape. The \X\
// codepage escapes are left verbatim.
func (p *parser) stringLit() (string, error) {
	start := p.pos
	p.pos++ // opening quote
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		if c == '\'' {
			if p.pos+1 < len(p.src) && p.src[p.pos+1] == '\'' {
				b.WriteByte('\'')
				p.pos += 2
				continue
			}
			p.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.pos++
	}
	return "", fmt.Errorf("unterminated string at offset %d", start)
}

func (p *parser) enumLit() (Value, error) {
	start := p.pos
	p.pos++ // opening dot
	end := p.pos
	for end < len(p.src) && p.src[end] != '.' {
		end++
	}
	if end >= len(p.src) {
		return Value{}, fmt.Errorf("unterminated enumeration at offset %d", start)
	}
	v := Value{Kind: KindEnum, Str: strings.ToUpper(string(p.src[p.pos:end]))}
	p.pos = end + 1
	return v, nil
}
