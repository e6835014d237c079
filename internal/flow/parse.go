package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("flow syntax error")

// SyntaxError describes where parsing failed.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v at offset %d in %q: %s", ErrSyntax, e.Pos, e.Expr, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Parse parses a flow expression into a chain of at least one call.
func Parse(expr string) (*Chain, error) {
	p := &parser{src: expr}
	p.next()
	chain := &Chain{}
	for {
		if p.tok.kind == tokEOF {
			break
		}
		call, err := p.parseStage()
		if err != nil {
			return nil, err
		}
		chain.Stages = append(chain.Stages, call)
		if p.tok.kind == tokSemi {
			p.next()
			continue
		}
		if p.err != nil {
			return nil, p.err
		}
		if p.tok.kind != tokEOF {
			return nil, p.errorf("expected ';' or end of expression, found %s", p.tok)
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(chain.Stages) == 0 {
		return nil, p.errorf("empty expression")
	}
	return chain, nil
}

// MustParse is like Parse but panics on error. For tests and static tables.
func MustParse(expr string) *Chain {
	c, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return c
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokLParen
	tokRParen
	tokComma
	tokSemi
	tokArrow
	tokIllegal
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

type parser struct {
	src string
	off int
	tok token
	err error
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Expr: p.src, Pos: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

// parseStage parses [type '->'] call ['->' type].
func (p *parser) parseStage() (*Call, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.tok.kind != tokIdent {
		return nil, p.errorf("expected function name or type, found %s", p.tok)
	}
	var in string
	first := p.tok
	p.next()
	if p.tok.kind == tokArrow {
		in = first.text
		p.next()
		if p.tok.kind != tokIdent {
			return nil, p.errorf("expected function name after '->', found %s", p.tok)
		}
		first = p.tok
		p.next()
	}
	call, err := p.parseCall(first)
	if err != nil {
		return nil, err
	}
	call.In = in
	if p.tok.kind == tokArrow {
		p.next()
		if p.tok.kind != tokIdent {
			return nil, p.errorf("expected output type after '->', found %s", p.tok)
		}
		call.Out = p.tok.text
		p.next()
	}
	return call, p.err
}

// parseCall parses the argument list; name has already been consumed.
func (p *parser) parseCall(name token) (*Call, error) {
	if p.tok.kind != tokLParen {
		return nil, p.errorf("expected '(' after %q, found %s", name.text, p.tok)
	}
	p.next()
	call := &Call{Name: name.text, Pos: name.pos}
	if p.tok.kind == tokRParen {
		p.next()
		return call, p.err
	}
	for {
		arg, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		switch p.tok.kind {
		case tokComma:
			p.next()
		case tokRParen:
			p.next()
			return call, p.err
		default:
			return nil, p.errorf("expected ',' or ')' in arguments of %q, found %s", name.text, p.tok)
		}
	}
}

func (p *parser) parseArg() (Arg, error) {
	if p.err != nil {
		return Arg{}, p.err
	}
	tok := p.tok
	switch tok.kind {
	case tokInt:
		p.next()
		n, err := strconv.ParseInt(strings.TrimRight(tok.text, "lL"), 10, 64)
		if err != nil {
			return Arg{}, &SyntaxError{Expr: p.src, Pos: tok.pos, Msg: fmt.Sprintf("invalid integer %q", tok.text)}
		}
		return Arg{Kind: IntArg, Int: n}, nil
	case tokFloat:
		p.next()
		f, err := strconv.ParseFloat(strings.TrimRight(tok.text, "dDfF"), 64)
		if err != nil {
			return Arg{}, &SyntaxError{Expr: p.src, Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", tok.text)}
		}
		return Arg{Kind: FloatArg, Float: f}, nil
	case tokString:
		p.next()
		return Arg{Kind: StringArg, Str: tok.text}, nil
	case tokIdent:
		if tok.text == "true" || tok.text == "false" {
			p.next()
			return Arg{Kind: BoolArg, Bool: tok.text == "true"}, nil
		}
		call, err := p.parseStage()
		if err != nil {
			return Arg{}, err
		}
		return Arg{Kind: CallArg, Call: call}, nil
	}
	return Arg{}, p.errorf("expected argument, found %s", tok)
}

// next advances to the following token.
func (p *parser) next() {
	if p.err != nil {
		p.tok = token{kind: tokEOF, pos: p.off}
		return
	}
	for p.off < len(p.src) && unicode.IsSpace(rune(p.src[p.off])) {
		p.off++
	}
	start := p.off
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}
	c := p.src[p.off]
	switch {
	case c == '(':
		p.off++
		p.tok = token{kind: tokLParen, text: "(", pos: start}
	case c == ')':
		p.off++
		p.tok = token{kind: tokRParen, text: ")", pos: start}
	case c == ',':
		p.off++
		p.tok = token{kind: tokComma, text: ",", pos: start}
	case c == ';':
		p.off++
		p.tok = token{kind: tokSemi, text: ";", pos: start}
	case c == '-' && p.off+1 < len(p.src) && p.src[p.off+1] == '>':
		p.off += 2
		p.tok = token{kind: tokArrow, text: "->", pos: start}
	case c == '\'' || c == '"':
		p.lexString(c)
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		p.lexNumber()
	case isIdentStart(c):
		for p.off < len(p.src) && isIdentPart(p.src[p.off]) {
			p.off++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.off], pos: start}
	default:
		p.off++
		p.tok = token{kind: tokIllegal, text: string(c), pos: start}
		p.err = &SyntaxError{Expr: p.src, Pos: start, Msg: fmt.Sprintf("unexpected character %q", c)}
	}
}

func (p *parser) lexString(quote byte) {
	start := p.off
	p.off++
	var b strings.Builder
	for p.off < len(p.src) {
		c := p.src[p.off]
		switch {
		case c == quote:
			p.off++
			p.tok = token{kind: tokString, text: b.String(), pos: start}
			return
		case c == '\\' && p.off+1 < len(p.src):
			p.off++
			switch e := p.src[p.off]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
		p.off++
	}
	p.tok = token{kind: tokIllegal, pos: start}
	p.err = &SyntaxError{Expr: p.src, Pos: start, Msg: "unterminated string"}
}

func (p *parser) lexNumber() {
	start := p.off
	if c := p.src[p.off]; c == '-' || c == '+' {
		p.off++
	}
	isFloat := false
	for p.off < len(p.src) {
		c := p.src[p.off]
		if isDigit(c) {
			p.off++
			continue
		}
		if c == '.' || c == 'e' || c == 'E' {
			isFloat = true
			p.off++
			if (c == 'e' || c == 'E') && p.off < len(p.src) && (p.src[p.off] == '-' || p.src[p.off] == '+') {
				p.off++
			}
			continue
		}
		break
	}
	kind := tokInt
	if isFloat {
		kind = tokFloat
	}
	if p.off < len(p.src) {
		switch p.src[p.off] {
		case 'l', 'L':
			if !isFloat {
				p.off++
			}
		case 'd', 'D', 'f', 'F':
			kind = tokFloat
			p.off++
		}
	}
	if p.off < len(p.src) && isIdentPart(p.src[p.off]) {
		for p.off < len(p.src) && isIdentPart(p.src[p.off]) {
			p.off++
		}
		p.tok = token{kind: tokIllegal, text: p.src[start:p.off], pos: start}
		p.err = &SyntaxError{Expr: p.src, Pos: start, Msg: fmt.Sprintf("malformed number %q", p.src[start:p.off])}
		return
	}
	p.tok = token{kind: kind, text: p.src[start:p.off], pos: start}
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) || c == '.' }
