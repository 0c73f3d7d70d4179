package script

import (
	"fmt"
	"strconv"
	"strings"

	werr "github.com/msto63/wiener/foundation/core/error"
)

// SyntaxError reports a malformed term or body
type SyntaxError struct {
	Pos int
	Msg string
	Src string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

type lexKind uint8

const (
	lexEOF lexKind = iota
	lexIdent
	lexVar
	lexNumber
	lexString
	lexQuoted
	lexPunct
)

type lexeme struct {
	kind lexKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (lexeme, error) {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.src) {
		return lexeme{kind: lexEOF, pos: start}, nil
	}
	c := l.src[l.pos]
	switch {
	case c == '?':
		l.pos++
		for l.pos < len(l.src) && isIdent(l.src[l.pos]) {
			l.pos++
		}
		if l.pos == start+1 {
			return lexeme{}, l.errorf(start, "empty variable name")
		}
		return lexeme{kind: lexVar, text: l.src[start+1 : l.pos], pos: start}, nil
	case isLower(c) || c == '_':
		for l.pos < len(l.src) && isIdent(l.src[l.pos]) {
			l.pos++
		}
		return lexeme{kind: lexIdent, text: l.src[start:l.pos], pos: start}, nil
	case isDigit(c) || (c == '-' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		l.pos++
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.' || l.src[l.pos] == 'e') {
			l.pos++
		}
		return lexeme{kind: lexNumber, text: l.src[start:l.pos], pos: start}, nil
	case c == '"' || c == '\'':
		l.pos++
		for l.pos < len(l.src) && l.src[l.pos] != c {
			if l.src[l.pos] == '\\' {
				l.pos++
			}
			l.pos++
		}
		if l.pos >= len(l.src) {
			return lexeme{}, l.errorf(start, "unterminated quote")
		}
		l.pos++
		raw := l.src[start:l.pos]
		if c == '\'' {
			body := strings.ReplaceAll(raw[1:len(raw)-1], "\\'", "'")
			return lexeme{kind: lexQuoted, text: body, pos: start}, nil
		}
		s, err := strconv.Unquote(raw)
		if err != nil {
			return lexeme{}, l.errorf(start, "bad string literal %s", raw)
		}
		return lexeme{kind: lexString, text: s, pos: start}, nil
	case c == '(' || c == ')' || c == ',' || c == ';':
		l.pos++
		return lexeme{kind: lexPunct, text: string(c), pos: start}, nil
	}
	return lexeme{}, l.errorf(start, "unexpected character %q", c)
}

func (l *lexer) peek() (lexeme, error) {
	save := l.pos
	lx, err := l.next()
	l.pos = save
	return lx, err
}

func (l *lexer) errorf(pos int, format string, args ...interface{}) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...), Src: l.src}
}

func (l *lexer) term() (Term, error) {
	lx, err := l.next()
	if err != nil {
		return Term{}, err
	}
	switch lx.kind {
	case lexVar:
		return Var(lx.text), nil
	case lexNumber:
		f, err := strconv.ParseFloat(lx.text, 64)
		if err != nil {
			return Term{}, l.errorf(lx.pos, "bad number %q", lx.text)
		}
		return Number(f), nil
	case lexString:
		return String(lx.text), nil
	case lexIdent, lexQuoted:
		nx, err := l.peek()
		if err != nil {
			return Term{}, err
		}
		if nx.kind != lexPunct || nx.text != "(" {
			return Atom(lx.text), nil
		}
		l.next()
		var args []Term
		for {
			arg, err := l.term()
			if err != nil {
				return Term{}, err
			}
			args = append(args, arg)
			sep, err := l.next()
			if err != nil {
				return Term{}, err
			}
			if sep.kind == lexPunct && sep.text == ")" {
				return Compound(lx.text, args...), nil
			}
			if sep.kind != lexPunct || sep.text != "," {
				return Term{}, l.errorf(sep.pos, "expected , or ) in arguments of %s", lx.text)
			}
		}
	}
	return Term{}, l.errorf(lx.pos, "expected term")
}

// ParseTerm parses a single term such as at(?robot, dock)
func ParseTerm(src string) (Term, error) {
	l := &lexer{src: src}
	t, err := l.term()
	if err != nil {
		return Term{}, werr.Wrap(err, "parse term").WithCode(werr.CodeScriptSyntax)
	}
	if rest, _ := l.next(); rest.kind != lexEOF {
		return Term{}, werr.Wrap(l.errorf(rest.pos, "trailing input"), "parse term").WithCode(werr.CodeScriptSyntax)
	}
	return t, nil
}

// MustParseTerm is ParseTerm for literals known to be valid
func MustParseTerm(src string) Term {
	t, err := ParseTerm(src)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseBody parses a script body into tokens. Statements may be separated by
// whitespace, commas or semicolons; # starts a comment.
func ParseBody(src string) ([]Token, error) {
	l := &lexer{src: src}
	var out []Token
	for {
		lx, err := l.peek()
		if err != nil {
			return nil, werr.Wrap(err, "parse body").WithCode(werr.CodeScriptSyntax)
		}
		if lx.kind == lexEOF {
			return out, nil
		}
		if lx.kind == lexPunct && (lx.text == "," || lx.text == ";") {
			l.next()
			continue
		}
		if lx.kind == lexIdent {
			if kind, ok := keywords[lx.text]; ok && !followedByParen(l, lx) {
				l.next()
				tok := Token{Kind: kind}
				if kind == TokAchieve {
					goal, err := l.term()
					if err != nil {
						return nil, werr.Wrap(err, "parse achieve goal").WithCode(werr.CodeScriptSyntax)
					}
					tok.Call = goal
				}
				out = append(out, tok)
				continue
			}
		}
		call, err := l.term()
		if err != nil {
			return nil, werr.Wrap(err, "parse body").WithCode(werr.CodeScriptSyntax)
		}
		if call.Kind != KindAtom && call.Kind != KindCompound {
			return nil, werr.Wrap(l.errorf(lx.pos, "statement must be an invocation, got %s", call.Kind), "parse body").
				WithCode(werr.CodeScriptSyntax)
		}
		out = append(out, Token{Kind: TokInvoke, Call: call})
	}
}

func followedByParen(l *lexer, lx lexeme) bool {
	save := l.pos
	defer func() { l.pos = save }()
	l.pos = lx.pos + len(lx.text)
	nx, err := l.next()
	return err == nil && nx.kind == lexPunct && nx.text == "("
}
