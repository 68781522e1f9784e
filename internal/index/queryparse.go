package index

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/docuvault/docuvault/internal/document"
)

// ContentField is the catch-all field holding the full-text content of a
// document. Terms without an explicit field prefix search it.
const ContentField = "content"

// Operator joins adjacent query terms that carry no explicit AND/OR.
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// ParseQuery compiles a query string into a bleve query. The syntax follows
// the classic Lucene query language subset used by the store API:
//
//	field:value  field:"a phrase"  value  wild*card  (a OR b) AND c
//
// AND binds tighter than OR. Adjacent terms without an operator are joined by
// defaultOp. A backslash escapes the following character. A syntax error is
// reported as a QUERY_NOT_UNDERSTANDABLE store error naming the offending
// position.
func ParseQuery(term string, defaultOp Operator) (query.Query, error) {
	toks, err := tokenize(term)
	if err != nil {
		return nil, err
	}
	p := &queryParser{toks: toks, input: term, defaultOp: defaultOp}
	q, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.peek().text)
	}
	return q, nil
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokPhrase
	tokColon
	tokLParen
	tokRParen
	tokAnd
	tokOr
)

type token struct {
	kind     tokenKind
	text     string
	pos      int
	wildcard bool // unescaped * or ? inside a word
}

func tokenize(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ':':
			toks = append(toks, token{kind: tokColon, text: ":", pos: i})
			i++
		case c == '"':
			start := i
			i++
			var sb strings.Builder
			for i < len(runes) && runes[i] != '"' {
				if runes[i] == '\\' && i+1 < len(runes) {
					i++
				}
				sb.WriteRune(runes[i])
				i++
			}
			if i >= len(runes) {
				return nil, syntaxError(input, start, "unterminated phrase")
			}
			i++ // closing quote
			toks = append(toks, token{kind: tokPhrase, text: sb.String(), pos: start})
		default:
			start := i
			var sb strings.Builder
			wildcard := false
			for i < len(runes) && !isWordBreak(runes[i]) {
				if runes[i] == '\\' && i+1 < len(runes) {
					i++
					sb.WriteRune(runes[i])
					i++
					continue
				}
				if runes[i] == '*' || runes[i] == '?' {
					wildcard = true
				}
				sb.WriteRune(runes[i])
				i++
			}
			word := sb.String()
			switch word {
			case "AND", "&&":
				toks = append(toks, token{kind: tokAnd, text: word, pos: start})
			case "OR", "||":
				toks = append(toks, token{kind: tokOr, text: word, pos: start})
			default:
				toks = append(toks, token{kind: tokWord, text: word, pos: start, wildcard: wildcard})
			}
		}
	}
	return toks, nil
}

func isWordBreak(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
		c == '(' || c == ')' || c == ':' || c == '"'
}

type queryParser struct {
	toks      []token
	pos       int
	input     string
	defaultOp Operator
}

func (p *queryParser) eof() bool     { return p.pos >= len(p.toks) }
func (p *queryParser) peek() token   { return p.toks[p.pos] }
func (p *queryParser) advance() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *queryParser) errorf(format string, args ...any) error {
	pos := len(p.input)
	if !p.eof() {
		pos = p.peek().pos
	}
	return syntaxError(p.input, pos, fmt.Sprintf(format, args...))
}

func syntaxError(input string, pos int, msg string) error {
	return document.NewError(document.CodeQueryNotUnderstandable,
		fmt.Sprintf("can not parse query %q at position %d: %s", input, pos, msg), nil)
}

// startsClause reports whether the next token can open a new term, which is
// how an implicit default operator shows up.
func (p *queryParser) startsClause() bool {
	if p.eof() {
		return false
	}
	k := p.peek().kind
	return k == tokWord || k == tokPhrase || k == tokLParen
}

// parseOr handles the lowest-precedence level: a OR b OR c. When the default
// operator is OR, adjacent clauses without an operator join here as well.
func (p *queryParser) parseOr() (query.Query, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	parts := []query.Query{left}
	for !p.eof() {
		if p.peek().kind == tokOr {
			p.advance()
		} else if !(p.defaultOp == OperatorOr && p.startsClause()) {
			break
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		parts = append(parts, right)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return query.NewDisjunctionQuery(parts), nil
}

// parseAnd handles explicit AND, binding tighter than OR. When the default
// operator is AND, adjacent clauses without an operator join here as well.
func (p *queryParser) parseAnd() (query.Query, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	parts := []query.Query{left}
	for !p.eof() {
		if p.peek().kind == tokAnd {
			p.advance()
		} else if !(p.defaultOp == OperatorAnd && p.startsClause()) {
			break
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		parts = append(parts, right)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return query.NewConjunctionQuery(parts), nil
}

// parsePrimary handles a parenthesized group or a single (optionally fielded)
// term.
func (p *queryParser) parsePrimary() (query.Query, error) {
	if p.eof() {
		return nil, p.errorf("unexpected end of query")
	}
	t := p.advance()
	switch t.kind {
	case tokLParen:
		q, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.eof() || p.peek().kind != tokRParen {
			return nil, p.errorf("missing closing parenthesis")
		}
		p.advance()
		return q, nil
	case tokWord:
		// fielded term?
		if !p.eof() && p.peek().kind == tokColon {
			p.advance()
			if p.eof() {
				return nil, p.errorf("missing value after %q:", t.text)
			}
			v := p.advance()
			switch v.kind {
			case tokWord:
				return termQuery(strings.ToLower(t.text), v), nil
			case tokPhrase:
				return phraseQuery(strings.ToLower(t.text), v.text), nil
			default:
				return nil, syntaxError(p.input, v.pos, fmt.Sprintf("missing value after %q:", t.text))
			}
		}
		return termQuery(ContentField, t), nil
	case tokPhrase:
		return phraseQuery(ContentField, t.text), nil
	default:
		return nil, syntaxError(p.input, t.pos, fmt.Sprintf("unexpected %q", t.text))
	}
}

func termQuery(field string, t token) query.Query {
	if t.wildcard {
		q := query.NewWildcardQuery(t.text)
		q.SetField(field)
		return q
	}
	q := query.NewMatchQuery(t.text)
	q.SetField(field)
	return q
}

func phraseQuery(field, text string) query.Query {
	q := query.NewMatchPhraseQuery(text)
	q.SetField(field)
	return q
}
