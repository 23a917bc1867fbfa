// Package label implements the label expressions used to match build
// demand against pod templates.
//
// A template carries a set of atoms ("linux docker large"). Demand carries an
// expression over atoms using && (and), || (or), ! (not) and parentheses,
// e.g. "linux && (docker || podman) && !arm". A bare atom is the most common
// expression.
package label

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

var ErrEmptyExpression = errors.New("empty label expression")

// Set is the set of atoms a template (and therefore the agents created from
// it) advertises.
type Set map[string]struct{}

// ParseSet splits a whitespace separated list of atoms.
func ParseSet(s string) Set {
	return lo.SliceToMap(strings.Fields(s), func(atom string) (string, struct{}) {
		return atom, struct{}{}
	})
}

func (s Set) Contains(atom string) bool {
	_, ok := s[atom]
	return ok
}

func (s Set) IsEmpty() bool {
	return len(s) == 0
}

func (s Set) String() string {
	atoms := lo.Keys(s)
	slices.Sort(atoms)
	return strings.Join(atoms, " ")
}

// Expression is a parsed label expression.
type Expression interface {
	Matches(Set) bool
	String() string
}

type atom string

func (a atom) Matches(s Set) bool { return s.Contains(string(a)) }
func (a atom) String() string     { return string(a) }

type not struct{ operand Expression }

func (n not) Matches(s Set) bool { return !n.operand.Matches(s) }
func (n not) String() string     { return "!" + n.operand.String() }

type and struct{ left, right Expression }

func (e and) Matches(s Set) bool { return e.left.Matches(s) && e.right.Matches(s) }
func (e and) String() string     { return fmt.Sprintf("(%s && %s)", e.left, e.right) }

type or struct{ left, right Expression }

func (e or) Matches(s Set) bool { return e.left.Matches(s) || e.right.Matches(s) }
func (e or) String() string     { return fmt.Sprintf("(%s || %s)", e.left, e.right) }

// Parse parses a label expression. Whitespace between atoms without an
// operator is rejected so that "linux docker" is not silently read as one of
// its two possible meanings.
func Parse(s string) (Expression, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrEmptyExpression
	}

	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("invalid label expression '%s': %w", s, err)
	}
	if !p.done() {
		return nil, fmt.Errorf("invalid label expression '%s': unexpected '%s'", s, p.peek())
	}
	return expr, nil
}

func MustParse(s string) Expression {
	return lo.Must(Parse(s))
}

const (
	tokAnd    = "&&"
	tokOr     = "||"
	tokNot    = "!"
	tokLParen = "("
	tokRParen = ")"
)

func tokenize(s string) ([]string, error) {
	var tokens []string
	runes := []rune(s)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')' || r == '!':
			tokens = append(tokens, string(r))
			i++
		case r == '&' || r == '|':
			if i+1 >= len(runes) || runes[i+1] != r {
				return nil, fmt.Errorf("invalid operator '%c' at offset %d", r, i)
			}
			tokens = append(tokens, string([]rune{r, r}))
			i += 2
		default:
			start := i
			for i < len(runes) && !isDelimiter(runes[i]) {
				i++
			}
			tokens = append(tokens, string(runes[start:i]))
		}
	}

	return tokens, nil
}

func isDelimiter(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune("()!&|", r)
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }
func (p *parser) peek() string {
	if p.done() {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = or{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek() == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = and{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expression, error) {
	if p.done() {
		return nil, errors.New("unexpected end of expression")
	}

	switch t := p.next(); t {
	case tokNot:
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return not{operand}, nil
	case tokLParen:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next() != tokRParen {
			return nil, errors.New("missing ')'")
		}
		return expr, nil
	case tokAnd, tokOr, tokRParen:
		return nil, fmt.Errorf("unexpected '%s'", t)
	default:
		return atom(t), nil
	}
}
