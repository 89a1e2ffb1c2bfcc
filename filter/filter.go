// Package filter parses partition filter conditions of the form
// `<column> <operator> <literal>`, e.g. `id > 200` or `region = 'us-east'`.
//
// The grammar is deliberately small: a single condition per line, no boolean
// composition, no list literals for `in`/`not in`. Matching is a fixed
// recursive-descent sequence of sub-matchers, each a pure function from
// remaining input to (matched token, remaining input), with ordered
// first-match-wins alternatives for operators and literals.
package filter

import "strings"

type (
	// Condition is the parsed triple. Value keeps the literal exactly as
	// written, including the surrounding quotes of a string literal.
	Condition struct {
		Column string
		Op     string
		Value  string
	}
)

// InvalidFilterError reports that an input line did not match the condition
// grammar. It carries the full original input and no finer diagnostics:
// callers reject the whole expression and show it to the user verbatim.
type InvalidFilterError struct {
	Input string
}

func (e *InvalidFilterError) Error() string {
	return "invalid partition filter: " + e.Input
}

// operators in match priority order. Two-character operators must be tried
// before their one-character prefix, otherwise `>=` lexes as `>` with a
// leftover `=`. `in` and `not in` match case-insensitively.
var operators = []string{"=", "!=", ">=", ">", "<=", "<", "in", "not in"}

// ParseCondition parses a single filter condition line. Column, operator and
// literal must appear in that order, separated by any amount of spaces
// (including none). Trailing input after the literal is not rejected.
func ParseCondition(input string) (Condition, error) {
	rest := skipSpaces(input)
	column, rest, ok := matchColumnName(rest)
	if !ok {
		return Condition{}, &InvalidFilterError{Input: input}
	}
	op, rest, ok := matchOperator(rest)
	if !ok {
		return Condition{}, &InvalidFilterError{Input: input}
	}
	value, _, ok := matchLiteral(skipSpaces(rest))
	if !ok {
		return Condition{}, &InvalidFilterError{Input: input}
	}
	return Condition{Column: column, Op: op, Value: value}, nil
}

// ParseConditions parses each input line into a condition, failing on the
// first invalid one.
func ParseConditions(inputs []string) ([]Condition, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	conds := make([]Condition, 0, len(inputs))
	for _, in := range inputs {
		c, err := ParseCondition(in)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// String renders the condition single-space separated. Parsing the result
// yields the same condition back.
func (c Condition) String() string {
	return c.Column + " " + c.Op + " " + c.Value
}

// matchColumnName matches `[A-Za-z_][A-Za-z0-9_]*`, longest prefix. There are
// no reserved words and no length limit.
func matchColumnName(s string) (string, string, bool) {
	if len(s) == 0 || !isIdentStart(s[0]) {
		return "", s, false
	}
	i := 1
	for i < len(s) && isIdentChar(s[i]) {
		i++
	}
	return s[:i], s[i:], true
}

// matchOperator skips spaces on both sides of the token so the returned
// operator carries no surrounding whitespace. The original casing of
// `in`/`not in` is preserved.
func matchOperator(s string) (string, string, bool) {
	s = skipSpaces(s)
	for _, op := range operators {
		if len(s) >= len(op) && strings.EqualFold(s[:len(op)], op) {
			return s[:len(op)], skipSpaces(s[len(op):]), true
		}
	}
	return "", s, false
}

// matchLiteral tries float, then integer, then quoted string. Float first so
// `1.42` is not lexed as the integer `1` with leftover `.42`. The distinction
// is purely lexical: `200` is an integer-shaped literal no matter what type
// the target column has.
func matchLiteral(s string) (string, string, bool) {
	if lit, rest, ok := matchFloat(s); ok {
		return lit, rest, true
	}
	if lit, rest, ok := matchInteger(s); ok {
		return lit, rest, true
	}
	if lit, rest, ok := matchQuotedString(s); ok {
		return lit, rest, true
	}
	return "", s, false
}

// matchFloat recognizes a standard floating point literal: optional sign,
// digits with an optional fraction or a bare `.digits` fraction, then an
// optional exponent. A plain digit run also matches here; the matched text is
// identical to what the integer branch would return, so the branch order
// never changes the result for integers.
func matchFloat(s string) (string, string, bool) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digitStart := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	switch {
	case i > digitStart:
		if i < len(s) && s[i] == '.' {
			i++
			for i < len(s) && isDigit(s[i]) {
				i++
			}
		}
	case i < len(s) && s[i] == '.':
		i++
		fracStart := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i == fracStart {
			return "", s, false
		}
	default:
		return "", s, false
	}
	// The exponent only counts when complete: `1e` matches as `1` with
	// leftover `e`.
	if j := i; j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		j++
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expStart := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j > expStart {
			i = j
		}
	}
	return s[:i], s[i:], true
}

// matchInteger matches one or more decimal digits, no sign, no separators.
func matchInteger(s string) (string, string, bool) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == 0 {
		return "", s, false
	}
	return s[:i], s[i:], true
}

// matchQuotedString matches a pair of single quotes around one or more
// characters from [A-Za-z0-9_.-]. No escape sequences and no embedded quotes.
// The returned token keeps its surrounding quotes.
func matchQuotedString(s string) (string, string, bool) {
	if len(s) < 3 || s[0] != '\'' {
		return "", s, false
	}
	i := 1
	for i < len(s) && isQuotedChar(s[i]) {
		i++
	}
	if i == 1 || i >= len(s) || s[i] != '\'' {
		return "", s, false
	}
	return s[:i+1], s[i+1:], true
}

func skipSpaces(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[i:]
}

func isIdentStart(c byte) bool {
	return c == '_' || isAlpha(c)
}

func isIdentChar(c byte) bool {
	return c == '_' || isAlpha(c) || isDigit(c)
}

func isAlpha(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isQuotedChar(c byte) bool {
	return isAlpha(c) || isDigit(c) || c == '_' || c == '-' || c == '.'
}
