package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/sanitize"
)

const (
	maxExprBytes = 256
	maxExprDepth = 32
	maxExponent  = 64
	// maxMagnitude bounds every intermediate result.
	maxMagnitude = 1e15
)

var (
	ErrCalcSyntax   = errors.New("calc: syntax error")
	ErrCalcTooLarge = errors.New("calc: result too large")
	ErrCalcDivZero  = errors.New("calc: division by zero")
	ErrCalcTooDeep  = errors.New("calc: expression too complex")
)

func Calc(_ context.Context, req *dispatch.Request) []string {
	expr := strings.TrimSpace(req.Args)
	if expr == "" {
		return []string{failure("Usage: calc <expression>")}
	}
	v, err := Evaluate(expr)
	if err != nil {
		return []string{failure(err.Error())}
	}
	return []string{fmt.Sprintf("%s = %s", expr, sanitize.Bolden(FormatNumber(v)))}
}

// Evaluate parses and evaluates an arithmetic expression over numbers,
// parentheses, unary +/- and the binary operators + - * / % ^. The exponent
// and magnitude caps are checked before each operation is applied.
func Evaluate(expr string) (float64, error) {
	if len(expr) > maxExprBytes {
		return 0, fmt.Errorf("%w: expression longer than %d bytes", ErrCalcTooDeep, maxExprBytes)
	}
	p := &calcParser{src: expr}
	v, err := p.expr(0)
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("%w: unexpected %q", ErrCalcSyntax, p.src[p.pos])
	}
	return v, nil
}

// FormatNumber prints integers without a fraction and trims float noise.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < maxMagnitude {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', 12, 64)
}

type calcParser struct {
	src string
	pos int
}

func (p *calcParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *calcParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// expr := term (('+' | '-') term)*
func (p *calcParser) expr(depth int) (float64, error) {
	if depth > maxExprDepth {
		return 0, ErrCalcTooDeep
	}
	left, err := p.term(depth)
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.term(depth)
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left, err = bounded(left + right)
		} else {
			left, err = bounded(left - right)
		}
		if err != nil {
			return 0, err
		}
	}
}

// term := power (('*' | '/' | '%') power)*
func (p *calcParser) term(depth int) (float64, error) {
	left, err := p.power(depth)
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' && op != '%' {
			return left, nil
		}
		p.pos++
		right, err := p.power(depth)
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			if left != 0 && math.Abs(right) > maxMagnitude/math.Abs(left) {
				return 0, ErrCalcTooLarge
			}
			left *= right
		case '/':
			if right == 0 {
				return 0, ErrCalcDivZero
			}
			left, err = bounded(left / right)
		case '%':
			if right == 0 {
				return 0, ErrCalcDivZero
			}
			left = math.Mod(left, right)
		}
		if err != nil {
			return 0, err
		}
	}
}

// power := unary ('^' power)?, right associative
func (p *calcParser) power(depth int) (float64, error) {
	base, err := p.unary(depth)
	if err != nil {
		return 0, err
	}
	if p.peek() != '^' {
		return base, nil
	}
	p.pos++
	exp, err := p.power(depth + 1)
	if err != nil {
		return 0, err
	}
	if math.Abs(exp) > maxExponent {
		return 0, fmt.Errorf("%w: exponent above %d", ErrCalcTooLarge, maxExponent)
	}
	if math.Abs(base) > 1 && exp > 0 && exp*math.Log10(math.Abs(base)) > math.Log10(maxMagnitude) {
		return 0, ErrCalcTooLarge
	}
	if base == 0 && exp < 0 {
		return 0, ErrCalcDivZero
	}
	return bounded(math.Pow(base, exp))
}

// unary := ('-' | '+') unary | primary
func (p *calcParser) unary(depth int) (float64, error) {
	if depth > maxExprDepth {
		return 0, ErrCalcTooDeep
	}
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.unary(depth + 1)
		return -v, err
	case '+':
		p.pos++
		return p.unary(depth + 1)
	}
	return p.primary(depth)
}

// primary := number | '(' expr ')'
func (p *calcParser) primary(depth int) (float64, error) {
	c := p.peek()
	if c == '(' {
		p.pos++
		v, err := p.expr(depth + 1)
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("%w: missing )", ErrCalcSyntax)
		}
		p.pos++
		return v, nil
	}
	start := p.pos
	for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		if c == 0 {
			return 0, fmt.Errorf("%w: unexpected end", ErrCalcSyntax)
		}
		return 0, fmt.Errorf("%w: unexpected %q", ErrCalcSyntax, c)
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrCalcSyntax, p.src[start:p.pos])
	}
	return bounded(v)
}

func bounded(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxMagnitude {
		return 0, ErrCalcTooLarge
	}
	return v, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
