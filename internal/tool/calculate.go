package tool

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// NewCalculateTool returns the calculate tool: an arithmetic expression
// evaluator with precedence, parentheses, unary minus, and % / ^ operators.
func NewCalculateTool(timeout time.Duration) *Tool {
	return &Tool{
		Name:        "calculate",
		Description: "Calculate the result of a mathematical expression",
		InputSchema: `{"type":"object","properties":{"expression":{"type":"string","description":"A mathematical expression, e.g. 15 * (23 + 7)"}},"required":["expression"]}`,
		Validate:    requireString("expression"),
		Cacheable:   false,
		Timeout:     timeout,
		Execute: func(ctx context.Context, input map[string]any) (any, error) {
			expr, err := stringArg(input, "expression")
			if err != nil {
				return nil, err
			}
			result, err := Evaluate(expr)
			if err != nil {
				return nil, fmt.Errorf("calculating %q: %w", expr, err)
			}
			return fmt.Sprintf("Result of %q = %s", expr, formatNumber(result)), nil
		},
	}
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Evaluate parses and evaluates an arithmetic expression.
//
// Grammar (recursive descent, ^ right-associative):
//
//	expr   := term (('+'|'-') term)*
//	term   := unary (('*'|'/'|'%') unary)*
//	unary  := '-' unary | power
//	power  := atom ('^' unary)?
//	atom   := number | '(' expr ')'
func Evaluate(expr string) (float64, error) {
	p := &exprParser{input: expr}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return v, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *exprParser) peek() (byte, bool) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/' && op != '%') {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if c, ok := p.peek(); ok && c == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	if c, ok := p.peek(); ok && c == '^' {
		p.pos++
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parseAtom() (float64, error) {
	c, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	if c == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if c, ok := p.peek(); !ok || c != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return 0, fmt.Errorf("unexpected %q at position %d", c, p.pos)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return v, nil
}
