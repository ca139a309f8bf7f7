package dispatch

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// evaluate computes an arithmetic expression (+ - * /, parentheses, decimal
// numbers) with exact decimal arithmetic. This backs the calculate tool so
// the decision process never does money math in its head.
func evaluate(expr string) (decimal.Decimal, error) {
	p := &exprParser{input: strings.TrimSpace(expr)}
	result, err := p.parseSum()
	if err != nil {
		return decimal.Zero, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return decimal.Zero, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return result, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
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

func (p *exprParser) parseSum() (decimal.Decimal, error) {
	left, err := p.parseProduct()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseProduct()
		if err != nil {
			return decimal.Zero, err
		}
		if op == '+' {
			left = left.Add(right)
		} else {
			left = left.Sub(right)
		}
	}
}

func (p *exprParser) parseProduct() (decimal.Decimal, error) {
	left, err := p.parseTerm()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return decimal.Zero, err
		}
		if op == '*' {
			left = left.Mul(right)
		} else {
			if right.IsZero() {
				return decimal.Zero, fmt.Errorf("division by zero")
			}
			left = left.Div(right)
		}
	}
}

func (p *exprParser) parseTerm() (decimal.Decimal, error) {
	c, ok := p.peek()
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected end of expression")
	}

	if c == '(' {
		p.pos++
		inner, err := p.parseSum()
		if err != nil {
			return decimal.Zero, err
		}
		c, ok = p.peek()
		if !ok || c != ')' {
			return decimal.Zero, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	}

	if c == '-' {
		p.pos++
		inner, err := p.parseTerm()
		if err != nil {
			return decimal.Zero, err
		}
		return inner.Neg(), nil
	}

	start := p.pos
	for p.pos < len(p.input) {
		r := rune(p.input[p.pos])
		if !unicode.IsDigit(r) && r != '.' {
			break
		}
		p.pos++
	}
	if start == p.pos {
		return decimal.Zero, fmt.Errorf("expected a number at position %d", start)
	}
	num, err := decimal.NewFromString(p.input[start:p.pos])
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return num, nil
}
