package dsl

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Parse parses a single rule and requires the input to end after it.
func Parse(text string) (*CategorizationRule, error) {
	p, err := newParser(text)
	if err != nil {
		return nil, err
	}
	rule, err := p.parseRule()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenEOF); err != nil {
		return nil, err
	}
	return rule, nil
}

// ParseRules parses any number of rules from one source text.
func ParseRules(text string) ([]*CategorizationRule, error) {
	p, err := newParser(text)
	if err != nil {
		return nil, err
	}
	var rules []*CategorizationRule
	for !p.peek(TokenEOF) {
		rule, err := p.parseRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func newParser(text string) (*parser, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	return &parser{tokens: tokens}, nil
}

// parseRule handles: rule STRING where <conditions> assign <assignments> [priority NUMBER] ';'
func (p *parser) parseRule() (*CategorizationRule, error) {
	if _, err := p.expect(TokenRule); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenString)
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(TokenWhere); err != nil {
		return nil, err
	}
	conditions, err := p.parseConditions()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(TokenAssign); err != nil {
		return nil, err
	}
	assignment, err := p.parseAssignments()
	if err != nil {
		return nil, err
	}

	priority := 100
	if p.peek(TokenPriority) {
		p.advance()
		num, err := p.expect(TokenNumber)
		if err != nil {
			return nil, err
		}
		n, convErr := strconv.Atoi(num.Value)
		if convErr != nil {
			return nil, &ParseError{Pos: num.Pos, Expected: "integer priority", Got: num.Value}
		}
		priority = n
	}

	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}

	return &CategorizationRule{
		Name:       name.Value,
		Conditions: conditions,
		Assignment: assignment,
		Priority:   priority,
		IsActive:   true,
	}, nil
}

func (p *parser) parseConditions() (OrBlock, error) {
	var or OrBlock
	block, err := p.parseAndBlock()
	if err != nil {
		return or, err
	}
	or.Blocks = append(or.Blocks, block)

	for p.peek(TokenOr) {
		p.advance()
		block, err := p.parseAndBlock()
		if err != nil {
			return or, err
		}
		or.Blocks = append(or.Blocks, block)
	}
	return or, nil
}

func (p *parser) parseAndBlock() (AndBlock, error) {
	var and AndBlock
	expr, err := p.parseFilterExpr()
	if err != nil {
		return and, err
	}
	and.Conditions = append(and.Conditions, expr)

	for p.peek(TokenAnd) {
		p.advance()
		expr, err := p.parseFilterExpr()
		if err != nil {
			return and, err
		}
		and.Conditions = append(and.Conditions, expr)
	}
	return and, nil
}

// parseFilterExpr handles: field ':' operator [':' args] [':' 'i']
func (p *parser) parseFilterExpr() (FilterExpression, error) {
	var expr FilterExpression
	field, err := p.expect(TokenIdent)
	if err != nil {
		return expr, err
	}
	if _, err := p.expect(TokenColon); err != nil {
		return expr, err
	}
	op, err := p.parseOperator()
	if err != nil {
		return expr, err
	}
	expr.Field = field.Value
	expr.Op = op
	return expr, nil
}

var operatorKinds = map[TokenKind]OpKind{
	TokenEq: OpEq, TokenNeq: OpNeq, TokenGt: OpGt, TokenLt: OpLt,
	TokenGte: OpGte, TokenLte: OpLte, TokenBetween: OpBetween,
	TokenCon: OpCon, TokenNoc: OpNoc, TokenSw: OpSw, TokenEw: OpEw,
	TokenRegex: OpRegex, TokenIn: OpIn, TokenNin: OpNin,
	TokenNull: OpNull, TokenNnull: OpNnull,
}

func (p *parser) parseOperator() (FilterOp, error) {
	current := p.current()
	kind, ok := operatorKinds[current.Kind]
	if !ok {
		return FilterOp{}, &ParseError{Pos: current.Pos, Expected: "operator", Got: current.Kind.String()}
	}
	p.advance()

	op := FilterOp{Kind: kind, CaseSensitive: true}

	switch kind {
	case OpNull, OpNnull:
		return op, nil

	case OpBetween:
		// Exactly two colon-separated bounds.
		if _, err := p.expect(TokenColon); err != nil {
			return op, err
		}
		low, err := p.expect(TokenString)
		if err != nil {
			return op, err
		}
		if _, err := p.expect(TokenColon); err != nil {
			return op, err
		}
		high, err := p.expect(TokenString)
		if err != nil {
			return op, err
		}
		op.Args = []string{low.Value, high.Value}
		return op, nil

	case OpCon, OpNoc, OpIn, OpNin:
		if _, err := p.expect(TokenColon); err != nil {
			return op, err
		}
		args, err := p.parseStringList()
		if err != nil {
			return op, err
		}
		op.Args = args
		op.CaseSensitive = p.parseCaseFlag()
		return op, nil

	default:
		if _, err := p.expect(TokenColon); err != nil {
			return op, err
		}
		arg, err := p.expect(TokenString)
		if err != nil {
			return op, err
		}
		op.Args = []string{arg.Value}
		if kind.hasCaseFlag() {
			op.CaseSensitive = p.parseCaseFlag()
		}
		return op, nil
	}
}

// parseCaseFlag consumes an optional ':i' suffix; returns false when present.
func (p *parser) parseCaseFlag() bool {
	if !p.peek(TokenColon) {
		return true
	}
	next := p.tokens[p.pos+1]
	if next.Kind == TokenIdent && strings.EqualFold(next.Value, "i") {
		p.advance()
		p.advance()
		return false
	}
	return true
}

func (p *parser) parseStringList() ([]string, error) {
	first, err := p.expect(TokenString)
	if err != nil {
		return nil, err
	}
	values := []string{first.Value}
	for p.peek(TokenComma) {
		p.advance()
		s, err := p.expect(TokenString)
		if err != nil {
			return nil, err
		}
		values = append(values, s.Value)
	}
	return values, nil
}

// parseAssignments handles one or more 'IDENT ':' (NUMBER|STRING)' pairs.
// Any identifier is a legal target; unknown names flow through to the
// transaction's extras untouched.
func (p *parser) parseAssignments() (*Assignment, error) {
	assignment := NewAssignment()

	for p.peek(TokenIdent) {
		field := p.advance()
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}

		current := p.current()
		switch current.Kind {
		case TokenNumber:
			p.advance()
			value, err := numberValue(current)
			if err != nil {
				return nil, err
			}
			assignment.Set(field.Value, value)
		case TokenString:
			p.advance()
			assignment.Set(field.Value, StringValue(current.Value))
		default:
			return nil, &ParseError{Pos: current.Pos, Expected: "number or string", Got: current.Kind.String()}
		}
	}

	if assignment.Len() == 0 {
		current := p.current()
		return nil, &ParseError{Pos: current.Pos, Expected: "assignment", Got: current.Kind.String()}
	}
	return assignment, nil
}

// numberValue keeps integers as Int and fractions as Decimal.
func numberValue(tok Token) (Value, error) {
	if !strings.Contains(tok.Value, ".") {
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return Value{}, &ParseError{Pos: tok.Pos, Expected: "integer", Got: tok.Value}
		}
		return IntValue(n), nil
	}
	d, err := decimal.NewFromString(tok.Value)
	if err != nil {
		return Value{}, &ParseError{Pos: tok.Pos, Expected: "decimal", Got: tok.Value}
	}
	return DecimalValue(d), nil
}

func (p *parser) current() Token { return p.tokens[p.pos] }

func (p *parser) peek(kind TokenKind) bool { return p.current().Kind == kind }

func (p *parser) advance() Token {
	tok := p.current()
	if tok.Kind != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	if !p.peek(kind) {
		current := p.current()
		return Token{}, &ParseError{Pos: current.Pos, Expected: kind.String(), Got: current.Kind.String()}
	}
	return p.advance(), nil
}
