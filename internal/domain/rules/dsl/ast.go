package dsl

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// OpKind tags a filter operator variant.
type OpKind int

const (
	OpEq OpKind = iota
	OpNeq
	OpGt
	OpLt
	OpGte
	OpLte
	OpBetween
	OpCon
	OpNoc
	OpSw
	OpEw
	OpRegex
	OpIn
	OpNin
	OpNull
	OpNnull
)

var opNames = map[OpKind]string{
	OpEq: "eq", OpNeq: "neq", OpGt: "gt", OpLt: "lt", OpGte: "gte",
	OpLte: "lte", OpBetween: "between", OpCon: "con", OpNoc: "noc",
	OpSw: "sw", OpEw: "ew", OpRegex: "regex", OpIn: "in", OpNin: "nin",
	OpNull: "null", OpNnull: "nnull",
}

func (k OpKind) String() string { return opNames[k] }

// hasCaseFlag reports whether the operator accepts the :i modifier.
func (k OpKind) hasCaseFlag() bool {
	switch k {
	case OpEq, OpNeq, OpCon, OpNoc, OpSw, OpEw, OpRegex, OpIn, OpNin:
		return true
	}
	return false
}

// FilterOp is one operator application. Args holds the string arguments
// (none for null/nnull, two for between, one or more for list operators).
type FilterOp struct {
	Kind          OpKind
	Args          []string
	CaseSensitive bool
}

// FilterExpression is a single condition: field + operator.
type FilterExpression struct {
	Field string
	Op    FilterOp
}

// AndBlock is a conjunction of filter expressions.
type AndBlock struct {
	Conditions []FilterExpression
}

// OrBlock is the rule's conditions in disjunctive normal form: an ordered
// sequence of AND blocks, any of which may satisfy the rule.
type OrBlock struct {
	Blocks []AndBlock
}

// ValueKind tags an assignment value.
type ValueKind int

const (
	ValueInt ValueKind = iota
	ValueString
	ValueDecimal
)

// Value is a scalar a rule assigns: integer, string or decimal.
type Value struct {
	Kind    ValueKind
	Int     int64
	Str     string
	Decimal decimal.Decimal
}

// IntValue builds an integer Value.
func IntValue(n int64) Value { return Value{Kind: ValueInt, Int: n} }

// StringValue builds a string Value.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// DecimalValue builds a decimal Value.
func DecimalValue(d decimal.Decimal) Value { return Value{Kind: ValueDecimal, Decimal: d} }

// Interface unwraps the scalar for writing into a transaction record.
func (v Value) Interface() any {
	switch v.Kind {
	case ValueInt:
		return v.Int
	case ValueString:
		return v.Str
	default:
		return v.Decimal
	}
}

// Literal renders the value the way the DSL spells it.
func (v Value) Literal() string {
	switch v.Kind {
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueString:
		return `"` + v.Str + `"`
	default:
		return v.Decimal.String()
	}
}

// Assignment is the field map a rule writes when it matches. Any
// identifier is a legal target; names keeps insertion order so the
// serializer is deterministic.
type Assignment struct {
	names  []string
	fields map[string]Value
}

// NewAssignment returns an empty assignment map.
func NewAssignment() *Assignment {
	return &Assignment{fields: make(map[string]Value)}
}

// Set writes a field, preserving first-seen order.
func (a *Assignment) Set(name string, value Value) {
	if _, ok := a.fields[name]; !ok {
		a.names = append(a.names, name)
	}
	a.fields[name] = value
}

// Get reads a field.
func (a *Assignment) Get(name string) (Value, bool) {
	v, ok := a.fields[name]
	return v, ok
}

// Names lists the assigned field names in insertion order.
func (a *Assignment) Names() []string { return a.names }

// Len reports the number of assigned fields.
func (a *Assignment) Len() int { return len(a.names) }

// CategorizationRule is a fully parsed rule.
type CategorizationRule struct {
	Name       string
	Conditions OrBlock
	Assignment *Assignment
	Priority   int
	IsActive   bool
}
