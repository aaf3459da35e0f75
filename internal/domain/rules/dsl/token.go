// Package dsl implements the transaction categorization rule language:
// tokenizer, parser, canonical serializer, evaluator and the
// priority-ordered categorizer.
//
// A rule reads:
//
//	rule "Family Transfer" where entity_name:con:"KANTI":i and type:eq:"debit"
//	    assign category_id:1 tag_id:2 priority 10;
package dsl

import "fmt"

// TokenKind identifies a lexical token.
type TokenKind int

const (
	// Keywords
	TokenRule TokenKind = iota
	TokenWhere
	TokenAnd
	TokenOr
	TokenAssign
	TokenPriority

	// Filter operators
	TokenEq
	TokenNeq
	TokenGt
	TokenLt
	TokenGte
	TokenLte
	TokenBetween
	TokenCon
	TokenNoc
	TokenSw
	TokenEw
	TokenRegex
	TokenIn
	TokenNin
	TokenNull
	TokenNnull

	// Literals and identifiers
	TokenString
	TokenNumber
	TokenIdent

	// Symbols
	TokenColon
	TokenSemicolon
	TokenComma
	TokenLParen
	TokenRParen

	TokenEOF
)

var tokenNames = map[TokenKind]string{
	TokenRule: "rule", TokenWhere: "where", TokenAnd: "and", TokenOr: "or",
	TokenAssign: "assign", TokenPriority: "priority",
	TokenEq: "eq", TokenNeq: "neq", TokenGt: "gt", TokenLt: "lt",
	TokenGte: "gte", TokenLte: "lte", TokenBetween: "between",
	TokenCon: "con", TokenNoc: "noc", TokenSw: "sw", TokenEw: "ew",
	TokenRegex: "regex", TokenIn: "in", TokenNin: "nin",
	TokenNull: "null", TokenNnull: "nnull",
	TokenString: "STRING", TokenNumber: "NUMBER", TokenIdent: "IDENTIFIER",
	TokenColon: ":", TokenSemicolon: ";", TokenComma: ",",
	TokenLParen: "(", TokenRParen: ")",
	TokenEOF: "EOF",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is one lexical token with its byte position in the source.
type Token struct {
	Kind  TokenKind
	Value string
	Pos   int
}

// keywords maps a complete lowercased word to its token kind. Matching
// whole words keeps longer keywords from being shadowed by their prefixes
// (gte by gt, nnull by null, nin by in).
var keywords = map[string]TokenKind{
	"rule": TokenRule, "where": TokenWhere, "and": TokenAnd, "or": TokenOr,
	"assign": TokenAssign, "priority": TokenPriority,
	"eq": TokenEq, "neq": TokenNeq, "gte": TokenGte, "lte": TokenLte,
	"gt": TokenGt, "lt": TokenLt, "between": TokenBetween,
	"noc": TokenNoc, "con": TokenCon, "sw": TokenSw, "ew": TokenEw,
	"regex": TokenRegex, "nin": TokenNin, "in": TokenIn,
	"nnull": TokenNnull, "null": TokenNull,
}

// ParseError reports a tokenizer or parser failure with the byte position,
// what was expected and what was found.
type ParseError struct {
	Pos      int
	Expected string
	Got      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("expected %s, got %s at position %d", e.Expected, e.Got, e.Pos)
}
