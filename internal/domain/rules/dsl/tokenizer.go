package dsl

import (
	"fmt"
	"strings"
	"unicode"
)

// Tokenize turns rule source text into a token stream ending in TokenEOF.
// Keywords are case-insensitive; identifiers keep their case. Whitespace
// and "#" comments are skipped.
func Tokenize(text string) ([]Token, error) {
	var tokens []Token
	pos := 0

	for pos < len(text) {
		ch := text[pos]

		if unicode.IsSpace(rune(ch)) {
			pos++
			continue
		}

		// Comment to end of line.
		if ch == '#' {
			for pos < len(text) && text[pos] != '\n' {
				pos++
			}
			continue
		}

		switch ch {
		case ':':
			tokens = append(tokens, Token{Kind: TokenColon, Value: ":", Pos: pos})
			pos++
			continue
		case ';':
			tokens = append(tokens, Token{Kind: TokenSemicolon, Value: ";", Pos: pos})
			pos++
			continue
		case ',':
			tokens = append(tokens, Token{Kind: TokenComma, Value: ",", Pos: pos})
			pos++
			continue
		case '(':
			tokens = append(tokens, Token{Kind: TokenLParen, Value: "(", Pos: pos})
			pos++
			continue
		case ')':
			tokens = append(tokens, Token{Kind: TokenRParen, Value: ")", Pos: pos})
			pos++
			continue
		}

		// Quoted string, no escapes; the token value is the inner text.
		if ch == '"' {
			end := strings.IndexByte(text[pos+1:], '"')
			if end < 0 {
				return nil, &ParseError{Pos: pos, Expected: "closing quote", Got: "end of input"}
			}
			tokens = append(tokens, Token{Kind: TokenString, Value: text[pos+1 : pos+1+end], Pos: pos})
			pos += end + 2
			continue
		}

		if isDigit(ch) {
			start := pos
			for pos < len(text) && isDigit(text[pos]) {
				pos++
			}
			if pos < len(text) && text[pos] == '.' && pos+1 < len(text) && isDigit(text[pos+1]) {
				pos++
				for pos < len(text) && isDigit(text[pos]) {
					pos++
				}
			}
			tokens = append(tokens, Token{Kind: TokenNumber, Value: text[start:pos], Pos: start})
			continue
		}

		if isIdentStart(ch) {
			start := pos
			for pos < len(text) && isIdentPart(text[pos]) {
				pos++
			}
			word := text[start:pos]
			kind := TokenIdent
			if kw, ok := keywords[strings.ToLower(word)]; ok {
				kind = kw
			}
			tokens = append(tokens, Token{Kind: kind, Value: word, Pos: start})
			continue
		}

		return nil, &ParseError{Pos: pos, Expected: "token", Got: fmt.Sprintf("%q", string(ch))}
	}

	tokens = append(tokens, Token{Kind: TokenEOF, Pos: pos})
	return tokens, nil
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool { return isIdentStart(ch) || isDigit(ch) }
