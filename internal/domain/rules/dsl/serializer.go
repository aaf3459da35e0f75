package dsl

import (
	"strconv"
	"strings"
)

// Serialize renders a rule back to canonical DSL text. Parsing the output
// yields an AST structurally equal to the input.
func Serialize(rule *CategorizationRule) string {
	var b strings.Builder

	b.WriteString(`rule "`)
	b.WriteString(rule.Name)
	b.WriteString(`" where `)

	for i, block := range rule.Conditions.Blocks {
		if i > 0 {
			b.WriteString(" or ")
		}
		for j, cond := range block.Conditions {
			if j > 0 {
				b.WriteString(" and ")
			}
			writeFilter(&b, cond)
		}
	}

	b.WriteString(" assign")
	for _, name := range rule.Assignment.Names() {
		value, _ := rule.Assignment.Get(name)
		b.WriteByte(' ')
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(value.Literal())
	}

	b.WriteString(" priority ")
	b.WriteString(strconv.Itoa(rule.Priority))
	b.WriteByte(';')
	return b.String()
}

// SerializeRules renders several rules, one per line.
func SerializeRules(rules []*CategorizationRule) string {
	lines := make([]string, len(rules))
	for i, rule := range rules {
		lines[i] = Serialize(rule)
	}
	return strings.Join(lines, "\n")
}

func writeFilter(b *strings.Builder, expr FilterExpression) {
	b.WriteString(expr.Field)
	b.WriteByte(':')
	b.WriteString(expr.Op.Kind.String())

	switch expr.Op.Kind {
	case OpNull, OpNnull:
	case OpBetween:
		b.WriteString(`:"` + expr.Op.Args[0] + `":"` + expr.Op.Args[1] + `"`)
	default:
		quoted := make([]string, len(expr.Op.Args))
		for i, arg := range expr.Op.Args {
			quoted[i] = `"` + arg + `"`
		}
		b.WriteByte(':')
		b.WriteString(strings.Join(quoted, ","))
	}

	if expr.Op.Kind.hasCaseFlag() && !expr.Op.CaseSensitive {
		b.WriteString(":i")
	}
}
