package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleRule(t *testing.T) {
	rule, err := Parse(`rule "Family Transfer" where entity_name:con:"KANTI" assign category_id:1 priority 10;`)
	require.NoError(t, err)

	assert.Equal(t, "Family Transfer", rule.Name)
	assert.Equal(t, 10, rule.Priority)
	assert.True(t, rule.IsActive)

	require.Len(t, rule.Conditions.Blocks, 1)
	require.Len(t, rule.Conditions.Blocks[0].Conditions, 1)

	cond := rule.Conditions.Blocks[0].Conditions[0]
	assert.Equal(t, "entity_name", cond.Field)
	assert.Equal(t, OpCon, cond.Op.Kind)
	assert.Equal(t, []string{"KANTI"}, cond.Op.Args)
	assert.True(t, cond.Op.CaseSensitive)

	value, ok := rule.Assignment.Get("category_id")
	require.True(t, ok)
	assert.Equal(t, int64(1), value.Int)
}

func TestParseCaseFlag(t *testing.T) {
	rule, err := Parse(`rule "x" where description:sw:"UPI/":i assign payment_method_id:1;`)
	require.NoError(t, err)

	cond := rule.Conditions.Blocks[0].Conditions[0]
	assert.Equal(t, OpSw, cond.Op.Kind)
	assert.False(t, cond.Op.CaseSensitive)
}

func TestParseDNFShape(t *testing.T) {
	rule, err := Parse(`rule "x" where a:eq:"1" and b:eq:"2" or c:null assign tag_id:3;`)
	require.NoError(t, err)

	require.Len(t, rule.Conditions.Blocks, 2)
	assert.Len(t, rule.Conditions.Blocks[0].Conditions, 2)
	assert.Len(t, rule.Conditions.Blocks[1].Conditions, 1)
	assert.Equal(t, OpNull, rule.Conditions.Blocks[1].Conditions[0].Op.Kind)
}

func TestParseBetweenTakesTwoBounds(t *testing.T) {
	rule, err := Parse(`rule "x" where amount:between:"100":"500" assign tag_id:1;`)
	require.NoError(t, err)

	cond := rule.Conditions.Blocks[0].Conditions[0]
	assert.Equal(t, OpBetween, cond.Op.Kind)
	assert.Equal(t, []string{"100", "500"}, cond.Op.Args)

	_, err = Parse(`rule "x" where amount:between:"100" assign tag_id:1;`)
	require.Error(t, err)
}

func TestParseListOperators(t *testing.T) {
	rule, err := Parse(`rule "x" where type:in:"debit","credit":i assign tag_id:1;`)
	require.NoError(t, err)

	cond := rule.Conditions.Blocks[0].Conditions[0]
	assert.Equal(t, OpIn, cond.Op.Kind)
	assert.Equal(t, []string{"debit", "credit"}, cond.Op.Args)
	assert.False(t, cond.Op.CaseSensitive)
}

func TestParseDynamicAssignmentFields(t *testing.T) {
	// Unknown assignment targets are legal and keep both number and
	// string scalars.
	rule, err := Parse(`rule "x" where amount:gt:"10000" assign risk_level:2 alert_type:"HIGH" priority 50;`)
	require.NoError(t, err)

	assert.Equal(t, []string{"risk_level", "alert_type"}, rule.Assignment.Names())

	risk, ok := rule.Assignment.Get("risk_level")
	require.True(t, ok)
	assert.Equal(t, ValueInt, risk.Kind)
	assert.Equal(t, int64(2), risk.Int)

	alert, ok := rule.Assignment.Get("alert_type")
	require.True(t, ok)
	assert.Equal(t, ValueString, alert.Kind)
	assert.Equal(t, "HIGH", alert.Str)
}

func TestParseDecimalAssignment(t *testing.T) {
	rule, err := Parse(`rule "x" where a:nnull assign weight:0.75;`)
	require.NoError(t, err)

	weight, ok := rule.Assignment.Get("weight")
	require.True(t, ok)
	assert.Equal(t, ValueDecimal, weight.Kind)
	assert.Equal(t, "0.75", weight.Decimal.String())
}

func TestParsePriorityDefaults(t *testing.T) {
	rule, err := Parse(`rule "x" where a:null assign tag_id:1;`)
	require.NoError(t, err)
	assert.Equal(t, 100, rule.Priority)
}

func TestParseRulesMultiple(t *testing.T) {
	rules, err := ParseRules(`
		rule "first" where a:null assign tag_id:1 priority 10;
		rule "second" where b:nnull assign tag_id:2;
	`)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "first", rules[0].Name)
	assert.Equal(t, "second", rules[1].Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing where", `rule "x" a:null assign tag_id:1;`},
		{"missing semicolon", `rule "x" where a:null assign tag_id:1`},
		{"no assignments", `rule "x" where a:null assign priority 10;`},
		{"bad operator", `rule "x" where a:xyz:"v" assign tag_id:1;`},
		{"assignment needs scalar", `rule "x" where a:null assign tag_id:;`},
		{"trailing garbage", `rule "x" where a:null assign tag_id:1; extra`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.input)
			require.Error(t, err)

			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}
