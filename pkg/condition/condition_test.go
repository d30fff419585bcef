package condition_test

import (
	"testing"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/condition"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
)

func leaf(field string, op models.Operator, value any) *models.Condition {
	return &models.Condition{Field: field, Op: op, Value: value}
}

func TestEvaluate_NilConditionAlwaysTrue(t *testing.T) {
	ok, err := condition.Evaluate(nil, map[string]any{})
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_NumericComparisons(t *testing.T) {
	ctx := map[string]any{"amount": 1500.0}

	cases := []struct {
		op       models.Operator
		value    any
		expected bool
	}{
		{models.OpGt, 1000, true},
		{models.OpGt, 1500, false},
		{models.OpGte, 1500, true},
		{models.OpLt, 2000, true},
		{models.OpLte, 1499, false},
		{models.OpEq, 1500, true},
		{models.OpEq, "1500", true}, // string form input coerces
		{models.OpNeq, 1000, true},
	}
	for _, tc := range cases {
		ok, err := condition.Evaluate(leaf("amount", tc.op, tc.value), ctx)
		assert.NoError(t, err)
		assert.Equal(t, tc.expected, ok, "op %s value %v", tc.op, tc.value)
	}
}

func TestEvaluate_StringOperators(t *testing.T) {
	ctx := map[string]any{"category": "hardware-replacement"}

	ok, err := condition.Evaluate(leaf("category", models.OpContains, "ware"), ctx)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = condition.Evaluate(leaf("category", models.OpStartsWith, "hardware"), ctx)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = condition.Evaluate(leaf("category", models.OpEndsWith, "replacement"), ctx)
	assert.NoError(t, err)
	assert.True(t, ok)

	// case-sensitive
	ok, err = condition.Evaluate(leaf("category", models.OpStartsWith, "Hardware"), ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_MissingFieldIsDataNotFailure(t *testing.T) {
	ctx := map[string]any{}

	ok, err := condition.Evaluate(leaf("amount", models.OpIsEmpty, nil), ctx)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = condition.Evaluate(leaf("amount", models.OpIsNotEmpty, nil), ctx)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = condition.Evaluate(leaf("amount", models.OpGt, 1000), ctx)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = condition.Evaluate(leaf("amount", models.OpEq, 1000), ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_NilValueCountsAsAbsent(t *testing.T) {
	ctx := map[string]any{"comment": nil}
	ok, err := condition.Evaluate(leaf("comment", models.OpIsEmpty, nil), ctx)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_Composition(t *testing.T) {
	ctx := map[string]any{"amount": 5000.0, "category": "travel"}

	andCond := &models.Condition{
		Logic: models.LogicAnd,
		Children: []models.Condition{
			{Field: "amount", Op: models.OpGt, Value: 1000},
			{Field: "category", Op: models.OpEq, Value: "travel"},
		},
	}
	ok, err := condition.Evaluate(andCond, ctx)
	assert.NoError(t, err)
	assert.True(t, ok)

	orCond := &models.Condition{
		Logic: models.LogicOr,
		Children: []models.Condition{
			{Field: "amount", Op: models.OpLt, Value: 10},
			{Field: "category", Op: models.OpEq, Value: "travel"},
		},
	}
	ok, err = condition.Evaluate(orCond, ctx)
	assert.NoError(t, err)
	assert.True(t, ok)

	nested := &models.Condition{
		Logic: models.LogicAnd,
		Children: []models.Condition{
			{Field: "amount", Op: models.OpGt, Value: 1000},
			{Logic: models.LogicOr, Children: []models.Condition{
				{Field: "category", Op: models.OpEq, Value: "hardware"},
				{Field: "category", Op: models.OpEq, Value: "travel"},
			}},
		},
	}
	ok, err = condition.Evaluate(nested, ctx)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_UnknownOperatorIsConfigError(t *testing.T) {
	_, err := condition.Evaluate(leaf("amount", "regex", ".*"), map[string]any{"amount": 1})
	assert.Error(t, err)
	var cfgErr *condition.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), `unknown operator "regex"`)
}
