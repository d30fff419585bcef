// Package condition evaluates edge and field-visibility conditions against a
// request's form data.
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
)

// ConfigError marks a malformed condition. It is fatal for the workflow
// definition carrying it and must be surfaced to the administrator, never
// silently skipped.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string {
	return "condition configuration error: " + e.Detail
}

// Evaluate walks a condition tree against the given data context. A nil
// condition always evaluates true. Missing context fields are data, not
// failure: isEmpty is true for them and every other operator is false.
func Evaluate(cond *models.Condition, ctx map[string]any) (bool, error) {
	if cond == nil {
		return true, nil
	}
	if cond.IsComposite() {
		return evaluateComposite(cond, ctx)
	}
	return evaluateLeaf(cond, ctx)
}

func evaluateComposite(cond *models.Condition, ctx map[string]any) (bool, error) {
	logic := cond.Logic
	if logic == "" {
		logic = models.LogicAnd
	}
	switch logic {
	case models.LogicAnd:
		for i := range cond.Children {
			ok, err := Evaluate(&cond.Children[i], ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case models.LogicOr:
		for i := range cond.Children {
			ok, err := Evaluate(&cond.Children[i], ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, &ConfigError{Detail: fmt.Sprintf("unknown logic operator %q", logic)}
	}
}

func evaluateLeaf(cond *models.Condition, ctx map[string]any) (bool, error) {
	val, present := ctx[cond.Field]
	if present && val == nil {
		present = false
	}

	switch cond.Op {
	case models.OpIsEmpty:
		return !present || stringify(val) == "", nil
	case models.OpIsNotEmpty:
		return present && stringify(val) != "", nil
	case models.OpEq, models.OpNeq, models.OpGt, models.OpLt, models.OpGte, models.OpLte,
		models.OpContains, models.OpStartsWith, models.OpEndsWith:
		if !present {
			return false, nil
		}
	default:
		return false, &ConfigError{Detail: fmt.Sprintf("unknown operator %q on field %q", cond.Op, cond.Field)}
	}

	switch cond.Op {
	case models.OpEq:
		return compareEqual(val, cond.Value), nil
	case models.OpNeq:
		return !compareEqual(val, cond.Value), nil
	case models.OpGt, models.OpLt, models.OpGte, models.OpLte:
		a, aok := toFloat(val)
		b, bok := toFloat(cond.Value)
		if !aok || !bok {
			return false, nil
		}
		switch cond.Op {
		case models.OpGt:
			return a > b, nil
		case models.OpLt:
			return a < b, nil
		case models.OpGte:
			return a >= b, nil
		default:
			return a <= b, nil
		}
	case models.OpContains:
		return strings.Contains(stringify(val), stringify(cond.Value)), nil
	case models.OpStartsWith:
		return strings.HasPrefix(stringify(val), stringify(cond.Value)), nil
	default: // OpEndsWith
		return strings.HasSuffix(stringify(val), stringify(cond.Value)), nil
	}
}

// compareEqual prefers numeric comparison when both operands coerce to
// float64, so "100" and 100.0 submitted through different form widgets agree.
func compareEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return stringify(a) == stringify(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}
