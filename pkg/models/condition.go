package models

type Operator string

const (
	OpEq         Operator = "eq"
	OpNeq        Operator = "neq"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpGte        Operator = "gte"
	OpLte        Operator = "lte"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpIsEmpty    Operator = "isEmpty"
	OpIsNotEmpty Operator = "isNotEmpty"
)

type LogicOp string

const (
	LogicAnd LogicOp = "AND"
	LogicOr  LogicOp = "OR"
)

// Condition is either a leaf comparison (Field/Op/Value) or a composite
// (Logic over Children). A condition with Children set ignores its leaf fields.
type Condition struct {
	Field string   `json:"field,omitempty"`
	Op    Operator `json:"op,omitempty"`
	Value any      `json:"value,omitempty"`

	Logic    LogicOp     `json:"logic,omitempty"`
	Children []Condition `json:"children,omitempty"`
}

// IsComposite reports whether the condition is a boolean composition rather
// than a leaf comparison.
func (c *Condition) IsComposite() bool {
	return len(c.Children) > 0
}
