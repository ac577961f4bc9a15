package types

import (
	"fmt"
)

// AggregateFunctionType identifies an aggregate function in an aggregate call.
type AggregateFunctionType int

// The list of aggregate functions.
const (
	// Special tokens
	AGGREGATE_ILLEGAL AggregateFunctionType = iota
	AGGREGATE_COUNT
	AGGREGATE_SUM
	AGGREGATE_AVG
	AGGREGATE_MIN
	AGGREGATE_MAX
)

func (a AggregateFunctionType) String() string {
	switch a {
	case AGGREGATE_COUNT:
		return "count"
	case AGGREGATE_SUM:
		return "sum"
	case AGGREGATE_AVG:
		return "avg"
	case AGGREGATE_MIN:
		return "min"
	case AGGREGATE_MAX:
		return "max"
	default:
		return "illegal"
	}
}

// PlanExpression is an expression node in an execution plan
type PlanExpression interface {
	fmt.Stringer

	// returns the type of the expression
	Type() ExprDataType

	// returns the child expressions for this expression
	Children() []PlanExpression

	// creates a new expression node with the children replaced
	WithChildren(children ...PlanExpression) (PlanExpression, error)

	// returns a map containing a rich description of this expression; intended
	// to be marshalled into json
	Plan() map[string]interface{}
}

// interface to something that can be identified by a name
type IdentifiableByName interface {
	Name() string
}
