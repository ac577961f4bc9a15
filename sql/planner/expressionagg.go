package planner

import (
	"fmt"

	"github.com/quartzdb/quartz/sql/planner/types"
)

// AggregateCall is one aggregate function invocation within an aggregation
// operator: the function, its argument expression (nil for count(*)), and
// whether the argument values are deduplicated before accumulation.
// Argument-level distinct (e.g. max(distinct x)) is encoded here and never
// as a separate dedup stage; it is semantically different from row-level
// distinct.
type AggregateCall struct {
	AggType  types.AggregateFunctionType
	Arg      types.PlanExpression
	Distinct bool
}

// NewAggregateCall returns an aggregate call. arg is nil for count(*).
func NewAggregateCall(aggType types.AggregateFunctionType, arg types.PlanExpression, distinct bool) *AggregateCall {
	return &AggregateCall{
		AggType:  aggType,
		Arg:      arg,
		Distinct: distinct,
	}
}

func (c *AggregateCall) String() string {
	arg := "*"
	if c.Arg != nil {
		arg = c.Arg.String()
	}
	if c.Distinct {
		return fmt.Sprintf("%s(distinct %s)", c.AggType.String(), arg)
	}
	return fmt.Sprintf("%s(%s)", c.AggType.String(), arg)
}

// Type is the output type of the call's result column.
func (c *AggregateCall) Type() types.ExprDataType {
	switch c.AggType {
	case types.AGGREGATE_COUNT:
		return types.NewDataTypeBigInt()
	case types.AGGREGATE_AVG:
		return types.NewDataTypeFloat()
	default:
		if c.Arg != nil {
			return c.Arg.Type()
		}
		return types.NewDataTypeVoid()
	}
}

func (c *AggregateCall) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", c)
	result["aggType"] = c.AggType.String()
	if c.Arg != nil {
		result["arg"] = c.Arg.Plan()
	}
	result["distinct"] = c.Distinct
	return result
}

// withArg returns a copy of the call with the argument replaced.
func (c *AggregateCall) withArg(arg types.PlanExpression) *AggregateCall {
	return &AggregateCall{
		AggType:  c.AggType,
		Arg:      arg,
		Distinct: c.Distinct,
	}
}

// column derives the output column definition for the call's result.
func (c *AggregateCall) column() *types.PlannerColumn {
	return &types.PlannerColumn{
		ColumnName: c.String(),
		Type:       c.Type(),
	}
}
