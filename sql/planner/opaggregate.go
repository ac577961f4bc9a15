package planner

import (
	"fmt"

	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
)

// FusedAggregate is the aggregate descriptor attached to a scan or calc
// operator once aggregation has been inlined into it. The output of the
// carrying operator becomes the group key columns followed by one column per
// call; having is evaluated after accumulation against those output
// positions.
type FusedAggregate struct {
	Strategy  types.AggregateStrategy
	GroupKeys []int
	Calls     []*AggregateCall
	Having    types.PlanExpression
}

// Schema derives the aggregate output over the carrying operator's
// pre-aggregation schema.
func (a *FusedAggregate) Schema(input types.Schema) types.Schema {
	result := make(types.Schema, 0, len(a.GroupKeys)+len(a.Calls))
	for _, key := range a.GroupKeys {
		if key >= 0 && key < len(input) {
			result = append(result, input[key])
		} else {
			result = append(result, &types.PlannerColumn{Type: types.NewDataTypeVoid()})
		}
	}
	for _, call := range a.Calls {
		result = append(result, call.column())
	}
	return result
}

func (a *FusedAggregate) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["strategy"] = a.Strategy.String()
	result["groupKeys"] = a.GroupKeys
	calls := make([]interface{}, 0, len(a.Calls))
	for _, c := range a.Calls {
		calls = append(calls, c.Plan())
	}
	result["calls"] = calls
	if a.Having != nil {
		result["having"] = a.Having.Plan()
	}
	return result
}

// PlanOpAggregate handles GROUP BY aggregation and, after the distinct
// rewrite, row-level DISTINCT. It remains a standalone operator only when
// the optimizer cannot legally fuse it into the producing scan or calc.
type PlanOpAggregate struct {
	ChildOp   types.PlanOperator
	Strategy  types.AggregateStrategy
	GroupKeys []int
	Calls     []*AggregateCall
	Having    types.PlanExpression

	split       int
	coordinator bool
	warnings    []string
}

func NewPlanOpAggregate(strategy types.AggregateStrategy, groupKeys []int, calls []*AggregateCall, having types.PlanExpression, child types.PlanOperator, split int) *PlanOpAggregate {
	return &PlanOpAggregate{
		ChildOp:   child,
		Strategy:  strategy,
		GroupKeys: groupKeys,
		Calls:     calls,
		Having:    having,
		split:     split,
		warnings:  make([]string, 0),
	}
}

// Schema is the group key columns followed by the aggregate call columns.
func (p *PlanOpAggregate) Schema() types.Schema {
	agg := &FusedAggregate{
		Strategy:  p.Strategy,
		GroupKeys: p.GroupKeys,
		Calls:     p.Calls,
		Having:    p.Having,
	}
	return agg.Schema(p.ChildOp.Schema())
}

func (p *PlanOpAggregate) Children() []types.PlanOperator {
	return []types.PlanOperator{
		p.ChildOp,
	}
}

func (p *PlanOpAggregate) WithChildren(children ...types.PlanOperator) (types.PlanOperator, error) {
	if len(children) != 1 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	newOp := NewPlanOpAggregate(p.Strategy, p.GroupKeys, p.Calls, p.Having, children[0], p.split)
	newOp.coordinator = p.coordinator
	newOp.warnings = append(newOp.warnings, p.warnings...)
	return newOp, nil
}

func (p *PlanOpAggregate) Split() int {
	return p.split
}

func (p *PlanOpAggregate) Coordinator() bool {
	return p.coordinator
}

func (p *PlanOpAggregate) SetCoordinator(coordinator bool) {
	p.coordinator = coordinator
}

func (p *PlanOpAggregate) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", p)
	result["_schema"] = p.Schema().Plan()
	result["split"] = p.split
	result["coordinator"] = p.coordinator
	result["strategy"] = p.Strategy.String()
	result["groupKeys"] = p.GroupKeys
	calls := make([]interface{}, 0, len(p.Calls))
	for _, c := range p.Calls {
		calls = append(calls, c.Plan())
	}
	result["calls"] = calls
	if p.Having != nil {
		result["having"] = p.Having.Plan()
	}
	result["child"] = p.ChildOp.Plan()
	return result
}

func (p *PlanOpAggregate) String() string {
	return ""
}

func (p *PlanOpAggregate) AddWarning(warning string) {
	p.warnings = append(p.warnings, warning)
}

func (p *PlanOpAggregate) Warnings() []string {
	var w []string
	w = append(w, p.warnings...)
	w = append(w, p.ChildOp.Warnings()...)
	return w
}

// Expressions is the non-nil aggregate call arguments in call order,
// followed by the having predicate if present.
func (p *PlanOpAggregate) Expressions() []types.PlanExpression {
	exprs := make([]types.PlanExpression, 0, len(p.Calls)+1)
	for _, c := range p.Calls {
		if c.Arg != nil {
			exprs = append(exprs, c.Arg)
		}
	}
	if p.Having != nil {
		exprs = append(exprs, p.Having)
	}
	return exprs
}

func (p *PlanOpAggregate) WithUpdatedExpressions(exprs ...types.PlanExpression) (types.PlanOperator, error) {
	if len(exprs) != len(p.Expressions()) {
		return nil, sql.NewErrInternalf("unexpected number of exprs '%d'", len(exprs))
	}
	newCalls := make([]*AggregateCall, len(p.Calls))
	i := 0
	for idx, c := range p.Calls {
		if c.Arg != nil {
			newCalls[idx] = c.withArg(exprs[i])
			i++
		} else {
			newCalls[idx] = c
		}
	}
	var having types.PlanExpression
	if p.Having != nil {
		having = exprs[i]
	}
	newOp := NewPlanOpAggregate(p.Strategy, p.GroupKeys, newCalls, having, p.ChildOp, p.split)
	newOp.coordinator = p.coordinator
	newOp.warnings = append(newOp.warnings, p.warnings...)
	return newOp, nil
}
