package planner

import (
	"fmt"

	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
)

// PlanOpJoin combines two relations on an optional condition. Column
// references in the condition index into the concatenation of the left and
// right schemas, left first.
type PlanOpJoin struct {
	Top       types.PlanOperator
	Bottom    types.PlanOperator
	Condition types.PlanExpression
	JoinType  types.JoinType

	warnings []string
}

func NewPlanOpJoin(joinType types.JoinType, top, bottom types.PlanOperator, condition types.PlanExpression) *PlanOpJoin {
	return &PlanOpJoin{
		Top:       top,
		Bottom:    bottom,
		Condition: condition,
		JoinType:  joinType,
		warnings:  make([]string, 0),
	}
}

func (p *PlanOpJoin) Schema() types.Schema {
	result := types.Schema{}
	result = append(result, p.Top.Schema()...)
	result = append(result, p.Bottom.Schema()...)
	return result
}

func (p *PlanOpJoin) Children() []types.PlanOperator {
	return []types.PlanOperator{
		p.Top,
		p.Bottom,
	}
}

func (p *PlanOpJoin) WithChildren(children ...types.PlanOperator) (types.PlanOperator, error) {
	if len(children) != 2 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	newOp := p.clone()
	newOp.Top = children[0]
	newOp.Bottom = children[1]
	return newOp, nil
}

func (p *PlanOpJoin) Split() int {
	if s := p.Top.Split(); s > p.Bottom.Split() {
		return s
	}
	return p.Bottom.Split()
}

func (p *PlanOpJoin) Coordinator() bool {
	return p.Top.Coordinator() && p.Bottom.Coordinator()
}

func (p *PlanOpJoin) UpdateFilters(filterCondition types.PlanExpression) (types.PlanOperator, error) {
	newOp := p.clone()
	newOp.Condition = filterCondition
	return newOp, nil
}

func (p *PlanOpJoin) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", p)
	result["_schema"] = p.Schema().Plan()
	result["joinType"] = p.JoinType.String()
	if p.Condition != nil {
		result["condition"] = p.Condition.Plan()
	}
	result["top"] = p.Top.Plan()
	result["bottom"] = p.Bottom.Plan()
	return result
}

func (p *PlanOpJoin) String() string {
	return ""
}

func (p *PlanOpJoin) AddWarning(warning string) {
	p.warnings = append(p.warnings, warning)
}

func (p *PlanOpJoin) Warnings() []string {
	var w []string
	w = append(w, p.warnings...)
	w = append(w, p.Top.Warnings()...)
	w = append(w, p.Bottom.Warnings()...)
	return w
}

func (p *PlanOpJoin) Expressions() []types.PlanExpression {
	if p.Condition != nil {
		return []types.PlanExpression{p.Condition}
	}
	return nil
}

func (p *PlanOpJoin) WithUpdatedExpressions(exprs ...types.PlanExpression) (types.PlanOperator, error) {
	if len(exprs) != len(p.Expressions()) {
		return nil, sql.NewErrInternalf("unexpected number of exprs '%d'", len(exprs))
	}
	newOp := p.clone()
	if len(exprs) == 1 {
		newOp.Condition = exprs[0]
	}
	return newOp, nil
}

func (p *PlanOpJoin) clone() *PlanOpJoin {
	newOp := *p
	newOp.warnings = make([]string, len(p.warnings))
	copy(newOp.warnings, p.warnings)
	return &newOp
}
