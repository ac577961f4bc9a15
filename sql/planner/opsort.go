package planner

import (
	"fmt"

	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
)

// SortField pairs a sort key expression with its direction.
type SortField struct {
	Expr      types.PlanExpression
	Direction types.SortDirection
}

func (s *SortField) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["expr"] = s.Expr.Plan()
	result["direction"] = s.Direction.String()
	return result
}

// PlanOpSort orders its child output. A sort with no fields acts as a pure
// fetch/offset stage and is a candidate to dissolve into its producer.
type PlanOpSort struct {
	ChildOp    types.PlanOperator
	SortFields []*SortField

	Fetch  types.PlanExpression
	Offset types.PlanExpression

	warnings []string
}

func NewPlanOpSort(sortFields []*SortField, fetch, offset types.PlanExpression, child types.PlanOperator) *PlanOpSort {
	return &PlanOpSort{
		ChildOp:    child,
		SortFields: sortFields,
		Fetch:      fetch,
		Offset:     offset,
		warnings:   make([]string, 0),
	}
}

func (p *PlanOpSort) Schema() types.Schema {
	return p.ChildOp.Schema()
}

func (p *PlanOpSort) Children() []types.PlanOperator {
	return []types.PlanOperator{
		p.ChildOp,
	}
}

func (p *PlanOpSort) WithChildren(children ...types.PlanOperator) (types.PlanOperator, error) {
	if len(children) != 1 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	newOp := p.clone()
	newOp.ChildOp = children[0]
	return newOp, nil
}

func (p *PlanOpSort) Split() int {
	return p.ChildOp.Split()
}

func (p *PlanOpSort) Coordinator() bool {
	return p.ChildOp.Coordinator()
}

// Ordering reports the output order produced by this sort when every sort
// field is a bare column reference.
func (p *PlanOpSort) Ordering() []int {
	var ordering []int
	for _, sf := range p.SortFields {
		ref, ok := sf.Expr.(*inputRefPlanExpression)
		if !ok {
			return nil
		}
		ordering = append(ordering, ref.columnIndex)
	}
	return ordering
}

func (p *PlanOpSort) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", p)
	result["_schema"] = p.Schema().Plan()
	fields := make([]interface{}, 0, len(p.SortFields))
	for _, sf := range p.SortFields {
		fields = append(fields, sf.Plan())
	}
	result["sortFields"] = fields
	if p.Fetch != nil {
		result["fetch"] = p.Fetch.Plan()
	}
	if p.Offset != nil {
		result["offset"] = p.Offset.Plan()
	}
	result["child"] = p.ChildOp.Plan()
	return result
}

func (p *PlanOpSort) String() string {
	return ""
}

func (p *PlanOpSort) AddWarning(warning string) {
	p.warnings = append(p.warnings, warning)
}

func (p *PlanOpSort) Warnings() []string {
	var w []string
	w = append(w, p.warnings...)
	w = append(w, p.ChildOp.Warnings()...)
	return w
}

// Expressions is the sort key expressions in field order. Fetch and offset
// are not rewritable expressions; they stay attached to the operator.
func (p *PlanOpSort) Expressions() []types.PlanExpression {
	exprs := make([]types.PlanExpression, 0, len(p.SortFields))
	for _, sf := range p.SortFields {
		exprs = append(exprs, sf.Expr)
	}
	return exprs
}

func (p *PlanOpSort) WithUpdatedExpressions(exprs ...types.PlanExpression) (types.PlanOperator, error) {
	if len(exprs) != len(p.SortFields) {
		return nil, sql.NewErrInternalf("unexpected number of exprs '%d'", len(exprs))
	}
	newOp := p.clone()
	newFields := make([]*SortField, len(p.SortFields))
	for i, sf := range p.SortFields {
		newFields[i] = &SortField{
			Expr:      exprs[i],
			Direction: sf.Direction,
		}
	}
	newOp.SortFields = newFields
	return newOp, nil
}

func (p *PlanOpSort) clone() *PlanOpSort {
	newOp := *p
	newOp.warnings = make([]string, len(p.warnings))
	copy(newOp.warnings, p.warnings)
	return &newOp
}
