package planner

import (
	"fmt"

	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
)

// PlanOpCalc is a pure compute/filter over one child: it projects and
// renames columns, evaluates scalar expressions, and optionally filters.
// Above a join it survives optimization as a thin projection layer; above an
// unrestricted scan it is fused away.
type PlanOpCalc struct {
	ChildOp     types.PlanOperator
	Projections []types.PlanExpression
	Condition   types.PlanExpression

	// limit/offset land here when a keyless sort above this calc is inlined
	// and the calc cannot itself collapse into its child
	limit  types.PlanExpression
	offset types.PlanExpression

	aggregate *FusedAggregate

	split       int
	coordinator bool
	warnings    []string
}

func NewPlanOpCalc(projections []types.PlanExpression, condition types.PlanExpression, child types.PlanOperator, split int) *PlanOpCalc {
	return &PlanOpCalc{
		ChildOp:     child,
		Projections: projections,
		Condition:   condition,
		split:       split,
		warnings:    make([]string, 0),
	}
}

func (p *PlanOpCalc) SetCoordinator(coordinator bool) {
	p.coordinator = coordinator
}

func (p *PlanOpCalc) projectedSchema() types.Schema {
	s := make(types.Schema, len(p.Projections))
	for i, e := range p.Projections {
		s[i] = ExpressionToColumn(e)
	}
	return s
}

func (p *PlanOpCalc) Schema() types.Schema {
	s := p.projectedSchema()
	if p.aggregate != nil {
		return p.aggregate.Schema(s)
	}
	return s
}

// Ordering derives the calc output ordering from the child's known
// ordering, following bare column references through the projection.
func (p *PlanOpCalc) Ordering() []int {
	if p.aggregate != nil {
		return nil
	}
	ordered, ok := p.ChildOp.(types.OrderedRelation)
	if !ok {
		return nil
	}
	var ordering []int
	for _, childCol := range ordered.Ordering() {
		found := -1
		for j, e := range p.Projections {
			if ref, ok := e.(*inputRefPlanExpression); ok && ref.columnIndex == childCol {
				found = j
				break
			}
		}
		if found < 0 {
			break
		}
		ordering = append(ordering, found)
	}
	return ordering
}

func (p *PlanOpCalc) UpdateFilters(filterCondition types.PlanExpression) (types.PlanOperator, error) {
	newOp := p.clone()
	newOp.Condition = filterCondition
	return newOp, nil
}

func (p *PlanOpCalc) Children() []types.PlanOperator {
	return []types.PlanOperator{
		p.ChildOp,
	}
}

func (p *PlanOpCalc) WithChildren(children ...types.PlanOperator) (types.PlanOperator, error) {
	if len(children) != 1 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	newOp := p.clone()
	newOp.ChildOp = children[0]
	return newOp, nil
}

func (p *PlanOpCalc) Split() int {
	return p.split
}

func (p *PlanOpCalc) Coordinator() bool {
	return p.coordinator
}

func (p *PlanOpCalc) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", p)
	result["_schema"] = p.Schema().Plan()
	result["split"] = p.split
	result["coordinator"] = p.coordinator
	ps := make([]interface{}, 0, len(p.Projections))
	for _, e := range p.Projections {
		ps = append(ps, e.Plan())
	}
	result["projections"] = ps
	if p.Condition != nil {
		result["condition"] = p.Condition.Plan()
	}
	if p.limit != nil {
		result["limit"] = p.limit.Plan()
	}
	if p.offset != nil {
		result["offset"] = p.offset.Plan()
	}
	if p.aggregate != nil {
		result["aggregate"] = p.aggregate.Plan()
	}
	result["child"] = p.ChildOp.Plan()
	return result
}

func (p *PlanOpCalc) String() string {
	return ""
}

func (p *PlanOpCalc) AddWarning(warning string) {
	p.warnings = append(p.warnings, warning)
}

func (p *PlanOpCalc) Warnings() []string {
	var w []string
	w = append(w, p.warnings...)
	w = append(w, p.ChildOp.Warnings()...)
	return w
}

// Expressions is the projection list in output order followed by the
// condition if present.
func (p *PlanOpCalc) Expressions() []types.PlanExpression {
	exprs := make([]types.PlanExpression, 0, len(p.Projections)+1)
	exprs = append(exprs, p.Projections...)
	if p.Condition != nil {
		exprs = append(exprs, p.Condition)
	}
	return exprs
}

func (p *PlanOpCalc) WithUpdatedExpressions(exprs ...types.PlanExpression) (types.PlanOperator, error) {
	if len(exprs) != len(p.Expressions()) {
		return nil, sql.NewErrInternalf("unexpected number of exprs '%d'", len(exprs))
	}
	newOp := p.clone()
	if p.Condition != nil {
		newOp.Condition = exprs[len(exprs)-1]
		exprs = exprs[:len(exprs)-1]
	}
	newOp.Projections = exprs
	return newOp, nil
}

func (p *PlanOpCalc) clone() *PlanOpCalc {
	newOp := *p
	newOp.warnings = make([]string, len(p.warnings))
	copy(newOp.warnings, p.warnings)
	return &newOp
}
