package planner

import (
	"fmt"

	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
)

// PlanOpScan is a sequential scan of one base table. It is the fusion target
// for most of the rewrite rules: a projection/filter calc directly above it,
// a bare limit/offset, and a legal aggregation all collapse into attributes
// of the scan so no separate execution stage remains.
type PlanOpScan struct {
	tableName  string
	baseSchema types.Schema

	// nil means every base column in table order; non-nil defines the output,
	// one entry per output column, expressed over the base schema
	projections []types.PlanExpression
	filter      types.PlanExpression
	limit       types.PlanExpression
	offset      types.PlanExpression

	// base column positions the access path delivers sorted, leading column
	// first; assigned by upstream planning
	orderedOn []int

	aggregate *FusedAggregate

	split       int
	coordinator bool
	warnings    []string
}

func NewPlanOpScan(tableName string, baseSchema types.Schema, split int) *PlanOpScan {
	return &PlanOpScan{
		tableName:  tableName,
		baseSchema: baseSchema,
		split:      split,
		warnings:   make([]string, 0),
	}
}

func (p *PlanOpScan) Name() string {
	return p.tableName
}

// SetOrderedOn records the sorted base-column prefix the access path
// delivers; upstream planning calls this, the optimizer only reads it.
func (p *PlanOpScan) SetOrderedOn(columns []int) {
	p.orderedOn = columns
}

func (p *PlanOpScan) SetCoordinator(coordinator bool) {
	p.coordinator = coordinator
}

// projectedSchema is the scan output before any fused aggregate.
func (p *PlanOpScan) projectedSchema() types.Schema {
	if p.projections == nil {
		return p.baseSchema
	}
	s := make(types.Schema, len(p.projections))
	for i, e := range p.projections {
		s[i] = ExpressionToColumn(e)
	}
	return s
}

func (p *PlanOpScan) Schema() types.Schema {
	s := p.projectedSchema()
	if p.aggregate != nil {
		return p.aggregate.Schema(s)
	}
	return s
}

// Ordering maps the access path's sorted base columns to output positions.
// The prefix stops at the first ordered column the projection does not carry
// as a bare reference; no ordering is claimed once an aggregate is fused.
func (p *PlanOpScan) Ordering() []int {
	if p.aggregate != nil {
		return nil
	}
	if p.projections == nil {
		return p.orderedOn
	}
	var ordering []int
	for _, baseCol := range p.orderedOn {
		found := -1
		for j, e := range p.projections {
			if ref, ok := e.(*inputRefPlanExpression); ok && ref.columnIndex == baseCol {
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

func (p *PlanOpScan) UpdateFilters(filterCondition types.PlanExpression) (types.PlanOperator, error) {
	newOp := p.clone()
	newOp.filter = filterCondition
	return newOp, nil
}

func (p *PlanOpScan) Children() []types.PlanOperator {
	return []types.PlanOperator{}
}

func (p *PlanOpScan) WithChildren(children ...types.PlanOperator) (types.PlanOperator, error) {
	if len(children) != 0 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return p, nil
}

func (p *PlanOpScan) Split() int {
	return p.split
}

func (p *PlanOpScan) Coordinator() bool {
	return p.coordinator
}

func (p *PlanOpScan) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", p)
	result["_schema"] = p.Schema().Plan()
	result["tableName"] = p.tableName
	result["split"] = p.split
	result["coordinator"] = p.coordinator
	if p.projections != nil {
		ps := make([]interface{}, 0, len(p.projections))
		for _, e := range p.projections {
			ps = append(ps, e.Plan())
		}
		result["projections"] = ps
	}
	if p.filter != nil {
		result["filter"] = p.filter.Plan()
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
	return result
}

func (p *PlanOpScan) String() string {
	return ""
}

func (p *PlanOpScan) AddWarning(warning string) {
	p.warnings = append(p.warnings, warning)
}

func (p *PlanOpScan) Warnings() []string {
	return p.warnings
}

// Expressions is the projection list in output order followed by the filter
// if present. Limit, offset, and fused aggregate internals are not exposed
// here; rules address them directly.
func (p *PlanOpScan) Expressions() []types.PlanExpression {
	exprs := make([]types.PlanExpression, 0, len(p.projections)+1)
	exprs = append(exprs, p.projections...)
	if p.filter != nil {
		exprs = append(exprs, p.filter)
	}
	return exprs
}

func (p *PlanOpScan) WithUpdatedExpressions(exprs ...types.PlanExpression) (types.PlanOperator, error) {
	if len(exprs) != len(p.Expressions()) {
		return nil, sql.NewErrInternalf("unexpected number of exprs '%d'", len(exprs))
	}
	newOp := p.clone()
	if p.filter != nil {
		newOp.filter = exprs[len(exprs)-1]
		exprs = exprs[:len(exprs)-1]
	}
	if p.projections != nil {
		newOp.projections = exprs
	}
	return newOp, nil
}

// clone returns a shallow copy so a rule can replace attributes without
// mutating the operator another reference still expects unchanged.
func (p *PlanOpScan) clone() *PlanOpScan {
	newOp := *p
	newOp.warnings = make([]string, len(p.warnings))
	copy(newOp.warnings, p.warnings)
	return &newOp
}
