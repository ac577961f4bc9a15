package planner

import (
	"fmt"

	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
)

// PlanOpDistinct removes duplicate rows from its child. Optimization
// rewrites it as a hash aggregate grouped on every output column.
type PlanOpDistinct struct {
	ChildOp types.PlanOperator

	warnings []string
}

func NewPlanOpDistinct(child types.PlanOperator) *PlanOpDistinct {
	return &PlanOpDistinct{
		ChildOp:  child,
		warnings: make([]string, 0),
	}
}

func (p *PlanOpDistinct) Schema() types.Schema {
	return p.ChildOp.Schema()
}

func (p *PlanOpDistinct) Children() []types.PlanOperator {
	return []types.PlanOperator{
		p.ChildOp,
	}
}

func (p *PlanOpDistinct) WithChildren(children ...types.PlanOperator) (types.PlanOperator, error) {
	if len(children) != 1 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	newOp := p.clone()
	newOp.ChildOp = children[0]
	return newOp, nil
}

func (p *PlanOpDistinct) Split() int {
	return p.ChildOp.Split()
}

func (p *PlanOpDistinct) Coordinator() bool {
	return p.ChildOp.Coordinator()
}

func (p *PlanOpDistinct) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_op"] = fmt.Sprintf("%T", p)
	result["_schema"] = p.Schema().Plan()
	result["child"] = p.ChildOp.Plan()
	return result
}

func (p *PlanOpDistinct) String() string {
	return ""
}

func (p *PlanOpDistinct) AddWarning(warning string) {
	p.warnings = append(p.warnings, warning)
}

func (p *PlanOpDistinct) Warnings() []string {
	var w []string
	w = append(w, p.warnings...)
	w = append(w, p.ChildOp.Warnings()...)
	return w
}

func (p *PlanOpDistinct) clone() *PlanOpDistinct {
	newOp := *p
	newOp.warnings = make([]string, len(p.warnings))
	copy(newOp.warnings, p.warnings)
	return &newOp
}
