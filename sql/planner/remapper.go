package planner

import (
	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
)

// remapExpression rewrites every input reference in expr using a mapping
// from old child-output position to new child-output position. A referenced
// old position with no mapping means a rule dropped a column an ancestor
// still needs; that is a bug in the rule, not a user error, so the pass is
// aborted with an internal error rather than producing a silently wrong
// plan.
func remapExpression(expr types.PlanExpression, indexMap map[int]int) (types.PlanExpression, bool, error) {
	return TransformExpr(expr, func(e types.PlanExpression) (types.PlanExpression, bool, error) {
		ref, ok := e.(*inputRefPlanExpression)
		if !ok {
			return e, true, nil
		}
		newIndex, ok := indexMap[ref.columnIndex]
		if !ok {
			return nil, true, sql.NewErrInternalf("no mapping for column reference '%d' in '%s'", ref.columnIndex, expr.String())
		}
		if newIndex == ref.columnIndex {
			return e, true, nil
		}
		return newInputRefPlanExpression(ref.relationName, ref.columnName, newIndex, ref.dataType), false, nil
	})
}

// remapExpressions remaps a list of expressions, returning the original
// slice untouched when nothing changed.
func remapExpressions(indexMap map[int]int, expressions ...types.PlanExpression) ([]types.PlanExpression, bool, error) {
	var result []types.PlanExpression
	for i := range expressions {
		e := expressions[i]
		if e == nil {
			continue
		}
		res, same, err := remapExpression(e, indexMap)
		if err != nil {
			return nil, true, err
		}
		if !same {
			if result == nil {
				result = make([]types.PlanExpression, len(expressions))
				copy(result, expressions)
			}
			result[i] = res
		}
	}
	if len(result) > 0 {
		return result, false, nil
	}
	return expressions, true, nil
}
