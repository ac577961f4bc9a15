package planner

import (
	"github.com/quartzdb/quartz/sql/planner/types"
)

// PlanVisitor visits operators in the plan.
type PlanVisitor interface {
	// VisitOperator is invoked for each operator during PlanWalk. If the
	// resulting PlanVisitor is not nil, PlanWalk visits each of the children
	// of the operator with that visitor, followed by a call of
	// VisitOperator(nil) to the returned visitor.
	VisitOperator(op types.PlanOperator) PlanVisitor
}

// PlanWalk traverses the plan depth-first. It starts by calling
// v.VisitOperator; op must not be nil. If the result returned by
// v.VisitOperator is not nil, PlanWalk is invoked recursively with the
// returned result for each of the children of the plan operator, followed by
// a call of v.VisitOperator(nil) to the returned result.
func PlanWalk(v PlanVisitor, op types.PlanOperator) {
	if v = v.VisitOperator(op); v == nil {
		return
	}

	for _, child := range op.Children() {
		PlanWalk(v, child)
	}

	v.VisitOperator(nil)
}

type planInspector func(types.PlanOperator) bool

func (f planInspector) VisitOperator(op types.PlanOperator) PlanVisitor {
	if f(op) {
		return f
	}
	return nil
}

// InspectPlan traverses the plan op graph in depth-first order; if f(op)
// returns true, InspectPlan invokes f recursively for each of the children
// of op, followed by a call of f(nil).
func InspectPlan(op types.PlanOperator, f planInspector) {
	PlanWalk(f, op)
}

//-----------------------------------------------------------------------------

// ExprVisitor visits expressions in an expression tree.
type ExprVisitor interface {
	// VisitExpr is invoked for each expr encountered by ExprWalk. If the
	// result is not nil, ExprWalk visits each of the children of the expr,
	// followed by a call of VisitExpr(nil) to the returned result.
	VisitExpr(expr types.PlanExpression) ExprVisitor
}

func ExprWalk(v ExprVisitor, expr types.PlanExpression) {
	if v = v.VisitExpr(expr); v == nil {
		return
	}

	for _, child := range expr.Children() {
		ExprWalk(v, child)
	}

	v.VisitExpr(nil)
}

type exprInspector func(types.PlanExpression) bool

func (f exprInspector) VisitExpr(e types.PlanExpression) ExprVisitor {
	if f(e) {
		return f
	}
	return nil
}

// InspectExpression traverses the expression tree in depth-first order; if
// f(expr) returns true, InspectExpression invokes f recursively for each of
// the children of expr, followed by a call of f(nil).
func InspectExpression(expr types.PlanExpression, f exprInspector) {
	ExprWalk(f, expr)
}

// InspectOperatorExpressions traverses the plan and calls f on every
// expression of every operator that holds expressions.
func InspectOperatorExpressions(op types.PlanOperator, f exprInspector) {
	InspectPlan(op, func(node types.PlanOperator) bool {
		if node == nil {
			return false
		}
		if n, ok := node.(types.ContainsExpressions); ok {
			for _, e := range n.Expressions() {
				ExprWalk(f, e)
			}
		}
		return true
	})
}

//-----------------------------------------------------------------------------

// PlanOpFunc is a function that given a plan op will return either a
// transformed plan op or the original plan op. If there was a
// transformation, the bool will be false, and an error if there was an
// error.
type PlanOpFunc func(op types.PlanOperator) (types.PlanOperator, bool, error)

// TransformPlanOp applies a transformation function to the given plan op
// graph from the bottom up. Children are transformed before the parent is
// considered; a parent whose children changed is rebuilt with WithChildren
// before f sees it, so no operator is mutated while another reference to it
// remains reachable.
func TransformPlanOp(op types.PlanOperator, f PlanOpFunc) (types.PlanOperator, bool, error) {
	children := op.Children()
	if len(children) == 0 {
		return f(op)
	}

	var newChildren []types.PlanOperator
	for i := range children {
		child := children[i]
		child, same, err := TransformPlanOp(child, f)
		if err != nil {
			return nil, true, err
		}
		if !same {
			if newChildren == nil {
				newChildren = make([]types.PlanOperator, len(children))
				copy(newChildren, children)
			}
			newChildren[i] = child
		}
	}

	var err error
	sameC := true
	if len(newChildren) > 0 {
		sameC = false
		op, err = op.WithChildren(newChildren...)
		if err != nil {
			return nil, true, err
		}
	}

	op, sameN, err := f(op)
	if err != nil {
		return nil, true, err
	}
	return op, sameC && sameN, nil
}

// ExprFunc is a function that given an expression will return that
// expression as is or transformed, a bool to indicate whether the expression
// was left the same, and an error or nil.
type ExprFunc func(e types.PlanExpression) (types.PlanExpression, bool, error)

// TransformExpr applies a transformation function to an expression from the
// bottom up.
func TransformExpr(e types.PlanExpression, f ExprFunc) (types.PlanExpression, bool, error) {
	children := e.Children()
	if len(children) == 0 {
		return f(e)
	}

	var newChildren []types.PlanExpression
	var err error
	for i := 0; i < len(children); i++ {
		c := children[i]
		c, same, err := TransformExpr(c, f)
		if err != nil {
			return nil, true, err
		}
		if !same {
			if newChildren == nil {
				newChildren = make([]types.PlanExpression, len(children))
				copy(newChildren, children)
			}
			newChildren[i] = c
		}
	}

	sameC := true
	if len(newChildren) > 0 {
		sameC = false
		e, err = e.WithChildren(newChildren...)
		if err != nil {
			return nil, true, err
		}
	}

	e, sameN, err := f(e)
	if err != nil {
		return nil, true, err
	}
	return e, sameC && sameN, nil
}
