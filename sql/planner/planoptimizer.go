package planner

import (
	"context"

	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
)

// OptimizerFunc is a plan rewrite rule. Rules follow the transform
// convention: the returned bool is true when the plan is unchanged.
type OptimizerFunc func(ctx context.Context, c *CompilationContext, n types.PlanOperator) (types.PlanOperator, bool, error)

// optimizerRules is the ordered rule list. Order is a performance hint, not
// a correctness requirement; the driver loops the whole list until a full
// pass changes nothing, so a rule that only matches after a later rule has
// fired still gets its turn.
var optimizerRules = []struct {
	name string
	fn   OptimizerFunc
}{
	{"rewriteDistinctAsAggregate", rewriteDistinctAsAggregate},
	{"materializeSortKeyExpressions", materializeSortKeyExpressions},
	{"inlineCalcIntoScan", inlineCalcIntoScan},
	{"inlineLimitIntoProducer", inlineLimitIntoProducer},
	{"fuseAggregateIntoProducer", fuseAggregateIntoProducer},
	{"pruneScanColumns", pruneScanColumns},
	{"rewriteJoinConditions", rewriteJoinConditions},
	{"pushFilterBelowJoin", pushFilterBelowJoin},
}

// OptimizePlan validates the plan and then rewrites it to fixpoint.
func (c *CompilationContext) OptimizePlan(ctx context.Context, plan types.PlanOperator) (types.PlanOperator, error) {
	if err := validatePlan(plan); err != nil {
		return nil, err
	}

	var err error
	for pass := 0; ; pass++ {
		if pass >= c.maxPasses {
			return nil, sql.NewErrInternalf("optimizer did not converge after %d passes", c.maxPasses)
		}
		anyChanged := false
		for _, rule := range optimizerRules {
			if err = ctx.Err(); err != nil {
				return nil, err
			}
			var same bool
			plan, same, err = rule.fn(ctx, c, plan)
			if err != nil {
				return nil, err
			}
			if !same {
				anyChanged = true
				c.logger.Debugf("optimizer rule %s rewrote plan (request %s, pass %d)", rule.name, c.requestID, pass)
			}
		}
		if !anyChanged {
			break
		}
	}
	return plan, nil
}

// validatePlan confirms every column reference in every operator's
// expressions is in range for the schema it indexes into. A dangling
// reference is the caller's malformed input, surfaced before any rewriting
// can turn it into a wrong plan.
func validatePlan(plan types.PlanOperator) error {
	var valErr error
	InspectPlan(plan, func(op types.PlanOperator) bool {
		if valErr != nil {
			return false
		}

		switch o := op.(type) {
		case *PlanOpScan:
			// scan expressions index the base table schema
			for _, expr := range o.Expressions() {
				if valErr = validateExpressionRefs(expr, len(o.baseSchema)); valErr != nil {
					return false
				}
			}
			if o.aggregate != nil {
				if valErr = validateFusedAggregate(o.aggregate, len(o.projectedSchema())); valErr != nil {
					return false
				}
			}
		case *PlanOpCalc:
			childArity := len(o.ChildOp.Schema())
			for _, expr := range o.Expressions() {
				if valErr = validateExpressionRefs(expr, childArity); valErr != nil {
					return false
				}
			}
			if o.aggregate != nil {
				if valErr = validateFusedAggregate(o.aggregate, len(o.projectedSchema())); valErr != nil {
					return false
				}
			}
		case *PlanOpAggregate:
			fused := &FusedAggregate{
				Strategy:  o.Strategy,
				GroupKeys: o.GroupKeys,
				Calls:     o.Calls,
				Having:    o.Having,
			}
			if valErr = validateFusedAggregate(fused, len(o.ChildOp.Schema())); valErr != nil {
				return false
			}
		default:
			ce, ok := op.(types.ContainsExpressions)
			if !ok {
				return true
			}
			arity := 0
			for _, child := range op.Children() {
				arity += len(child.Schema())
			}
			for _, expr := range ce.Expressions() {
				if valErr = validateExpressionRefs(expr, arity); valErr != nil {
					return false
				}
			}
		}
		return true
	})
	return valErr
}

// validateFusedAggregate checks an aggregate descriptor against the arity of
// its pre-aggregation input: call arguments and group keys index the input,
// having indexes the aggregate output.
func validateFusedAggregate(agg *FusedAggregate, inputArity int) error {
	for _, call := range agg.Calls {
		if call.Arg == nil {
			continue
		}
		if err := validateExpressionRefs(call.Arg, inputArity); err != nil {
			return err
		}
	}
	for _, key := range agg.GroupKeys {
		if key < 0 || key >= inputArity {
			return sql.NewErrColumnRefOutOfRange(key, inputArity)
		}
	}
	if agg.Having != nil {
		return validateExpressionRefs(agg.Having, len(agg.GroupKeys)+len(agg.Calls))
	}
	return nil
}

// rewriteDistinctAsAggregate replaces each distinct operator with a hash
// aggregate grouped on every child output column and no aggregate calls.
// Downstream rules then treat it like any other aggregation, including
// fusing it into the producing scan.
func rewriteDistinctAsAggregate(ctx context.Context, c *CompilationContext, n types.PlanOperator) (types.PlanOperator, bool, error) {
	return TransformPlanOp(n, func(op types.PlanOperator) (types.PlanOperator, bool, error) {
		distinct, ok := op.(*PlanOpDistinct)
		if !ok {
			return op, true, nil
		}
		groupKeys := make([]int, len(distinct.ChildOp.Schema()))
		for i := range groupKeys {
			groupKeys[i] = i
		}
		agg := NewPlanOpAggregate(types.AggregateHash, groupKeys, nil, nil, distinct.ChildOp, distinct.ChildOp.Split())
		agg.SetCoordinator(distinct.ChildOp.Coordinator())
		for _, w := range distinct.warnings {
			agg.AddWarning(w)
		}
		return agg, false, nil
	})
}

// inlineCalcIntoScan collapses a calc directly above an unprojected scan
// into attributes of the scan. The scan must be unprojected so the calc's
// column references already index the base schema; a scan that has absorbed
// a limit stays untouched because filtering after a limit is not the same
// as filtering before it.
func inlineCalcIntoScan(ctx context.Context, c *CompilationContext, n types.PlanOperator) (types.PlanOperator, bool, error) {
	return TransformPlanOp(n, func(op types.PlanOperator) (types.PlanOperator, bool, error) {
		calc, ok := op.(*PlanOpCalc)
		if !ok {
			return op, true, nil
		}
		scan, ok := calc.ChildOp.(*PlanOpScan)
		if !ok {
			return op, true, nil
		}
		if scan.projections != nil || scan.aggregate != nil || scan.limit != nil || scan.offset != nil {
			return op, true, nil
		}

		newScan := scan.clone()
		newScan.projections = calc.Projections
		if calc.Condition != nil {
			if scan.filter != nil {
				newScan.filter = joinExprsWithAnd(scan.filter, calc.Condition)
			} else {
				newScan.filter = calc.Condition
			}
		}
		newScan.limit = calc.limit
		newScan.offset = calc.offset
		newScan.aggregate = calc.aggregate
		for _, w := range calc.warnings {
			newScan.AddWarning(w)
		}
		return newScan, false, nil
	})
}

// materializeSortKeyExpressions rewrites computed sort keys above a calc
// into bare column references. The key indexes the calc's output, so each of
// its references is first substituted with the projection expression it
// names, moving the key into the calc's input coordinates. A key the calc
// already projects is redirected to that position; otherwise it is appended
// as a trailing projection column. Appending never moves an existing column,
// so references elsewhere in the plan stay valid.
func materializeSortKeyExpressions(ctx context.Context, c *CompilationContext, n types.PlanOperator) (types.PlanOperator, bool, error) {
	return TransformPlanOp(n, func(op types.PlanOperator) (types.PlanOperator, bool, error) {
		sort, ok := op.(*PlanOpSort)
		if !ok {
			return op, true, nil
		}
		calc, ok := sort.ChildOp.(*PlanOpCalc)
		if !ok || calc.aggregate != nil {
			return op, true, nil
		}
		computed := false
		for _, sf := range sort.SortFields {
			if _, ok := sf.Expr.(*inputRefPlanExpression); !ok {
				computed = true
				break
			}
		}
		if !computed {
			return op, true, nil
		}

		newCalc := calc.clone()
		newCalc.Projections = append([]types.PlanExpression{}, calc.Projections...)
		newFields := make([]*SortField, len(sort.SortFields))
		for i, sf := range sort.SortFields {
			if _, ok := sf.Expr.(*inputRefPlanExpression); ok {
				newFields[i] = sf
				continue
			}
			composed, _, err := TransformExpr(sf.Expr, func(e types.PlanExpression) (types.PlanExpression, bool, error) {
				ref, ok := e.(*inputRefPlanExpression)
				if !ok {
					return e, true, nil
				}
				if ref.columnIndex < 0 || ref.columnIndex >= len(calc.Projections) {
					return nil, true, sql.NewErrColumnRefOutOfRange(ref.columnIndex, len(calc.Projections))
				}
				return calc.Projections[ref.columnIndex], false, nil
			})
			if err != nil {
				return nil, true, err
			}
			pos := -1
			for j, proj := range newCalc.Projections {
				if expressionsEqual(proj, composed) {
					pos = j
					break
				}
			}
			if pos < 0 {
				pos = len(newCalc.Projections)
				newCalc.Projections = append(newCalc.Projections, composed)
			}
			newFields[i] = &SortField{
				Expr:      newInputRefPlanExpression("", sf.Expr.String(), pos, sf.Expr.Type()),
				Direction: sf.Direction,
			}
		}

		newSort := sort.clone()
		newSort.ChildOp = newCalc
		newSort.SortFields = newFields
		return newSort, false, nil
	})
}

// inlineLimitIntoProducer dissolves a keyless sort into the scan or calc
// beneath it, carrying its fetch and offset down as attributes. A sort with
// sort keys never dissolves; it must see every row before it can emit the
// first one, so its fetch and offset stay where they are. A producer that is
// already limited also blocks the rewrite since stacking a second limit on
// the same operator loses the inner cutoff.
func inlineLimitIntoProducer(ctx context.Context, c *CompilationContext, n types.PlanOperator) (types.PlanOperator, bool, error) {
	return TransformPlanOp(n, func(op types.PlanOperator) (types.PlanOperator, bool, error) {
		sort, ok := op.(*PlanOpSort)
		if !ok {
			return op, true, nil
		}
		if len(sort.SortFields) != 0 {
			return op, true, nil
		}
		if sort.Fetch == nil && sort.Offset == nil {
			// pure pass-through
			return sort.ChildOp, false, nil
		}

		switch child := sort.ChildOp.(type) {
		case *PlanOpScan:
			if child.limit != nil || child.offset != nil {
				return op, true, nil
			}
			newScan := child.clone()
			newScan.limit = sort.Fetch
			newScan.offset = sort.Offset
			for _, w := range sort.warnings {
				newScan.AddWarning(w)
			}
			return newScan, false, nil
		case *PlanOpCalc:
			if child.limit != nil || child.offset != nil {
				return op, true, nil
			}
			newCalc := child.clone()
			newCalc.limit = sort.Fetch
			newCalc.offset = sort.Offset
			for _, w := range sort.warnings {
				newCalc.AddWarning(w)
			}
			return newCalc, false, nil
		default:
			return op, true, nil
		}
	})
}

// orderingCoversKeys reports whether the leading len(keys) positions of a
// producer's ordering are exactly the group key set, in any order.
func orderingCoversKeys(ordering []int, keys []int) bool {
	if len(ordering) < len(keys) {
		return false
	}
	prefix := make(map[int]bool, len(keys))
	for _, o := range ordering[:len(keys)] {
		prefix[o] = true
	}
	for _, k := range keys {
		if !prefix[k] {
			return false
		}
	}
	return true
}

// aggregateStrategyFor picks serial accumulation when grouping needs no
// table: either there are no group keys, or the child delivers rows already
// clustered on the key set.
func aggregateStrategyFor(groupKeys []int, child types.PlanOperator) types.AggregateStrategy {
	if len(groupKeys) == 0 {
		return types.AggregateSerial
	}
	if ordered, ok := child.(types.OrderedRelation); ok {
		if orderingCoversKeys(ordered.Ordering(), groupKeys) {
			return types.AggregateSerial
		}
	}
	return types.AggregateHash
}

// fuseAggregateIntoProducer folds an aggregate operator into the scan or
// calc directly beneath it, having clause included. A producer that already
// carries an aggregate or a limit blocks the fusion. Standalone aggregates
// that cannot fuse still get their accumulation strategy normalized against
// the child's delivered ordering.
func fuseAggregateIntoProducer(ctx context.Context, c *CompilationContext, n types.PlanOperator) (types.PlanOperator, bool, error) {
	return TransformPlanOp(n, func(op types.PlanOperator) (types.PlanOperator, bool, error) {
		agg, ok := op.(*PlanOpAggregate)
		if !ok {
			return op, true, nil
		}
		strategy := aggregateStrategyFor(agg.GroupKeys, agg.ChildOp)

		fused := &FusedAggregate{
			Strategy:  strategy,
			GroupKeys: agg.GroupKeys,
			Calls:     agg.Calls,
			Having:    agg.Having,
		}

		switch child := agg.ChildOp.(type) {
		case *PlanOpScan:
			if child.aggregate == nil && child.limit == nil && child.offset == nil {
				newScan := child.clone()
				newScan.aggregate = fused
				for _, w := range agg.warnings {
					newScan.AddWarning(w)
				}
				return newScan, false, nil
			}
		case *PlanOpCalc:
			if child.aggregate == nil && child.limit == nil && child.offset == nil {
				newCalc := child.clone()
				newCalc.aggregate = fused
				for _, w := range agg.warnings {
					newCalc.AddWarning(w)
				}
				return newCalc, false, nil
			}
		}

		if strategy == agg.Strategy {
			return op, true, nil
		}
		newAgg := NewPlanOpAggregate(strategy, agg.GroupKeys, agg.Calls, agg.Having, agg.ChildOp, agg.split)
		newAgg.SetCoordinator(agg.coordinator)
		for _, w := range agg.warnings {
			newAgg.AddWarning(w)
		}
		return newAgg, false, nil
	})
}

// pruneScanColumns narrows a projected scan beneath a calc to only the
// columns the calc references, remapping the calc's references to the new
// positions. The calc defines the scan's entire downstream visibility, so
// anything it does not reference is dead weight on the wire.
func pruneScanColumns(ctx context.Context, c *CompilationContext, n types.PlanOperator) (types.PlanOperator, bool, error) {
	return TransformPlanOp(n, func(op types.PlanOperator) (types.PlanOperator, bool, error) {
		calc, ok := op.(*PlanOpCalc)
		if !ok {
			return op, true, nil
		}
		scan, ok := calc.ChildOp.(*PlanOpScan)
		if !ok {
			return op, true, nil
		}
		if scan.projections == nil || scan.aggregate != nil {
			return op, true, nil
		}

		refs := referencedColumns(calc.Expressions()...)
		if len(refs) == len(scan.projections) {
			return op, true, nil
		}

		indexMap := make(map[int]int, len(refs))
		kept := make([]types.PlanExpression, 0, len(refs))
		for i, proj := range scan.projections {
			if refs[i] {
				indexMap[i] = len(kept)
				kept = append(kept, proj)
			}
		}

		newExprs, same, err := remapExpressions(indexMap, calc.Expressions()...)
		if err != nil {
			return nil, true, err
		}

		newScan := scan.clone()
		newScan.projections = kept

		var target *PlanOpCalc
		if !same {
			updated, err := calc.WithUpdatedExpressions(newExprs...)
			if err != nil {
				return nil, true, err
			}
			target = updated.(*PlanOpCalc)
		} else {
			target = calc.clone()
		}
		target.ChildOp = newScan
		return target, false, nil
	})
}

// rewriteJoinConditions widens mismatched numeric join keys by inserting a
// cast on the narrower side of each comparison, so execution compares values
// of one type. Calcs above the join are left in place; only the condition
// itself is rewritten.
func rewriteJoinConditions(ctx context.Context, c *CompilationContext, n types.PlanOperator) (types.PlanOperator, bool, error) {
	return TransformPlanOp(n, func(op types.PlanOperator) (types.PlanOperator, bool, error) {
		join, ok := op.(*PlanOpJoin)
		if !ok || join.Condition == nil {
			return op, true, nil
		}

		newCondition, same, err := TransformExpr(join.Condition, func(e types.PlanExpression) (types.PlanExpression, bool, error) {
			binOp, ok := e.(*binOpPlanExpression)
			if !ok || !comparisonOp(binOp.op) {
				return e, true, nil
			}
			lhsNumeric := types.NumericTypeWidth(binOp.lhs.Type()) > 0
			rhsNumeric := types.NumericTypeWidth(binOp.rhs.Type()) > 0
			if lhsNumeric != rhsNumeric {
				return nil, true, sql.NewErrTypeMismatch(binOp.lhs.Type().TypeDescription(), binOp.rhs.Type().TypeDescription())
			}
			wider, ok := widerNumericType(binOp.lhs.Type(), binOp.rhs.Type())
			if !ok {
				return e, true, nil
			}
			lhs, rhs := binOp.lhs, binOp.rhs
			if types.TypesAreEquivalent(wider, lhs.Type()) {
				rhs = newCastPlanExpression(rhs, wider)
			} else {
				lhs = newCastPlanExpression(lhs, wider)
			}
			return newBinOpPlanExpression(lhs, binOp.op, rhs, binOp.resultDataType), false, nil
		})
		if err != nil {
			return nil, true, err
		}
		if same {
			return op, true, nil
		}

		newJoin := join.clone()
		newJoin.Condition = newCondition
		return newJoin, false, nil
	})
}

// absorbFilter hands a conjunct set to a relation that can take filters,
// ANDing in any filter it already carries.
func absorbFilter(rel types.PlanOperator, existing types.PlanExpression, conjuncts []types.PlanExpression) (types.PlanOperator, error) {
	fr, ok := rel.(types.FilteredRelation)
	if !ok {
		return nil, sql.NewErrInternalf("operator '%T' cannot absorb filters", rel)
	}
	if existing != nil {
		conjuncts = append([]types.PlanExpression{existing}, conjuncts...)
	}
	return fr.UpdateFilters(joinExprsWithAnd(conjuncts...))
}

// pushFilterBelowJoin moves conjuncts of a calc condition that reference
// only one side of an inner join down into that side, when the side is a
// bare scan that can absorb them before producing rows. Conjuncts spanning
// both sides, and everything above an outer join, stay on the calc since an
// outer join manufactures rows a pushed filter would never see.
func pushFilterBelowJoin(ctx context.Context, c *CompilationContext, n types.PlanOperator) (types.PlanOperator, bool, error) {
	return TransformPlanOp(n, func(op types.PlanOperator) (types.PlanOperator, bool, error) {
		calc, ok := op.(*PlanOpCalc)
		if !ok || calc.Condition == nil {
			return op, true, nil
		}
		join, ok := calc.ChildOp.(*PlanOpJoin)
		if !ok || join.JoinType != types.JoinTypeInner {
			return op, true, nil
		}

		leftWidth := len(join.Top.Schema())
		rightWidth := len(join.Bottom.Schema())

		canAbsorb := func(side types.PlanOperator) bool {
			scan, ok := side.(*PlanOpScan)
			return ok && scan.projections == nil && scan.aggregate == nil && scan.limit == nil && scan.offset == nil
		}

		var leftPush, rightPush, remaining []types.PlanExpression
		for _, conjunct := range splitOnAnd(calc.Condition) {
			refs := referencedColumns(conjunct)
			leftOnly, rightOnly := true, true
			for idx := range refs {
				if idx < leftWidth {
					rightOnly = false
				} else {
					leftOnly = false
				}
			}
			switch {
			case len(refs) > 0 && leftOnly && canAbsorb(join.Top):
				leftPush = append(leftPush, conjunct)
			case len(refs) > 0 && rightOnly && canAbsorb(join.Bottom):
				indexMap := make(map[int]int, rightWidth)
				for i := 0; i < rightWidth; i++ {
					indexMap[leftWidth+i] = i
				}
				remapped, _, err := remapExpression(conjunct, indexMap)
				if err != nil {
					return nil, true, err
				}
				rightPush = append(rightPush, remapped)
			default:
				remaining = append(remaining, conjunct)
			}
		}
		if len(leftPush) == 0 && len(rightPush) == 0 {
			return op, true, nil
		}

		newJoin := join.clone()
		if len(leftPush) > 0 {
			top := join.Top.(*PlanOpScan)
			updated, err := absorbFilter(top, top.filter, leftPush)
			if err != nil {
				return nil, true, err
			}
			newJoin.Top = updated
		}
		if len(rightPush) > 0 {
			bottom := join.Bottom.(*PlanOpScan)
			updated, err := absorbFilter(bottom, bottom.filter, rightPush)
			if err != nil {
				return nil, true, err
			}
			newJoin.Bottom = updated
		}

		newCalc := calc.clone()
		newCalc.ChildOp = newJoin
		newCalc.Condition = joinExprsWithAnd(remaining...)
		return newCalc, false, nil
	})
}
