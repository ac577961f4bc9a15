package planner

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/quartzdb/quartz/errors"
	"github.com/quartzdb/quartz/logger"
	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCatalog map[string]*types.TableInfo

func (c testCatalog) TableByName(ctx context.Context, tableName string) (*types.TableInfo, error) {
	tbl, ok := c[tableName]
	if !ok {
		return nil, sql.NewErrTableNotFound(tableName)
	}
	return tbl, nil
}

func testColumns(tableName string) types.Schema {
	return types.Schema{
		{ColumnName: "id", RelationName: tableName, Type: types.NewDataTypeInt()},
		{ColumnName: "qty", RelationName: tableName, Type: types.NewDataTypeSmallInt()},
		{ColumnName: "code", RelationName: tableName, Type: types.NewDataTypeTinyInt()},
		{ColumnName: "total", RelationName: tableName, Type: types.NewDataTypeBigInt()},
		{ColumnName: "price", RelationName: tableName, Type: types.NewDataTypeFloat()},
		{ColumnName: "sku", RelationName: tableName, Type: types.NewDataTypeString()},
	}
}

func newTestContext(t *testing.T) *CompilationContext {
	t.Helper()
	catalog := testCatalog{
		"orders":    {Name: "orders", Columns: testColumns("orders")},
		"customers": {Name: "customers", Columns: testColumns("customers")},
		"events":    {Name: "events", Columns: testColumns("events")},
	}
	return NewCompilationContext(catalog, logger.NewLogfLogger(t))
}

// colRef builds an input reference to position idx of a schema.
func colRef(s types.Schema, idx int) types.PlanExpression {
	c := s[idx]
	return NewInputRefPlanExpression(c.RelationName, c.ColumnName, idx, c.Type)
}

func TestCompilationContextNewScan(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	assert.Equal(t, "orders", scan.Name())
	assert.Equal(t, 4, scan.Split())
	assert.Len(t, scan.Schema(), 6)

	_, err = c.NewScan(ctx, "nosuchtable", 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrTableNotFound))

	assert.NotNil(t, c.Logger())
	assert.NotEqual(t, uuid.Nil, c.RequestID())
}

func TestOptimizeCalcIntoScan(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	base := scan.Schema()

	cond := NewBinOpPlanExpression(colRef(base, 2), OpGt, NewIntLiteralPlanExpression(1), types.NewDataTypeBool())
	calc := NewPlanOpCalc([]types.PlanExpression{colRef(base, 0), colRef(base, 1)}, cond, scan, scan.Split())

	optimized, err := c.OptimizePlan(ctx, calc)
	require.NoError(t, err)

	fused, ok := optimized.(*PlanOpScan)
	require.True(t, ok, "expected calc to collapse into the scan, got %T", optimized)
	assert.Len(t, fused.projections, 2)
	assert.NotNil(t, fused.filter)
	assert.Nil(t, fused.limit)
	assert.Len(t, fused.Schema(), 2)
	assert.Equal(t, "id", fused.Schema()[0].ColumnName)
	assert.Equal(t, "qty", fused.Schema()[1].ColumnName)
}

func TestOptimizeCalcFilterAndsIntoScanFilter(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	base := scan.Schema()

	preFiltered, err := scan.UpdateFilters(NewBinOpPlanExpression(colRef(base, 0), OpGt, NewIntLiteralPlanExpression(0), types.NewDataTypeBool()))
	require.NoError(t, err)

	cond := NewBinOpPlanExpression(colRef(base, 1), OpLt, NewIntLiteralPlanExpression(9), types.NewDataTypeBool())
	calc := NewPlanOpCalc([]types.PlanExpression{colRef(base, 0)}, cond, preFiltered, scan.Split())

	optimized, err := c.OptimizePlan(ctx, calc)
	require.NoError(t, err)

	fused, ok := optimized.(*PlanOpScan)
	require.True(t, ok)
	require.NotNil(t, fused.filter)
	assert.Len(t, splitOnAnd(fused.filter), 2)
}

func TestOptimizeKeylessSortIntoScan(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	base := scan.Schema()

	calc := NewPlanOpCalc([]types.PlanExpression{colRef(base, 0), colRef(base, 4)}, nil, scan, scan.Split())
	sort := NewPlanOpSort(nil, NewIntLiteralPlanExpression(10), NewIntLiteralPlanExpression(5), calc)

	optimized, err := c.OptimizePlan(ctx, sort)
	require.NoError(t, err)

	fused, ok := optimized.(*PlanOpScan)
	require.True(t, ok, "expected keyless sort and calc to collapse into the scan, got %T", optimized)
	require.NotNil(t, fused.limit)
	require.NotNil(t, fused.offset)
	assert.Equal(t, "10", fused.limit.String())
	assert.Equal(t, "5", fused.offset.String())
	assert.Len(t, fused.projections, 2)
}

func TestOptimizeKeyedSortKeepsFetchAbove(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	base := scan.Schema()

	sort := NewPlanOpSort([]*SortField{
		{Expr: colRef(base, 0), Direction: types.SortAscending},
	}, NewIntLiteralPlanExpression(4), nil, scan)

	optimized, err := c.OptimizePlan(ctx, sort)
	require.NoError(t, err)

	kept, ok := optimized.(*PlanOpSort)
	require.True(t, ok, "a keyed sort must not dissolve, got %T", optimized)
	require.NotNil(t, kept.Fetch)
	assert.Equal(t, "4", kept.Fetch.String())

	child, ok := kept.ChildOp.(*PlanOpScan)
	require.True(t, ok)
	assert.Nil(t, child.limit)
}

func TestOptimizeStackedLimitsDoNotCollapse(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)

	inner := NewPlanOpSort(nil, NewIntLiteralPlanExpression(5), nil, scan)
	outer := NewPlanOpSort(nil, NewIntLiteralPlanExpression(2), nil, inner)

	optimized, err := c.OptimizePlan(ctx, outer)
	require.NoError(t, err)

	kept, ok := optimized.(*PlanOpSort)
	require.True(t, ok, "outer limit must stay above the limited scan, got %T", optimized)
	require.NotNil(t, kept.Fetch)
	assert.Equal(t, "2", kept.Fetch.String())

	child, ok := kept.ChildOp.(*PlanOpScan)
	require.True(t, ok)
	require.NotNil(t, child.limit)
	assert.Equal(t, "5", child.limit.String())
}

func TestOptimizeSortKeyMaterialization(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	base := scan.Schema()

	calc := NewPlanOpCalc([]types.PlanExpression{colRef(base, 0), colRef(base, 1)}, nil, scan, scan.Split())
	key := NewBinOpPlanExpression(colRef(base, 0), OpPlus, colRef(base, 1), types.NewDataTypeInt())
	sort := NewPlanOpSort([]*SortField{
		{Expr: key, Direction: types.SortDescending},
	}, nil, nil, calc)

	optimized, err := c.OptimizePlan(ctx, sort)
	require.NoError(t, err)

	kept, ok := optimized.(*PlanOpSort)
	require.True(t, ok)
	require.Len(t, kept.SortFields, 1)

	ref, ok := kept.SortFields[0].Expr.(*inputRefPlanExpression)
	require.True(t, ok, "computed sort key should become a column reference, got %T", kept.SortFields[0].Expr)
	assert.Equal(t, 2, ref.columnIndex)
	assert.Equal(t, types.SortDescending, kept.SortFields[0].Direction)

	child, ok := kept.ChildOp.(*PlanOpScan)
	require.True(t, ok)
	assert.Len(t, child.projections, 3)
}

func TestOptimizeSortKeyMaterializationNonPrefixProjection(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	base := scan.Schema()

	// the calc projects base columns 2 and 3, so its output positions do
	// not line up with the base positions the projections reference
	calc := NewPlanOpCalc([]types.PlanExpression{colRef(base, 2), colRef(base, 3)}, nil, scan, scan.Split())
	projected := calc.Schema()
	key := NewBinOpPlanExpression(colRef(projected, 0), OpPlus, colRef(projected, 1), types.NewDataTypeBigInt())
	sort := NewPlanOpSort([]*SortField{
		{Expr: key, Direction: types.SortAscending},
	}, nil, nil, calc)

	optimized, err := c.OptimizePlan(ctx, sort)
	require.NoError(t, err)

	kept, ok := optimized.(*PlanOpSort)
	require.True(t, ok)
	require.Len(t, kept.SortFields, 1)

	ref, ok := kept.SortFields[0].Expr.(*inputRefPlanExpression)
	require.True(t, ok)
	assert.Equal(t, 2, ref.columnIndex)

	child, ok := kept.ChildOp.(*PlanOpScan)
	require.True(t, ok)
	require.Len(t, child.projections, 3)

	// the materialized key computes over the base columns the calc
	// projected, not over the calc's own output positions
	sum, ok := child.projections[2].(*binOpPlanExpression)
	require.True(t, ok)
	assert.Equal(t, 2, sum.lhs.(*inputRefPlanExpression).columnIndex)
	assert.Equal(t, 3, sum.rhs.(*inputRefPlanExpression).columnIndex)
}

func TestOptimizeAggregateStrategy(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	t.Run("ungrouped is serial", func(t *testing.T) {
		scan, err := c.NewScan(ctx, "orders", 4)
		require.NoError(t, err)

		agg := NewPlanOpAggregate(types.AggregateHash, nil, []*AggregateCall{
			NewAggregateCall(types.AGGREGATE_COUNT, nil, false),
		}, nil, scan, scan.Split())

		optimized, err := c.OptimizePlan(ctx, agg)
		require.NoError(t, err)

		fused, ok := optimized.(*PlanOpScan)
		require.True(t, ok, "expected aggregate to fuse into the scan, got %T", optimized)
		require.NotNil(t, fused.aggregate)
		assert.Equal(t, types.AggregateSerial, fused.aggregate.Strategy)
		assert.Len(t, fused.aggregate.Calls, 1)
		assert.Len(t, fused.Schema(), 1)
	})

	t.Run("grouped on unordered input is hash", func(t *testing.T) {
		scan, err := c.NewScan(ctx, "orders", 4)
		require.NoError(t, err)
		base := scan.Schema()

		agg := NewPlanOpAggregate(types.AggregateHash, []int{2}, []*AggregateCall{
			NewAggregateCall(types.AGGREGATE_SUM, colRef(base, 3), false),
		}, nil, scan, scan.Split())

		optimized, err := c.OptimizePlan(ctx, agg)
		require.NoError(t, err)

		fused, ok := optimized.(*PlanOpScan)
		require.True(t, ok)
		require.NotNil(t, fused.aggregate)
		assert.Equal(t, types.AggregateHash, fused.aggregate.Strategy)
		assert.Equal(t, []int{2}, fused.aggregate.GroupKeys)
	})

	t.Run("grouped on delivered ordering is serial", func(t *testing.T) {
		scan, err := c.NewScan(ctx, "events", 2)
		require.NoError(t, err)
		scan.SetOrderedOn([]int{0})
		base := scan.Schema()

		agg := NewPlanOpAggregate(types.AggregateHash, []int{0}, []*AggregateCall{
			NewAggregateCall(types.AGGREGATE_MAX, colRef(base, 4), false),
		}, nil, scan, scan.Split())

		optimized, err := c.OptimizePlan(ctx, agg)
		require.NoError(t, err)

		fused, ok := optimized.(*PlanOpScan)
		require.True(t, ok)
		require.NotNil(t, fused.aggregate)
		assert.Equal(t, types.AggregateSerial, fused.aggregate.Strategy)
	})

	t.Run("grouped off the delivered ordering is hash", func(t *testing.T) {
		scan, err := c.NewScan(ctx, "events", 2)
		require.NoError(t, err)
		scan.SetOrderedOn([]int{0})
		base := scan.Schema()

		agg := NewPlanOpAggregate(types.AggregateHash, []int{2}, []*AggregateCall{
			NewAggregateCall(types.AGGREGATE_AVG, colRef(base, 4), false),
		}, nil, scan, scan.Split())

		optimized, err := c.OptimizePlan(ctx, agg)
		require.NoError(t, err)

		fused, ok := optimized.(*PlanOpScan)
		require.True(t, ok)
		require.NotNil(t, fused.aggregate)
		assert.Equal(t, types.AggregateHash, fused.aggregate.Strategy)
	})
}

func TestOptimizeAggregateOverLimitedScanStaysStandalone(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)

	limited := NewPlanOpSort(nil, NewIntLiteralPlanExpression(100), nil, scan)
	agg := NewPlanOpAggregate(types.AggregateHash, nil, []*AggregateCall{
		NewAggregateCall(types.AGGREGATE_COUNT, nil, false),
	}, nil, limited, scan.Split())

	optimized, err := c.OptimizePlan(ctx, agg)
	require.NoError(t, err)

	kept, ok := optimized.(*PlanOpAggregate)
	require.True(t, ok, "aggregate over a limited scan must not fuse, got %T", optimized)
	assert.Equal(t, types.AggregateSerial, kept.Strategy)

	child, ok := kept.ChildOp.(*PlanOpScan)
	require.True(t, ok)
	require.NotNil(t, child.limit)
	assert.Nil(t, child.aggregate)
}

func TestOptimizeHavingRidesFusedAggregate(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)

	// having references the aggregate output: group key at 0, count at 1
	countRef := NewInputRefPlanExpression("", "count(*)", 1, types.NewDataTypeBigInt())
	having := NewBinOpPlanExpression(countRef, OpGt, NewIntLiteralPlanExpression(3), types.NewDataTypeBool())

	agg := NewPlanOpAggregate(types.AggregateHash, []int{2}, []*AggregateCall{
		NewAggregateCall(types.AGGREGATE_COUNT, nil, false),
	}, having, scan, scan.Split())

	optimized, err := c.OptimizePlan(ctx, agg)
	require.NoError(t, err)

	fused, ok := optimized.(*PlanOpScan)
	require.True(t, ok)
	require.NotNil(t, fused.aggregate)
	assert.NotNil(t, fused.aggregate.Having)
	assert.Len(t, fused.Schema(), 2)
}

func TestOptimizeDistinctAsHashAggregate(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	base := scan.Schema()

	calc := NewPlanOpCalc([]types.PlanExpression{colRef(base, 0), colRef(base, 2)}, nil, scan, scan.Split())
	distinct := NewPlanOpDistinct(calc)

	optimized, err := c.OptimizePlan(ctx, distinct)
	require.NoError(t, err)

	fused, ok := optimized.(*PlanOpScan)
	require.True(t, ok, "distinct should fuse down to the scan, got %T", optimized)
	require.NotNil(t, fused.aggregate)
	assert.Equal(t, types.AggregateHash, fused.aggregate.Strategy)
	assert.Equal(t, []int{0, 1}, fused.aggregate.GroupKeys)
	assert.Empty(t, fused.aggregate.Calls)
	assert.Len(t, fused.Schema(), 2)
}

func TestOptimizeDistinctAggregateCallSurvivesFusion(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	base := scan.Schema()

	agg := NewPlanOpAggregate(types.AggregateHash, nil, []*AggregateCall{
		NewAggregateCall(types.AGGREGATE_MAX, colRef(base, 2), true),
	}, nil, scan, scan.Split())

	optimized, err := c.OptimizePlan(ctx, agg)
	require.NoError(t, err)

	fused, ok := optimized.(*PlanOpScan)
	require.True(t, ok)
	require.NotNil(t, fused.aggregate)
	require.Len(t, fused.aggregate.Calls, 1)
	assert.True(t, fused.aggregate.Calls[0].Distinct)
	assert.Equal(t, "max(distinct orders.code)", fused.aggregate.Calls[0].String())
}

func TestOptimizeJoinKeyCast(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	orders, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	customers, err := c.NewScan(ctx, "customers", 4)
	require.NoError(t, err)

	combined := types.Schema{}
	combined = append(combined, orders.Schema()...)
	combined = append(combined, customers.Schema()...)

	// orders.id is int, customers.code is tinyint
	cond := NewBinOpPlanExpression(colRef(combined, 0), OpEq, colRef(combined, 8), types.NewDataTypeBool())
	join := NewPlanOpJoin(types.JoinTypeInner, orders, customers, cond)

	optimized, err := c.OptimizePlan(ctx, join)
	require.NoError(t, err)

	kept, ok := optimized.(*PlanOpJoin)
	require.True(t, ok)

	binOp, ok := kept.Condition.(*binOpPlanExpression)
	require.True(t, ok)
	_, lhsCast := binOp.lhs.(*castPlanExpression)
	assert.False(t, lhsCast, "the wider side must not be cast")
	cast, rhsCast := binOp.rhs.(*castPlanExpression)
	require.True(t, rhsCast, "the narrower side must be cast up")
	assert.True(t, types.TypesAreEquivalent(types.NewDataTypeInt(), cast.Type()))
}

func TestOptimizeCalcRetainedAboveJoin(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	orders, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	customers, err := c.NewScan(ctx, "customers", 4)
	require.NoError(t, err)

	combined := types.Schema{}
	combined = append(combined, orders.Schema()...)
	combined = append(combined, customers.Schema()...)

	cond := NewBinOpPlanExpression(colRef(combined, 3), OpEq, colRef(combined, 6), types.NewDataTypeBool())
	join := NewPlanOpJoin(types.JoinTypeInner, orders, customers, cond)
	calc := NewPlanOpCalc([]types.PlanExpression{colRef(combined, 0), colRef(combined, 11)}, nil, join, join.Split())

	optimized, err := c.OptimizePlan(ctx, calc)
	require.NoError(t, err)

	kept, ok := optimized.(*PlanOpCalc)
	require.True(t, ok, "a calc above a join must survive, got %T", optimized)
	assert.Len(t, kept.Schema(), 2)

	child, ok := kept.ChildOp.(*PlanOpJoin)
	require.True(t, ok)

	// bigint vs int join keys get a cast on the int side
	binOp, ok := child.Condition.(*binOpPlanExpression)
	require.True(t, ok)
	_, rhsCast := binOp.rhs.(*castPlanExpression)
	assert.True(t, rhsCast)
}

func TestOptimizeFilterPushdownBelowJoin(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	orders, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	customers, err := c.NewScan(ctx, "customers", 4)
	require.NoError(t, err)

	combined := types.Schema{}
	combined = append(combined, orders.Schema()...)
	combined = append(combined, customers.Schema()...)

	joinCond := NewBinOpPlanExpression(colRef(combined, 3), OpEq, colRef(combined, 9), types.NewDataTypeBool())
	join := NewPlanOpJoin(types.JoinTypeInner, orders, customers, joinCond)

	// orders.price > 1.5 goes left, customers.sku = 'widget' goes right,
	// the cross-side comparison stays on the calc
	leftPred := NewBinOpPlanExpression(colRef(combined, 4), OpGt, NewFloatLiteralPlanExpression(1.5), types.NewDataTypeBool())
	rightPred := NewBinOpPlanExpression(colRef(combined, 11), OpEq, NewStringLiteralPlanExpression("widget"), types.NewDataTypeBool())
	crossPred := NewBinOpPlanExpression(colRef(combined, 0), OpNe, colRef(combined, 6), types.NewDataTypeBool())

	calc := NewPlanOpCalc(
		[]types.PlanExpression{colRef(combined, 0)},
		joinExprsWithAnd(leftPred, rightPred, crossPred),
		join, join.Split())

	optimized, err := c.OptimizePlan(ctx, calc)
	require.NoError(t, err)

	kept, ok := optimized.(*PlanOpCalc)
	require.True(t, ok)
	require.NotNil(t, kept.Condition)
	assert.Len(t, splitOnAnd(kept.Condition), 1, "only the cross-side conjunct should remain on the calc")

	child, ok := kept.ChildOp.(*PlanOpJoin)
	require.True(t, ok)

	top, ok := child.Top.(*PlanOpScan)
	require.True(t, ok)
	require.NotNil(t, top.filter)
	assert.Equal(t, "(orders.price > 1.5)", top.filter.String())

	bottom, ok := child.Bottom.(*PlanOpScan)
	require.True(t, ok)
	require.NotNil(t, bottom.filter)

	// the pushed predicate is remapped from join output position 11 to
	// the right scan's own position 5
	pushed, ok := bottom.filter.(*binOpPlanExpression)
	require.True(t, ok)
	assert.Equal(t, 5, pushed.lhs.(*inputRefPlanExpression).columnIndex)
}

func TestOptimizeFilterPushdownSkipsOuterJoin(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	orders, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	customers, err := c.NewScan(ctx, "customers", 4)
	require.NoError(t, err)

	combined := types.Schema{}
	combined = append(combined, orders.Schema()...)
	combined = append(combined, customers.Schema()...)

	joinCond := NewBinOpPlanExpression(colRef(combined, 0), OpEq, colRef(combined, 6), types.NewDataTypeBool())
	join := NewPlanOpJoin(types.JoinTypeLeft, orders, customers, joinCond)

	pred := NewBinOpPlanExpression(colRef(combined, 7), OpGt, NewIntLiteralPlanExpression(0), types.NewDataTypeBool())
	calc := NewPlanOpCalc([]types.PlanExpression{colRef(combined, 0)}, pred, join, join.Split())

	optimized, err := c.OptimizePlan(ctx, calc)
	require.NoError(t, err)

	kept, ok := optimized.(*PlanOpCalc)
	require.True(t, ok)
	assert.NotNil(t, kept.Condition, "filters above an outer join must stay put")

	child, ok := kept.ChildOp.(*PlanOpJoin)
	require.True(t, ok)
	bottom, ok := child.Bottom.(*PlanOpScan)
	require.True(t, ok)
	assert.Nil(t, bottom.filter)
}

func TestOptimizeJoinKeyTypeMismatchFails(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	orders, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	customers, err := c.NewScan(ctx, "customers", 4)
	require.NoError(t, err)

	combined := types.Schema{}
	combined = append(combined, orders.Schema()...)
	combined = append(combined, customers.Schema()...)

	// orders.sku is a string, customers.id is an int
	cond := NewBinOpPlanExpression(colRef(combined, 5), OpEq, colRef(combined, 6), types.NewDataTypeBool())
	join := NewPlanOpJoin(types.JoinTypeInner, orders, customers, cond)

	_, err = c.OptimizePlan(ctx, join)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrTypeMismatch))
}

func TestOptimizePruneScanColumns(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	base := scan.Schema()
	scan.projections = []types.PlanExpression{colRef(base, 0), colRef(base, 1), colRef(base, 2)}
	projected := scan.Schema()

	calc := NewPlanOpCalc([]types.PlanExpression{colRef(projected, 2)}, nil, scan, scan.Split())

	optimized, err := c.OptimizePlan(ctx, calc)
	require.NoError(t, err)

	kept, ok := optimized.(*PlanOpCalc)
	require.True(t, ok)

	child, ok := kept.ChildOp.(*PlanOpScan)
	require.True(t, ok)
	require.Len(t, child.projections, 1)
	assert.Equal(t, "code", child.Schema()[0].ColumnName)

	ref, ok := kept.Projections[0].(*inputRefPlanExpression)
	require.True(t, ok)
	assert.Equal(t, 0, ref.columnIndex, "calc reference should be remapped to the narrowed scan")
}

func TestOptimizeDanglingReferenceFails(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)

	bad := NewInputRefPlanExpression("orders", "ghost", 9, types.NewDataTypeInt())
	calc := NewPlanOpCalc([]types.PlanExpression{bad}, nil, scan, scan.Split())

	_, err = c.OptimizePlan(ctx, calc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrColumnNotFound))
}

func TestOptimizeFusedAggregateDanglingRefsFail(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	t.Run("group key out of range", func(t *testing.T) {
		scan, err := c.NewScan(ctx, "orders", 4)
		require.NoError(t, err)
		base := scan.Schema()
		scan.projections = []types.PlanExpression{colRef(base, 0), colRef(base, 1)}
		scan.aggregate = &FusedAggregate{Strategy: types.AggregateHash, GroupKeys: []int{5}}

		_, err = c.OptimizePlan(ctx, scan)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sql.ErrColumnNotFound))
	})

	t.Run("having out of range", func(t *testing.T) {
		scan, err := c.NewScan(ctx, "orders", 4)
		require.NoError(t, err)

		// output is one count column, so having may only reference position 0
		having := NewBinOpPlanExpression(
			NewInputRefPlanExpression("", "count(*)", 3, types.NewDataTypeBigInt()),
			OpGt, NewIntLiteralPlanExpression(1), types.NewDataTypeBool())
		scan.aggregate = &FusedAggregate{
			Strategy: types.AggregateSerial,
			Calls:    []*AggregateCall{NewAggregateCall(types.AGGREGATE_COUNT, nil, false)},
			Having:   having,
		}

		_, err = c.OptimizePlan(ctx, scan)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sql.ErrColumnNotFound))
	})
}

func TestOptimizeIsIdempotent(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	scan, err := c.NewScan(ctx, "orders", 4)
	require.NoError(t, err)
	base := scan.Schema()

	cond := NewBinOpPlanExpression(colRef(base, 0), OpGt, NewIntLiteralPlanExpression(0), types.NewDataTypeBool())
	calc := NewPlanOpCalc([]types.PlanExpression{colRef(base, 2), colRef(base, 3)}, cond, scan, scan.Split())
	agg := NewPlanOpAggregate(types.AggregateHash, []int{0}, []*AggregateCall{
		NewAggregateCall(types.AGGREGATE_SUM, colRef(base, 1), false),
	}, nil, calc, scan.Split())
	sort := NewPlanOpSort(nil, NewIntLiteralPlanExpression(20), nil, agg)

	once, err := c.OptimizePlan(ctx, sort)
	require.NoError(t, err)

	twice, err := c.OptimizePlan(ctx, once)
	require.NoError(t, err)

	if diff := cmp.Diff(once.Plan(), twice.Plan()); diff != "" {
		t.Fatalf("second optimization changed the plan (-first +second):\n%s", diff)
	}
}
