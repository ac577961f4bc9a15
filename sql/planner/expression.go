package planner

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
)

// Op is a scalar operator token for unary and binary expressions.
type Op int

const (
	OpIllegal Op = iota

	OpAnd
	OpOr
	OpNot

	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	OpPlus
	OpMinus
	OpStar
	OpSlash
	OpRem

	OpConcat
	OpLike
)

func (op Op) String() string {
	switch op {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpStar:
		return "*"
	case OpSlash:
		return "/"
	case OpRem:
		return "%"
	case OpConcat:
		return "||"
	case OpLike:
		return "like"
	default:
		return "illegal"
	}
}

// comparisonOp returns true for operators whose operands must be of
// equatable types.
func comparisonOp(op Op) bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	default:
		return false
	}
}

// inputRefPlanExpression is a reference to a column position in the
// containing operator's child output (for a scan, in the base table schema).
type inputRefPlanExpression struct {
	types.IdentifiableByName
	relationName string
	columnName   string
	columnIndex  int
	dataType     types.ExprDataType
}

// NewInputRefPlanExpression returns a column reference expression.
func NewInputRefPlanExpression(relationName string, columnName string, columnIndex int, dataType types.ExprDataType) types.PlanExpression {
	return newInputRefPlanExpression(relationName, columnName, columnIndex, dataType)
}

func newInputRefPlanExpression(relationName string, columnName string, columnIndex int, dataType types.ExprDataType) *inputRefPlanExpression {
	return &inputRefPlanExpression{
		relationName: relationName,
		columnName:   columnName,
		columnIndex:  columnIndex,
		dataType:     dataType,
	}
}

func (n *inputRefPlanExpression) Name() string {
	return n.columnName
}

func (n *inputRefPlanExpression) Type() types.ExprDataType {
	return n.dataType
}

func (n *inputRefPlanExpression) String() string {
	if len(n.relationName) > 0 {
		return fmt.Sprintf("%s.%s", n.relationName, n.columnName)
	}
	if len(n.columnName) > 0 {
		return n.columnName
	}
	return fmt.Sprintf("$%d", n.columnIndex)
}

func (n *inputRefPlanExpression) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", n)
	result["relationName"] = n.relationName
	result["columnName"] = n.columnName
	result["columnIndex"] = n.columnIndex
	result["dataType"] = n.dataType.TypeDescription()
	return result
}

func (n *inputRefPlanExpression) Children() []types.PlanExpression {
	return []types.PlanExpression{}
}

func (n *inputRefPlanExpression) WithChildren(children ...types.PlanExpression) (types.PlanExpression, error) {
	if len(children) != 0 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return n, nil
}

type intLiteralPlanExpression struct {
	value int64
}

// NewIntLiteralPlanExpression returns an integer literal expression.
func NewIntLiteralPlanExpression(value int64) types.PlanExpression {
	return &intLiteralPlanExpression{
		value: value,
	}
}

func (n *intLiteralPlanExpression) Type() types.ExprDataType {
	return types.NewDataTypeInt()
}

func (n *intLiteralPlanExpression) String() string {
	return fmt.Sprintf("%d", n.value)
}

func (n *intLiteralPlanExpression) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", n)
	result["value"] = n.value
	return result
}

func (n *intLiteralPlanExpression) Children() []types.PlanExpression {
	return []types.PlanExpression{}
}

func (n *intLiteralPlanExpression) WithChildren(children ...types.PlanExpression) (types.PlanExpression, error) {
	if len(children) != 0 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return n, nil
}

type floatLiteralPlanExpression struct {
	value float64
}

// NewFloatLiteralPlanExpression returns a float literal expression.
func NewFloatLiteralPlanExpression(value float64) types.PlanExpression {
	return &floatLiteralPlanExpression{
		value: value,
	}
}

func (n *floatLiteralPlanExpression) Type() types.ExprDataType {
	return types.NewDataTypeFloat()
}

func (n *floatLiteralPlanExpression) String() string {
	return fmt.Sprintf("%v", n.value)
}

func (n *floatLiteralPlanExpression) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", n)
	result["value"] = n.value
	return result
}

func (n *floatLiteralPlanExpression) Children() []types.PlanExpression {
	return []types.PlanExpression{}
}

func (n *floatLiteralPlanExpression) WithChildren(children ...types.PlanExpression) (types.PlanExpression, error) {
	if len(children) != 0 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return n, nil
}

type stringLiteralPlanExpression struct {
	value string
}

// NewStringLiteralPlanExpression returns a string literal expression.
func NewStringLiteralPlanExpression(value string) types.PlanExpression {
	return &stringLiteralPlanExpression{
		value: value,
	}
}

func (n *stringLiteralPlanExpression) Type() types.ExprDataType {
	return types.NewDataTypeString()
}

func (n *stringLiteralPlanExpression) String() string {
	return fmt.Sprintf("'%s'", n.value)
}

func (n *stringLiteralPlanExpression) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", n)
	result["value"] = n.value
	return result
}

func (n *stringLiteralPlanExpression) Children() []types.PlanExpression {
	return []types.PlanExpression{}
}

func (n *stringLiteralPlanExpression) WithChildren(children ...types.PlanExpression) (types.PlanExpression, error) {
	if len(children) != 0 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return n, nil
}

type boolLiteralPlanExpression struct {
	value bool
}

// NewBoolLiteralPlanExpression returns a boolean literal expression.
func NewBoolLiteralPlanExpression(value bool) types.PlanExpression {
	return &boolLiteralPlanExpression{
		value: value,
	}
}

func (n *boolLiteralPlanExpression) Type() types.ExprDataType {
	return types.NewDataTypeBool()
}

func (n *boolLiteralPlanExpression) String() string {
	return fmt.Sprintf("%t", n.value)
}

func (n *boolLiteralPlanExpression) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", n)
	result["value"] = n.value
	return result
}

func (n *boolLiteralPlanExpression) Children() []types.PlanExpression {
	return []types.PlanExpression{}
}

func (n *boolLiteralPlanExpression) WithChildren(children ...types.PlanExpression) (types.PlanExpression, error) {
	if len(children) != 0 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return n, nil
}

type binOpPlanExpression struct {
	lhs types.PlanExpression
	op  Op
	rhs types.PlanExpression

	resultDataType types.ExprDataType
}

// NewBinOpPlanExpression returns a binary operator expression.
func NewBinOpPlanExpression(lhs types.PlanExpression, op Op, rhs types.PlanExpression, dataType types.ExprDataType) types.PlanExpression {
	return newBinOpPlanExpression(lhs, op, rhs, dataType)
}

func newBinOpPlanExpression(lhs types.PlanExpression, op Op, rhs types.PlanExpression, dataType types.ExprDataType) *binOpPlanExpression {
	return &binOpPlanExpression{
		lhs:            lhs,
		op:             op,
		rhs:            rhs,
		resultDataType: dataType,
	}
}

func (n *binOpPlanExpression) Type() types.ExprDataType {
	return n.resultDataType
}

func (n *binOpPlanExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", n.lhs.String(), n.op.String(), n.rhs.String())
}

func (n *binOpPlanExpression) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", n)
	result["op"] = n.op.String()
	result["lhs"] = n.lhs.Plan()
	result["rhs"] = n.rhs.Plan()
	result["dataType"] = n.resultDataType.TypeDescription()
	return result
}

func (n *binOpPlanExpression) Children() []types.PlanExpression {
	return []types.PlanExpression{
		n.lhs,
		n.rhs,
	}
}

func (n *binOpPlanExpression) WithChildren(children ...types.PlanExpression) (types.PlanExpression, error) {
	if len(children) != 2 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return newBinOpPlanExpression(children[0], n.op, children[1], n.resultDataType), nil
}

type unaryOpPlanExpression struct {
	op  Op
	rhs types.PlanExpression

	resultDataType types.ExprDataType
}

// NewUnaryOpPlanExpression returns a unary operator expression.
func NewUnaryOpPlanExpression(op Op, rhs types.PlanExpression, dataType types.ExprDataType) types.PlanExpression {
	return &unaryOpPlanExpression{
		op:             op,
		rhs:            rhs,
		resultDataType: dataType,
	}
}

func (n *unaryOpPlanExpression) Type() types.ExprDataType {
	return n.resultDataType
}

func (n *unaryOpPlanExpression) String() string {
	return fmt.Sprintf("(%s %s)", n.op.String(), n.rhs.String())
}

func (n *unaryOpPlanExpression) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", n)
	result["op"] = n.op.String()
	result["rhs"] = n.rhs.Plan()
	result["dataType"] = n.resultDataType.TypeDescription()
	return result
}

func (n *unaryOpPlanExpression) Children() []types.PlanExpression {
	return []types.PlanExpression{
		n.rhs,
	}
}

func (n *unaryOpPlanExpression) WithChildren(children ...types.PlanExpression) (types.PlanExpression, error) {
	if len(children) != 1 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return &unaryOpPlanExpression{op: n.op, rhs: children[0], resultDataType: n.resultDataType}, nil
}

// callPlanExpression is a named scalar function call (abs, upper, ...).
type callPlanExpression struct {
	name string
	args []types.PlanExpression

	returnDataType types.ExprDataType
}

// NewCallPlanExpression returns a scalar function call expression.
func NewCallPlanExpression(name string, args []types.PlanExpression, returnDataType types.ExprDataType) types.PlanExpression {
	return &callPlanExpression{
		name:           name,
		args:           args,
		returnDataType: returnDataType,
	}
}

func (n *callPlanExpression) Type() types.ExprDataType {
	return n.returnDataType
}

func (n *callPlanExpression) String() string {
	args := make([]string, 0, len(n.args))
	for _, a := range n.args {
		args = append(args, a.String())
	}
	return fmt.Sprintf("%s(%s)", strings.ToLower(n.name), strings.Join(args, ", "))
}

func (n *callPlanExpression) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", n)
	result["name"] = n.name
	ps := make([]interface{}, 0, len(n.args))
	for _, a := range n.args {
		ps = append(ps, a.Plan())
	}
	result["args"] = ps
	result["dataType"] = n.returnDataType.TypeDescription()
	return result
}

func (n *callPlanExpression) Children() []types.PlanExpression {
	return n.args
}

func (n *callPlanExpression) WithChildren(children ...types.PlanExpression) (types.PlanExpression, error) {
	if len(children) != len(n.args) {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return NewCallPlanExpression(n.name, children, n.returnDataType), nil
}

// castPlanExpression coerces its operand to a target type. The optimizer
// inserts casts when operand types on either side of a comparison or join
// key differ.
type castPlanExpression struct {
	arg        types.PlanExpression
	targetType types.ExprDataType
}

// NewCastPlanExpression returns a cast expression.
func NewCastPlanExpression(arg types.PlanExpression, targetType types.ExprDataType) types.PlanExpression {
	return newCastPlanExpression(arg, targetType)
}

func newCastPlanExpression(arg types.PlanExpression, targetType types.ExprDataType) *castPlanExpression {
	return &castPlanExpression{
		arg:        arg,
		targetType: targetType,
	}
}

func (n *castPlanExpression) Type() types.ExprDataType {
	return n.targetType
}

func (n *castPlanExpression) String() string {
	return fmt.Sprintf("cast(%s as %s)", n.arg.String(), n.targetType.TypeDescription())
}

func (n *castPlanExpression) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", n)
	result["arg"] = n.arg.Plan()
	result["targetType"] = n.targetType.TypeDescription()
	return result
}

func (n *castPlanExpression) Children() []types.PlanExpression {
	return []types.PlanExpression{
		n.arg,
	}
}

func (n *castPlanExpression) WithChildren(children ...types.PlanExpression) (types.PlanExpression, error) {
	if len(children) != 1 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return newCastPlanExpression(children[0], n.targetType), nil
}

// subqueryPlanExpression references a nested statement by its statement id.
// The statement's plan lives in the enclosing CompiledPlan; keeping only the
// id here keeps each subquery plan self-contained and addressable across
// repeated invocations within one transaction.
type subqueryPlanExpression struct {
	statementID int
	dataType    types.ExprDataType
}

// NewSubqueryPlanExpression returns a reference to a nested statement.
func NewSubqueryPlanExpression(statementID int, dataType types.ExprDataType) types.PlanExpression {
	return &subqueryPlanExpression{
		statementID: statementID,
		dataType:    dataType,
	}
}

func (n *subqueryPlanExpression) Type() types.ExprDataType {
	return n.dataType
}

func (n *subqueryPlanExpression) String() string {
	return fmt.Sprintf("subquery(%d)", n.statementID)
}

func (n *subqueryPlanExpression) Plan() map[string]interface{} {
	result := make(map[string]interface{})
	result["_expr"] = fmt.Sprintf("%T", n)
	result["statementID"] = n.statementID
	result["dataType"] = n.dataType.TypeDescription()
	return result
}

func (n *subqueryPlanExpression) Children() []types.PlanExpression {
	return []types.PlanExpression{}
}

func (n *subqueryPlanExpression) WithChildren(children ...types.PlanExpression) (types.PlanExpression, error) {
	if len(children) != 0 {
		return nil, sql.NewErrInternalf("unexpected number of children '%d'", len(children))
	}
	return n, nil
}

// joinExprsWithAnd returns an expression given a list of expressions; if the
// list is > 2 expressions, all the individual expressions are ANDed together
func joinExprsWithAnd(exprs ...types.PlanExpression) types.PlanExpression {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	default:
		result := newBinOpPlanExpression(exprs[0], OpAnd, exprs[1], types.NewDataTypeBool())
		for _, e := range exprs[2:] {
			result = newBinOpPlanExpression(result, OpAnd, e, types.NewDataTypeBool())
		}
		return result
	}
}

// splitOnAnd breaks binops that are AND expressions into a list recursively
func splitOnAnd(expr types.PlanExpression) []types.PlanExpression {
	binOp, ok := expr.(*binOpPlanExpression)
	if !ok || binOp.op != OpAnd {
		return []types.PlanExpression{
			expr,
		}
	}

	return append(
		splitOnAnd(binOp.lhs),
		splitOnAnd(binOp.rhs)...,
	)
}

// expressionsEqual reports structural equality of two expressions.
func expressionsEqual(lhs, rhs types.PlanExpression) bool {
	return reflect.DeepEqual(lhs, rhs)
}

// ExpressionToColumn derives the output column definition for a projected
// expression.
func ExpressionToColumn(e types.PlanExpression) *types.PlannerColumn {
	var name string
	if n, ok := e.(types.IdentifiableByName); ok {
		name = n.Name()
	} else {
		name = e.String()
	}

	var table string
	if ref, ok := e.(*inputRefPlanExpression); ok {
		table = ref.relationName
	}

	return &types.PlannerColumn{
		ColumnName:   name,
		RelationName: table,
		Type:         e.Type(),
	}
}

// referencedColumns returns the set of child output positions referenced by
// the expressions.
func referencedColumns(exprs ...types.PlanExpression) map[int]bool {
	refs := make(map[int]bool)
	for _, expr := range exprs {
		if expr == nil {
			continue
		}
		InspectExpression(expr, func(e types.PlanExpression) bool {
			if ref, ok := e.(*inputRefPlanExpression); ok {
				refs[ref.columnIndex] = true
			}
			return true
		})
	}
	return refs
}

// validateExpressionRefs confirms every input reference in expr is in range
// for a child schema of the given width.
func validateExpressionRefs(expr types.PlanExpression, arity int) error {
	var refErr error
	InspectExpression(expr, func(e types.PlanExpression) bool {
		if refErr != nil {
			return false
		}
		if ref, ok := e.(*inputRefPlanExpression); ok {
			if ref.columnIndex < 0 || ref.columnIndex >= arity {
				refErr = sql.NewErrColumnRefOutOfRange(ref.columnIndex, arity)
				return false
			}
		}
		return true
	})
	return refErr
}

// widerNumericType returns the wider of two numeric types, and false when
// either type is not numeric or the widths already agree.
func widerNumericType(lhs, rhs types.ExprDataType) (types.ExprDataType, bool) {
	lw := types.NumericTypeWidth(lhs)
	rw := types.NumericTypeWidth(rhs)
	if lw == 0 || rw == 0 || lw == rw {
		return nil, false
	}
	if lw > rw {
		return lhs, true
	}
	return rhs, true
}
