package types

import (
	"fmt"
)

// ExprDataType is the interface for all plan-level column and expression types
type ExprDataType interface {
	exprDataType()
	// the base type name e.g. int or decimal
	BaseTypeName() string
	// additional type information - intended to be used outside the planner
	// (marshalled over json, or otherwise serialized so that consumers
	// have access to complete type information)
	TypeInfo() map[string]interface{}
	// the full type specification as a string - intended to be human readable
	TypeDescription() string
}

func (*DataTypeVoid) exprDataType()      {}
func (*DataTypeBool) exprDataType()      {}
func (*DataTypeTinyInt) exprDataType()   {}
func (*DataTypeSmallInt) exprDataType()  {}
func (*DataTypeInt) exprDataType()       {}
func (*DataTypeBigInt) exprDataType()    {}
func (*DataTypeFloat) exprDataType()     {}
func (*DataTypeDecimal) exprDataType()   {}
func (*DataTypeString) exprDataType()    {}
func (*DataTypeTimestamp) exprDataType() {}

type DataTypeVoid struct {
}

func NewDataTypeVoid() *DataTypeVoid {
	return &DataTypeVoid{}
}

func (*DataTypeVoid) BaseTypeName() string {
	return "void"
}

func (dt *DataTypeVoid) TypeDescription() string {
	return dt.BaseTypeName()
}

func (*DataTypeVoid) TypeInfo() map[string]interface{} {
	return nil
}

type DataTypeBool struct {
}

func NewDataTypeBool() *DataTypeBool {
	return &DataTypeBool{}
}

func (*DataTypeBool) BaseTypeName() string {
	return "bool"
}

func (dt *DataTypeBool) TypeDescription() string {
	return dt.BaseTypeName()
}

func (*DataTypeBool) TypeInfo() map[string]interface{} {
	return nil
}

type DataTypeTinyInt struct {
}

func NewDataTypeTinyInt() *DataTypeTinyInt {
	return &DataTypeTinyInt{}
}

func (*DataTypeTinyInt) BaseTypeName() string {
	return "tinyint"
}

func (dt *DataTypeTinyInt) TypeDescription() string {
	return dt.BaseTypeName()
}

func (*DataTypeTinyInt) TypeInfo() map[string]interface{} {
	return nil
}

type DataTypeSmallInt struct {
}

func NewDataTypeSmallInt() *DataTypeSmallInt {
	return &DataTypeSmallInt{}
}

func (*DataTypeSmallInt) BaseTypeName() string {
	return "smallint"
}

func (dt *DataTypeSmallInt) TypeDescription() string {
	return dt.BaseTypeName()
}

func (*DataTypeSmallInt) TypeInfo() map[string]interface{} {
	return nil
}

type DataTypeInt struct {
}

func NewDataTypeInt() *DataTypeInt {
	return &DataTypeInt{}
}

func (*DataTypeInt) BaseTypeName() string {
	return "int"
}

func (dt *DataTypeInt) TypeDescription() string {
	return dt.BaseTypeName()
}

func (*DataTypeInt) TypeInfo() map[string]interface{} {
	return nil
}

type DataTypeBigInt struct {
}

func NewDataTypeBigInt() *DataTypeBigInt {
	return &DataTypeBigInt{}
}

func (*DataTypeBigInt) BaseTypeName() string {
	return "bigint"
}

func (dt *DataTypeBigInt) TypeDescription() string {
	return dt.BaseTypeName()
}

func (*DataTypeBigInt) TypeInfo() map[string]interface{} {
	return nil
}

type DataTypeFloat struct {
}

func NewDataTypeFloat() *DataTypeFloat {
	return &DataTypeFloat{}
}

func (*DataTypeFloat) BaseTypeName() string {
	return "float"
}

func (dt *DataTypeFloat) TypeDescription() string {
	return dt.BaseTypeName()
}

func (*DataTypeFloat) TypeInfo() map[string]interface{} {
	return nil
}

type DataTypeDecimal struct {
	Scale int64
}

func NewDataTypeDecimal(scale int64) *DataTypeDecimal {
	return &DataTypeDecimal{
		Scale: scale,
	}
}

func (d *DataTypeDecimal) BaseTypeName() string {
	return "decimal"
}

func (d *DataTypeDecimal) TypeDescription() string {
	return fmt.Sprintf("%s(%d)", d.BaseTypeName(), d.Scale)
}

func (d *DataTypeDecimal) TypeInfo() map[string]interface{} {
	return map[string]interface{}{
		"scale": d.Scale,
	}
}

type DataTypeString struct {
}

func NewDataTypeString() *DataTypeString {
	return &DataTypeString{}
}

func (*DataTypeString) BaseTypeName() string {
	return "string"
}

func (dt *DataTypeString) TypeDescription() string {
	return dt.BaseTypeName()
}

func (*DataTypeString) TypeInfo() map[string]interface{} {
	return nil
}

type DataTypeTimestamp struct {
}

func NewDataTypeTimestamp() *DataTypeTimestamp {
	return &DataTypeTimestamp{}
}

func (*DataTypeTimestamp) BaseTypeName() string {
	return "timestamp"
}

func (dt *DataTypeTimestamp) TypeDescription() string {
	return dt.BaseTypeName()
}

func (*DataTypeTimestamp) TypeInfo() map[string]interface{} {
	return nil
}

// NumericTypeWidth returns the relative width of a numeric type, wider types
// having larger values, or 0 if the type is not numeric. Used to decide which
// side of a type-mismatched comparison gets cast up.
func NumericTypeWidth(dt ExprDataType) int {
	switch dt.(type) {
	case *DataTypeTinyInt:
		return 1
	case *DataTypeSmallInt:
		return 2
	case *DataTypeInt:
		return 3
	case *DataTypeBigInt:
		return 4
	case *DataTypeDecimal:
		return 5
	case *DataTypeFloat:
		return 6
	default:
		return 0
	}
}

// TypesAreEquivalent returns true if two types have the same concrete shape.
func TypesAreEquivalent(lhs, rhs ExprDataType) bool {
	if lhs == nil || rhs == nil {
		return lhs == rhs
	}
	return lhs.TypeDescription() == rhs.TypeDescription()
}
