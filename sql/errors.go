package sql

import (
	"fmt"
	"runtime"

	"github.com/quartzdb/quartz/errors"
)

const (
	ErrInternal errors.Code = "ErrInternal"

	ErrTableNotFound  errors.Code = "ErrTableNotFound"
	ErrColumnNotFound errors.Code = "ErrColumnNotFound"

	ErrTypeMismatch errors.Code = "ErrTypeMismatch"
)

func NewErrInternalf(format string, a ...interface{}) error {
	preamble := "internal error"
	_, filename, line, ok := runtime.Caller(1)
	if ok {
		preamble = fmt.Sprintf("internal error (%s:%d)", filename, line)
	}
	errorMessage := fmt.Sprintf(format, a...)
	return errors.New(
		ErrInternal,
		fmt.Sprintf("%s %s", preamble, errorMessage),
	)
}

func NewErrTableNotFound(tableName string) error {
	return errors.New(
		ErrTableNotFound,
		fmt.Sprintf("table '%s' not found", tableName),
	)
}

func NewErrColumnRefOutOfRange(columnIndex int, arity int) error {
	return errors.New(
		ErrColumnNotFound,
		fmt.Sprintf("column reference '%d' out of range for schema of width '%d'", columnIndex, arity),
	)
}

func NewErrTypeMismatch(type1, type2 string) error {
	return errors.New(
		ErrTypeMismatch,
		fmt.Sprintf("types '%s' and '%s' are not equatable", type1, type2),
	)
}
