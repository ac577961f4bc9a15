package types

import (
	"fmt"
)

// PlanOperator is an operator node in an execution plan
type PlanOperator interface {
	fmt.Stringer

	// the output schema for this operator
	Schema() Schema

	// the child operators for this operator
	Children() []PlanOperator

	// creates a new operator node with the children replaced
	WithChildren(children ...PlanOperator) (PlanOperator, error)

	// the number of partitions the subtree rooted at this operator executes
	// across; assigned by upstream planning and propagated, never computed
	Split() int

	// true if this operator executes at a result-merging tier
	Coordinator() bool

	// returns a map containing a rich description of this operator; intended
	// to be marshalled into json
	Plan() map[string]interface{}

	AddWarning(warning string)
	Warnings() []string
}

// ContainsExpressions is implemented by operators that hold expressions
type ContainsExpressions interface {
	// the expressions held by this operator, in a stable order
	Expressions() []PlanExpression

	// creates a new operator node with the expressions replaced, in the order
	// returned by Expressions()
	WithUpdatedExpressions(exprs ...PlanExpression) (PlanOperator, error)
}

// OrderedRelation is implemented by operators whose output ordering is known
// from upstream planning (e.g. an ordered access path). Ordering returns the
// output column positions the rows are sorted on, leading column first, or
// nil when no ordering is known.
type OrderedRelation interface {
	Ordering() []int
}

// FilteredRelation is implemented by operators that can absorb a filter
// predicate directly.
type FilteredRelation interface {
	UpdateFilters(filterCondition PlanExpression) (PlanOperator, error)
}

// SortDirection is the direction of a sort key.
type SortDirection int

const (
	SortAscending SortDirection = iota
	SortDescending
)

func (d SortDirection) String() string {
	if d == SortDescending {
		return "desc"
	}
	return "asc"
}

// JoinType is the join variant for a join operator.
type JoinType int

const (
	JoinTypeInner JoinType = iota
	JoinTypeLeft
)

func (j JoinType) String() string {
	if j == JoinTypeLeft {
		return "left"
	}
	return "inner"
}

// AggregateStrategy selects how grouped rows are accumulated.
type AggregateStrategy int

const (
	// AggregateSerial accumulates in one pass; legal for a global aggregate
	// or when the input is already ordered on the grouping keys.
	AggregateSerial AggregateStrategy = iota
	// AggregateHash accumulates into a hash table keyed by the group columns.
	AggregateHash
)

func (s AggregateStrategy) String() string {
	if s == AggregateHash {
		return "hash"
	}
	return "serial"
}

// PlannerColumn is the definition of a column in an operator's output schema
type PlannerColumn struct {
	ColumnName   string
	RelationName string
	AliasName    string
	Type         ExprDataType
}

// Schema is the definition of an operator's output
type Schema []*PlannerColumn

// Plan returns a description of the schema for plan marshalling.
func (s Schema) Plan() []string {
	result := make([]string, 0, len(s))
	for _, c := range s {
		result = append(result, fmt.Sprintf("'%s', '%s', '%s'", c.ColumnName, c.RelationName, c.Type.TypeDescription()))
	}
	return result
}

// TableInfo describes a base table to the planner.
type TableInfo struct {
	Name    string
	Columns []*PlannerColumn
}
