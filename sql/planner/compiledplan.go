package planner

import (
	"context"
	"reflect"
	"sync"

	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
	"golang.org/x/sync/errgroup"
)

// mainStatementID addresses the outermost statement of a compiled plan;
// subqueries get positive ids.
const mainStatementID = 0

// StatementPlan is one addressable plan tree within a compiled plan.
type StatementPlan struct {
	ID   int
	Root types.PlanOperator
}

// CompiledPlan is the unit of compilation: the outer statement plus any
// subquery statements, each addressable by id.
type CompiledPlan struct {
	statements map[int]*StatementPlan

	mu         sync.Mutex
	subqueries map[int]*SubqueryContext
}

func NewCompiledPlan(main types.PlanOperator) *CompiledPlan {
	return &CompiledPlan{
		statements: map[int]*StatementPlan{
			mainStatementID: {ID: mainStatementID, Root: main},
		},
		subqueries: make(map[int]*SubqueryContext),
	}
}

// AddSubquery registers a subquery plan under the given positive id.
func (p *CompiledPlan) AddSubquery(id int, root types.PlanOperator) error {
	if id <= mainStatementID {
		return sql.NewErrInternalf("invalid subquery statement id '%d'", id)
	}
	if _, ok := p.statements[id]; ok {
		return sql.NewErrInternalf("duplicate statement id '%d'", id)
	}
	p.statements[id] = &StatementPlan{ID: id, Root: root}
	return nil
}

// Statement returns the plan registered under id, or nil.
func (p *CompiledPlan) Statement(id int) *StatementPlan {
	return p.statements[id]
}

// Main returns the outer statement plan.
func (p *CompiledPlan) Main() *StatementPlan {
	return p.statements[mainStatementID]
}

// StatementIDs returns all registered statement ids in no particular order.
func (p *CompiledPlan) StatementIDs() []int {
	ids := make([]int, 0, len(p.statements))
	for id := range p.statements {
		ids = append(ids, id)
	}
	return ids
}

// Subquery returns the execution-time context for the given subquery,
// creating it on first use.
func (p *CompiledPlan) Subquery(id int) *SubqueryContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	sc, ok := p.subqueries[id]
	if !ok {
		sc = &SubqueryContext{statementID: id}
		p.subqueries[id] = sc
	}
	return sc
}

// OptimizeStatements runs the optimizer over every statement in the plan.
// Statements are independent trees, so they optimize concurrently.
func (p *CompiledPlan) OptimizeStatements(ctx context.Context, c *CompilationContext) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, stmt := range p.statements {
		stmt := stmt
		eg.Go(func() error {
			root, err := c.OptimizePlan(egCtx, stmt.Root)
			if err != nil {
				return err
			}
			stmt.Root = root
			return nil
		})
	}
	return eg.Wait()
}

// SubqueryContext memoizes the last evaluation of a correlated subquery so
// that re-evaluation with identical outer parameters reuses the prior
// result.
type SubqueryContext struct {
	statementID int

	mu         sync.Mutex
	hasResult  bool
	lastParams []interface{}
	lastResult interface{}
}

func (s *SubqueryContext) StatementID() int {
	return s.statementID
}

// Matches reports whether a cached result exists for the given parameters
// and returns it if so.
func (s *SubqueryContext) Matches(params []interface{}) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasResult {
		return nil, false
	}
	if !reflect.DeepEqual(s.lastParams, params) {
		return nil, false
	}
	return s.lastResult, true
}

// Store records the result of evaluating the subquery with the given
// parameters, replacing any prior entry.
func (s *SubqueryContext) Store(params []interface{}, result interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasResult = true
	s.lastParams = params
	s.lastResult = result
}

// Invalidate drops the cached result.
func (s *SubqueryContext) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasResult = false
	s.lastParams = nil
	s.lastResult = nil
}
