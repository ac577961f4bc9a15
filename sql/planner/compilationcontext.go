package planner

import (
	"context"

	"github.com/google/uuid"
	"github.com/quartzdb/quartz/logger"
	"github.com/quartzdb/quartz/sql"
	"github.com/quartzdb/quartz/sql/planner/types"
)

// SchemaAPI resolves table metadata for plan construction.
type SchemaAPI interface {
	TableByName(ctx context.Context, tableName string) (*types.TableInfo, error)
}

// defaultMaxOptimizerPasses bounds the rewrite loop; a well formed rule set
// reaches fixpoint in a handful of passes, so hitting the cap means a rule
// is oscillating.
const defaultMaxOptimizerPasses = 64

// CompilationContext carries everything plan compilation and optimization
// need: the catalog, a logger and a request id for log correlation. It holds
// no per-plan mutable state, so one context can optimize many statements
// concurrently.
type CompilationContext struct {
	schemaAPI SchemaAPI
	logger    logger.Logger
	requestID uuid.UUID
	maxPasses int
}

func NewCompilationContext(schemaAPI SchemaAPI, l logger.Logger) *CompilationContext {
	if l == nil {
		l = logger.NopLogger
	}
	return &CompilationContext{
		schemaAPI: schemaAPI,
		logger:    l,
		requestID: uuid.New(),
		maxPasses: defaultMaxOptimizerPasses,
	}
}

func (c *CompilationContext) Logger() logger.Logger {
	return c.logger
}

func (c *CompilationContext) RequestID() uuid.UUID {
	return c.requestID
}

// NewScan builds a scan over the named table with the table's full schema.
func (c *CompilationContext) NewScan(ctx context.Context, tableName string, split int) (*PlanOpScan, error) {
	tbl, err := c.schemaAPI.TableByName(ctx, tableName)
	if err != nil {
		return nil, sql.NewErrTableNotFound(tableName)
	}
	return NewPlanOpScan(tbl.Name, tbl.Columns, split), nil
}
