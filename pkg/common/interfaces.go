package common

import (
	"context"
)

// Database interface designed to work with both GORM and Bun
type Database interface {
	// NewSelect starts a new SELECT query builder
	NewSelect() SelectQuery

	// Raw SQL execution
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
	Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// GetUnderlyingDB returns the underlying database connection
	// For GORM, this returns *gorm.DB
	// For Bun, this returns *bun.DB
	GetUnderlyingDB() interface{}

	// DriverName returns the canonical name of the underlying database driver.
	// Possible values: "postgres", "sqlite", "mysql".
	// All adapters normalise vendor-specific strings (e.g. Bun's "pg") to the
	// values above before returning.
	DriverName() string
}

// SelectQuery interface for building SELECT queries (compatible with both GORM and Bun).
// Implementations are accumulating builders: every method mutates and returns the
// same query so a compiled plan can be applied incrementally.
type SelectQuery interface {
	Model(model interface{}) SelectQuery
	Table(table string) SelectQuery
	Column(columns ...string) SelectQuery
	ColumnExpr(query string, args ...interface{}) SelectQuery
	// ExcludeColumn removes concrete columns from the projection. Bun supports
	// this natively; the GORM adapter maps it to Omit.
	ExcludeColumn(columns ...string) SelectQuery
	Where(query string, args ...interface{}) SelectQuery
	WhereOr(query string, args ...interface{}) SelectQuery
	Join(query string, args ...interface{}) SelectQuery
	LeftJoin(query string, args ...interface{}) SelectQuery

	// JoinRelation resolves a single-valued relation eagerly via a JOIN on the
	// same query (select-related semantics).
	JoinRelation(relation string, apply ...func(SelectQuery) SelectQuery) SelectQuery

	// PreloadRelation declares a batched secondary query for a relation. The
	// apply functions customize the sub-query (filtering, column selection,
	// nested preloads).
	PreloadRelation(relation string, apply ...func(SelectQuery) SelectQuery) SelectQuery

	// PreloadRelationAs is PreloadRelation with a target-attribute alias: the
	// prefetched rows are exposed under toAttr rather than the relation name.
	// ORMs hydrate into the relation's struct field; alias materialization is
	// resolved by the access layer, but the alias participates in relation
	// bookkeeping so duplicate plans are detected.
	PreloadRelationAs(relation, toAttr string, apply ...func(SelectQuery) SelectQuery) SelectQuery

	// HasRelation reports whether a join or preload was already applied under
	// the given key. Used by plan compilation to stay idempotent.
	HasRelation(key string) bool
	// AppliedRelations returns the keys of all joins/preloads applied so far,
	// in application order.
	AppliedRelations() []string

	Order(order string) SelectQuery
	Limit(n int) SelectQuery
	Offset(n int) SelectQuery
	Group(group string) SelectQuery
	Having(having string, args ...interface{}) SelectQuery

	// Execution methods
	Scan(ctx context.Context, dest interface{}) error
	ScanModel(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Exists(ctx context.Context) (bool, error)
}

// Result interface for query execution results
type Result interface {
	RowsAffected() int64
	LastInsertId() (int64, error)
}

// ModelRegistry manages model registration and retrieval
type ModelRegistry interface {
	RegisterModel(name string, model interface{}) error
	GetModel(name string) (interface{}, error)
	GetAllModels() map[string]interface{}
}

// TableNameProvider interface for models that provide table names
type TableNameProvider interface {
	TableName() string
}

// TableAliasProvider interface for models that provide a table alias
type TableAliasProvider interface {
	TableAlias() string
}

// PrimaryKeyNameProvider interface for models that provide primary key column names
type PrimaryKeyNameProvider interface {
	GetIDName() string
}
