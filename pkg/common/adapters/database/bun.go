package database

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/bitechdev/VirtualSpec/pkg/common"
	"github.com/bitechdev/VirtualSpec/pkg/logger"
	"github.com/bitechdev/VirtualSpec/pkg/reflection"
)

// QueryDebugHook is a Bun query hook that logs all SQL queries including preloads
type QueryDebugHook struct{}

func (h *QueryDebugHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryDebugHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	query := event.Query
	duration := time.Since(event.StartTime)

	if event.Err != nil {
		logger.Error("SQL Query Failed [%s]: %s. Error: %v", duration, query, event.Err)
	} else {
		logger.Debug("SQL Query Success [%s]: %s", duration, query)
	}
}

// BunAdapter adapts Bun to work with our Database interface
type BunAdapter struct {
	db *bun.DB
}

// NewBunAdapter creates a new Bun adapter
func NewBunAdapter(db *bun.DB) *BunAdapter {
	return &BunAdapter{db: db}
}

// EnableQueryDebug enables query debugging which logs all SQL queries including preloads
// This is useful for debugging preload queries that may be failing
func (b *BunAdapter) EnableQueryDebug() {
	b.db.AddQueryHook(&QueryDebugHook{})
	logger.Info("Bun query debug mode enabled - all SQL queries will be logged")
}

func (b *BunAdapter) NewSelect() common.SelectQuery {
	return &BunSelectQuery{
		query: b.db.NewSelect(),
		db:    b.db,
	}
}

func (b *BunAdapter) Exec(ctx context.Context, query string, args ...interface{}) (res common.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logger.HandlePanic("BunAdapter.Exec", r)
		}
	}()
	result, err := b.db.ExecContext(ctx, query, args...)
	return &BunResult{result: result}, err
}

func (b *BunAdapter) Query(ctx context.Context, dest interface{}, query string, args ...interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logger.HandlePanic("BunAdapter.Query", r)
		}
	}()
	return b.db.NewRaw(query, args...).Scan(ctx, dest)
}

func (b *BunAdapter) GetUnderlyingDB() interface{} {
	return b.db
}

func (b *BunAdapter) DriverName() string {
	return normalizeDriverName(b.db.Dialect().Name().String())
}

// BunSelectQuery implements SelectQuery for Bun
type BunSelectQuery struct {
	query            *bun.SelectQuery
	db               bun.IDB // Store DB connection for count queries
	hasModel         bool    // Track if Model() was called
	schema           string  // Separated schema name
	tableName        string  // Just the table name, without schema
	tableAlias       string
	deferredPreloads []deferredPreload // Preloads to execute as separate queries
	inJoinContext    bool              // Track if we're in a JOIN relation context
	joinTableAlias   string            // Alias to use for JOIN conditions

	pendingExprs []columnExpr // computed columns, applied on scan
	excludedCols []string     // columns kept out of the projection

	applied    []string // relation keys in application order
	appliedSet map[string]struct{}
}

// columnExpr is a computed column waiting to be added to the projection.
type columnExpr struct {
	query string
	args  []interface{}
}

// deferredPreload represents a preload that will be executed as a separate query
// to avoid PostgreSQL identifier length limits
type deferredPreload struct {
	relation string
	apply    []func(common.SelectQuery) common.SelectQuery
}

func (b *BunSelectQuery) markRelation(key string) {
	if b.appliedSet == nil {
		b.appliedSet = make(map[string]struct{})
	}
	if _, ok := b.appliedSet[key]; ok {
		return
	}
	b.appliedSet[key] = struct{}{}
	b.applied = append(b.applied, key)
}

func (b *BunSelectQuery) Model(model interface{}) common.SelectQuery {
	b.query = b.query.Model(model)
	b.hasModel = true // Mark that we have a model

	// Try to get table name from model if it implements TableNameProvider
	if provider, ok := model.(common.TableNameProvider); ok {
		fullTableName := provider.TableName()
		// Check if the table name contains schema (e.g., "schema.table")
		b.schema, b.tableName = parseTableName(fullTableName)
	}

	if provider, ok := model.(common.TableAliasProvider); ok {
		b.tableAlias = provider.TableAlias()
	}

	return b
}

func (b *BunSelectQuery) Table(table string) common.SelectQuery {
	b.query = b.query.Table(table)
	// Check if the table name contains schema (e.g., "schema.table")
	b.schema, b.tableName = parseTableName(table)
	return b
}

func (b *BunSelectQuery) Column(columns ...string) common.SelectQuery {
	b.query = b.query.Column(columns...)
	return b
}

func (b *BunSelectQuery) ColumnExpr(query string, args ...interface{}) common.SelectQuery {
	// Bun drops the default column list once an expression is added, which
	// would lose the base columns behind the relation stitching. Collect
	// expressions and restate the projection when the query runs.
	b.pendingExprs = append(b.pendingExprs, columnExpr{query: query, args: args})
	return b
}

func (b *BunSelectQuery) ExcludeColumn(columns ...string) common.SelectQuery {
	if len(columns) > 0 {
		b.excludedCols = append(b.excludedCols, columns...)
		b.query = b.query.ExcludeColumn(columns...)
	}
	return b
}

// applyExprs flushes collected column expressions, restating the model's
// concrete columns (minus exclusions) first so the expressions extend the
// projection instead of replacing it.
func (b *BunSelectQuery) applyExprs() {
	if len(b.pendingExprs) == 0 {
		return
	}
	if model := b.query.GetModel(); model != nil && model.Value() != nil {
		excluded := make(map[string]struct{}, len(b.excludedCols))
		for _, col := range b.excludedCols {
			excluded[col] = struct{}{}
		}
		for _, col := range reflection.GetModelConcreteColumns(model.Value()) {
			if _, skip := excluded[col]; skip {
				continue
			}
			b.query = b.query.Column(col)
		}
	}
	for _, e := range b.pendingExprs {
		if len(e.args) > 0 {
			b.query = b.query.ColumnExpr(e.query, e.args...)
		} else {
			b.query = b.query.ColumnExpr(e.query)
		}
	}
	b.pendingExprs = nil
}

func (b *BunSelectQuery) Where(query string, args ...interface{}) common.SelectQuery {
	// If we're in a JOIN context, add table prefix to unqualified columns
	if b.inJoinContext && b.joinTableAlias != "" {
		query = addTablePrefix(query, b.joinTableAlias)
	} else if b.tableAlias != "" && b.tableName != "" {
		// If we have a table alias defined, check if the query references a different alias
		// This can happen in preloads where the user expects a certain alias but Bun generates another
		query = normalizeTableAlias(query, b.tableAlias, b.tableName)
	}
	b.query = b.query.Where(query, args...)
	return b
}

// addTablePrefix adds a table prefix to unqualified column references
// This is used in JOIN contexts where conditions must reference the joined table
func addTablePrefix(query, tableAlias string) string {
	if tableAlias == "" || query == "" {
		return query
	}

	// Split on spaces and parentheses to find column references
	parts := strings.FieldsFunc(query, func(r rune) bool {
		return r == ' ' || r == '(' || r == ')' || r == ','
	})

	modified := query
	for _, part := range parts {
		// Check if this looks like an unqualified column reference
		// (no dot, and likely a column name before an operator)
		if !strings.Contains(part, ".") {
			// Extract potential column name (before = or other operators)
			for _, op := range []string{"=", "!=", "<>", ">", ">=", "<", "<=", " LIKE ", " IN ", " IS "} {
				if strings.Contains(part, op) {
					colName := strings.Split(part, op)[0]
					colName = strings.TrimSpace(colName)
					if colName != "" && !isOperatorOrKeyword(colName) {
						// Add table prefix
						prefixed := tableAlias + "." + colName + strings.TrimPrefix(part, colName)
						modified = strings.ReplaceAll(modified, part, prefixed)
						logger.Debug("Adding table prefix '%s' to column '%s' in JOIN condition", tableAlias, colName)
					}
					break
				}
			}
		}
	}

	return modified
}

// isOperatorOrKeyword checks if a string is likely an operator or SQL keyword
func isOperatorOrKeyword(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	keywords := []string{"AND", "OR", "NOT", "IN", "IS", "NULL", "TRUE", "FALSE", "LIKE", "BETWEEN"}
	for _, kw := range keywords {
		if s == kw {
			return true
		}
	}
	return false
}

// isAcronymMatch checks if prefix is an acronym of tableName
// For example, "apil" matches "apiproviderlink" because each letter appears in sequence
func isAcronymMatch(prefix, tableName string) bool {
	if len(prefix) == 0 || len(tableName) == 0 {
		return false
	}

	prefixIdx := 0
	for i := 0; i < len(tableName) && prefixIdx < len(prefix); i++ {
		if tableName[i] == prefix[prefixIdx] {
			prefixIdx++
		}
	}

	// All characters of prefix were found in sequence in tableName
	return prefixIdx == len(prefix)
}

// normalizeTableAlias replaces table alias prefixes in SQL conditions
// This handles cases where a user references a table alias that doesn't match
// what Bun generates (common in preload contexts)
func normalizeTableAlias(query, expectedAlias, tableName string) string {
	// Split on spaces and parentheses to find qualified references
	parts := strings.FieldsFunc(query, func(r rune) bool {
		return r == ' ' || r == '(' || r == ')' || r == ','
	})

	modified := query
	for _, part := range parts {
		// Check if this looks like a qualified column reference
		if dotIndex := strings.Index(part, "."); dotIndex > 0 {
			prefix := part[:dotIndex]
			column := part[dotIndex+1:]

			// Check if the prefix matches our expected alias or table name (case-insensitive)
			if strings.EqualFold(prefix, expectedAlias) ||
				strings.EqualFold(prefix, tableName) ||
				strings.EqualFold(prefix, strings.ToLower(tableName)) {
				// Prefix matches current table, it's safe but redundant - leave it
				continue
			}

			// Check if the prefix could plausibly be an alias/acronym for this table
			prefixLower := strings.ToLower(prefix)
			tableNameLower := strings.ToLower(tableName)

			// Check if prefix is a substring of table name
			isSubstring := strings.Contains(tableNameLower, prefixLower) && len(prefixLower) > 2

			// Check if prefix is an acronym of table name
			isAcronym := false
			if !isSubstring && len(prefixLower) > 2 {
				isAcronym = isAcronymMatch(prefixLower, tableNameLower)
			}

			if isSubstring || isAcronym {
				// This looks like it could be an alias for this table - strip it
				logger.Debug("Stripping plausible alias '%s' from WHERE condition, keeping just '%s'", prefix, column)
				modified = strings.ReplaceAll(modified, part, column)
			} else {
				// Prefix likely refers to a different table (JOIN/preload), leave it
				logger.Debug("Keeping qualified reference '%s' - prefix '%s' doesn't match current table '%s'", part, prefix, tableName)
			}
		}
	}

	return modified
}

func (b *BunSelectQuery) WhereOr(query string, args ...interface{}) common.SelectQuery {
	b.query = b.query.WhereOr(query, args...)
	return b
}

func (b *BunSelectQuery) Join(query string, args ...interface{}) common.SelectQuery {
	// Extract optional prefix from args
	// If the last arg is a string that looks like a table prefix, use it
	var prefix string
	sqlArgs := args

	if len(args) > 0 {
		if lastArg, ok := args[len(args)-1].(string); ok && len(lastArg) < 50 && !strings.Contains(lastArg, " ") {
			// Likely a prefix, not a SQL parameter
			prefix = lastArg
			sqlArgs = args[:len(args)-1]
		}
	}

	// If no prefix provided, use the table name as prefix (already separated from schema)
	if prefix == "" && b.tableName != "" {
		prefix = b.tableName
	}

	// If prefix is provided, add it as an alias in the join
	// Bun expects: "JOIN table AS alias ON condition"
	joinClause := query
	if prefix != "" && !strings.Contains(strings.ToUpper(query), " AS ") {
		// If query doesn't already have AS, check if it's a simple table name
		parts := strings.Fields(query)
		if len(parts) > 0 && !strings.HasPrefix(strings.ToUpper(parts[0]), "JOIN") {
			// Simple table name, add prefix: "table AS prefix"
			joinClause = fmt.Sprintf("%s AS %s", parts[0], prefix)
			if len(parts) > 1 {
				// Has ON clause: "table ON ..." becomes "table AS prefix ON ..."
				joinClause += " " + strings.Join(parts[1:], " ")
			}
		}
	}

	b.query = b.query.Join(joinClause, sqlArgs...)
	return b
}

func (b *BunSelectQuery) LeftJoin(query string, args ...interface{}) common.SelectQuery {
	// Extract optional prefix from args
	var prefix string
	sqlArgs := args

	if len(args) > 0 {
		if lastArg, ok := args[len(args)-1].(string); ok && len(lastArg) < 50 && !strings.Contains(lastArg, " ") {
			prefix = lastArg
			sqlArgs = args[:len(args)-1]
		}
	}

	// If no prefix provided, use the table name as prefix (already separated from schema)
	if prefix == "" && b.tableName != "" {
		prefix = b.tableName
	}

	// Construct LEFT JOIN with prefix
	joinClause := query
	if prefix != "" && !strings.Contains(strings.ToUpper(query), " AS ") {
		parts := strings.Fields(query)
		if len(parts) > 0 && !strings.HasPrefix(strings.ToUpper(parts[0]), "LEFT") && !strings.HasPrefix(strings.ToUpper(parts[0]), "JOIN") {
			joinClause = fmt.Sprintf("%s AS %s", parts[0], prefix)
			if len(parts) > 1 {
				joinClause += " " + strings.Join(parts[1:], " ")
			}
		}
	}

	b.query = b.query.Join("LEFT JOIN "+joinClause, sqlArgs...)
	return b
}

func (b *BunSelectQuery) PreloadRelation(relation string, apply ...func(common.SelectQuery) common.SelectQuery) common.SelectQuery {
	return b.preload(relation, relation, apply...)
}

func (b *BunSelectQuery) PreloadRelationAs(relation, toAttr string, apply ...func(common.SelectQuery) common.SelectQuery) common.SelectQuery {
	// Bun hydrates into the relation's struct field; the alias only changes
	// the bookkeeping key so differently-filtered prefetches of the same
	// relation stay distinguishable.
	return b.preload(relation, relation+"->"+toAttr, apply...)
}

func (b *BunSelectQuery) preload(relation, key string, apply ...func(common.SelectQuery) common.SelectQuery) common.SelectQuery {
	if model := b.query.GetModel(); model != nil && model.Value() != nil {
		relType := reflection.GetRelationType(model.Value(), relation)
		logger.Debug("PreloadRelation '%s' detected as: %s", relation, relType)
	}
	b.markRelation(key)

	// Check if this relation chain would create problematic long aliases
	relationParts := strings.Split(relation, ".")
	aliasChain := strings.ToLower(strings.Join(relationParts, "__"))

	// PostgreSQL's identifier limit is 63 characters
	const postgresIdentifierLimit = 63
	const safeAliasLimit = 35 // Leave room for column names

	// If the alias chain is too long, defer this preload to be executed as a separate query
	if len(relationParts) > 1 && len(aliasChain) > safeAliasLimit {
		logger.Info("Preload relation '%s' creates long alias chain '%s' (%d chars). "+
			"Using separate query to avoid PostgreSQL %d-char identifier limit.",
			relation, aliasChain, len(aliasChain), postgresIdentifierLimit)

		// Load first level normally, then the rest as a separate query after scan
		firstLevel := relationParts[0]
		remainingPath := strings.Join(relationParts[1:], ".")

		logger.Info("Splitting nested preload: loading '%s' first, then '%s' separately",
			firstLevel, remainingPath)

		b.query = b.query.Relation(firstLevel)

		b.deferredPreloads = append(b.deferredPreloads, deferredPreload{
			relation: relation,
			apply:    apply,
		})

		return b
	}

	// Normal preload handling
	b.query = b.query.Relation(relation, func(sq *bun.SelectQuery) *bun.SelectQuery {
		defer func() {
			if r := recover(); r != nil {
				err := logger.HandlePanic("BunSelectQuery.PreloadRelation", r)
				if err != nil {
					return
				}
			}
		}()
		if len(apply) == 0 {
			return sq
		}

		// Wrap the incoming *bun.SelectQuery in our adapter
		wrapper := &BunSelectQuery{
			query: sq,
			db:    b.db,
		}

		// Try to extract table name and alias from the preload model
		if model := sq.GetModel(); model != nil && model.Value() != nil {
			modelValue := model.Value()

			if provider, ok := modelValue.(common.TableNameProvider); ok {
				fullTableName := provider.TableName()
				wrapper.schema, wrapper.tableName = parseTableName(fullTableName)
			}

			if provider, ok := modelValue.(common.TableAliasProvider); ok {
				wrapper.tableAlias = provider.TableAlias()
				if wrapper.tableAlias != "" {
					logger.Debug("Preload relation '%s' using table alias: %s", relation, wrapper.tableAlias)
				}
			}
		}

		current := common.SelectQuery(wrapper)

		for _, fn := range apply {
			if fn != nil {
				current = fn(current)
			}
		}

		// Extract the final *bun.SelectQuery
		if finalBun, ok := current.(*BunSelectQuery); ok {
			finalBun.applyExprs()
			return finalBun.query
		}

		return sq // fallback
	})
	return b
}

func (b *BunSelectQuery) JoinRelation(relation string, apply ...func(common.SelectQuery) common.SelectQuery) common.SelectQuery {
	// JoinRelation resolves the relation on the same query via a JOIN.
	// Bun's Relation() uses a JOIN for belongs-to and has-one relations.
	logger.Debug("JoinRelation '%s' - Using JOIN strategy with automatic WHERE prefix addition", relation)
	b.markRelation(relation)

	b.query = b.query.Relation(relation, func(sq *bun.SelectQuery) *bun.SelectQuery {
		if len(apply) == 0 {
			return sq
		}

		wrapper := &BunSelectQuery{
			query:          sq,
			db:             b.db,
			inJoinContext:  true,                      // Mark as JOIN context
			joinTableAlias: strings.ToLower(relation), // Use relation name as alias
		}
		current := common.SelectQuery(wrapper)

		for _, fn := range apply {
			if fn != nil {
				current = fn(current)
			}
		}

		if finalBun, ok := current.(*BunSelectQuery); ok {
			finalBun.applyExprs()
			return finalBun.query
		}

		return sq
	})

	return b
}

func (b *BunSelectQuery) HasRelation(key string) bool {
	_, ok := b.appliedSet[key]
	return ok
}

func (b *BunSelectQuery) AppliedRelations() []string {
	out := make([]string, len(b.applied))
	copy(out, b.applied)
	return out
}

func (b *BunSelectQuery) Order(order string) common.SelectQuery {
	b.query = b.query.Order(order)
	return b
}

func (b *BunSelectQuery) Limit(n int) common.SelectQuery {
	b.query = b.query.Limit(n)
	return b
}

func (b *BunSelectQuery) Offset(n int) common.SelectQuery {
	b.query = b.query.Offset(n)
	return b
}

func (b *BunSelectQuery) Group(group string) common.SelectQuery {
	b.query = b.query.Group(group)
	return b
}

func (b *BunSelectQuery) Having(having string, args ...interface{}) common.SelectQuery {
	b.query = b.query.Having(having, args...)
	return b
}

func (b *BunSelectQuery) Scan(ctx context.Context, dest interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logger.HandlePanic("BunSelectQuery.Scan", r)
		}
	}()
	if dest == nil {
		return fmt.Errorf("destination cannot be nil")
	}

	// Execute the main query first
	b.applyExprs()
	err = b.query.Scan(ctx, dest)
	if err != nil {
		// Log SQL string for debugging
		sqlStr := b.query.String()
		logger.Error("BunSelectQuery.Scan failed. SQL: %s. Error: %v", sqlStr, err)
		return err
	}

	// Execute any deferred preloads
	if len(b.deferredPreloads) > 0 {
		err = b.executeDeferredPreloads(ctx, dest)
		if err != nil {
			logger.Warn("Failed to execute deferred preloads: %v", err)
			// Don't fail the whole query, just log the warning
		}
		// Clear deferred preloads to prevent re-execution
		b.deferredPreloads = nil
	}

	return nil
}

func (b *BunSelectQuery) ScanModel(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			sqlStr := b.query.String()
			logger.Error("Panic in BunSelectQuery.ScanModel: %v. SQL: %s", r, sqlStr)
			err = logger.HandlePanic("BunSelectQuery.ScanModel", r)
		}
	}()
	if b.query.GetModel() == nil {
		return fmt.Errorf("model is nil")
	}

	// Execute the main query first
	b.applyExprs()
	err = b.query.Scan(ctx)
	if err != nil {
		// Log SQL string for debugging
		sqlStr := b.query.String()
		logger.Error("BunSelectQuery.ScanModel failed. SQL: %s. Error: %v", sqlStr, err)
		return err
	}

	// Execute any deferred preloads
	if len(b.deferredPreloads) > 0 {
		model := b.query.GetModel()
		err = b.executeDeferredPreloads(ctx, model.Value())
		if err != nil {
			logger.Warn("Failed to execute deferred preloads: %v", err)
		}
		b.deferredPreloads = nil
	}

	return nil
}

// executeDeferredPreloads executes preloads that were deferred to avoid PostgreSQL identifier length limits
func (b *BunSelectQuery) executeDeferredPreloads(ctx context.Context, dest interface{}) error {
	if len(b.deferredPreloads) == 0 {
		return nil
	}

	for _, dp := range b.deferredPreloads {
		err := b.executeSingleDeferredPreload(ctx, dest, dp)
		if err != nil {
			return fmt.Errorf("failed to execute deferred preload '%s': %w", dp.relation, err)
		}
	}

	return nil
}

// executeSingleDeferredPreload executes a single deferred preload
// For a relation like "Parent.Child", it:
// 1. Finds all loaded Parent records in dest
// 2. Loads Child records for those Parents using a separate query (loading only "Child", not "Parent.Child")
// 3. Bun automatically assigns the Child records to the appropriate Parent.Child field
func (b *BunSelectQuery) executeSingleDeferredPreload(ctx context.Context, dest interface{}, dp deferredPreload) error {
	relationParts := strings.Split(dp.relation, ".")
	if len(relationParts) < 2 {
		return fmt.Errorf("deferred preload must be nested (e.g., 'Parent.Child'), got: %s", dp.relation)
	}

	// The parent relation that was already loaded
	parentRelation := relationParts[0]
	// The child relation we need to load
	childRelation := strings.Join(relationParts[1:], ".")

	logger.Debug("Executing deferred preload: loading '%s' on already-loaded '%s'", childRelation, parentRelation)

	destValue := reflect.ValueOf(dest)
	if destValue.Kind() == reflect.Ptr {
		destValue = destValue.Elem()
	}

	// Handle both slice and single record
	if destValue.Kind() == reflect.Slice {
		for i := 0; i < destValue.Len(); i++ {
			record := destValue.Index(i)
			if err := b.loadChildRelationForRecord(ctx, record, parentRelation, childRelation, dp.apply); err != nil {
				logger.Warn("Failed to load child relation '%s' for record %d: %v", childRelation, i, err)
				// Continue with other records
			}
		}
	} else {
		if err := b.loadChildRelationForRecord(ctx, destValue, parentRelation, childRelation, dp.apply); err != nil {
			return fmt.Errorf("failed to load child relation '%s': %w", childRelation, err)
		}
	}

	return nil
}

// loadChildRelationForRecord loads a child relation for a single parent record
func (b *BunSelectQuery) loadChildRelationForRecord(ctx context.Context, record reflect.Value, parentRelation, childRelation string, apply []func(common.SelectQuery) common.SelectQuery) error {
	if record.Kind() == reflect.Ptr {
		record = record.Elem()
	}

	// Get the parent relation field
	parentField := record.FieldByName(parentRelation)
	if !parentField.IsValid() {
		logger.Debug("Parent relation field '%s' not found in record", parentRelation)
		return nil
	}

	if parentField.Kind() == reflect.Ptr && parentField.IsNil() {
		// Parent relation not loaded or nil, skip
		logger.Debug("Parent relation field '%s' is nil, skipping child preload", parentRelation)
		return nil
	}

	// We need a pointer so that when Bun loads the child records and appends
	// them to the slice, the changes land in the original struct field.
	var parentPtr interface{}
	if parentField.Kind() == reflect.Ptr {
		parentPtr = parentField.Interface()
	} else {
		if parentField.CanAddr() {
			parentPtr = parentField.Addr().Interface()
		} else {
			return fmt.Errorf("cannot get address of field '%s'", parentRelation)
		}
	}

	// WherePK() ensures we only load children for THIS specific parent record
	return b.db.NewSelect().
		Model(parentPtr).
		WherePK().
		Relation(childRelation, func(sq *bun.SelectQuery) *bun.SelectQuery {
			if len(apply) > 0 {
				wrapper := &BunSelectQuery{query: sq, db: b.db}
				current := common.SelectQuery(wrapper)
				for _, fn := range apply {
					if fn != nil {
						current = fn(current)
					}
				}
				if finalBun, ok := current.(*BunSelectQuery); ok {
					finalBun.applyExprs()
					return finalBun.query
				}
			}
			return sq
		}).
		Scan(ctx)
}

func (b *BunSelectQuery) Count(ctx context.Context) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logger.HandlePanic("BunSelectQuery.Count", r)
			count = 0
		}
	}()
	// If Model() was set, use bun's native Count() which works properly
	if b.hasModel {
		count, err := b.query.Count(ctx)
		if err != nil {
			// Log SQL string for debugging
			sqlStr := b.query.String()
			logger.Error("BunSelectQuery.Count failed. SQL: %s. Error: %v", sqlStr, err)
		}
		return count, err
	}

	// Otherwise, wrap as subquery to avoid "Model(nil)" error
	// This is needed when only Table() is set without a model
	b.applyExprs()
	countQuery := b.db.NewSelect().
		TableExpr("(?) AS subquery", b.query).
		ColumnExpr("COUNT(*)")
	err = countQuery.Scan(ctx, &count)
	if err != nil {
		// Log SQL string for debugging
		sqlStr := countQuery.String()
		logger.Error("BunSelectQuery.Count (subquery) failed. SQL: %s. Error: %v", sqlStr, err)
	}
	return count, err
}

func (b *BunSelectQuery) Exists(ctx context.Context) (exists bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logger.HandlePanic("BunSelectQuery.Exists", r)
			exists = false
		}
	}()
	exists, err = b.query.Exists(ctx)
	if err != nil {
		// Log SQL string for debugging
		sqlStr := b.query.String()
		logger.Error("BunSelectQuery.Exists failed. SQL: %s. Error: %v", sqlStr, err)
	}
	return exists, err
}

// BunResult implements Result for Bun
type BunResult struct {
	result sql.Result
}

func (b *BunResult) RowsAffected() int64 {
	if b.result == nil {
		return 0
	}
	rows, _ := b.result.RowsAffected()
	return rows
}

func (b *BunResult) LastInsertId() (int64, error) {
	if b.result == nil {
		return 0, nil
	}
	return b.result.LastInsertId()
}
