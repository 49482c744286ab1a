package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/bitechdev/VirtualSpec/pkg/common"
)

type bunShelf struct {
	bun.BaseModel `bun:"table:shelves"`

	ID    int64  `bun:"id,pk,autoincrement" json:"id"`
	Label string `bun:"label" json:"label"`

	Books []*bunVolume `bun:"rel:has-many,join:id=shelf_id" json:"books,omitempty"`

	// long relation name on purpose: nested paths through it overflow the
	// safe alias length and take the deferred-preload route
	CatalogedArchivalVolumes []*bunVolume `bun:"rel:has-many,join:id=shelf_id" json:"cataloged_archival_volumes,omitempty"`
}

type bunVolume struct {
	bun.BaseModel `bun:"table:volumes"`

	ID      int64  `bun:"id,pk,autoincrement" json:"id"`
	ShelfID int64  `bun:"shelf_id" json:"shelf_id"`
	Title   string `bun:"title" json:"title"`

	Shelf *bunShelf `bun:"rel:belongs-to,join:shelf_id=id" json:"shelf,omitempty"`

	OriginatingLibraryShelf *bunShelf `bun:"rel:belongs-to,join:shelf_id=id" json:"originating_library_shelf,omitempty"`
}

func newBunTestAdapter(t *testing.T) *BunAdapter {
	t.Helper()

	// the glebarez driver the GORM dialector links already registers itself
	// under "sqlite"; reusing it keeps a single sqlite driver in the binary
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive for the test
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	return NewBunAdapter(bun.NewDB(sqldb, GetSQLiteDialect()))
}

func seedBunShelves(t *testing.T, adapter *BunAdapter) {
	t.Helper()
	ctx := context.Background()

	stmts := []string{
		`CREATE TABLE shelves (id INTEGER PRIMARY KEY AUTOINCREMENT, label TEXT)`,
		`CREATE TABLE volumes (id INTEGER PRIMARY KEY AUTOINCREMENT, shelf_id INTEGER, title TEXT)`,
		`INSERT INTO shelves (label) VALUES ('manga'), ('novels')`,
		`INSERT INTO volumes (shelf_id, title) VALUES (1, 'Nausicaa'), (1, 'archived'), (2, 'Earthsea')`,
	}
	for _, stmt := range stmts {
		_, err := adapter.Exec(ctx, stmt)
		require.NoError(t, err)
	}
}

func TestBunAdapterDriverName(t *testing.T) {
	adapter := newBunTestAdapter(t)
	assert.Equal(t, "sqlite", adapter.DriverName())
}

func TestBunSelectQueryWhereAndOrder(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var shelves []bunShelf
	err := adapter.NewSelect().
		Model(&shelves).
		Where("label = ?", "manga").
		Scan(context.Background(), &shelves)
	require.NoError(t, err)
	require.Len(t, shelves, 1)
	assert.Equal(t, "manga", shelves[0].Label)

	shelves = nil
	err = adapter.NewSelect().
		Model(&shelves).
		Order("label DESC").
		Scan(context.Background(), &shelves)
	require.NoError(t, err)
	require.Len(t, shelves, 2)
	assert.Equal(t, "novels", shelves[0].Label)
}

func TestBunSelectQueryExcludeColumn(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var shelves []bunShelf
	err := adapter.NewSelect().
		Model(&shelves).
		ExcludeColumn("label").
		Scan(context.Background(), &shelves)
	require.NoError(t, err)
	require.Len(t, shelves, 2)
	assert.NotZero(t, shelves[0].ID)
	assert.Empty(t, shelves[0].Label)
}

func TestBunSelectQueryPreloadRelationFilters(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var shelves []bunShelf
	err := adapter.NewSelect().
		Model(&shelves).
		Where("label = ?", "manga").
		PreloadRelation("Books", func(q common.SelectQuery) common.SelectQuery {
			return q.Where("title != ?", "archived")
		}).
		Scan(context.Background(), &shelves)
	require.NoError(t, err)
	require.Len(t, shelves, 1)
	require.Len(t, shelves[0].Books, 1)
	assert.Equal(t, "Nausicaa", shelves[0].Books[0].Title)
}

func TestBunSelectQueryRelationBookkeeping(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var shelves []bunShelf
	q := adapter.NewSelect().Model(&shelves)
	q = q.PreloadRelationAs("Books", "titles")
	q = q.PreloadRelationAs("Books", "titles") // repeat keeps a single entry

	assert.True(t, q.HasRelation("Books->titles"))
	assert.False(t, q.HasRelation("Books"))
	assert.Equal(t, []string{"Books->titles"}, q.AppliedRelations())

	// the alias only changes bookkeeping; rows still hydrate the Books field
	err := q.Scan(context.Background(), &shelves)
	require.NoError(t, err)
	require.Len(t, shelves, 2)
	assert.Len(t, shelves[0].Books, 2)
}

func TestBunSelectQueryJoinRelationPrefixesConditions(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var volumes []bunVolume
	err := adapter.NewSelect().
		Model(&volumes).
		JoinRelation("Shelf", func(q common.SelectQuery) common.SelectQuery {
			// unqualified column: the join context rewrites it to shelf.label
			return q.Where("label=?", "manga")
		}).
		Order("title").
		Scan(context.Background(), &volumes)
	require.NoError(t, err)
	require.Len(t, volumes, 2)
	for _, v := range volumes {
		require.NotNil(t, v.Shelf)
		assert.Equal(t, "manga", v.Shelf.Label)
	}
}

func TestBunSelectQueryDeferredPreloadSplit(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var shelves []bunShelf
	q := adapter.NewSelect().
		Model(&shelves).
		Order("label").
		PreloadRelation("CatalogedArchivalVolumes.OriginatingLibraryShelf")

	// the alias chain is longer than a safe identifier, so only the first
	// level joins in and the rest runs as a follow-up query after Scan
	bq := q.(*BunSelectQuery)
	require.Len(t, bq.deferredPreloads, 1)
	assert.Equal(t, "CatalogedArchivalVolumes.OriginatingLibraryShelf", bq.deferredPreloads[0].relation)

	err := q.Scan(context.Background(), &shelves)
	require.NoError(t, err)
	require.Len(t, shelves, 2)
	require.Len(t, shelves[0].CatalogedArchivalVolumes, 2)

	// the follow-up query hydrated the nested relation
	require.NotNil(t, shelves[0].CatalogedArchivalVolumes[0].OriginatingLibraryShelf)
	assert.Equal(t, "manga", shelves[0].CatalogedArchivalVolumes[0].OriginatingLibraryShelf.Label)
	assert.Empty(t, bq.deferredPreloads)
}

func TestBunSelectQueryWhereOr(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var shelves []bunShelf
	err := adapter.NewSelect().
		Model(&shelves).
		Where("label = ?", "manga").
		WhereOr("label = ?", "novels").
		Order("label").
		Scan(context.Background(), &shelves)
	require.NoError(t, err)
	require.Len(t, shelves, 2)
	assert.Equal(t, "manga", shelves[0].Label)
	assert.Equal(t, "novels", shelves[1].Label)
}

type bunShelfCount struct {
	Label string `bun:"label"`
	Total int    `bun:"total"`
}

type bunCountedShelf struct {
	bun.BaseModel `bun:"table:shelves"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Label string `bun:"label"`
	Total int    `bun:"total,scanonly"`
}

func TestBunSelectQueryColumnExprKeepsBaseColumns(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var shelves []bunCountedShelf
	err := adapter.NewSelect().
		Model(&shelves).
		ColumnExpr("(SELECT COUNT(*) FROM volumes WHERE volumes.shelf_id = shelves.id) AS total").
		Order("label").
		Scan(context.Background(), &shelves)
	require.NoError(t, err)
	require.Len(t, shelves, 2)
	assert.Equal(t, "manga", shelves[0].Label)
	assert.Equal(t, 2, shelves[0].Total)
	assert.Equal(t, "novels", shelves[1].Label)
	assert.Equal(t, 1, shelves[1].Total)
}

func TestBunSelectQueryJoinGroupHaving(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var rows []bunShelfCount
	err := adapter.NewSelect().
		Table("shelves").
		ColumnExpr("shelves.label AS label").
		ColumnExpr("COUNT(volumes.id) AS total").
		Join("JOIN volumes ON volumes.shelf_id = shelves.id").
		Group("shelves.label").
		Having("COUNT(volumes.id) > ?", 1).
		Scan(context.Background(), &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "manga", rows[0].Label)
	assert.Equal(t, 2, rows[0].Total)
}

func TestBunSelectQueryLeftJoinKeepsUnmatchedRows(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)
	_, err := adapter.Exec(context.Background(), `INSERT INTO shelves (label) VALUES ('empty')`)
	require.NoError(t, err)

	var rows []bunShelfCount
	err = adapter.NewSelect().
		Table("shelves").
		ColumnExpr("shelves.label AS label").
		ColumnExpr("COUNT(volumes.id) AS total").
		LeftJoin("volumes ON volumes.shelf_id = shelves.id", "volumes").
		Group("shelves.label").
		Order("label").
		Scan(context.Background(), &rows)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "empty", rows[0].Label)
	assert.Zero(t, rows[0].Total)
}

func TestBunSelectQueryCountAndExists(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var volumes []bunVolume
	count, err := adapter.NewSelect().
		Model(&volumes).
		Where("shelf_id = ?", 1).
		Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	exists, err := adapter.NewSelect().
		Model(&volumes).
		Where("title = ?", "Earthsea").
		Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBunAdapterQueryRaw(t *testing.T) {
	adapter := newBunTestAdapter(t)
	seedBunShelves(t, adapter)

	var labels []string
	err := adapter.Query(context.Background(), &labels, "SELECT label FROM shelves ORDER BY label")
	require.NoError(t, err)
	assert.Equal(t, []string{"manga", "novels"}, labels)
}
