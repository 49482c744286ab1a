package virtualspec

import (
	"context"

	"github.com/bitechdev/VirtualSpec/pkg/common"
)

// mockQuery is a recording SelectQuery: it captures what a compiled plan
// applies without touching a database, including the sub-queries handed to
// preload customizers.
type mockQuery struct {
	model       interface{}
	columns     []string
	columnExprs []string
	excluded    []string
	wheres      []string
	joins       []string
	applied     []string
	appliedSet  map[string]struct{}
	preloads    map[string]*mockQuery

	lazy    bool
	pending []func()
}

func newMockQuery() *mockQuery {
	return &mockQuery{
		appliedSet: make(map[string]struct{}),
		preloads:   make(map[string]*mockQuery),
	}
}

// newLazyMockQuery holds preload customizers back until Scan, the way the
// real adapters do: GORM runs them inside Find, Bun inside Relation.
func newLazyMockQuery() *mockQuery {
	q := newMockQuery()
	q.lazy = true
	return q
}

func (m *mockQuery) markRelation(key string) {
	if _, ok := m.appliedSet[key]; ok {
		return
	}
	m.appliedSet[key] = struct{}{}
	m.applied = append(m.applied, key)
}

func (m *mockQuery) Model(model interface{}) common.SelectQuery {
	m.model = model
	return m
}

func (m *mockQuery) Table(string) common.SelectQuery { return m }

func (m *mockQuery) Column(columns ...string) common.SelectQuery {
	m.columns = append(m.columns, columns...)
	return m
}

func (m *mockQuery) ColumnExpr(query string, _ ...interface{}) common.SelectQuery {
	m.columnExprs = append(m.columnExprs, query)
	return m
}

func (m *mockQuery) ExcludeColumn(columns ...string) common.SelectQuery {
	m.excluded = append(m.excluded, columns...)
	return m
}

func (m *mockQuery) Where(query string, _ ...interface{}) common.SelectQuery {
	m.wheres = append(m.wheres, query)
	return m
}

func (m *mockQuery) WhereOr(query string, _ ...interface{}) common.SelectQuery {
	m.wheres = append(m.wheres, query)
	return m
}

func (m *mockQuery) Join(query string, _ ...interface{}) common.SelectQuery {
	m.joins = append(m.joins, query)
	return m
}

func (m *mockQuery) LeftJoin(query string, _ ...interface{}) common.SelectQuery {
	m.joins = append(m.joins, query)
	return m
}

func (m *mockQuery) JoinRelation(relation string, apply ...func(common.SelectQuery) common.SelectQuery) common.SelectQuery {
	m.markRelation(relation)
	m.joins = append(m.joins, relation)
	var q common.SelectQuery = m
	for _, fn := range apply {
		q = fn(q)
	}
	return q
}

func (m *mockQuery) PreloadRelation(relation string, apply ...func(common.SelectQuery) common.SelectQuery) common.SelectQuery {
	return m.preload(relation, relation, apply...)
}

func (m *mockQuery) PreloadRelationAs(relation, toAttr string, apply ...func(common.SelectQuery) common.SelectQuery) common.SelectQuery {
	return m.preload(relation, relation+"->"+toAttr, apply...)
}

func (m *mockQuery) preload(relation, key string, apply ...func(common.SelectQuery) common.SelectQuery) common.SelectQuery {
	m.markRelation(key)
	sub := newMockQuery()
	sub.lazy = m.lazy
	run := func() {
		var q common.SelectQuery = sub
		for _, fn := range apply {
			q = fn(q)
		}
	}
	if m.lazy {
		m.pending = append(m.pending, run)
	} else {
		run()
	}
	m.preloads[key] = sub
	return m
}

func (m *mockQuery) HasRelation(key string) bool {
	_, ok := m.appliedSet[key]
	return ok
}

func (m *mockQuery) AppliedRelations() []string {
	out := make([]string, len(m.applied))
	copy(out, m.applied)
	return out
}

func (m *mockQuery) Order(string) common.SelectQuery            { return m }
func (m *mockQuery) Limit(int) common.SelectQuery               { return m }
func (m *mockQuery) Offset(int) common.SelectQuery              { return m }
func (m *mockQuery) Group(string) common.SelectQuery            { return m }
func (m *mockQuery) Having(string, ...interface{}) common.SelectQuery {
	return m
}

func (m *mockQuery) Scan(context.Context, interface{}) error {
	for _, fn := range m.pending {
		fn()
	}
	m.pending = nil
	return nil
}
func (m *mockQuery) ScanModel(context.Context) error         { return nil }
func (m *mockQuery) Count(context.Context) (int, error)      { return 0, nil }
func (m *mockQuery) Exists(context.Context) (bool, error)    { return false, nil }

// Test domain: people nominated for movie awards.

type testPerson struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `json:"name"`
	Biography string `json:"biography"`

	Nominations []testNomination `gorm:"foreignKey:PersonID" json:"nominations,omitempty"`

	NominationCount int64 `gorm:"->" json:"nomination_count,omitempty"`
}

type testNomination struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	PersonID uint   `json:"person_id"`
	MovieID  uint   `json:"movie_id"`
	Award    string `json:"award"`
	Year     int    `json:"year"`
	IsWinner bool   `json:"is_winner"`

	Person *testPerson `gorm:"foreignKey:PersonID" json:"person,omitempty"`
	Movie  *testMovie  `gorm:"foreignKey:MovieID" json:"movie,omitempty"`
}

type testMovie struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Year        int    `json:"year"`

	Directors []testPerson `gorm:"many2many:movie_directors" json:"directors,omitempty"`
}

// newTestVirtualAwards prefetches winning nominations under the alias "awards".
func newTestVirtualAwards() *VirtualModel {
	return MustVirtualModel(testNomination{}, nil,
		WithName("VirtualAward"),
		WithLookup("nominations"),
		WithPrefetchQueryset(func(q common.SelectQuery, _ *RequestContext) common.SelectQuery {
			return q.Where("is_winner = ?", true)
		}),
	)
}

func newTestVirtualPerson() *VirtualModel {
	return MustVirtualModel(testPerson{}, Fields{
		{Name: "awards", Field: newTestVirtualAwards()},
		{Name: "nomination_count", Field: NewAnnotation(
			func(q common.SelectQuery, _ *RequestContext) common.SelectQuery {
				return q.ColumnExpr("(SELECT COUNT(*) FROM nominations n WHERE n.person_id = people.id) AS nomination_count")
			})},
	}, WithDeferredFields("biography"))
}

func newTestVirtualMovie() *VirtualModel {
	return MustVirtualModel(testMovie{}, Fields{
		{Name: "directors", Field: newTestVirtualPerson()},
	}, WithDeferredFields("description"))
}

func newTestAwardSerializer() *Serializer {
	return NewSerializer("AwardSerializer",
		Concrete("award"),
		Concrete("year"),
	)
}

func newTestPersonSerializer() *Serializer {
	return NewSerializer("PersonSerializer",
		Concrete("name"),
		Concrete("nomination_count"),
		NestedMany("awards", newTestAwardSerializer()),
	)
}
