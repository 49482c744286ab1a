package virtualspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/VirtualSpec/pkg/common"
)

func TestNewVirtualModelValidation(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (*VirtualModel, error)
		wantErr interface{}
	}{
		{
			name: "non-struct model",
			build: func() (*VirtualModel, error) {
				return NewVirtualModel(42, nil)
			},
			wantErr: &InvalidParamsError{},
		},
		{
			name: "duplicate declaration",
			build: func() (*VirtualModel, error) {
				return NewVirtualModel(testPerson{}, Fields{
					{Name: "awards", Field: NewNoOp()},
					{Name: "awards", Field: NewNoOp()},
				})
			},
			wantErr: &ConflictingDeclarationError{},
		},
		{
			name: "shadowing a concrete column",
			build: func() (*VirtualModel, error) {
				return NewVirtualModel(testPerson{}, Fields{
					{Name: "name", Field: NewNoOp()},
				})
			},
			wantErr: &ConflictingDeclarationError{},
		},
		{
			name: "separator in field name",
			build: func() (*VirtualModel, error) {
				return NewVirtualModel(testPerson{}, Fields{
					{Name: "awards.year", Field: NewNoOp()},
				})
			},
			wantErr: &InvalidParamsError{},
		},
		{
			name: "to-attr without lookup",
			build: func() (*VirtualModel, error) {
				return NewVirtualModel(testPerson{}, nil, WithToAttr("awards"))
			},
			wantErr: &InvalidParamsError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, err := tt.build()
			require.Error(t, err)
			assert.Nil(t, vm)
			assert.IsType(t, tt.wantErr, err)
		})
	}
}

func TestVirtualModelRebindRejected(t *testing.T) {
	child := newTestVirtualAwards()
	_, err := NewVirtualModel(testPerson{}, Fields{
		{Name: "awards", Field: child},
	})
	require.NoError(t, err)

	_, err = NewVirtualModel(testPerson{}, Fields{
		{Name: "honors", Field: child},
	})
	require.Error(t, err)
	assert.IsType(t, &InvalidParamsError{}, err)
}

func TestVirtualModelDefaults(t *testing.T) {
	vm := newTestVirtualPerson()

	assert.Equal(t, "VirtualtestPerson", vm.Name())
	assert.Equal(t, "testPerson", vm.ModelTypeName())
	assert.True(t, vm.IsConcrete("name"))
	assert.True(t, vm.IsConcrete("biography"))
	assert.False(t, vm.IsConcrete("nomination_count"))
	assert.True(t, vm.IsDeferred("biography"))
	assert.False(t, vm.IsDeferred("name"))

	_, ok := vm.Declared("awards")
	assert.True(t, ok)
	_, ok = vm.Declared("nominations")
	assert.False(t, ok)
}

func TestMergeShadowsByName(t *testing.T) {
	base := Fields{
		{Name: "awards", Field: NewNoOp()},
		{Name: "extra", Field: NewNoOp()},
	}
	annotation := NewAnnotation(nil)
	override := Fields{
		{Name: "awards", Field: annotation},
	}

	merged := Merge(base, override)
	require.Len(t, merged, 2)
	assert.Equal(t, "awards", merged[0].Name)
	assert.Same(t, annotation, merged[0].Field.(*Annotation))
	assert.Equal(t, "extra", merged[1].Name)
}

func TestGetOptimizedQuerysetCompilesPlan(t *testing.T) {
	vm := newTestVirtualPerson()
	lookups := []string{"name", "nomination_count", "awards", "awards.award", "awards.year"}

	q, err := vm.GetOptimizedQueryset(newMockQuery(), lookups, nil)
	require.NoError(t, err)
	mq := q.(*mockQuery)

	// aliased prefetch registered under relation->to-attr
	assert.Equal(t, []string{"Nominations->awards"}, mq.AppliedRelations())
	sub, ok := mq.preloads["Nominations->awards"]
	require.True(t, ok)

	// the prefetch queryset override filtered the sub-query
	assert.Equal(t, []string{"is_winner = ?"}, sub.wheres)
	assert.Empty(t, sub.excluded)

	// the annotation added its computed column
	require.Len(t, mq.columnExprs, 1)
	assert.Contains(t, mq.columnExprs[0], "AS nomination_count")

	// unrequested deferred columns are excluded from the projection
	assert.Equal(t, []string{"biography"}, mq.excluded)
}

func TestGetOptimizedQuerysetNilListResolvesEverything(t *testing.T) {
	vm := newTestVirtualPerson()

	q, err := vm.GetOptimizedQueryset(newMockQuery(), nil, nil)
	require.NoError(t, err)
	mq := q.(*mockQuery)

	assert.True(t, mq.HasRelation("Nominations->awards"))
	require.Len(t, mq.columnExprs, 1)
	// the full expansion includes every concrete column, so nothing is deferred
	assert.Empty(t, mq.excluded)
}

func TestGetOptimizedQuerysetEmptyListOnlyDefers(t *testing.T) {
	vm := newTestVirtualPerson()

	q, err := vm.GetOptimizedQueryset(newMockQuery(), []string{}, nil)
	require.NoError(t, err)
	mq := q.(*mockQuery)

	assert.Empty(t, mq.AppliedRelations())
	assert.Empty(t, mq.columnExprs)
	assert.Equal(t, []string{"biography"}, mq.excluded)
}

func TestGetOptimizedQuerysetIdempotent(t *testing.T) {
	vm := newTestVirtualPerson()
	lookups := []string{"awards", "awards.award"}

	q, err := vm.GetOptimizedQueryset(newMockQuery(), lookups, nil)
	require.NoError(t, err)
	q, err = vm.GetOptimizedQueryset(q, lookups, nil)
	require.NoError(t, err)

	mq := q.(*mockQuery)
	assert.Equal(t, []string{"Nominations->awards"}, mq.AppliedRelations())
}

func TestGetOptimizedQuerysetUnknownLookup(t *testing.T) {
	vm := newTestVirtualPerson()

	_, err := vm.GetOptimizedQueryset(newMockQuery(), []string{"filmography"}, nil)
	require.Error(t, err)
	assert.IsType(t, &InvalidLookupError{}, err)
}

func TestNestedVirtualModelPrefetchChain(t *testing.T) {
	vm := newTestVirtualMovie()
	lookups := []string{"name", "directors", "directors.name", "directors.awards", "directors.awards.award"}

	q, err := vm.GetOptimizedQueryset(newMockQuery(), lookups, nil)
	require.NoError(t, err)
	mq := q.(*mockQuery)

	require.True(t, mq.HasRelation("Directors"))
	directors := mq.preloads["Directors"]
	require.NotNil(t, directors)

	// the nested child compiled its own aliased prefetch on the sub-query
	assert.True(t, directors.HasRelation("Nominations->awards"))
	// directors.biography was not requested, so it stays deferred
	assert.Equal(t, []string{"biography"}, directors.excluded)
	assert.Equal(t, []string{"description"}, mq.excluded)
}

func TestNestedJoinCompilesJoins(t *testing.T) {
	vm := MustVirtualModel(testNomination{}, Fields{
		{Name: "person", Field: NewNestedJoin(testPerson{})},
	})

	q, err := vm.GetOptimizedQueryset(newMockQuery(), []string{"award", "person", "person.name"}, nil)
	require.NoError(t, err)
	mq := q.(*mockQuery)

	assert.True(t, mq.HasRelation("Person"))
	assert.Empty(t, mq.preloads)
}

func TestNestedJoinRejectsUnjoinableLookup(t *testing.T) {
	vm := MustVirtualModel(testNomination{}, Fields{
		{Name: "person", Field: NewNestedJoin(testPerson{})},
	})

	_, err := vm.GetOptimizedQueryset(newMockQuery(), []string{"person", "person.unknown_thing"}, nil)
	require.Error(t, err)
	assert.IsType(t, &InvalidLookupError{}, err)
}

func TestCompileRejectsUnknownNestedLookupBeforeScan(t *testing.T) {
	vm := newTestVirtualMovie()

	// preload customizers have not run yet, so the error must come from the
	// compile step itself
	_, err := vm.GetOptimizedQueryset(newLazyMockQuery(), []string{"directors", "directors.filmography"}, nil)
	require.Error(t, err)
	assert.IsType(t, &InvalidLookupError{}, err)
	assert.Contains(t, err.Error(), "filmography")
}

func TestCompileRejectsUnjoinableLookupUnderPrefetch(t *testing.T) {
	nominations := MustVirtualModel(testNomination{}, Fields{
		{Name: "movie", Field: NewNestedJoin(testMovie{})},
	}, WithLookup("nominations"))
	vm := MustVirtualModel(testPerson{}, Fields{
		{Name: "filmwork", Field: nominations},
	})

	// directors is multi-valued on the join target, so it is not resolvable
	// through the nested join even though the path is well-formed
	q := newLazyMockQuery()
	_, err := vm.GetOptimizedQueryset(q, []string{"filmwork", "filmwork.movie", "filmwork.movie.directors"}, nil)
	require.Error(t, err)
	assert.IsType(t, &InvalidLookupError{}, err)
	assert.Contains(t, err.Error(), "directors")
	assert.Empty(t, q.pending)
}

func TestBareNestedLookupMatchesGuardScope(t *testing.T) {
	vm := newTestVirtualMovie()

	q, err := vm.GetOptimizedQueryset(newMockQuery(), []string{"directors"}, nil)
	require.NoError(t, err)
	mq := q.(*mockQuery)

	directors, ok := mq.preloads["Directors"]
	require.True(t, ok)
	// naming the child without descending prefetches its rows, not the
	// child's own declarations
	assert.Empty(t, directors.AppliedRelations())
	assert.Empty(t, directors.columnExprs)
	assert.Equal(t, []string{"biography"}, directors.excluded)

	movie := testMovie{
		ID:        1,
		Name:      "Spirited Away",
		Directors: []testPerson{{ID: 2, Name: "Hayao Miyazaki"}},
	}
	g, err := GuardInstance(&movie, vm, []string{"directors"})
	require.NoError(t, err)
	children, err := g.AttrSlice("directors")
	require.NoError(t, err)
	require.Len(t, children, 1)

	name, err := children[0].Attr("name")
	require.NoError(t, err)
	assert.Equal(t, "Hayao Miyazaki", name)

	// the guard refuses exactly what the plan did not compile
	_, err = children[0].Attr("nomination_count")
	require.Error(t, err)
	assert.IsType(t, &AccessViolationError{}, err)
}

func TestPrefetchQuerysetReceivesRequestContext(t *testing.T) {
	var gotUser interface{}
	child := MustVirtualModel(testNomination{}, nil,
		WithLookup("nominations"),
		WithPrefetchQueryset(func(q common.SelectQuery, rc *RequestContext) common.SelectQuery {
			gotUser = rc.User
			return q
		}),
	)
	vm := MustVirtualModel(testPerson{}, Fields{
		{Name: "awards", Field: child},
	})

	rc := &RequestContext{User: "reviewer"}
	_, err := vm.GetOptimizedQueryset(newMockQuery(), []string{"awards"}, rc)
	require.NoError(t, err)
	assert.Equal(t, "reviewer", gotUser)
}
