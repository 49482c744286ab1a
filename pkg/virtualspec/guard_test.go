package virtualspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guardedTestPerson(t *testing.T, lookupList []string) *GuardedInstance {
	t.Helper()
	person := testPerson{
		ID:        1,
		Name:      "Hayao Miyazaki",
		Biography: "Co-founder of Studio Ghibli.",
		Nominations: []testNomination{
			{ID: 10, PersonID: 1, Award: "Academy Award", Year: 2003, IsWinner: true},
		},
		NominationCount: 2,
	}
	g, err := GuardInstance(&person, newTestVirtualPerson(), lookupList)
	require.NoError(t, err)
	return g
}

func TestGuardInstanceRejectsBadInput(t *testing.T) {
	vm := newTestVirtualPerson()

	_, err := GuardInstance(nil, vm, nil)
	assert.IsType(t, &InvalidParamsError{}, err)

	_, err = GuardInstance(testPerson{}, nil, nil)
	assert.IsType(t, &InvalidParamsError{}, err)

	_, err = GuardInstance((*testPerson)(nil), vm, nil)
	assert.IsType(t, &InvalidParamsError{}, err)

	_, err = GuardInstance("not a struct", vm, nil)
	assert.IsType(t, &InvalidParamsError{}, err)
}

func TestAttrConcreteColumn(t *testing.T) {
	g := guardedTestPerson(t, []string{"name"})

	v, err := g.Attr("name")
	require.NoError(t, err)
	assert.Equal(t, "Hayao Miyazaki", v)
}

func TestAttrDeferredColumnOutsideListStillReads(t *testing.T) {
	// deferred concrete columns follow the ORM's lazy-fetch cost model, so the
	// guard lets them through
	g := guardedTestPerson(t, []string{"name"})

	v, err := g.Attr("biography")
	require.NoError(t, err)
	assert.Equal(t, "Co-founder of Studio Ghibli.", v)
}

func TestAttrUnresolvedVirtualFieldViolates(t *testing.T) {
	g := guardedTestPerson(t, []string{"name"})

	_, err := g.Attr("awards")
	require.Error(t, err)
	assert.IsType(t, &AccessViolationError{}, err)
	assert.Contains(t, err.Error(), "awards")
}

func TestAttrNilListResolvesEverything(t *testing.T) {
	g := guardedTestPerson(t, nil)

	awards, err := g.AttrSlice("awards")
	require.NoError(t, err)
	require.Len(t, awards, 1)

	count, err := g.Attr("nomination_count")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestAttrAnnotationValue(t *testing.T) {
	g := guardedTestPerson(t, []string{"nomination_count"})

	v, err := g.Attr("nomination_count")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestAttrAliasResolvesToRelationField(t *testing.T) {
	// "awards" is an alias over the "nominations" relation; the guard reads the
	// hydrated relation field, not a struct field named Awards
	g := guardedTestPerson(t, []string{"awards", "awards.award"})

	awards, err := g.AttrSlice("awards")
	require.NoError(t, err)
	require.Len(t, awards, 1)

	award, err := awards[0].Attr("award")
	require.NoError(t, err)
	assert.Equal(t, "Academy Award", award)
}

func TestAttrUnknownNameIsInvalidLookup(t *testing.T) {
	g := guardedTestPerson(t, nil)

	_, err := g.Attr("filmography")
	require.Error(t, err)
	assert.IsType(t, &InvalidLookupError{}, err)
}

func TestAttrSliceOnSingleValuedFieldFails(t *testing.T) {
	g := guardedTestPerson(t, []string{"nomination_count"})

	_, err := g.AttrSlice("nomination_count")
	require.Error(t, err)
	assert.IsType(t, &InvalidLookupError{}, err)
}

func TestNestedGuardInheritsSublist(t *testing.T) {
	movie := testMovie{
		ID:   1,
		Name: "Spirited Away",
		Directors: []testPerson{
			{
				ID:   1,
				Name: "Hayao Miyazaki",
				Nominations: []testNomination{
					{ID: 10, Award: "Academy Award", IsWinner: true},
				},
			},
		},
	}
	vm := newTestVirtualMovie()

	// directors requested without directors.awards: the nested guard must
	// refuse awards access even though the struct field holds data
	g, err := GuardInstance(&movie, vm, []string{"name", "directors", "directors.name"})
	require.NoError(t, err)

	directors, err := g.AttrSlice("directors")
	require.NoError(t, err)
	require.Len(t, directors, 1)

	name, err := directors[0].Attr("name")
	require.NoError(t, err)
	assert.Equal(t, "Hayao Miyazaki", name)

	_, err = directors[0].Attr("awards")
	require.Error(t, err)
	assert.IsType(t, &AccessViolationError{}, err)
}

func TestNestedGuardWithRequestedSublist(t *testing.T) {
	movie := testMovie{
		ID:   1,
		Name: "Spirited Away",
		Directors: []testPerson{
			{
				ID:   1,
				Name: "Hayao Miyazaki",
				Nominations: []testNomination{
					{ID: 10, Award: "Academy Award", Year: 2003, IsWinner: true},
				},
			},
		},
	}
	vm := newTestVirtualMovie()

	g, err := GuardInstance(&movie, vm, []string{"directors", "directors.awards", "directors.awards.award"})
	require.NoError(t, err)

	directors, err := g.AttrSlice("directors")
	require.NoError(t, err)
	require.Len(t, directors, 1)

	awards, err := directors[0].AttrSlice("awards")
	require.NoError(t, err)
	require.Len(t, awards, 1)

	award, err := awards[0].Attr("award")
	require.NoError(t, err)
	assert.Equal(t, "Academy Award", award)
}

func TestGuardSlice(t *testing.T) {
	people := []testPerson{
		{ID: 1, Name: "Hayao Miyazaki"},
		{ID: 2, Name: "Isao Takahata"},
	}

	guarded, err := GuardSlice(&people, newTestVirtualPerson(), []string{"name"})
	require.NoError(t, err)
	require.Len(t, guarded, 2)

	name, err := guarded[1].Attr("name")
	require.NoError(t, err)
	assert.Equal(t, "Isao Takahata", name)
}

func TestGuardSliceRejectsNonSlice(t *testing.T) {
	_, err := GuardSlice(testPerson{}, newTestVirtualPerson(), nil)
	require.Error(t, err)
	assert.IsType(t, &InvalidParamsError{}, err)
}

func TestAttrNoOpIsNil(t *testing.T) {
	vm := MustVirtualModel(testPerson{}, Fields{
		{Name: "profile", Field: NewNoOp()},
	})
	g, err := GuardInstance(testPerson{Name: "x"}, vm, nil)
	require.NoError(t, err)

	v, err := g.Attr("profile")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAttrNestedJoinValue(t *testing.T) {
	nomination := testNomination{
		ID:     10,
		Award:  "Academy Award",
		Person: &testPerson{ID: 1, Name: "Hayao Miyazaki"},
	}
	vm := MustVirtualModel(testNomination{}, Fields{
		{Name: "person", Field: NewNestedJoin(testPerson{})},
	})
	g, err := GuardInstance(nomination, vm, []string{"person"})
	require.NoError(t, err)

	v, err := g.Attr("person")
	require.NoError(t, err)
	joined, ok := v.(testPerson)
	require.True(t, ok)
	assert.Equal(t, "Hayao Miyazaki", joined.Name)
}

func TestUnwrapReturnsUnderlyingValue(t *testing.T) {
	g := guardedTestPerson(t, nil)
	p, ok := g.Unwrap().(testPerson)
	require.True(t, ok)
	assert.Equal(t, uint(1), p.ID)
}
