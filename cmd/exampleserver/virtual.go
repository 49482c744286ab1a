package main

import (
	"github.com/bitechdev/VirtualSpec/pkg/common"
	"github.com/bitechdev/VirtualSpec/pkg/virtualspec"
)

// newVirtualAwards declares the winning nominations of a person, surfaced as
// "awards". The prefetch is filtered at query time, not in memory.
func newVirtualAwards() *virtualspec.VirtualModel {
	return virtualspec.MustVirtualModel(Nomination{}, nil,
		virtualspec.WithName("VirtualAward"),
		virtualspec.WithLookup("nominations"),
		virtualspec.WithPrefetchQueryset(func(q common.SelectQuery, _ *virtualspec.RequestContext) common.SelectQuery {
			return q.Where("is_winner = ?", true)
		}),
	)
}

// newVirtualPerson builds the person declaration tree: prefetched awards, a
// nomination-count annotation and a deferred biography column.
func newVirtualPerson() *virtualspec.VirtualModel {
	return virtualspec.MustVirtualModel(Person{}, virtualspec.Fields{
		{Name: "awards", Field: newVirtualAwards()},
		{Name: "nomination_count", Field: virtualspec.NewAnnotation(
			func(q common.SelectQuery, _ *virtualspec.RequestContext) common.SelectQuery {
				return q.ColumnExpr(
					"(SELECT COUNT(*) FROM nominations WHERE nominations.person_id = people.id) AS nomination_count")
			})},
	}, virtualspec.WithDeferredFields("biography"))
}

// newVirtualMovie nests the person tree under "directors".
func newVirtualMovie() *virtualspec.VirtualModel {
	return virtualspec.MustVirtualModel(Movie{}, virtualspec.Fields{
		{Name: "directors", Field: newVirtualPerson()},
	}, virtualspec.WithDeferredFields("description"))
}

func newAwardSerializer() *virtualspec.Serializer {
	return virtualspec.NewSerializer("AwardSerializer",
		virtualspec.Concrete("award"),
		virtualspec.Concrete("category"),
		virtualspec.Concrete("year"),
	)
}

func newPersonSerializer() *virtualspec.Serializer {
	return virtualspec.NewSerializer("PersonSerializer",
		virtualspec.Concrete("name"),
		virtualspec.Concrete("nomination_count"),
		virtualspec.NestedMany("awards", newAwardSerializer()),
	)
}

func newMovieSerializer() *virtualspec.Serializer {
	return virtualspec.NewSerializer("MovieSerializer",
		virtualspec.Concrete("name"),
		virtualspec.Concrete("year"),
		virtualspec.NestedMany("directors", newPersonSerializer()),
	)
}
