package reflection

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type author struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `json:"name"`
	Bio       sql.NullString `json:"bio"`
	CreatedAt time.Time      `json:"created_at"`

	Books   []book   `gorm:"foreignKey:AuthorID" json:"books,omitempty"`
	Profile *profile `gorm:"foreignKey:AuthorID" json:"profile,omitempty"`

	BookCount int64 `gorm:"->" json:"book_count,omitempty"`
	Ignored   string `gorm:"-" json:"-"`
}

type book struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	AuthorID uint   `json:"author_id"`
	Title    string `gorm:"column:book_title" json:"title"`

	Author *author `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Tags   []tag   `gorm:"many2many:book_tags" json:"tags,omitempty"`
}

type tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `json:"name"`
}

type profile struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	AuthorID uint   `json:"author_id"`
	Website  string `json:"website"`
}

type bunShelf struct {
	ID    int64  `bun:"id,pk,autoincrement" json:"id"`
	Label string `bun:"label" json:"label"`

	Books []book `bun:"rel:has-many,join:id=shelf_id" json:"books,omitempty"`
}

func TestBaseStructType(t *testing.T) {
	assert.Equal(t, "author", BaseStructType(author{}).Name())
	assert.Equal(t, "author", BaseStructType(&author{}).Name())
	assert.Equal(t, "author", BaseStructType([]author{}).Name())
	assert.Equal(t, "author", BaseStructType(&[]*author{}).Name())
	assert.Nil(t, BaseStructType(42))
	assert.Nil(t, BaseStructType(nil))
}

func TestGetModelConcreteColumns(t *testing.T) {
	// relations, scan-only and ignored fields stay out; order follows the
	// struct declaration
	assert.Equal(t, []string{"id", "name", "bio", "created_at"}, GetModelConcreteColumns(author{}))
	assert.Equal(t, []string{"id", "author_id", "book_title"}, GetModelConcreteColumns(book{}))
	assert.Equal(t, []string{"id", "label"}, GetModelConcreteColumns(bunShelf{}))
}

func TestGetRelationInfo(t *testing.T) {
	tests := []struct {
		model     interface{}
		jsonName  string
		fieldName string
		kind      RelationType
	}{
		{author{}, "books", "Books", RelationHasMany},
		{author{}, "profile", "Profile", RelationBelongsTo},
		{book{}, "author", "Author", RelationBelongsTo},
		{book{}, "tags", "Tags", RelationManyToMany},
		{bunShelf{}, "books", "Books", RelationHasMany},
	}

	for _, tt := range tests {
		t.Run(tt.jsonName, func(t *testing.T) {
			info := GetRelationInfo(tt.model, tt.jsonName)
			require.NotNil(t, info)
			assert.Equal(t, tt.fieldName, info.FieldName)
			assert.Equal(t, tt.kind, info.Kind)
		})
	}

	assert.Nil(t, GetRelationInfo(author{}, "name"))
	assert.Nil(t, GetRelationInfo(author{}, "missing"))
}

func TestGetRelationType(t *testing.T) {
	assert.Equal(t, RelationHasMany, GetRelationType(author{}, "Books"))
	assert.Equal(t, RelationBelongsTo, GetRelationType(book{}, "Author"))
	// dotted paths walk intermediate relations
	assert.Equal(t, RelationBelongsTo, GetRelationType(author{}, "Books.Author"))
	assert.Equal(t, RelationNone, GetRelationType(author{}, "Name"))
	assert.Equal(t, RelationNone, GetRelationType(author{}, "Missing"))
}

func TestRelationTypeSingleValued(t *testing.T) {
	assert.True(t, RelationBelongsTo.SingleValued())
	assert.True(t, RelationHasOne.SingleValued())
	assert.False(t, RelationHasMany.SingleValued())
	assert.False(t, RelationManyToMany.SingleValued())
}

func TestGetSelectRelatedChoices(t *testing.T) {
	choices := GetSelectRelatedChoices(book{})
	assert.Contains(t, choices, "author")
	assert.NotContains(t, choices, "tags")
}

func TestFindFieldByJSONName(t *testing.T) {
	a := author{Name: "Ursula K. Le Guin", BookCount: 23}
	val, ok := FindFieldByJSONName(reflect.ValueOf(a), "name")
	require.True(t, ok)
	assert.Equal(t, "Ursula K. Le Guin", val.Interface())

	val, ok = FindFieldByJSONName(reflect.ValueOf(a), "book_count")
	require.True(t, ok)
	assert.Equal(t, int64(23), val.Interface())

	_, ok = FindFieldByJSONName(reflect.ValueOf(a), "missing")
	assert.False(t, ok)
}

func TestGetPrimaryKeyName(t *testing.T) {
	assert.Equal(t, "id", GetPrimaryKeyName(author{}))
	assert.Equal(t, "id", GetPrimaryKeyName(bunShelf{}))
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"AuthorID", "author_id"},
		{"CreatedAt", "created_at"},
		{"Name", "name"},
		{"HTTPStatus", "http_status"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ToSnakeCase(tt.in))
	}
}
