package reflection

import (
	"reflect"
	"strings"
	"unicode"
)

// RelationType represents the type of database relationship
type RelationType string

const (
	RelationHasMany    RelationType = "has-many"     // 1:N - separate query
	RelationBelongsTo  RelationType = "belongs-to"   // N:1 - JOIN
	RelationHasOne     RelationType = "has-one"      // 1:1 - JOIN
	RelationManyToMany RelationType = "many-to-many" // M:N - separate query
	RelationNone       RelationType = "none"         // not a relation field
)

// SingleValued reports whether the relation resolves to at most one row and is
// therefore eligible for eager JOIN loading.
func (rt RelationType) SingleValued() bool {
	return rt == RelationBelongsTo || rt == RelationHasOne
}

// RelationInfo describes a relation field on a model struct.
type RelationInfo struct {
	FieldName  string // Go struct field name, e.g. "Directors"
	JSONName   string // serializer-exposed name, e.g. "directors"
	ForeignKey string // owning-side key column when declared in tags
	Kind       RelationType
	Target     reflect.Type // related struct type, pointers/slices unwrapped
}

// BaseStructType unwraps pointers, slices, and arrays down to the struct type.
// Returns nil when the value does not resolve to a struct.
func BaseStructType(model interface{}) reflect.Type {
	modelType := reflect.TypeOf(model)
	for modelType != nil && (modelType.Kind() == reflect.Pointer || modelType.Kind() == reflect.Slice || modelType.Kind() == reflect.Array) {
		modelType = modelType.Elem()
	}
	if modelType == nil || modelType.Kind() != reflect.Struct {
		return nil
	}
	return modelType
}

// GetModelConcreteColumns extracts the concrete (non-relation) column names of a
// model, in field-declaration order. A column counts as concrete when it has a
// bun or gorm mapping and carries no relation tags. These are the fields a base
// queryset always satisfies without joins or prefetches.
func GetModelConcreteColumns(model interface{}) []string {
	var columns []string
	modelType := BaseStructType(model)
	if modelType == nil {
		return columns
	}
	collectConcreteColumns(modelType, &columns)
	return columns
}

func collectConcreteColumns(typ reflect.Type, columns *[]string) {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)

		if field.Anonymous {
			fieldType := field.Type
			if fieldType.Kind() == reflect.Pointer {
				fieldType = fieldType.Elem()
			}
			if fieldType.Kind() == reflect.Struct {
				collectConcreteColumns(fieldType, columns)
				continue
			}
		}

		bunTag := field.Tag.Get("bun")
		gormTag := field.Tag.Get("gorm")
		if bunTag == "-" || gormTag == "-" {
			continue
		}
		// scan-only fields hold computed columns, not base-table columns
		if strings.Contains(bunTag, "scanonly") || strings.HasPrefix(gormTag, "->") {
			continue
		}
		if isRelationTag(bunTag, gormTag, field.Type) {
			continue
		}

		name := columnNameForField(field)
		if name != "" {
			*columns = append(*columns, name)
		}
	}
}

func isRelationTag(bunTag, gormTag string, fieldType reflect.Type) bool {
	if strings.Contains(bunTag, "rel:") || strings.Contains(bunTag, "join:") || strings.Contains(bunTag, "m2m:") {
		return true
	}
	if strings.Contains(gormTag, "foreignKey:") || strings.Contains(gormTag, "references:") || strings.Contains(gormTag, "many2many:") {
		return true
	}
	// untagged struct/slice-of-struct fields are relations, not columns
	t := fieldType
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice {
		e := t.Elem()
		if e.Kind() == reflect.Pointer {
			e = e.Elem()
		}
		return e.Kind() == reflect.Struct
	}
	return t.Kind() == reflect.Struct && !isScannableStruct(t)
}

// isScannableStruct reports types that scan as single SQL values even though
// they are structs (time.Time, sql.Null*, uuid.UUID and friends).
func isScannableStruct(t reflect.Type) bool {
	switch t.String() {
	case "time.Time", "uuid.UUID":
		return true
	}
	return strings.HasPrefix(t.String(), "sql.Null")
}

// columnNameForField resolves the SQL column name from bun/gorm tags, falling
// back to the snake_cased field name when the json tag is absent.
func columnNameForField(field reflect.StructField) string {
	if bunTag := field.Tag.Get("bun"); bunTag != "" {
		name := strings.Split(bunTag, ",")[0]
		if name != "" {
			return name
		}
	}
	if gormTag := field.Tag.Get("gorm"); gormTag != "" {
		for _, part := range strings.Split(gormTag, ";") {
			if strings.HasPrefix(part, "column:") {
				return strings.TrimPrefix(part, "column:")
			}
		}
	}
	if jsonTag := field.Tag.Get("json"); jsonTag != "" {
		name := strings.Split(jsonTag, ",")[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return ToSnakeCase(field.Name)
}

// JSONNameForField resolves the serializer-exposed name of a struct field.
func JSONNameForField(field reflect.StructField) string {
	if jsonTag := field.Tag.Get("json"); jsonTag != "" {
		name := strings.Split(jsonTag, ",")[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return ToSnakeCase(field.Name)
}

// GetRelationInfo finds a relation field by its serializer-exposed (json) name.
// Returns nil when the model has no such relation.
func GetRelationInfo(model interface{}, jsonName string) *RelationInfo {
	modelType := BaseStructType(model)
	if modelType == nil || jsonName == "" {
		return nil
	}

	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		if JSONNameForField(field) != jsonName && !strings.EqualFold(field.Name, jsonName) {
			continue
		}

		kind := relationKind(field)
		if kind == RelationNone {
			return nil
		}

		info := &RelationInfo{
			FieldName: field.Name,
			JSONName:  JSONNameForField(field),
			Kind:      kind,
			Target:    relationTarget(field.Type),
		}
		if fk := tagValue(field.Tag.Get("gorm"), "foreignKey"); fk != "" {
			info.ForeignKey = fk
		} else if fk := bunJoinKey(field.Tag.Get("bun")); fk != "" {
			info.ForeignKey = fk
		}
		return info
	}
	return nil
}

// GetRelationType resolves the relation kind of a struct-field path on a
// model, e.g. "Directors" or "Person.Nominations". Returns RelationNone when
// the path does not name a relation field.
func GetRelationType(model interface{}, relation string) RelationType {
	modelType := BaseStructType(model)
	if modelType == nil || relation == "" {
		return RelationNone
	}

	segments := strings.Split(relation, ".")
	for i, seg := range segments {
		field, ok := modelType.FieldByName(seg)
		if !ok {
			return RelationNone
		}
		if i == len(segments)-1 {
			return relationKind(field)
		}
		modelType = relationTarget(field.Type)
		if modelType == nil {
			return RelationNone
		}
	}
	return RelationNone
}

// GetSelectRelatedChoices returns the serializer-exposed names of every
// single-valued relation on the model: the set of relations an eager JOIN can
// resolve. Multi-valued relations need prefetching instead.
func GetSelectRelatedChoices(model interface{}) []string {
	var choices []string
	modelType := BaseStructType(model)
	if modelType == nil {
		return choices
	}
	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		if relationKind(field).SingleValued() {
			choices = append(choices, JSONNameForField(field))
		}
	}
	return choices
}

// relationKind inspects bun/gorm struct tags and the field type to classify the
// relationship cardinality.
func relationKind(field reflect.StructField) RelationType {
	bunTag := field.Tag.Get("bun")
	if strings.Contains(bunTag, "rel:") {
		for _, part := range strings.Split(bunTag, ",") {
			part = strings.TrimSpace(part)
			if !strings.HasPrefix(part, "rel:") {
				continue
			}
			switch strings.TrimPrefix(part, "rel:") {
			case "has-many":
				return RelationHasMany
			case "belongs-to":
				return RelationBelongsTo
			case "has-one":
				return RelationHasOne
			case "many-to-many", "m2m":
				return RelationManyToMany
			}
		}
	}
	if strings.Contains(bunTag, "m2m:") {
		return RelationManyToMany
	}

	gormTag := field.Tag.Get("gorm")
	if strings.Contains(gormTag, "many2many:") {
		return RelationManyToMany
	}

	t := field.Type
	if t.Kind() == reflect.Slice {
		e := t.Elem()
		if e.Kind() == reflect.Pointer {
			e = e.Elem()
		}
		if e.Kind() == reflect.Struct {
			return RelationHasMany
		}
		return RelationNone
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct && !isScannableStruct(t) {
		if strings.Contains(gormTag, "foreignKey:") || strings.Contains(bunTag, "rel:belongs-to") {
			return RelationBelongsTo
		}
		// single struct defaults to belongs-to, the safe JOIN-able assumption
		return RelationBelongsTo
	}
	return RelationNone
}

func relationTarget(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		return t
	}
	return nil
}

// tagValue extracts "key:value" entries from a semicolon-separated gorm tag.
func tagValue(tag, key string) string {
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, key+":") {
			return strings.TrimPrefix(part, key+":")
		}
	}
	return ""
}

// bunJoinKey extracts the owning-side column from a bun join tag, e.g.
// "rel:has-many,join:id=person_id" -> "person_id".
func bunJoinKey(tag string) string {
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "join:") {
			pair := strings.TrimPrefix(part, "join:")
			if idx := strings.Index(pair, "="); idx >= 0 {
				return pair[idx+1:]
			}
		}
	}
	return ""
}

// FindFieldByJSONName locates a struct field value by its serializer-exposed
// name. The input value must be a struct or pointer to struct.
func FindFieldByJSONName(val reflect.Value, jsonName string) (reflect.Value, bool) {
	for val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return reflect.Value{}, false
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.Anonymous {
			if nested, ok := FindFieldByJSONName(val.Field(i), jsonName); ok {
				return nested, true
			}
			continue
		}
		if JSONNameForField(field) == jsonName || strings.EqualFold(field.Name, jsonName) {
			return val.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// GetPrimaryKeyName extracts the primary key column name from a model.
// It first checks the PrimaryKeyNameProvider interface (GetIDName method),
// then falls back to bun:",pk" and gorm:"primaryKey" tags.
func GetPrimaryKeyName(model interface{}) string {
	type primaryKeyNameProvider interface {
		GetIDName() string
	}
	if provider, ok := model.(primaryKeyNameProvider); ok {
		return provider.GetIDName()
	}

	modelType := BaseStructType(model)
	if modelType == nil {
		return ""
	}
	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		if strings.Contains(field.Tag.Get("bun"), "pk") || strings.Contains(field.Tag.Get("gorm"), "primaryKey") {
			return columnNameForField(field)
		}
	}
	return ""
}

// ToSnakeCase converts a Go field name (e.g. DepartmentID) to its conventional
// column form (department_id).
func ToSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && !unicode.IsUpper(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
