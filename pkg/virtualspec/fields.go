package virtualspec

import (
	"fmt"
	"strings"

	"github.com/bitechdev/VirtualSpec/pkg/common"
	"github.com/bitechdev/VirtualSpec/pkg/reflection"
)

// RequestContext carries request-scoped data (current user, arbitrary
// parameters) into annotation and prefetch-queryset callables. It is passed
// explicitly through every recursive call; tree nodes never store it.
type RequestContext struct {
	User   interface{}
	Params map[string]interface{}
}

// Param returns a named request parameter, nil when absent.
func (rc *RequestContext) Param(key string) interface{} {
	if rc == nil || rc.Params == nil {
		return nil
	}
	return rc.Params[key]
}

// QuerysetFunc transforms a queryset using request-scoped context. Functions
// must be pure with respect to application order: the engine applies sibling
// annotations in declaration order, not dependency order.
type QuerysetFunc func(q common.SelectQuery, rc *RequestContext) common.SelectQuery

// VirtualField is a node of the declaration tree. Concrete kinds: VirtualModel
// (prefetched relation), NestedJoin (eager join), Annotation (queryset-level
// computed column via callable), Expression (computed column via SQL), NoOp
// (explicitly no data-access requirement).
type VirtualField interface {
	// HydrateQueryset applies this declaration to the accumulating queryset.
	// lookupList holds the paths requested under this node, relative to it.
	HydrateQueryset(q common.SelectQuery, lookupList []string, rc *RequestContext) (common.SelectQuery, error)

	// FieldName returns the name this node was declared under, empty before
	// binding.
	FieldName() string

	// Parent returns the enclosing virtual model, nil for roots.
	Parent() *VirtualModel

	bind(fieldName string, parent *VirtualModel) error
}

// baseField carries the binding state shared by every declaration kind.
type baseField struct {
	fieldName string
	parent    *VirtualModel
}

func (b *baseField) FieldName() string     { return b.fieldName }
func (b *baseField) Parent() *VirtualModel { return b.parent }

func (b *baseField) bind(fieldName string, parent *VirtualModel) error {
	if b.fieldName != "" {
		return &InvalidParamsError{Reason: fmt.Sprintf(
			"field `%s` is already bound as `%s`; a declaration value belongs to exactly one tree",
			fieldName, b.fieldName)}
	}
	b.fieldName = fieldName
	b.parent = parent
	return nil
}

// NoOp marks a serializer field as having no virtual model dependency: its
// data comes from outside the model layer.
type NoOp struct {
	baseField
}

// NewNoOp creates an explicit no-requirement marker.
func NewNoOp() *NoOp { return &NoOp{} }

func (n *NoOp) HydrateQueryset(q common.SelectQuery, _ []string, _ *RequestContext) (common.SelectQuery, error) {
	return q, nil
}

// Expression adds a computed column from a raw SQL fragment, aliased to the
// declared field name.
type Expression struct {
	baseField
	sql  string
	args []interface{}
}

// NewExpression creates a computed-column declaration from a SQL expression,
// e.g. NewExpression("SUBSTR(description, 1, 128)").
func NewExpression(sql string, args ...interface{}) *Expression {
	return &Expression{sql: sql, args: args}
}

func (e *Expression) HydrateQueryset(q common.SelectQuery, _ []string, _ *RequestContext) (common.SelectQuery, error) {
	return q.ColumnExpr(fmt.Sprintf("(%s) AS %s", e.sql, e.fieldName), e.args...), nil
}

// Annotation wraps a queryset transformation callable that adds one or more
// computed fields (aggregates, subqueries). Sibling annotations run in
// declaration order; inter-annotation column dependencies must be expressed by
// declaring them in that order.
type Annotation struct {
	baseField
	fn QuerysetFunc
}

// NewAnnotation creates an annotation declaration from a queryset callable.
func NewAnnotation(fn QuerysetFunc) *Annotation {
	return &Annotation{fn: fn}
}

func (a *Annotation) HydrateQueryset(q common.SelectQuery, _ []string, rc *RequestContext) (common.SelectQuery, error) {
	if a.fn == nil {
		return q, nil
	}
	return a.fn(q, rc), nil
}

// NestedJoin declares a single-valued relation resolved with an eager JOIN
// instead of a separate prefetch query. The target model must not need further
// virtual resolution; when it does, the declaration has to be promoted to a
// nested VirtualModel.
type NestedJoin struct {
	baseField
	model interface{}
}

// NewNestedJoin creates an eager-join declaration bound to the target model
// type of the relation.
func NewNestedJoin(model interface{}) *NestedJoin {
	return &NestedJoin{model: model}
}

// TargetModel returns the model type this join resolves to.
func (j *NestedJoin) TargetModel() interface{} { return j.model }

func (j *NestedJoin) HydrateQueryset(q common.SelectQuery, lookupList []string, _ *RequestContext) (common.SelectQuery, error) {
	if err := j.checkLookups(lookupList); err != nil {
		return q, err
	}

	concrete := make(map[string]struct{})
	for _, col := range reflection.GetModelConcreteColumns(j.model) {
		concrete[col] = struct{}{}
	}

	ormPath := j.ormRelationPath()
	if !q.HasRelation(ormPath) {
		q = q.JoinRelation(ormPath)
	}

	for _, k := range lookupList {
		kOneLevel := OneLevelLookup(k)
		if _, ok := concrete[kOneLevel]; ok {
			continue
		}
		nested := ormPath + "." + exportedRelationName(j.model, kOneLevel)
		if !q.HasRelation(nested) {
			q = q.JoinRelation(nested)
		}
	}
	return q, nil
}

// checkLookups verifies that every requested path under the join resolves to
// either a concrete column of the target or one of its join-resolvable
// relations, without touching any queryset. It runs at compile time even when
// the join sits under a prefetch whose customizer the ORM applies lazily.
func (j *NestedJoin) checkLookups(lookupList []string) error {
	concrete := make(map[string]struct{})
	for _, col := range reflection.GetModelConcreteColumns(j.model) {
		concrete[col] = struct{}{}
	}
	choices := reflection.GetSelectRelatedChoices(j.model)
	choiceSet := make(map[string]struct{}, len(choices))
	for _, c := range choices {
		choiceSet[c] = struct{}{}
	}

	for _, k := range lookupList {
		kOneLevel := OneLevelLookup(k)
		if _, ok := concrete[kOneLevel]; ok {
			continue
		}
		if _, ok := choiceSet[kOneLevel]; !ok {
			// nested lookups beyond the first level are validated by the
			// target relation's own join resolution
			parentName := "(unbound)"
			if j.parent != nil {
				parentName = j.parent.Name()
			}
			return &InvalidLookupError{
				Lookup: k,
				Reason: fmt.Sprintf(
					"`%s` cannot be used as a lookup for the `%s` nested join used by `%s`. "+
						"Join-resolvable choices are: %s",
					kOneLevel, j.fieldName, parentName, joinChoices(choices)),
			}
		}
	}
	return nil
}

// ormRelationPath maps the declared field name to the ORM's struct-field
// relation name on the parent model.
func (j *NestedJoin) ormRelationPath() string {
	if j.parent == nil {
		return exportedName(j.fieldName)
	}
	return exportedRelationName(j.parent.Model(), j.fieldName)
}

func joinChoices(choices []string) string {
	if len(choices) == 0 {
		return "(none)"
	}
	return strings.Join(choices, ", ")
}

// exportedRelationName resolves a serializer-exposed relation name to the Go
// struct field name the ORM expects, falling back to a camel-cased guess when
// the model has no matching relation field.
func exportedRelationName(model interface{}, jsonName string) string {
	if info := reflection.GetRelationInfo(model, jsonName); info != nil {
		return info.FieldName
	}
	return exportedName(jsonName)
}

// exportedName converts a snake_case serializer name to an exported Go
// identifier, e.g. "created_by" -> "CreatedBy".
func exportedName(name string) string {
	parts := strings.Split(name, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
