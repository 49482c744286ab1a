package virtualspec

import (
	"github.com/bitechdev/VirtualSpec/pkg/virtualspec/hints"
)

// SerializerField is one node of a serializer's declared output shape. Only
// the metadata the lookup finder needs is modeled: name, data source, kind and
// (for computed fields) the usage hint.
type SerializerField interface {
	// Name is the field's exposed name in the serializer output.
	Name() string
	// Source is the attribute path the field reads from, defaulting to Name.
	// Dotted sources traverse single-valued relations.
	Source() string
	// WriteOnly fields never appear in output and contribute no lookups.
	WriteOnly() bool
}

type fieldMeta struct {
	name      string
	source    string
	writeOnly bool
}

func (m fieldMeta) Name() string { return m.name }

func (m fieldMeta) Source() string {
	if m.source != "" {
		return m.source
	}
	return m.name
}

func (m fieldMeta) WriteOnly() bool { return m.writeOnly }

// FieldOption customizes a serializer field.
type FieldOption func(*fieldMeta)

// WithSource sets the attribute path the field reads from when it differs
// from the exposed name, e.g. Concrete("director_name", WithSource("director.name")).
func WithSource(source string) FieldOption {
	return func(m *fieldMeta) { m.source = source }
}

// AsWriteOnly marks an input-only field; it is skipped during lookup finding.
func AsWriteOnly() FieldOption {
	return func(m *fieldMeta) { m.writeOnly = true }
}

func newFieldMeta(name string, opts []FieldOption) fieldMeta {
	m := fieldMeta{name: name}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// ConcreteField maps to a model column or a plainly readable attribute.
type ConcreteField struct {
	fieldMeta
}

// Concrete declares a column-backed serializer field.
func Concrete(name string, opts ...FieldOption) *ConcreteField {
	return &ConcreteField{fieldMeta: newFieldMeta(name, opts)}
}

// RelatedField exposes a relation by primary key (or another flat attribute of
// the related row) and therefore requires the relation to be loaded.
type RelatedField struct {
	fieldMeta
}

// Related declares a primary-key style relation field.
func Related(name string, opts ...FieldOption) *RelatedField {
	return &RelatedField{fieldMeta: newFieldMeta(name, opts)}
}

// MethodField is a computed field backed by application code. Its data needs
// are opaque to inspection, so it must carry a hint (or be declared by name on
// the virtual model).
type MethodField struct {
	fieldMeta
	hint *hints.Hint
}

// Method declares a computed serializer field. A nil hint is legal at
// declaration time and reported by validation.
func Method(name string, hint *hints.Hint, opts ...FieldOption) *MethodField {
	return &MethodField{fieldMeta: newFieldMeta(name, opts), hint: hint}
}

// Hint returns the field's usage hint, nil when the author omitted it.
func (f *MethodField) Hint() *hints.Hint { return f.hint }

// NestedField renders a child serializer for a relation, single or list.
type NestedField struct {
	fieldMeta
	child *Serializer
	many  bool
}

// Nested declares a nested serializer field.
func Nested(name string, child *Serializer, opts ...FieldOption) *NestedField {
	return &NestedField{fieldMeta: newFieldMeta(name, opts), child: child}
}

// NestedMany declares a nested serializer field rendering a list.
func NestedMany(name string, child *Serializer, opts ...FieldOption) *NestedField {
	return &NestedField{fieldMeta: newFieldMeta(name, opts), child: child, many: true}
}

// Child returns the nested serializer.
func (f *NestedField) Child() *Serializer { return f.child }

// Many reports list rendering.
func (f *NestedField) Many() bool { return f.many }

// Serializer is a static description of an output shape: an ordered list of
// fields. It performs no rendering itself; the lookup finder walks it to
// derive the data-access plan, and rendering stays application code.
type Serializer struct {
	name   string
	fields []SerializerField
}

// NewSerializer builds a serializer description. Field order is preserved; it
// determines lookup order and therefore diagnostic determinism.
func NewSerializer(name string, fields ...SerializerField) *Serializer {
	return &Serializer{name: name, fields: fields}
}

// SerializerName returns the serializer's diagnostic name. It also satisfies
// hints.SerializerRef so hints can reference serializers without a package
// cycle.
func (s *Serializer) SerializerName() string { return s.name }

// Fields returns the declared fields in order.
func (s *Serializer) Fields() []SerializerField {
	out := make([]SerializerField, len(s.fields))
	copy(out, s.fields)
	return out
}

// ReadableFields returns the declared fields that contribute to output,
// skipping write-only ones.
func (s *Serializer) ReadableFields() []SerializerField {
	out := make([]SerializerField, 0, len(s.fields))
	for _, f := range s.fields {
		if f.WriteOnly() {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Field returns the named field, nil when absent.
func (s *Serializer) Field(name string) SerializerField {
	for _, f := range s.fields {
		if f.Name() == name {
			return f
		}
	}
	return nil
}
