package virtualspec

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/bitechdev/VirtualSpec/pkg/common"
	"github.com/bitechdev/VirtualSpec/pkg/logger"
	"github.com/bitechdev/VirtualSpec/pkg/reflection"
)

// FieldDef is a single named declaration inside a virtual model.
type FieldDef struct {
	Name  string
	Field VirtualField
}

// Fields is an ordered list of declarations. Order is meaningful: annotations
// are applied in declaration order and diagnostics follow it.
type Fields []FieldDef

// Merge concatenates declaration lists, letting later lists shadow earlier
// entries by name (composition replaces class inheritance here).
func Merge(lists ...Fields) Fields {
	index := map[string]int{}
	var out Fields
	for _, list := range lists {
		for _, def := range list {
			if at, ok := index[def.Name]; ok {
				out[at] = def
				continue
			}
			index[def.Name] = len(out)
			out = append(out, def)
		}
	}
	return out
}

// Option configures a VirtualModel at construction.
type Option func(*VirtualModel)

// WithName overrides the diagnostic name (defaults to Virtual<ModelType>).
func WithName(name string) Option {
	return func(vm *VirtualModel) { vm.name = name }
}

// WithDeferredFields marks concrete columns excluded from the default
// projection unless a lookup explicitly requests them.
func WithDeferredFields(columns ...string) Option {
	return func(vm *VirtualModel) { vm.deferredList = append(vm.deferredList, columns...) }
}

// WithLookup sets the actual relation name on the parent model when it differs
// from the declared field name (the prefetched rows surface under the declared
// name, to-attr style).
func WithLookup(lookup string) Option {
	return func(vm *VirtualModel) { vm.lookup = lookup }
}

// WithToAttr sets the attribute name the prefetched rows surface under.
// Requires WithLookup.
func WithToAttr(attr string) Option {
	return func(vm *VirtualModel) { vm.toAttr = attr }
}

// WithPrefetchQueryset overrides the relation's base queryset, supporting
// pre-filtered prefetches (e.g. only winning nominations). The callable
// receives the request context.
func WithPrefetchQueryset(fn QuerysetFunc) Option {
	return func(vm *VirtualModel) { vm.prefetchFn = fn }
}

// VirtualModel is the declaration-tree node bound to one model type. It owns
// an ordered mapping of field name to child declaration, an optional deferred
// column set, and optional relation overrides. Trees are immutable after
// construction; request state flows through parameters only.
type VirtualModel struct {
	baseField

	model        interface{}
	modelType    reflect.Type
	name         string
	fields       Fields
	index        map[string]VirtualField
	deferredList []string
	lookup       string
	toAttr       string
	prefetchFn   QuerysetFunc

	concreteList []string
	concreteSet  map[string]struct{}
}

// NewVirtualModel builds a declaration-tree node for the given model struct.
// Child declarations are validated and bound eagerly: duplicate names, names
// shadowing concrete columns, and names containing the lookup separator are
// construction-time errors.
func NewVirtualModel(model interface{}, fields Fields, opts ...Option) (*VirtualModel, error) {
	modelType := reflection.BaseStructType(model)
	if modelType == nil {
		return nil, &InvalidParamsError{Reason: fmt.Sprintf(
			"virtual model requires a struct model, got %T", model)}
	}

	vm := &VirtualModel{
		model:     reflect.New(modelType).Elem().Interface(),
		modelType: modelType,
		fields:    make(Fields, 0, len(fields)),
		index:     make(map[string]VirtualField, len(fields)),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.name == "" {
		vm.name = "Virtual" + modelType.Name()
	}
	if vm.toAttr != "" && vm.lookup == "" {
		return nil, &InvalidParamsError{Reason: fmt.Sprintf(
			"`%s`: always provide a lookup when providing a to-attr", vm.name)}
	}

	vm.concreteList = reflection.GetModelConcreteColumns(vm.model)
	vm.concreteSet = make(map[string]struct{}, len(vm.concreteList))
	for _, col := range vm.concreteList {
		vm.concreteSet[col] = struct{}{}
	}

	for _, def := range fields {
		if err := vm.declare(def); err != nil {
			return nil, err
		}
	}
	return vm, nil
}

// MustVirtualModel is NewVirtualModel for package-level tree declarations;
// construction errors are programming errors there, so it panics.
func MustVirtualModel(model interface{}, fields Fields, opts ...Option) *VirtualModel {
	vm, err := NewVirtualModel(model, fields, opts...)
	if err != nil {
		panic(err)
	}
	return vm
}

func (vm *VirtualModel) declare(def FieldDef) error {
	name := def.Name
	if name == "" || def.Field == nil {
		return &InvalidParamsError{Reason: fmt.Sprintf(
			"`%s`: declarations need both a name and a field", vm.name)}
	}
	if strings.Contains(name, LookupSeparator) {
		return &InvalidParamsError{Reason: fmt.Sprintf(
			"field `%s` in `%s` must not contain `%s`", name, vm.name, LookupSeparator)}
	}
	if _, exists := vm.index[name]; exists {
		return &ConflictingDeclarationError{
			FieldName:    name,
			VirtualModel: vm.name,
			Reason: fmt.Sprintf(
				"`%s` is declared twice in `%s` with conflicting kinds; an attribute name binds exactly one declaration",
				name, vm.name),
		}
	}
	if _, concrete := vm.concreteSet[name]; concrete {
		return &ConflictingDeclarationError{
			FieldName:    name,
			VirtualModel: vm.name,
			Reason: fmt.Sprintf(
				"`%s` in `%s` shadows a concrete column of `%s`; virtual declarations may not reuse concrete names",
				name, vm.name, vm.modelType.Name()),
		}
	}
	if err := def.Field.bind(name, vm); err != nil {
		return err
	}
	vm.fields = append(vm.fields, def)
	vm.index[name] = def.Field
	return nil
}

func (vm *VirtualModel) bind(fieldName string, parent *VirtualModel) error {
	if err := vm.baseField.bind(fieldName, parent); err != nil {
		return err
	}
	if vm.lookup != "" && vm.toAttr == "" {
		vm.toAttr = fieldName
	}
	return nil
}

// Name returns the diagnostic name of this node.
func (vm *VirtualModel) Name() string { return vm.name }

// Model returns a zero value of the bound model struct.
func (vm *VirtualModel) Model() interface{} { return vm.model }

// ModelTypeName returns the bound model's type name.
func (vm *VirtualModel) ModelTypeName() string { return vm.modelType.Name() }

// Declared returns the child declaration bound under name.
func (vm *VirtualModel) Declared(name string) (VirtualField, bool) {
	f, ok := vm.index[name]
	return f, ok
}

// DeclaredFields returns the ordered child declarations.
func (vm *VirtualModel) DeclaredFields() Fields {
	out := make(Fields, len(vm.fields))
	copy(out, vm.fields)
	return out
}

// IsConcrete reports whether name is a concrete column of the bound model.
func (vm *VirtualModel) IsConcrete(name string) bool {
	_, ok := vm.concreteSet[name]
	return ok
}

// ConcreteColumns returns the bound model's concrete columns in declaration order.
func (vm *VirtualModel) ConcreteColumns() []string {
	out := make([]string, len(vm.concreteList))
	copy(out, vm.concreteList)
	return out
}

// DeferredFields returns the declared deferred column set.
func (vm *VirtualModel) DeferredFields() []string {
	out := make([]string, len(vm.deferredList))
	copy(out, vm.deferredList)
	return out
}

// IsDeferred reports whether a concrete column is in the deferred set.
func (vm *VirtualModel) IsDeferred(name string) bool {
	for _, col := range vm.deferredList {
		if col == name {
			return true
		}
	}
	return false
}

// fullLookupList is the expansion used when the caller passes a nil lookup
// list: every concrete column plus every declared child.
func (vm *VirtualModel) fullLookupList() []string {
	out := make([]string, 0, len(vm.concreteList)+len(vm.fields))
	out = append(out, vm.concreteList...)
	for _, def := range vm.fields {
		out = append(out, def.Name)
	}
	return out
}

// hydrateNestedDeclaredFields dispatches each requested one-level lookup to
// the child declaration that owns it, handing every child the suffix sublist
// of the paths that descend into it. A child named without suffixes gets an
// empty sublist (the accessor guard treats it the same way); only expandAll
// propagates nil so a fully expanded root expands its children too.
func (vm *VirtualModel) hydrateNestedDeclaredFields(q common.SelectQuery, lookupList []string, rc *RequestContext, expandAll bool) (common.SelectQuery, error) {
	for _, k := range OneLevelLookupList(lookupList) {
		if vm.IsConcrete(k) {
			continue
		}
		f, ok := vm.index[k]
		if !ok {
			return q, vm.undeclaredLookupError(k)
		}
		sub := NestedLookupList(k, lookupList)
		if sub == nil && !expandAll {
			sub = []string{}
		}
		var err error
		q, err = f.HydrateQueryset(q, sub, rc)
		if err != nil {
			return q, err
		}
	}
	return q, nil
}

func (vm *VirtualModel) undeclaredLookupError(k string) error {
	if vm.parent != nil {
		return &InvalidLookupError{Lookup: k, Reason: fmt.Sprintf(
			"`%s` not declared in `%s = %s(...)` used by `%s`",
			k, vm.fieldName, vm.name, vm.parent.Name())}
	}
	return &InvalidLookupError{Lookup: k, Reason: fmt.Sprintf(
		"`%s` not declared in `%s`", k, vm.name)}
}

// checkNestedLookups validates the requested paths against the whole subtree
// without touching any queryset. ORMs run prefetch customizers lazily, at
// query execution, so every error a customizer could raise has to be caught
// here before the plan is handed over.
func (vm *VirtualModel) checkNestedLookups(lookupList []string, expandAll bool) error {
	for _, k := range OneLevelLookupList(lookupList) {
		if vm.IsConcrete(k) {
			continue
		}
		f, ok := vm.index[k]
		if !ok {
			return vm.undeclaredLookupError(k)
		}
		sub := NestedLookupList(k, lookupList)
		if sub == nil && !expandAll {
			sub = []string{}
		}
		switch child := f.(type) {
		case *VirtualModel:
			childList := sub
			childExpand := false
			if childList == nil {
				childList = child.fullLookupList()
				childExpand = true
			}
			if err := child.checkNestedLookups(childList, childExpand); err != nil {
				return err
			}
		case *NestedJoin:
			if err := child.checkLookups(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// deferFields excludes the deferred columns the lookup list did not request.
func (vm *VirtualModel) deferFields(q common.SelectQuery, lookupList []string) common.SelectQuery {
	requested := make(map[string]struct{})
	for _, k := range OneLevelLookupList(lookupList) {
		requested[k] = struct{}{}
	}
	var excluded []string
	for _, col := range vm.deferredList {
		if _, ok := requested[col]; !ok {
			excluded = append(excluded, col)
		}
	}
	if len(excluded) > 0 {
		q = q.ExcludeColumn(excluded...)
	}
	return q
}

// relationPath maps the relation this node prefetches (lookup override or
// declared name, possibly dotted across intermediate relations) to the ORM's
// struct-field path on the parent model. The second result is the relation
// info of the first hop when the parent model declares it.
func (vm *VirtualModel) relationPath() (string, *reflection.RelationInfo) {
	rel := vm.lookup
	if rel == "" {
		rel = vm.fieldName
	}
	if vm.parent == nil {
		return exportedName(rel), nil
	}

	segments := strings.Split(rel, LookupSeparator)
	parts := make([]string, 0, len(segments))
	var first *reflection.RelationInfo
	current := vm.parent.Model()
	for i, seg := range segments {
		info := reflection.GetRelationInfo(current, seg)
		if info == nil {
			parts = append(parts, exportedName(seg))
			current = nil
			continue
		}
		if i == 0 {
			first = info
		}
		parts = append(parts, info.FieldName)
		if info.Target != nil {
			current = reflect.New(info.Target).Elem().Interface()
		} else {
			current = nil
		}
	}
	return strings.Join(parts, "."), first
}

// relationKey is the dedup key a compiled prefetch registers on the queryset.
func (vm *VirtualModel) relationKey(ormPath string) string {
	if vm.toAttr != "" && vm.toAttr != vm.lookup {
		return ormPath + "->" + vm.toAttr
	}
	return ormPath
}

// HydrateQueryset compiles this node as a child declaration: one filtered,
// possibly aliased prefetch on the parent queryset, recursing into the
// sublist of paths that descend into this node.
func (vm *VirtualModel) HydrateQueryset(q common.SelectQuery, lookupList []string, rc *RequestContext) (common.SelectQuery, error) {
	expandAll := lookupList == nil
	newList := lookupList
	if expandAll {
		newList = vm.fullLookupList()
	} else {
		newList = append([]string(nil), newList...)
	}
	if err := vm.checkNestedLookups(newList, expandAll); err != nil {
		return q, err
	}

	ormPath, relInfo := vm.relationPath()
	if q.HasRelation(vm.relationKey(ormPath)) {
		logger.Debug("Skipping duplicate prefetch for relation %s", ormPath)
		return q, nil
	}

	// keep the back-reference column of reverse FK relations out of the
	// deferred exclusion so the ORM can stitch prefetched rows to their
	// parents without extra queries
	if relInfo != nil && relInfo.Kind == reflection.RelationHasMany && relInfo.ForeignKey != "" {
		newList = append(newList, reflection.ToSnakeCase(relInfo.ForeignKey))
	}

	// the sublists were validated above; the customizer only mutates
	apply := func(sq common.SelectQuery) common.SelectQuery {
		if vm.prefetchFn != nil {
			sq = vm.prefetchFn(sq, rc)
		}
		nested, err := vm.hydrateNestedDeclaredFields(sq, newList, rc, expandAll)
		if err != nil {
			logger.Error("Prefetch hydration for %s failed after validation: %v", vm.name, err)
			return sq
		}
		return vm.deferFields(nested, newList)
	}

	if vm.toAttr != "" && vm.toAttr != vm.lookup {
		q = q.PreloadRelationAs(ormPath, vm.toAttr, apply)
	} else {
		q = q.PreloadRelation(ormPath, apply)
	}
	return q, nil
}

// GetOptimizedQueryset compiles this tree against a base queryset of the bound
// model type. A nil lookupList resolves every declared child; an empty one
// applies only deferred-column exclusion. The input queryset is augmented with
// joins, prefetches, annotations, and column exclusions; re-applying the same
// plan is a no-op for joins and prefetches.
func (vm *VirtualModel) GetOptimizedQueryset(q common.SelectQuery, lookupList []string, rc *RequestContext) (common.SelectQuery, error) {
	expandAll := lookupList == nil
	newList := lookupList
	if expandAll {
		newList = vm.fullLookupList()
	}
	logger.Debug("Optimizing queryset for %s with %d lookups", vm.name, len(newList))

	if err := vm.checkNestedLookups(newList, expandAll); err != nil {
		return q, err
	}
	newQ, err := vm.hydrateNestedDeclaredFields(q, newList, rc, expandAll)
	if err != nil {
		return q, err
	}
	return vm.deferFields(newQ, newList), nil
}
