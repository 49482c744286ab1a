package virtualspec

import (
	"fmt"
	"reflect"

	"github.com/bitechdev/VirtualSpec/pkg/logger"
	"github.com/bitechdev/VirtualSpec/pkg/metrics"
	"github.com/bitechdev/VirtualSpec/pkg/reflection"
)

// GuardedInstance wraps one materialized model row together with the virtual
// model it was resolved through and the lookup list that was compiled. Access
// goes through Attr: virtual fields outside the resolved list are refused
// instead of silently triggering new queries, which keeps query-count
// regressions loud in development.
type GuardedInstance struct {
	value      reflect.Value
	vm         *VirtualModel
	lookupList []string // nil means everything was resolved
	resolved   map[string]struct{}
}

// GuardInstance wraps a scanned model row. A nil lookupList marks every
// declared field resolved; pass the list returned by Optimize to enforce the
// actual plan.
func GuardInstance(instance interface{}, vm *VirtualModel, lookupList []string) (*GuardedInstance, error) {
	if instance == nil || vm == nil {
		return nil, &InvalidParamsError{Reason: "guarding requires both an instance and a virtual model"}
	}
	val := reflect.ValueOf(instance)
	for val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil, &InvalidParamsError{Reason: "cannot guard a nil instance"}
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, &InvalidParamsError{Reason: fmt.Sprintf(
			"cannot guard a %s, expected a model struct", val.Kind())}
	}

	g := &GuardedInstance{value: val, vm: vm, lookupList: lookupList}
	if lookupList != nil {
		g.resolved = make(map[string]struct{})
		for _, k := range OneLevelLookupList(lookupList) {
			g.resolved[k] = struct{}{}
		}
	}
	return g, nil
}

// GuardSlice wraps every element of a scanned result slice.
func GuardSlice(instances interface{}, vm *VirtualModel, lookupList []string) ([]*GuardedInstance, error) {
	val := reflect.ValueOf(instances)
	for val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil, &InvalidParamsError{Reason: "cannot guard a nil slice"}
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Slice {
		return nil, &InvalidParamsError{Reason: fmt.Sprintf(
			"cannot guard a %s, expected a slice of model structs", val.Kind())}
	}

	out := make([]*GuardedInstance, 0, val.Len())
	for i := 0; i < val.Len(); i++ {
		g, err := GuardInstance(val.Index(i).Interface(), vm, lookupList)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// Unwrap returns the underlying model value.
func (g *GuardedInstance) Unwrap() interface{} { return g.value.Interface() }

// VirtualModel returns the tree node this instance was resolved through.
func (g *GuardedInstance) VirtualModel() *VirtualModel { return g.vm }

func (g *GuardedInstance) isResolved(name string) bool {
	if g.lookupList == nil {
		return true
	}
	_, ok := g.resolved[name]
	return ok
}

// Attr reads a field by its serializer-exposed name. Declared virtual fields
// must be part of the resolved lookup list; child virtual model values come
// back re-wrapped with the matching lookup sublist so the guarantee holds
// through the whole tree. Deferred concrete columns outside the list are still
// returned (the ORM lazily fetches them) with a debug note, matching their
// query-per-access cost model.
func (g *GuardedInstance) Attr(name string) (interface{}, error) {
	if decl, ok := g.vm.Declared(name); ok {
		if !g.isResolved(name) {
			metrics.GetProvider().RecordAccessViolation(g.vm.Name(), name)
			return nil, &AccessViolationError{FieldName: name, VirtualModel: g.vm.Name()}
		}
		return g.declaredValue(name, decl)
	}

	if g.vm.IsConcrete(name) {
		if g.vm.IsDeferred(name) && !g.isResolved(name) {
			logger.Debug("Deferred column %s on %s accessed outside the lookup list; expect a lazy fetch",
				name, g.vm.Name())
		}
		return g.concreteValue(name)
	}

	return nil, &InvalidLookupError{Lookup: name, Reason: fmt.Sprintf(
		"`%s` is neither a concrete column of `%s` nor declared in `%s`",
		name, g.vm.ModelTypeName(), g.vm.Name())}
}

// AttrSlice is Attr for multi-valued child virtual models, returning the
// guarded elements directly.
func (g *GuardedInstance) AttrSlice(name string) ([]*GuardedInstance, error) {
	v, err := g.Attr(name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	guards, ok := v.([]*GuardedInstance)
	if !ok {
		return nil, &InvalidLookupError{Lookup: name, Reason: fmt.Sprintf(
			"`%s` on `%s` is single-valued", name, g.vm.Name())}
	}
	return guards, nil
}

func (g *GuardedInstance) declaredValue(name string, decl VirtualField) (interface{}, error) {
	switch child := decl.(type) {
	case *NoOp:
		return nil, nil

	case *Annotation, *Expression:
		// computed columns scan into a same-named struct field
		field, ok := reflection.FindFieldByJSONName(g.value, name)
		if !ok {
			return nil, &InvalidLookupError{Lookup: name, Reason: fmt.Sprintf(
				"`%s` resolved on `%s`, but `%s` has no struct field to scan it into",
				name, g.vm.Name(), g.vm.ModelTypeName())}
		}
		return field.Interface(), nil

	case *NestedJoin:
		field, ok := g.relationValue(name, "")
		if !ok {
			return nil, nil
		}
		return deref(field), nil

	case *VirtualModel:
		field, ok := g.relationValue(name, child.lookup)
		if !ok {
			return nil, nil
		}
		sub := NestedLookupList(name, g.lookupList)
		if g.lookupList != nil && sub == nil {
			sub = []string{}
		}
		return g.wrapRelation(field, child, sub)

	default:
		field, ok := reflection.FindFieldByJSONName(g.value, name)
		if !ok {
			return nil, nil
		}
		return field.Interface(), nil
	}
}

// relationValue locates the struct value holding a relation, resolving alias
// declarations back to the relation field the ORM hydrated (possibly through
// intermediate single-valued hops for dotted lookups).
func (g *GuardedInstance) relationValue(name, lookup string) (reflect.Value, bool) {
	path := lookup
	if path == "" {
		path = name
	}

	val := g.value
	for {
		seg := OneLevelLookup(path)
		fieldName := seg
		if info := reflection.GetRelationInfo(val.Interface(), seg); info != nil {
			fieldName = info.FieldName
		} else {
			fieldName = exportedName(seg)
		}

		field := val.FieldByName(fieldName)
		if !field.IsValid() {
			return reflect.Value{}, false
		}
		if seg == path {
			return field, true
		}

		for field.Kind() == reflect.Pointer {
			if field.IsNil() {
				return reflect.Value{}, false
			}
			field = field.Elem()
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, false
		}
		val = field
		path = path[len(seg)+len(LookupSeparator):]
	}
}

// wrapRelation re-wraps a hydrated relation value with the child node and the
// lookup sublist that descends into it.
func (g *GuardedInstance) wrapRelation(field reflect.Value, child *VirtualModel, sub []string) (interface{}, error) {
	for field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return nil, nil
		}
		field = field.Elem()
	}

	switch field.Kind() {
	case reflect.Slice:
		return GuardSlice(field.Interface(), child, sub)
	case reflect.Struct:
		return GuardInstance(field.Interface(), child, sub)
	default:
		return field.Interface(), nil
	}
}

func (g *GuardedInstance) concreteValue(name string) (interface{}, error) {
	field, ok := reflection.FindFieldByJSONName(g.value, name)
	if !ok {
		return nil, &InvalidLookupError{Lookup: name, Reason: fmt.Sprintf(
			"column `%s` has no struct field on `%s`", name, g.vm.ModelTypeName())}
	}
	return field.Interface(), nil
}

func deref(v reflect.Value) interface{} {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}
