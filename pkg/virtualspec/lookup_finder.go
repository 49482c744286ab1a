package virtualspec

import (
	"fmt"

	"github.com/bitechdev/VirtualSpec/pkg/virtualspec/hints"
)

// LookupFinder derives the lookup list a serializer needs from a virtual
// model, field by field. Discovery collects every problem it encounters
// instead of stopping at the first one; callers decide whether problems are
// fatal (validation) or which prefix of the plan is still usable.
type LookupFinder struct {
	serializer *Serializer
	vm         *VirtualModel
}

// NewLookupFinder pairs a serializer with the virtual model that should
// satisfy it.
func NewLookupFinder(serializer *Serializer, vm *VirtualModel) *LookupFinder {
	return &LookupFinder{serializer: serializer, vm: vm}
}

// Find walks the serializer's readable fields in declaration order and returns
// the deduplicated lookup list plus every completeness problem discovered.
// The same inputs always produce the same list in the same order.
func (f *LookupFinder) Find() ([]string, []error) {
	lookups, problems := f.findFor(f.serializer, f.vm)
	return uniqueKeepOrder(lookups), problems
}

// FindLookupList returns the discovered lookup list, with the first problem
// surfaced as the error.
func (f *LookupFinder) FindLookupList() ([]string, error) {
	lookups, problems := f.Find()
	if len(problems) > 0 {
		return lookups, problems[0]
	}
	return lookups, nil
}

func (f *LookupFinder) findFor(s *Serializer, vm *VirtualModel) ([]string, []error) {
	var lookups []string
	var problems []error

	for _, field := range s.ReadableFields() {
		fieldLookups, fieldProblems := f.findForField(s, vm, field)
		lookups = append(lookups, fieldLookups...)
		problems = append(problems, fieldProblems...)
	}
	return lookups, problems
}

// findForField dispatches one serializer field through the handler chain:
// nested serializers first, then hinted methods, then source-backed fields.
func (f *LookupFinder) findForField(s *Serializer, vm *VirtualModel, field SerializerField) ([]string, []error) {
	switch fld := field.(type) {
	case *NestedField:
		return f.findForNested(s, vm, fld)
	case *MethodField:
		return f.findForMethod(s, vm, fld)
	default:
		return f.findForSource(s, vm, field)
	}
}

// findForSource handles concrete and related fields: the source itself is the
// lookup, validated level by level against the tree.
func (f *LookupFinder) findForSource(s *Serializer, vm *VirtualModel, field SerializerField) ([]string, []error) {
	src := field.Source()
	if problems := f.validatePaths(s, vm, field.Name(), []string{src}); len(problems) > 0 {
		return nil, problems
	}
	// plain concrete columns ride along with the base projection; only
	// deferred ones must be requested explicitly to stay eagerly loaded
	if vm.IsConcrete(src) && !vm.IsDeferred(src) {
		return nil, nil
	}
	return []string{src}, nil
}

// findForMethod handles computed fields via their usage hints.
func (f *LookupFinder) findForMethod(s *Serializer, vm *VirtualModel, field *MethodField) ([]string, []error) {
	hint := field.Hint()
	if hint == nil {
		// a same-named declaration is an implicit DefinedOnVirtualModel
		if _, ok := vm.Declared(field.Name()); ok {
			return []string{field.Name()}, nil
		}
		return nil, []error{&MissingHintError{
			MethodName: field.Name(),
			Serializer: s.SerializerName(),
			ModelType:  vm.ModelTypeName(),
		}}
	}

	effective := hint.Resolve()
	if effective == nil {
		return nil, []error{&MissingHintError{
			MethodName: field.Name(),
			Serializer: s.SerializerName(),
			ModelType:  vm.ModelTypeName(),
		}}
	}

	switch effective.Mode() {
	case hints.ModeNoDeferredFields:
		return nil, nil

	case hints.ModeDefinedOnVirtualModel:
		if _, ok := vm.Declared(field.Name()); !ok {
			return nil, []error{&MissingDeclarationError{
				FieldName:    field.Name(),
				Serializer:   s.SerializerName(),
				VirtualModel: vm.Name(),
				Reason: fmt.Sprintf(
					"`%s` inside `%s` is hinted as defined on the virtual model, but `%s` does not declare it",
					field.Name(), s.SerializerName(), vm.Name()),
			}}
		}
		return []string{field.Name()}, nil

	case hints.ModePaths:
		paths := effective.Paths()
		if problems := f.validatePaths(s, vm, field.Name(), paths); len(problems) > 0 {
			return nil, problems
		}
		return paths, nil

	case hints.ModeFromSerializer:
		child, ok := effective.Serializer().(*Serializer)
		if !ok || child == nil {
			return nil, []error{&MissingHintError{
				MethodName: field.Name(),
				Serializer: s.SerializerName(),
				ModelType:  vm.ModelTypeName(),
			}}
		}
		// the method renders another serializer over the same instance, so
		// its lookups merge in unprefixed
		return f.findFor(child, vm)

	default:
		return nil, []error{&MissingHintError{
			MethodName: field.Name(),
			Serializer: s.SerializerName(),
			ModelType:  vm.ModelTypeName(),
		}}
	}
}

// findForNested handles nested serializer fields: the declaration must be a
// child virtual model (or an explicit NoOp), and the child serializer recurses
// into it with its lookups prefixed.
func (f *LookupFinder) findForNested(s *Serializer, vm *VirtualModel, field *NestedField) ([]string, []error) {
	src := field.Source()

	decl, ok := vm.Declared(src)
	if !ok {
		return nil, []error{&MissingDeclarationError{
			FieldName:    field.Name(),
			Serializer:   s.SerializerName(),
			VirtualModel: vm.Name(),
			Reason: fmt.Sprintf(
				"`%s` is a nested serializer inside `%s`, so `%s` must declare `%s` as a child virtual model",
				field.Name(), s.SerializerName(), vm.Name(), src),
		}}
	}

	switch child := decl.(type) {
	case *NoOp:
		return nil, nil

	case *NestedJoin:
		return nil, []error{&IncompatibleJoinError{
			FieldName:    field.Name(),
			VirtualModel: vm.Name(),
			Reason: fmt.Sprintf(
				"`%s` is declared as a nested join in `%s`, but `%s` renders it with the nested serializer `%s`; "+
					"promote the declaration to a child virtual model so its own fields can be resolved",
				src, vm.Name(), s.SerializerName(), field.Child().SerializerName()),
		}}

	case *VirtualModel:
		childLookups, childProblems := f.findFor(field.Child(), child)
		lookups := make([]string, 0, len(childLookups)+1)
		lookups = append(lookups, src)
		for _, k := range childLookups {
			lookups = append(lookups, src+LookupSeparator+k)
		}
		return lookups, childProblems

	default:
		// annotations and expressions yield flat values, not relation rows
		return nil, []error{&MissingDeclarationError{
			FieldName:    field.Name(),
			Serializer:   s.SerializerName(),
			VirtualModel: vm.Name(),
			Reason: fmt.Sprintf(
				"`%s` is declared as a computed value in `%s`, but `%s` renders it with a nested serializer; "+
					"declare it as a child virtual model instead",
				src, vm.Name(), s.SerializerName()),
		}}
	}
}

// validatePaths checks every level of each path against the tree: each segment
// must be a concrete column (terminal) or a declared child, and segments below
// the first must be declared on the corresponding child virtual model.
func (f *LookupFinder) validatePaths(s *Serializer, vm *VirtualModel, fieldName string, paths []string) []error {
	var problems []error
	for _, path := range paths {
		if problem := f.validatePath(s, vm, fieldName, path); problem != nil {
			problems = append(problems, problem)
		}
	}
	return problems
}

func (f *LookupFinder) validatePath(s *Serializer, vm *VirtualModel, fieldName, path string) error {
	k := OneLevelLookup(path)

	if vm.IsConcrete(k) {
		if k == path {
			return nil
		}
		return &MissingDeclarationError{
			FieldName:    fieldName,
			Serializer:   s.SerializerName(),
			VirtualModel: vm.Name(),
			Reason: fmt.Sprintf(
				"`%s` used by `%s` traverses `%s`, but `%s` is a concrete column of `%s` and cannot be descended into; "+
					"declare the relation on `%s`",
				fieldName, s.SerializerName(), path, k, vm.ModelTypeName(), vm.Name()),
		}
	}

	decl, ok := vm.Declared(k)
	if !ok {
		return &MissingDeclarationError{
			FieldName:    fieldName,
			Serializer:   s.SerializerName(),
			VirtualModel: vm.Name(),
			Reason: fmt.Sprintf(
				"`%s` used by `%s` needs `%s`, which is neither a concrete column of `%s` nor declared in `%s`",
				fieldName, s.SerializerName(), k, vm.ModelTypeName(), vm.Name()),
		}
	}
	if k == path {
		return nil
	}

	rest := path[len(k)+len(LookupSeparator):]
	switch child := decl.(type) {
	case *VirtualModel:
		return f.validatePath(s, child, fieldName, rest)
	case *NestedJoin:
		// one join hop below the declaration is resolvable; the compile step
		// checks it against the target's join choices
		return nil
	default:
		return &MissingDeclarationError{
			FieldName:    fieldName,
			Serializer:   s.SerializerName(),
			VirtualModel: vm.Name(),
			Reason: fmt.Sprintf(
				"`%s` used by `%s` descends into `%s`, but `%s` declares it as a computed value with no nested fields",
				fieldName, s.SerializerName(), k, vm.Name()),
		}
	}
}
