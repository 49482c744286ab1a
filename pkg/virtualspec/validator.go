package virtualspec

import "fmt"

// Validate checks that the virtual model tree declares everything the
// serializer's field graph needs. It returns the first problem in serializer
// field order (MissingDeclarationError, IncompatibleJoinError or
// MissingHintError) and never touches a queryset, so a failed validation
// leaves nothing half-applied.
func Validate(serializer *Serializer, vm *VirtualModel) error {
	_, problems := NewLookupFinder(serializer, vm).Find()
	if len(problems) > 0 {
		return problems[0]
	}
	return nil
}

// ValidateAll is Validate reporting every problem instead of the first,
// suited to startup checks that want the full picture in one pass.
func ValidateAll(serializer *Serializer, vm *VirtualModel) []error {
	_, problems := NewLookupFinder(serializer, vm).Find()
	return problems
}

// ValidateLookupList checks a caller-supplied lookup list against the tree,
// segment by segment, using the same resolution rules compilation uses. It
// lets callers that bypass serializer discovery fail fast before building a
// query plan.
func ValidateLookupList(vm *VirtualModel, lookupList []string) error {
	for _, path := range lookupList {
		if err := validateTreePath(vm, path); err != nil {
			return err
		}
	}
	return nil
}

func validateTreePath(vm *VirtualModel, path string) error {
	k := OneLevelLookup(path)

	if vm.IsConcrete(k) {
		if k == path {
			return nil
		}
		return &InvalidLookupError{Lookup: path, Reason: fmt.Sprintf(
			"`%s` descends into `%s`, but `%s` is a concrete column of `%s`",
			path, k, k, vm.ModelTypeName())}
	}

	decl, ok := vm.Declared(k)
	if !ok {
		return &InvalidLookupError{Lookup: path, Reason: fmt.Sprintf(
			"`%s` not declared in `%s`", k, vm.Name())}
	}
	if k == path {
		return nil
	}

	rest := path[len(k)+len(LookupSeparator):]
	switch child := decl.(type) {
	case *VirtualModel:
		return validateTreePath(child, rest)
	case *NestedJoin:
		return nil
	default:
		return &InvalidLookupError{Lookup: path, Reason: fmt.Sprintf(
			"`%s` is a computed declaration in `%s` and has no nested lookups",
			k, vm.Name())}
	}
}
