package virtualspec

import "fmt"

// MissingDeclarationError reports a lookup path the serializer needs that has
// no corresponding declaration on the virtual model tree. It is a fail-fast
// correctness signal: the declaration must be fixed, nothing is retried.
type MissingDeclarationError struct {
	FieldName    string // serializer-exposed name of the offending field
	Serializer   string // enclosing serializer name
	VirtualModel string // enclosing virtual model name
	Reason       string // full diagnostic, path-qualified
}

func (e *MissingDeclarationError) Error() string {
	return e.Reason
}

// IncompatibleJoinError reports a NestedJoin whose target needs deeper virtual
// resolution than a JOIN can provide. The fix is promoting the declaration to
// a nested VirtualModel.
type IncompatibleJoinError struct {
	FieldName    string
	VirtualModel string
	Reason       string
}

func (e *IncompatibleJoinError) Error() string {
	return e.Reason
}

// ConflictingDeclarationError reports two declarations claiming the same
// attribute name, or a declaration shadowing a concrete model column. Raised
// at construction time, before any request-time logic runs.
type ConflictingDeclarationError struct {
	FieldName    string
	VirtualModel string
	Reason       string
}

func (e *ConflictingDeclarationError) Error() string {
	return e.Reason
}

// AccessViolationError reports attribute access on a materialized instance for
// a virtual field that was not part of the resolved lookup list. Virtual data
// never silently falls back to a new query; only deferred concrete columns do.
type AccessViolationError struct {
	FieldName    string
	VirtualModel string
}

func (e *AccessViolationError) Error() string {
	return fmt.Sprintf(
		"`%s` is declared on `%s` but was not part of the resolved lookup list for this query; "+
			"add it to the serializer's requirements instead of accessing it lazily",
		e.FieldName, e.VirtualModel)
}

// InvalidLookupError reports a lookup path that cannot be satisfied by the
// declaration it was routed to (e.g. a multi-valued relation under a
// NestedJoin, or an undeclared nested name).
type InvalidLookupError struct {
	Lookup string
	Reason string
}

func (e *InvalidLookupError) Error() string {
	return e.Reason
}

// InvalidParamsError reports invalid virtual model construction parameters.
type InvalidParamsError struct {
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return e.Reason
}

// MissingHintError reports a serializer method field with no usage hint and no
// same-named declaration on the tree, detected at validation time.
type MissingHintError struct {
	MethodName string
	Serializer string
	ModelType  string
}

func (e *MissingHintError) Error() string {
	return fmt.Sprintf(
		"`%s` inside `%s` (model `%s`) must carry a hint: explicit lookup paths, "+
			"NoDeferredFields, DefinedOnVirtualModel, or a delegate",
		e.MethodName, e.Serializer, e.ModelType)
}
