// Package hints declares the data-access requirements of computed serializer
// fields. A hint is a small metadata record attached to a method field; the
// lookup finder consumes it to learn which lookup paths the method's execution
// will touch, without running the method.
package hints

// Mode discriminates the hint kinds.
type Mode int

const (
	// ModePaths lists the lookup paths the callable reads, relative to its
	// receiver model.
	ModePaths Mode = iota
	// ModeNoDeferredFields asserts the callable only touches concrete columns
	// that are always loaded.
	ModeNoDeferredFields
	// ModeDefinedOnVirtualModel asserts the virtual model declares a child of
	// the same name that supplies the dependency.
	ModeDefinedOnVirtualModel
	// ModeFromCallable delegates to another hinted callable; the hinted
	// callable is injected into the delegating method at call time.
	ModeFromCallable
	// ModeFromSerializer derives the paths from another serializer's field
	// graph, for method fields that render a nested serializer manually.
	ModeFromSerializer
)

// SerializerRef is the minimal serializer surface a hint can reference.
// virtualspec.Serializer satisfies it.
type SerializerRef interface {
	SerializerName() string
}

// HintedFunc pairs a callable with its hint so other hints can delegate to it.
type HintedFunc struct {
	Func interface{}
	Hint *Hint
}

// NewHintedFunc attaches a hint to a callable.
func NewHintedFunc(fn interface{}, hint *Hint) *HintedFunc {
	return &HintedFunc{Func: fn, Hint: hint}
}

// Hint is the immutable requirement record the lookup finder consumes.
type Hint struct {
	mode       Mode
	paths      []string
	delegate   *HintedFunc
	serializer SerializerRef
	many       bool
}

// Virtual declares the lookup paths a callable reads, e.g.
// hints.Virtual("nominations", "directors.awards").
func Virtual(paths ...string) *Hint {
	return &Hint{mode: ModePaths, paths: paths}
}

// NoDeferredFields marks a callable safe: it only uses concrete columns that
// the base queryset always fetches.
func NoDeferredFields() *Hint {
	return &Hint{mode: ModeNoDeferredFields}
}

// DefinedOnVirtualModel marks a callable whose dependency is supplied by a
// same-named declaration on the virtual model.
func DefinedOnVirtualModel() *Hint {
	return &Hint{mode: ModeDefinedOnVirtualModel}
}

// FromCallable delegates this field's requirements to another hinted callable.
func FromCallable(fn *HintedFunc) *Hint {
	return &Hint{mode: ModeFromCallable, delegate: fn}
}

// FromSerializer derives this field's requirements from another serializer's
// field graph. many mirrors a list-rendering method.
func FromSerializer(s SerializerRef, many bool) *Hint {
	return &Hint{mode: ModeFromSerializer, serializer: s, many: many}
}

// Mode returns the hint kind.
func (h *Hint) Mode() Mode { return h.mode }

// Paths returns the declared lookup paths (ModePaths only).
func (h *Hint) Paths() []string {
	out := make([]string, len(h.paths))
	copy(out, h.paths)
	return out
}

// Delegate returns the hinted callable this hint defers to (ModeFromCallable).
func (h *Hint) Delegate() *HintedFunc { return h.delegate }

// Serializer returns the referenced serializer (ModeFromSerializer).
func (h *Hint) Serializer() SerializerRef { return h.serializer }

// Many reports list rendering for ModeFromSerializer hints.
func (h *Hint) Many() bool { return h.many }

// Resolve follows delegate chains down to the effective hint. The depth cap
// guards against accidental cycles between hinted callables.
func (h *Hint) Resolve() *Hint {
	current := h
	for depth := 0; current.mode == ModeFromCallable && depth < 32; depth++ {
		if current.delegate == nil || current.delegate.Hint == nil {
			return nil
		}
		current = current.delegate.Hint
	}
	if current.mode == ModeFromCallable {
		return nil
	}
	return current
}
