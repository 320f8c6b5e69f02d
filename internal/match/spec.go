package match

// Kind tags the three shapes a Spec can take.
type Kind int

const (
	// KindWildcard is the zero Spec: nothing was specified.
	KindWildcard Kind = iota
	// KindPredicate wraps a caller supplied function.
	KindPredicate
	// KindPattern wraps a value compared with Contains.
	KindPattern
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindWildcard:
		return "wildcard"
	case KindPredicate:
		return "predicate"
	case KindPattern:
		return "pattern"
	default:
		return "unknown"
	}
}

// Spec describes what a subject of type T is checked against.
//
// The zero value is a wildcard. Used as a positive matcher a wildcard always
// passes; used as a negative matcher it never rejects.
type Spec[T any] struct {
	kind    Kind
	pattern any
	pred    func(T) bool
}

// Wildcard returns the unspecified Spec.
func Wildcard[T any]() Spec[T] {
	return Spec[T]{}
}

// Predicate returns a Spec delegating to fn. A nil fn yields a wildcard.
func Predicate[T any](fn func(T) bool) Spec[T] {
	if fn == nil {
		return Spec[T]{}
	}
	return Spec[T]{kind: KindPredicate, pred: fn}
}

// Pattern returns a Spec comparing subjects structurally with v.
// A nil v yields a wildcard.
func Pattern[T any](v any) Spec[T] {
	if v == nil {
		return Spec[T]{}
	}
	return Spec[T]{kind: KindPattern, pattern: v}
}

// Kind reports the shape of s.
func (s Spec[T]) Kind() Kind {
	return s.kind
}

// Value returns the pattern of a pattern Spec and nil otherwise.
// It is what diagnostics print for the Spec.
func (s Spec[T]) Value() any {
	if s.kind != KindPattern {
		return nil
	}
	return s.pattern
}

// Matcher resolves s as a positive matcher. project extracts the value a
// pattern is compared with; it is unused for the other kinds.
func (s Spec[T]) Matcher(project func(T) any) func(T) bool {
	return s.resolve(project, true)
}

// Rejecter resolves s as a negative matcher.
func (s Spec[T]) Rejecter(project func(T) any) func(T) bool {
	return s.resolve(project, false)
}

func (s Spec[T]) resolve(project func(T) any, wildcard bool) func(T) bool {
	switch s.kind {
	case KindPredicate:
		return s.pred
	case KindPattern:
		pattern := s.pattern
		return func(v T) bool {
			return Contains(project(v), pattern)
		}
	default:
		return func(T) bool { return wildcard }
	}
}

// Compile resolves a match/notmatch pair once into a single check:
// the subject passes when match accepts it and notmatch does not.
func Compile[T any](match, notmatch Spec[T], project func(T) any) func(T) bool {
	m := match.Matcher(project)
	nm := notmatch.Rejecter(project)
	return func(v T) bool {
		return m(v) && !nm(v)
	}
}

// Identity is the projection for subjects that are themselves the value.
func Identity(v any) any {
	return v
}
