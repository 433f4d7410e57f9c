package shredder

// Destroyer is implemented by values that need cleanup when the
// collector reclaims them via TrackWithDestructor. If a tracked value
// doesn't implement Destroyer, running its destructor is a no-op — the
// same behavior a type with no Drop implementation would have.
type Destroyer interface {
	Destroy()
}

// Finalizer is implemented by values tracked via TrackWithFinalizer.
// Finalize runs instead of Destroy, and is the policy to reach for when a
// type can't satisfy 'static-style lifetime requirements a destructor
// would otherwise need.
type Finalizer interface {
	Finalize()
}

// destructionPolicy is chosen once, at allocation time, and is immutable
// thereafter.
type destructionPolicy int

const (
	policyDestructor destructionPolicy = iota
	policyFinalizer
	policyNone
)

func buildDestroyFn[T any](ptr *T, policy destructionPolicy) func() {
	switch policy {
	case policyDestructor:
		return func() {
			if d, ok := any(ptr).(Destroyer); ok {
				d.Destroy()
			}
		}
	case policyFinalizer:
		return func() {
			if f, ok := any(ptr).(Finalizer); ok {
				f.Finalize()
			}
		}
	default:
		return func() {}
	}
}
