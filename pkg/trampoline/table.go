package trampoline

// Kind classifies how an intercepted entry point dispatches. Most of
// the table is KindGeneric; the remaining kinds cover the handful of
// entry points that need bespoke logic.
type Kind int

const (
	// KindGeneric lazily binds through the resolver chain and wraps the
	// dispatch with the pre/post hooks.
	KindGeneric Kind = iota

	// KindPresentation is a generic entry that additionally marks a
	// presentation boundary (the buffer-swap analog) after its post hook.
	KindPresentation

	// KindFamilyInit is an initialization entry point of the alternate
	// API family; invoking it commits the resolver to the alternate
	// family for the rest of the process. It dispatches without hooks.
	KindFamilyInit

	// KindProcLookup is an entry point that itself hands out function
	// addresses by name. It consults the registry's own table before
	// falling back to real resolution, which keeps interception
	// recursive-safe when the host queries functions by name.
	KindProcLookup
)

// Desc is one row of the intercepted-API table: a name plus the kind of
// stub standing in for it. The bulk of the table is generated from the
// API's signature list; the hand-written shims are appended by
// ShimTable.
type Desc struct {
	Name string
	Kind Kind

	// AlternateFamily marks a proc-lookup belonging to the alternate
	// family: a host reaching for it is evidence the alternate API is
	// in use, so looking through it flips the resolver family.
	AlternateFamily bool
}

// ShimTable returns the hand-written shim rows that accompany any
// generated table: the buffer-swap presentation boundaries, the
// proc-address queries of both families, the alternate-family
// initialization entry, and the generic dynamic-symbol lookup.
func ShimTable() []Desc {
	return []Desc{
		{Name: "glXSwapBuffers", Kind: KindPresentation},
		{Name: "eglSwapBuffers", Kind: KindPresentation},
		{Name: "eglInitialize", Kind: KindFamilyInit},
		{Name: "glXGetProcAddress", Kind: KindProcLookup},
		{Name: "glXGetProcAddressARB", Kind: KindProcLookup},
		{Name: "eglGetProcAddress", Kind: KindProcLookup, AlternateFamily: true},
		{Name: "dlsym", Kind: KindProcLookup},
	}
}

// Generic is a convenience for building table rows from a generated
// name list.
func Generic(names ...string) []Desc {
	descs := make([]Desc, 0, len(names))
	for _, name := range names {
		descs = append(descs, Desc{Name: name, Kind: KindGeneric})
	}
	return descs
}
