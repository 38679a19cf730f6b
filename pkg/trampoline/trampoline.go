package trampoline

import (
	"sync"
	"sync/atomic"

	log "github.com/rs/zerolog"

	"github.com/krogueintel/blackbox/pkg/symbol"
)

// Hooks is the narrow contract through which the instrumentation layer
// observes intercepted calls. PreCall and PostCall of one invocation
// receive the same counter value; FrameBoundary fires after the post
// hook of a presentation entry.
type Hooks interface {
	PreCall(id uint64, name string)
	PostCall(id uint64)
	FrameBoundary()
}

// Entry is one interception stub. The dispatch target starts unbound,
// is bound at most once on first invocation (to the resolved function
// or to the no-op when resolution fails), and is immutable afterwards.
type Entry struct {
	desc     Desc
	target   atomic.Pointer[symbol.Invoke]
	bindOnce sync.Once
	wrapper  symbol.Invoke
}

// Name returns the intercepted function's name.
func (e *Entry) Name() string {
	return e.desc.Name
}

// Bound reports whether the entry has dispatched at least once.
func (e *Entry) Bound() bool {
	return e.target.Load() != nil
}

// Registry holds one Entry per intercepted function and owns the
// global call counter. Entries are created once at construction and
// live for the process lifetime.
type Registry struct {
	resolver *symbol.Resolver
	entries  map[string]*Entry
	hooks    atomic.Pointer[Hooks]
	counter  atomic.Uint64
	logger   log.Logger
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.resolver == nil {
		r.resolver = symbol.NewResolver(symbol.WithResolverLogger(r.logger))
	}
	return r
}

func (r *Registry) register(descs []Desc) {
	for _, d := range descs {
		if _, ok := r.entries[d.Name]; ok {
			continue
		}
		e := &Entry{desc: d}
		e.wrapper = r.makeWrapper(e)
		r.entries[d.Name] = e
	}
}

// Attach connects the instrumentation layer. Hooks run on every
// intercepted call until Detach.
func (r *Registry) Attach(h Hooks) {
	r.hooks.Store(&h)
}

// Detach disconnects the instrumentation layer. Dispatch continues,
// unobserved.
func (r *Registry) Detach() {
	r.hooks.Store(nil)
}

// CallCount returns the number of completed invocations so far.
func (r *Registry) CallCount() uint64 {
	return r.counter.Load()
}

// Len returns the number of interception entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Func returns the externally visible entry point for name: the local
// address a host should call instead of the real implementation.
func (r *Registry) Func(name string) (symbol.Invoke, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.wrapper, true
}

// Entry exposes the interception entry for name, for inspection.
func (r *Registry) Entry(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// makeWrapper builds the externally visible entry point for an entry.
func (r *Registry) makeWrapper(e *Entry) symbol.Invoke {
	switch e.desc.Kind {
	case KindFamilyInit:
		// The alternate-family init entry carries no hooks and does not
		// advance the call counter; its side effect is the family switch.
		return func(args ...uintptr) uintptr {
			r.resolver.UseAlternate()
			return r.dispatch(e, args...)
		}

	case KindProcLookup:
		// Name-based queries are answered by ProcAddress / Dlsym on the
		// Go side. The stub in the table exists so that a query for the
		// lookup function itself still answers locally; calling it
		// degrades to a no-op rather than escaping interception.
		return func(_ ...uintptr) uintptr {
			if e.desc.AlternateFamily {
				r.resolver.UseAlternate()
			}
			r.logger.Debug().Str("symbol", e.desc.Name).Msg("proc-lookup stub invoked directly")
			return 0
		}

	case KindPresentation:
		return func(args ...uintptr) uintptr {
			h := r.hooks.Load()
			id := r.counter.Load()
			if h != nil {
				(*h).PreCall(id, e.desc.Name)
			}
			ret := r.dispatch(e, args...)
			if h != nil {
				(*h).PostCall(id)
				(*h).FrameBoundary()
			}
			r.counter.Add(1)
			return ret
		}

	default:
		return func(args ...uintptr) uintptr {
			h := r.hooks.Load()
			id := r.counter.Load()
			if h != nil {
				(*h).PreCall(id, e.desc.Name)
			}
			ret := r.dispatch(e, args...)
			if h != nil {
				(*h).PostCall(id)
			}
			r.counter.Add(1)
			return ret
		}
	}
}

// dispatch invokes the bound target, binding lazily on first call.
// After the first call dispatch is a single atomic load.
func (r *Registry) dispatch(e *Entry, args ...uintptr) uintptr {
	fn := e.target.Load()
	if fn == nil {
		e.bindOnce.Do(func() {
			bound := r.resolver.ResolveOrNoop(e.desc.Name)
			e.target.Store(&bound)
			r.logger.Debug().Str("symbol", e.desc.Name).Str("family", r.resolver.Family().String()).Msg("trampoline bound")
		})
		fn = e.target.Load()
	}
	return (*fn)(args...)
}

// ProcAddress answers a proc-address query the way the intercepted
// lookup functions do: first the registry's own table, so the host
// receives the local interception stub for any name the tracer covers,
// then the real resolution chain. An unknown name yields nil, exactly
// as the real lookup would.
func (r *Registry) ProcAddress(name string) symbol.Invoke {
	if fn, ok := r.Func(name); ok {
		return fn
	}
	fn, err := r.resolver.Resolve(name)
	if err != nil {
		r.logger.Debug().Str("symbol", name).Msg("proc-address query missed")
		return nil
	}
	return fn
}

// ProcAddressAlternate is the alternate family's lookup: the host
// reaching for it is evidence the alternate API is in use, so it flips
// the resolver family before answering.
func (r *Registry) ProcAddressAlternate(name string) symbol.Invoke {
	r.resolver.UseAlternate()
	return r.ProcAddress(name)
}

// Dlsym is the generic dynamic-symbol shim: identical policy to
// ProcAddress, without any family side effect.
func (r *Registry) Dlsym(name string) symbol.Invoke {
	return r.ProcAddress(name)
}
