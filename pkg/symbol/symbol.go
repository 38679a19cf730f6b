package symbol

import (
	"sync/atomic"

	log "github.com/rs/zerolog"
)

// Invoke is a callable produced by resolution. Arguments and the result
// are opaque machine words; the caller owns the calling convention.
type Invoke func(args ...uintptr) uintptr

// Noop is the harmless substitute bound in place of a function that
// could not be resolved. Calling it does nothing and returns zero, so
// an unresolved entry point can never crash the host.
func Noop(_ ...uintptr) uintptr {
	return 0
}

// Library is a loaded shared object that can be asked for symbols by name.
type Library interface {
	Lookup(name string) (Invoke, error)
}

// ProcQuerier is implemented by libraries whose API exposes its own
// extension-query entry point (the GetProcAddress style of lookup).
type ProcQuerier interface {
	QueryProc(query, name string) (Invoke, error)
}

// Family selects which resolution chain is active.
type Family int32

const (
	FamilyDefault Family = iota
	FamilyAlternate
)

func (f Family) String() string {
	if f == FamilyAlternate {
		return "alternate"
	}
	return "default"
}

// Strategy is one link of a resolution chain.
type Strategy struct {
	Name    string
	Resolve func(name string) (Invoke, error)
}

// LibraryStrategy resolves by direct symbol lookup against a library.
func LibraryStrategy(lib Library) Strategy {
	return Strategy{
		Name: "library-lookup",
		Resolve: func(name string) (Invoke, error) {
			return lib.Lookup(name)
		},
	}
}

// QueryStrategy resolves through the named extension-query function of
// the library, the way a GL host asks glXGetProcAddress for entry points
// that the library does not export directly.
func QueryStrategy(query string, lib ProcQuerier) Strategy {
	return Strategy{
		Name: query,
		Resolve: func(name string) (Invoke, error) {
			return lib.QueryProc(query, name)
		},
	}
}

// Resolver maps function names to callables through an ordered chain of
// strategies, stopping at the first success. Two chains exist, one per
// API family; the switch to the alternate family is one-directional and
// lasts for the remainder of the process.
type Resolver struct {
	family atomic.Int32

	defaultChain   []Strategy
	alternateChain []Strategy

	logger log.Logger
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := new(Resolver)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UseAlternate switches resolution to the alternate family. There is no
// way back; observing a single alternate-family initialization call is
// enough to commit the whole process.
func (r *Resolver) UseAlternate() {
	if r.family.Swap(int32(FamilyAlternate)) != int32(FamilyAlternate) {
		r.logger.Debug().Msg("switched to the alternate resolution family")
	}
}

// Family reports the currently active family.
func (r *Resolver) Family() Family {
	return Family(r.family.Load())
}

func (r *Resolver) chain() []Strategy {
	if r.Family() == FamilyAlternate {
		return r.alternateChain
	}
	return r.defaultChain
}

// Resolve walks the active family's chain and returns the first
// successful binding. All links failing yields ErrSymbolNotFound.
func (r *Resolver) Resolve(name string) (Invoke, error) {
	for _, s := range r.chain() {
		fn, err := s.Resolve(name)
		if err != nil {
			r.logger.Debug().Err(err).Str("symbol", name).Str("strategy", s.Name).Msg("strategy failed")
			continue
		}
		if fn == nil {
			continue
		}
		r.logger.Debug().Str("symbol", name).Str("strategy", s.Name).Msg("symbol resolved")
		return fn, nil
	}

	return nil, ErrSymbolNotFound
}

// ResolveOrNoop never fails: an unresolvable name degrades to Noop so
// the returned callable is always safe to invoke.
func (r *Resolver) ResolveOrNoop(name string) Invoke {
	fn, err := r.Resolve(name)
	if err != nil {
		r.logger.Warn().Str("symbol", name).Str("family", r.Family().String()).Msg("symbol unresolved, binding no-op")
		return Noop
	}
	return fn
}
