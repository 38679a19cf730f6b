package symbol

import (
	"sync"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// DynamicLibrary is a Library backed by a shared object loaded with
// dlopen. Opening is deferred to the first lookup so that constructing
// a resolver for a library that is absent on this machine costs nothing
// and fails only as a resolution failure, never fatally.
type DynamicLibrary struct {
	path string

	once    sync.Once
	handle  uintptr
	openErr error

	mu      sync.Mutex
	queries map[string]func(string) uintptr
	closed  bool
}

func OpenLibrary(path string) *DynamicLibrary {
	return &DynamicLibrary{
		path:    path,
		queries: make(map[string]func(string) uintptr),
	}
}

func (l *DynamicLibrary) open() error {
	l.once.Do(func() {
		l.handle, l.openErr = purego.Dlopen(l.path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	})
	if l.openErr != nil {
		return errors.Wrapf(l.openErr, "error opening library %s", l.path)
	}
	return nil
}

// Lookup resolves a symbol by direct dlsym against the library.
func (l *DynamicLibrary) Lookup(name string) (Invoke, error) {
	if err := l.open(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, ErrLibraryClosed
	}

	addr, err := purego.Dlsym(l.handle, name)
	if err != nil {
		return nil, errors.Wrapf(err, "error resolving symbol %s in %s", name, l.path)
	}
	if addr == 0 {
		return nil, ErrSymbolNotFound
	}

	return wrapAddress(addr), nil
}

// QueryProc resolves a symbol through the library's own extension-query
// entry point: dlsym the query function once, then call it with the
// requested name. A zero return from the query is a miss, not an error
// of the query itself.
func (l *DynamicLibrary) QueryProc(query, name string) (Invoke, error) {
	fn, err := l.queryFunc(query)
	if err != nil {
		return nil, err
	}

	addr := fn(name)
	if addr == 0 {
		return nil, errors.Wrapf(ErrSymbolNotFound, "%s returned nil for %s", query, name)
	}

	return wrapAddress(addr), nil
}

func (l *DynamicLibrary) queryFunc(query string) (func(string) uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if fn, ok := l.queries[query]; ok {
		return fn, nil
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	if l.closed {
		return nil, ErrLibraryClosed
	}

	addr, err := purego.Dlsym(l.handle, query)
	if err != nil || addr == 0 {
		return nil, errors.Wrapf(ErrQueryNotFound, "%s in %s", query, l.path)
	}

	var fn func(string) uintptr
	purego.RegisterFunc(&fn, addr)
	l.queries[query] = fn

	return fn, nil
}

// Close releases the dlopen handle. Lookups after Close fail with
// ErrLibraryClosed.
func (l *DynamicLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.handle == 0 {
		l.closed = true
		return nil
	}
	l.closed = true
	if err := purego.Dlclose(l.handle); err != nil {
		return errors.Wrapf(err, "error closing library %s", l.path)
	}

	return nil
}

// wrapAddress turns a raw native address into an Invoke.
func wrapAddress(addr uintptr) Invoke {
	return func(args ...uintptr) uintptr {
		r1, _, _ := purego.SyscallN(addr, args...)
		return r1
	}
}
