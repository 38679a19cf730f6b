package trace

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/krogueintel/blackbox/internal/config"
	"github.com/krogueintel/blackbox/internal/settings"
	"github.com/krogueintel/blackbox/pkg/session"
	"github.com/krogueintel/blackbox/pkg/symbol"
	"github.com/krogueintel/blackbox/pkg/trampoline"
)

// Tracer is the process-wide lifecycle manager: it owns the
// instrumentation handle, the active session, and the frame counter.
// It is constructed once, attached when the hosting module loads, and
// detached on unload. It has exactly two states, inactive and active.
type Tracer struct {
	mu sync.Mutex

	cfg       config.Config
	cfgLoaded bool
	registry  *trampoline.Registry
	instr     Instrumentation
	logger    log.Logger

	active  bool
	sess    *session.Session
	handle  Handle
	frames  uint
	ordinal uint
}

func NewTracer(opts ...TracerOption) *Tracer {
	t := new(Tracer)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Registry exposes the interception registry so the host can obtain
// local entry points and the proc-address shims.
func (t *Tracer) Registry() *trampoline.Registry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.registry == nil {
		t.registry = t.defaultRegistry()
	}
	return t.registry
}

// Attach reads the configuration, acquires the instrumentation layer,
// starts the first session, and connects the interception hooks.
func (t *Tracer) Attach() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		return ErrAlreadyAttached
	}
	if !t.cfgLoaded {
		t.cfg = config.Load()
		t.cfgLoaded = true
	}
	if t.instr == nil {
		t.instr = NewPassthrough()
	}
	if t.registry == nil {
		t.registry = t.defaultRegistry()
	}

	if err := t.startSessionLocked(); err != nil {
		return err
	}
	t.registry.Attach(t)
	t.active = true
	t.logger.Info().Str("prefix", t.cfg.FilePrefix).Msg("tracer attached")

	return nil
}

// Detach tears the tracer down: hooks disconnect, the session flushes
// and closes, the instrumentation handle is released. It always runs
// to completion; the host may exit afterwards.
func (t *Tracer) Detach() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return ErrNotAttached
	}
	t.registry.Detach()
	t.endSessionLocked()
	t.active = false
	t.logger.Info().Msg("tracer detached")

	return nil
}

// PreCall forwards the pre-dispatch hook to the instrumentation layer.
func (t *Tracer) PreCall(id uint64, name string) {
	t.instr.PreCall(id, name)
}

// PostCall forwards the post-dispatch hook to the instrumentation layer.
func (t *Tracer) PostCall(id uint64) {
	t.instr.PostCall(id)
}

// FrameBoundary counts presentation boundaries and, once the
// configured threshold is reached with retention off, replaces the
// whole session: the old one ends, a fresh one begins with a reset
// file sequence. Replacement happens only here, never at a dispatch
// boundary, so it cannot race a rotation-by-size decision.
func (t *Tracer) FrameBoundary() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return
	}
	t.frames++
	if t.cfg.MaxFrames == 0 || t.frames < t.cfg.MaxFrames || t.cfg.Retention > 0 {
		return
	}

	t.frames = 0
	t.logger.Debug().Uint("ordinal", t.ordinal).Msg("frame threshold reached, replacing session")
	t.endSessionLocked()
	if err := t.startSessionLocked(); err != nil {
		t.logger.Warn().Err(err).Msg("error starting replacement session")
	}
}

func (t *Tracer) startSessionLocked() error {
	t.ordinal++
	s := session.New(
		session.WithSessionPrefix(t.cfg.FilePrefix),
		session.WithSessionDir(t.cfg.OutputDir),
		session.WithSessionOrdinal(t.ordinal),
		session.WithSessionMaxFileSize(t.cfg.MaxFileSize),
		session.WithSessionRetention(t.cfg.Retention),
		session.WithSessionLogger(t.logger),
	)
	if err := s.Begin(); err != nil {
		return errors.Wrap(err, "error beginning session")
	}

	h, err := t.instr.BeginSession(SessionParams{
		Write:        s.Write,
		Close:        s.End,
		PreDispatch:  s.NotifyPreDispatch,
		PostDispatch: s.NotifyPostDispatch,
	})
	if err != nil {
		s.End()
		return errors.Wrap(err, "error acquiring instrumentation session")
	}

	t.sess = s
	t.handle = h

	return nil
}

// endSessionLocked releases the instrumentation session; its Close
// callback is what ends the trace session.
func (t *Tracer) endSessionLocked() {
	if t.handle != nil {
		t.instr.EndSession(t.handle)
	}
	t.sess = nil
	t.handle = nil
}

// defaultRegistry wires the shim table to dynamically loaded libraries
// named by the configuration, with each family's extension-query
// strategies ahead of direct lookup.
func (t *Tracer) defaultRegistry() *trampoline.Registry {
	if !t.cfgLoaded {
		t.cfg = config.Load()
		t.cfgLoaded = true
	}
	defLib := symbol.OpenLibrary(t.cfg.DefaultLibrary)
	altLib := symbol.OpenLibrary(t.cfg.AlternateLibrary)

	resolver := symbol.NewResolver(
		symbol.WithResolverLogger(t.logger),
		symbol.WithDefaultChain(
			symbol.QueryStrategy(settings.DefaultQueryName, defLib),
			symbol.QueryStrategy(settings.DefaultQueryNameARB, defLib),
			symbol.LibraryStrategy(defLib),
		),
		symbol.WithAlternateChain(
			symbol.QueryStrategy(settings.AlternateQueryName, altLib),
			symbol.LibraryStrategy(altLib),
		),
	)

	return trampoline.NewRegistry(
		trampoline.WithRegistryLogger(t.logger),
		trampoline.WithRegistryResolver(resolver),
		trampoline.WithRegistryTable(trampoline.ShimTable()...),
	)
}
