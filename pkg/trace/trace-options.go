package trace

import (
	log "github.com/rs/zerolog"

	"github.com/krogueintel/blackbox/internal/config"
	"github.com/krogueintel/blackbox/pkg/trampoline"
)

type TracerOption func(*Tracer)

// WithTracerConfig bypasses the environment and fixes the
// configuration explicitly.
func WithTracerConfig(cfg config.Config) TracerOption {
	return func(t *Tracer) {
		t.cfg = cfg
		t.cfgLoaded = true
	}
}

// WithTracerRegistry supplies the interception registry. Without it a
// default registry is built from the configured library names and the
// hand-written shim table.
func WithTracerRegistry(registry *trampoline.Registry) TracerOption {
	return func(t *Tracer) {
		t.registry = registry
	}
}

// WithTracerInstrumentation supplies the external instrumentation
// layer. Defaults to the built-in Passthrough.
func WithTracerInstrumentation(instr Instrumentation) TracerOption {
	return func(t *Tracer) {
		t.instr = instr
	}
}

func WithTracerLogger(logger log.Logger) TracerOption {
	return func(t *Tracer) {
		t.logger = logger
	}
}
