package trampoline

import (
	log "github.com/rs/zerolog"

	"github.com/krogueintel/blackbox/pkg/symbol"
)

type RegistryOption func(*Registry)

func WithRegistryResolver(resolver *symbol.Resolver) RegistryOption {
	return func(r *Registry) {
		r.resolver = resolver
	}
}

// WithRegistryTable registers interception entries for the given table
// rows. May be passed multiple times; duplicate names keep the first
// registration.
func WithRegistryTable(descs ...Desc) RegistryOption {
	return func(r *Registry) {
		r.register(descs)
	}
}

func WithRegistryLogger(logger log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}
