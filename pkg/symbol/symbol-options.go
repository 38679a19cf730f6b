package symbol

import (
	log "github.com/rs/zerolog"
)

type ResolverOption func(*Resolver)

func WithDefaultChain(strategies ...Strategy) ResolverOption {
	return func(r *Resolver) {
		r.defaultChain = strategies
	}
}

func WithAlternateChain(strategies ...Strategy) ResolverOption {
	return func(r *Resolver) {
		r.alternateChain = strategies
	}
}

func WithResolverLogger(logger log.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}
