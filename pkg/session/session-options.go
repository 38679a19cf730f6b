package session

import (
	log "github.com/rs/zerolog"
)

type Option func(*Session)

// WithSessionPrefix sets the output filename prefix.
func WithSessionPrefix(prefix string) Option {
	return func(s *Session) {
		s.basePrefix = prefix
	}
}

// WithSessionDir sets the directory trace files are written to.
// Defaults to the working directory.
func WithSessionDir(dir string) Option {
	return func(s *Session) {
		s.dir = dir
	}
}

// WithSessionOrdinal sets the per-process ordinal distinguishing this
// session from the ones it replaced. Ignored under retention mode.
func WithSessionOrdinal(n uint) Option {
	return func(s *Session) {
		s.ordinal = n
	}
}

// WithSessionMaxFileSize sets the size threshold, in bytes, above
// which a new file starts at the next dispatch boundary. Zero disables
// rotation by size.
func WithSessionMaxFileSize(size int64) Option {
	return func(s *Session) {
		s.maxFileSize = size
	}
}

// WithSessionRetention enables keep-only-most-recent mode: every
// dispatch boundary gets its own file and only the n most recent
// closed files survive on disk. Zero disables retention.
func WithSessionRetention(n int) Option {
	return func(s *Session) {
		s.retention = n
	}
}

func WithSessionLogger(logger log.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}
