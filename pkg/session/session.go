package session

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/krogueintel/blackbox/internal/settings"
	"github.com/krogueintel/blackbox/pkg/event"
)

// Session owns one logical trace stream, physically spanning one or
// more files. It holds the live block-nesting stack, the file sequence
// counter, the open file, and the retention ring. Only the Session
// mutates the block stack.
//
// Nothing here is ever fatal: an unopenable file degrades to silent
// trace loss, a stray block end is dropped. The tracer must not alter
// host-observable behavior.
type Session struct {
	mu sync.Mutex

	dir         string
	basePrefix  string
	prefix      string
	ordinal     uint
	maxFileSize int64
	retention   int

	file     *os.File
	buf      *bufio.Writer
	enc      *event.Encoder
	filename string
	size     int64
	seq      int

	blockStack []event.Event
	ring       []string

	began  bool
	logger log.Logger
}

func New(opts ...Option) *Session {
	s := &Session{
		basePrefix:  settings.DefaultFilePrefix,
		maxFileSize: settings.DefaultMaxFileSize,
		ordinal:     1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin acquires storage and opens the first backing file. Under
// retention mode the prefix is the bare base so that per-call files
// from a rerun overwrite instead of accumulating; otherwise the prefix
// carries the session ordinal so replacement sessions stay apart.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.began {
		return ErrSessionActive
	}
	if s.basePrefix == "" {
		return ErrPrefixEmpty
	}

	if s.retention > 0 {
		s.prefix = s.basePrefix
	} else {
		s.prefix = fmt.Sprintf("%s-%d", s.basePrefix, s.ordinal)
	}
	s.began = true
	s.logger.Info().Str("prefix", s.prefix).Msg("starting new session")
	s.startNewFileLocked()

	return nil
}

// Write persists one event, maintaining the block stack. BlockBegin
// pushes, BlockEnd pops, Value leaves the stack alone. A BlockEnd with
// no open block is dropped and logged; serializing it would unbalance
// the file. With no file open the event is tracked but not persisted.
func (s *Session) Write(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case event.BlockBegin:
		s.blockStack = append(s.blockStack, ev.Clone())
	case event.BlockEnd:
		if len(s.blockStack) == 0 {
			s.logger.Warn().Msg("dropping block end with no open block")
			return
		}
		s.blockStack = s.blockStack[:len(s.blockStack)-1]
	case event.Value:
	}

	s.writeRecordLocked(ev)
}

// NotifyPreDispatch evaluates the rotation policy at a dispatch
// boundary. Retention mode starts a fresh per-call file every time;
// otherwise the size threshold is checked, and an earlier open failure
// gets its retry here.
func (s *Session) NotifyPreDispatch(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.began {
		return
	}
	if s.retention > 0 {
		s.startNewFileLocked()
		return
	}
	if s.file == nil {
		s.startNewFileLocked()
		return
	}
	if s.maxFileSize > 0 && s.size > s.maxFileSize {
		s.startNewFileLocked()
		return
	}
	s.flushLocked()
}

// NotifyPostDispatch flushes the call's events to stable storage; in
// retention mode the per-call file is closed outright, which is what
// feeds the retention ring.
func (s *Session) NotifyPostDispatch(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}
	if s.retention > 0 {
		s.closeFileLocked()
		return
	}
	s.flushLocked()
}

// End closes the current file and releases all resources. Safe to call
// more than once.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.began {
		return
	}
	s.closeFileLocked()
	s.began = false
	s.logger.Info().Str("prefix", s.prefix).Msg("session ended")
}

// Depth returns the current block-stack depth.
func (s *Session) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blockStack)
}

// CurrentFile returns the path of the open backing file, empty when
// none is open.
func (s *Session) CurrentFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filename
}

// Retained returns the filenames currently held by the retention ring,
// oldest first.
func (s *Session) Retained() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ring...)
}

// startNewFileLocked closes the current file, opens the next one in
// the sequence, and replays the live block stack outermost-first so the
// new file is self-describing without access to its predecessors.
func (s *Session) startNewFileLocked() {
	s.closeFileLocked()

	name := filepath.Join(s.dir, fmt.Sprintf("%s.%d", s.prefix, s.seq))
	s.seq++

	f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		// Leave the session fileless; writes drop silently until the
		// next rotation attempt.
		s.logger.Warn().Err(errors.Wrap(err, "error opening trace file")).Str("file", name).Msg("trace output suspended")
		return
	}

	s.file = f
	s.buf = bufio.NewWriter(f)
	s.enc = event.NewEncoder(s.buf)
	s.filename = name
	s.size = 0
	s.logger.Debug().Str("file", name).Msg("starting new trace file")

	for _, begin := range s.blockStack {
		s.writeRecordLocked(begin)
	}
}

// closeFileLocked balances and closes the current file. Every block
// still open gets a matching end record, innermost-first, without
// touching the stack: the session's nesting survives the file boundary.
func (s *Session) closeFileLocked() {
	if s.file == nil {
		return
	}

	for range s.blockStack {
		s.writeRecordLocked(event.End())
	}

	if err := s.buf.Flush(); err != nil {
		s.logger.Warn().Err(err).Str("file", s.filename).Msg("error flushing trace file")
	}
	if err := s.file.Close(); err != nil {
		s.logger.Warn().Err(err).Str("file", s.filename).Msg("error closing trace file")
	}
	s.logger.Debug().Str("file", s.filename).Int64("size", s.size).Msg("closed trace file")

	if s.retention > 0 {
		for len(s.ring) >= s.retention {
			oldest := s.ring[0]
			s.ring = s.ring[1:]
			if err := os.Remove(oldest); err != nil {
				s.logger.Warn().Err(err).Str("file", oldest).Msg("error deleting evicted trace file")
			}
		}
		s.ring = append(s.ring, s.filename)
	}

	s.file = nil
	s.buf = nil
	s.enc = nil
	s.filename = ""
	s.size = 0
}

func (s *Session) writeRecordLocked(ev event.Event) {
	if s.file == nil {
		return
	}
	n, err := s.enc.Encode(ev)
	s.size += int64(n)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", s.filename).Msg("error writing trace record")
	}
}

func (s *Session) flushLocked() {
	if s.file == nil {
		return
	}
	if err := s.buf.Flush(); err != nil {
		s.logger.Warn().Err(err).Str("file", s.filename).Msg("error flushing trace file")
		return
	}
	if err := s.file.Sync(); err != nil {
		s.logger.Warn().Err(err).Str("file", s.filename).Msg("error syncing trace file")
	}
}
