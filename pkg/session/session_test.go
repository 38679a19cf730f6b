package session_test

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/krogueintel/blackbox/pkg/event"
	"github.com/krogueintel/blackbox/pkg/session"
)

var testLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func decodeFile(t *testing.T, path string) []event.Event {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, event.Balanced(bytes.NewReader(data)))

	dec := event.NewDecoder(bytes.NewReader(data))
	var events []event.Event
	for {
		ev, err := dec.Decode()
		if err != nil {
			break
		}
		events = append(events, ev)
	}
	return events
}

// payload returns a value event whose encoded size is exactly n bytes.
func payload(t *testing.T, n int) event.Event {
	t.Helper()
	require.GreaterOrEqual(t, n, event.HeaderSize)
	return event.Val(nil, bytes.Repeat([]byte{0xab}, n-event.HeaderSize))
}

func TestBlockStackDepthInvariant(t *testing.T) {
	dir := t.TempDir()
	s := session.New(
		session.WithSessionDir(dir),
		session.WithSessionLogger(testLogger),
	)
	require.NoError(t, s.Begin())
	defer s.End()

	rng := rand.New(rand.NewSource(7))
	depth := 0
	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0:
			s.Write(event.Begin([]byte("b"), nil))
			depth++
		case 1:
			s.Write(event.End())
			if depth > 0 {
				depth--
			}
			// Stray ends are dropped; depth stays at zero.
		case 2:
			s.Write(event.Val([]byte("v"), []byte("x")))
		}
		require.Equal(t, depth, s.Depth())
	}
}

func TestEveryFileIsBalanced(t *testing.T) {
	dir := t.TempDir()
	s := session.New(
		session.WithSessionDir(dir),
		session.WithSessionMaxFileSize(256),
		session.WithSessionLogger(testLogger),
	)
	require.NoError(t, s.Begin())

	// Leave blocks open across several size-triggered rotations.
	s.Write(event.Begin([]byte("frame"), nil))
	s.Write(event.Begin([]byte("call"), nil))
	for i := uint64(0); i < 20; i++ {
		s.NotifyPreDispatch(i)
		s.Write(payload(t, 64))
		s.NotifyPostDispatch(i)
	}
	s.End()

	files := listFiles(t, dir)
	require.Greater(t, len(files), 1)
	for _, name := range files {
		decodeFile(t, filepath.Join(dir, name))
	}
}

func TestRotationBySizeScenario(t *testing.T) {
	dir := t.TempDir()
	s := session.New(
		session.WithSessionDir(dir),
		session.WithSessionPrefix("tracefile"),
		session.WithSessionMaxFileSize(100),
		session.WithSessionLogger(testLogger),
	)
	require.NoError(t, s.Begin())

	for i := uint64(0); i < 3; i++ {
		s.NotifyPreDispatch(i)
		s.Write(payload(t, 60))
		s.NotifyPostDispatch(i)
	}
	s.End()

	files := listFiles(t, dir)
	require.Equal(t, []string{"tracefile-1.0", "tracefile-1.1"}, files)

	// The threshold is checked only at boundaries: the first file holds
	// boundaries 1 and 2 and exceeds the threshold by one record.
	first, err := os.Stat(filepath.Join(dir, files[0]))
	require.NoError(t, err)
	require.Equal(t, int64(120), first.Size())

	second, err := os.Stat(filepath.Join(dir, files[1]))
	require.NoError(t, err)
	require.Equal(t, int64(60), second.Size())
}

func TestRetentionKeepsMostRecent(t *testing.T) {
	dir := t.TempDir()
	s := session.New(
		session.WithSessionDir(dir),
		session.WithSessionPrefix("percall"),
		session.WithSessionRetention(2),
		session.WithSessionLogger(testLogger),
	)
	require.NoError(t, s.Begin())

	for i := uint64(0); i < 4; i++ {
		s.NotifyPreDispatch(i)
		s.Write(payload(t, 32))
		s.NotifyPostDispatch(i)
	}
	s.End()

	// Cycles 3 and 4 survive; everything older was evicted and deleted.
	files := listFiles(t, dir)
	require.Equal(t, []string{"percall.3", "percall.4"}, files)
	require.Equal(t, []string{
		filepath.Join(dir, "percall.3"),
		filepath.Join(dir, "percall.4"),
	}, s.Retained())
}

func TestRetentionUsesBarePrefix(t *testing.T) {
	dir := t.TempDir()
	s := session.New(
		session.WithSessionDir(dir),
		session.WithSessionPrefix("p"),
		session.WithSessionRetention(1),
		session.WithSessionOrdinal(3),
		session.WithSessionLogger(testLogger),
	)
	require.NoError(t, s.Begin())
	require.Equal(t, filepath.Join(dir, "p.0"), s.CurrentFile())
	s.End()
}

func TestRotationReplaysBlockStack(t *testing.T) {
	dir := t.TempDir()
	s := session.New(
		session.WithSessionDir(dir),
		session.WithSessionPrefix("replay"),
		session.WithSessionMaxFileSize(50),
		session.WithSessionLogger(testLogger),
	)
	require.NoError(t, s.Begin())

	s.Write(event.Begin([]byte("outer"), []byte("o")))
	s.Write(event.Begin([]byte("inner"), nil))
	s.NotifyPreDispatch(0)
	s.Write(payload(t, 64))
	s.NotifyPostDispatch(0)

	// 64 > 50: the next boundary rotates with two blocks open.
	s.NotifyPreDispatch(1)
	s.Write(payload(t, 16))
	s.NotifyPostDispatch(1)
	s.End()

	files := listFiles(t, dir)
	require.Len(t, files, 2)

	first := decodeFile(t, filepath.Join(dir, files[0]))
	require.Equal(t, event.BlockEnd, first[len(first)-1].Type)
	require.Equal(t, event.BlockEnd, first[len(first)-2].Type)

	second := decodeFile(t, filepath.Join(dir, files[1]))
	require.Equal(t, event.BlockBegin, second[0].Type)
	require.Equal(t, []byte("outer"), second[0].Name)
	require.Equal(t, []byte("o"), second[0].Value)
	require.Equal(t, event.BlockBegin, second[1].Type)
	require.Equal(t, []byte("inner"), second[1].Name)
}

func TestStrayBlockEndIsDropped(t *testing.T) {
	dir := t.TempDir()
	s := session.New(
		session.WithSessionDir(dir),
		session.WithSessionPrefix("stray"),
		session.WithSessionLogger(testLogger),
	)
	require.NoError(t, s.Begin())

	s.Write(event.End())
	s.Write(event.Val([]byte("v"), nil))
	s.End()

	events := decodeFile(t, filepath.Join(dir, "stray-1.0"))
	require.Len(t, events, 1)
	require.Equal(t, event.Value, events[0].Type)
}

func TestOpenFailureDegradesToSilentLoss(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "not-there-yet")
	s := session.New(
		session.WithSessionDir(missing),
		session.WithSessionPrefix("lossy"),
		session.WithSessionLogger(testLogger),
	)
	require.NoError(t, s.Begin())
	require.Empty(t, s.CurrentFile())

	// Writes while no file is open are silent no-ops, not errors.
	require.NotPanics(t, func() {
		s.Write(event.Begin([]byte("b"), nil))
		s.Write(event.Val([]byte("v"), nil))
	})
	require.Equal(t, 1, s.Depth())

	// Once storage comes back, the next boundary's rotation attempt
	// succeeds and replays the live block stack.
	require.NoError(t, os.MkdirAll(missing, 0o755))
	s.NotifyPreDispatch(0)
	require.NotEmpty(t, s.CurrentFile())
	s.Write(event.End())
	s.End()

	events := decodeFile(t, filepath.Join(missing, "lossy-1.1"))
	require.Equal(t, event.BlockBegin, events[0].Type)
}

func TestEndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := session.New(
		session.WithSessionDir(dir),
		session.WithSessionLogger(testLogger),
	)
	require.NoError(t, s.Begin())
	s.End()
	require.NotPanics(t, s.End)
}

func TestBeginTwiceFails(t *testing.T) {
	dir := t.TempDir()
	s := session.New(
		session.WithSessionDir(dir),
		session.WithSessionLogger(testLogger),
	)
	require.NoError(t, s.Begin())
	defer s.End()
	require.ErrorIs(t, s.Begin(), session.ErrSessionActive)
}

func TestBeginRequiresPrefix(t *testing.T) {
	s := session.New(
		session.WithSessionPrefix(""),
		session.WithSessionLogger(testLogger),
	)
	require.ErrorIs(t, s.Begin(), session.ErrPrefixEmpty)
}
