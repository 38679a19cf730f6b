package decode

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	log "github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/krogueintel/blackbox/pkg/cmd/options"
	"github.com/krogueintel/blackbox/pkg/event"
	"github.com/krogueintel/blackbox/pkg/report"
)

func newTestOptions() *options.Options {
	logger := log.New(log.ConsoleWriter{Out: os.Stderr})

	opts := options.NewOptions(
		options.WithContext(context.Background()),
		options.WithLogger(logger),
	)
	opts.LogLevel = "info"

	return opts
}

func writeTraceFile(t *testing.T, path string, events ...event.Event) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := event.NewEncoder(f)
	for _, ev := range events {
		_, err := enc.Encode(ev)
		require.NoError(t, err)
	}
}

func TestDecodeRendersBlocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace-1.0")
	writeTraceFile(t, path,
		event.Begin([]byte("glXSwapBuffers"), []byte("3")),
		event.Val([]byte("width"), []byte("640")),
		event.Begin([]byte("glClear"), nil),
		event.End(),
		event.End(),
	)

	cmd := NewCommand(newTestOptions())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--status=false", path})

	require.NoError(t, cmd.Execute())

	rendered := out.String()
	require.Contains(t, rendered, "# "+path)
	require.Contains(t, rendered, "glXSwapBuffers 3 {")
	require.Contains(t, rendered, `  width = "640"`)
	require.Contains(t, rendered, "  glClear {")
}

func TestDecodeReportsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace-1.0")
	writeTraceFile(t, path,
		event.Begin([]byte("glClear"), nil),
	)

	cmd := NewCommand(newTestOptions())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--status=false", path})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "1 blocks left open at end of file")
}

func TestDecodeMissingFile(t *testing.T) {
	cmd := NewCommand(newTestOptions())
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--status=false", filepath.Join(t.TempDir(), "absent")})

	require.Error(t, cmd.Execute())
}

func TestDecodeSummary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace-1.0")
	events := []event.Event{
		event.Begin([]byte("glClear"), nil),
		event.Val([]byte("mask"), []byte("0x4000")),
		event.End(),
	}
	writeTraceFile(t, path, events...)

	var size int64
	for _, ev := range events {
		size += event.EncodedSize(ev)
	}

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	cmd := NewCommand(newTestOptions())
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"--status=false", "--summary", path})

	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(filepath.Join(dir, "blackbox-report.json"))
	require.NoError(t, err)

	var rep report.TraceReport
	require.NoError(t, json.Unmarshal(data, &rep))
	require.Equal(t, []string{path}, rep.Files)
	require.Equal(t, uint64(3), rep.Records)
	require.Equal(t, uint64(1), rep.Blocks)
	require.Equal(t, 1, rep.MaxDepth)
	require.Equal(t, size, rep.TotalBytes)
}
