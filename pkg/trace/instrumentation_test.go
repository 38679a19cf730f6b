package trace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/krogueintel/blackbox/pkg/event"
	"github.com/krogueintel/blackbox/pkg/trace"
)

func TestPassthroughSingleSession(t *testing.T) {
	p := trace.NewPassthrough()

	params := trace.SessionParams{
		Write:        func(event.Event) {},
		Close:        func() {},
		PreDispatch:  func(uint64) {},
		PostDispatch: func(uint64) {},
	}

	h, err := p.BeginSession(params)
	require.NoError(t, err)
	require.NotNil(t, h)

	_, err = p.BeginSession(params)
	require.ErrorIs(t, err, trace.ErrSessionInProgress)

	p.EndSession(h)
	_, err = p.BeginSession(params)
	require.NoError(t, err)
}

func TestPassthroughBracketsCalls(t *testing.T) {
	p := trace.NewPassthrough()

	var events []event.Event
	var boundaries []string
	closed := false

	h, err := p.BeginSession(trace.SessionParams{
		Write:        func(ev event.Event) { events = append(events, ev) },
		Close:        func() { closed = true },
		PreDispatch:  func(uint64) { boundaries = append(boundaries, "pre") },
		PostDispatch: func(uint64) { boundaries = append(boundaries, "post") },
	})
	require.NoError(t, err)

	p.PreCall(7, "glClear")
	p.PostCall(7)

	require.Len(t, events, 2)
	require.Equal(t, event.BlockBegin, events[0].Type)
	require.Equal(t, []byte("glClear"), events[0].Name)
	require.Equal(t, []byte("7"), events[0].Value)
	require.Equal(t, event.BlockEnd, events[1].Type)
	require.Equal(t, []string{"pre", "post"}, boundaries)

	p.EndSession(h)
	require.True(t, closed)

	// Calls with no active session are ignored.
	p.PreCall(8, "glEnd")
	p.PostCall(8)
	require.Len(t, events, 2)
}
