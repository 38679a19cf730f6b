package event

// Type discriminates the three record kinds of the trace stream.
type Type uint32

const (
	// BlockBegin opens a named, nestable scope.
	BlockBegin Type = iota
	// BlockEnd closes the innermost open scope.
	BlockEnd
	// Value is a plain record carried inside the current scope.
	Value
)

func (t Type) String() string {
	switch t {
	case BlockBegin:
		return "block-begin"
	case BlockEnd:
		return "block-end"
	case Value:
		return "value"
	}
	return "unknown"
}

// Event is one record of the trace stream. Name and Value are opaque,
// pre-encoded payloads; either may be empty. Ordering is the only
// semantic the stream carries beyond content.
type Event struct {
	Type  Type
	Name  []byte
	Value []byte
}

// Begin returns a BlockBegin event for the given scope.
func Begin(name, value []byte) Event {
	return Event{Type: BlockBegin, Name: name, Value: value}
}

// End returns a BlockEnd event. The wire format allows payloads on an
// End record but the session never emits them.
func End() Event {
	return Event{Type: BlockEnd}
}

// Val returns a Value event.
func Val(name, value []byte) Event {
	return Event{Type: Value, Name: name, Value: value}
}

// Clone deep-copies the event so the caller may reuse its buffers.
func (e Event) Clone() Event {
	c := Event{Type: e.Type}
	if len(e.Name) > 0 {
		c.Name = append([]byte(nil), e.Name...)
	}
	if len(e.Value) > 0 {
		c.Value = append([]byte(nil), e.Value...)
	}
	return c
}
