package event

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// HeaderSize is the fixed size of the record header:
// type (uint32), name length (uint32), value length (uint32).
const HeaderSize = 12

// MaxPayloadSize caps the declared length of a single name or value
// payload so a corrupt header cannot make the decoder allocate
// unbounded memory.
const MaxPayloadSize = 256 * 1024 * 1024

var (
	ErrTruncatedRecord = errors.New("truncated record")
	ErrRecordTooLarge  = errors.New("record payload length exceeds sanity cap")
	ErrUnknownType     = errors.New("unknown event type")
)

// Encoder serializes events as little-endian records to an io.Writer.
type Encoder struct {
	w   io.Writer
	hdr [HeaderSize]byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one record and returns the number of bytes written.
func (e *Encoder) Encode(ev Event) (int, error) {
	binary.LittleEndian.PutUint32(e.hdr[0:4], uint32(ev.Type))
	binary.LittleEndian.PutUint32(e.hdr[4:8], uint32(len(ev.Name)))
	binary.LittleEndian.PutUint32(e.hdr[8:12], uint32(len(ev.Value)))

	n, err := e.w.Write(e.hdr[:])
	if err != nil {
		return n, errors.Wrap(err, "error writing record header")
	}
	if len(ev.Name) > 0 {
		m, err := e.w.Write(ev.Name)
		n += m
		if err != nil {
			return n, errors.Wrap(err, "error writing record name")
		}
	}
	if len(ev.Value) > 0 {
		m, err := e.w.Write(ev.Value)
		n += m
		if err != nil {
			return n, errors.Wrap(err, "error writing record value")
		}
	}

	return n, nil
}

// EncodedSize returns the on-disk size of the event without writing it.
func EncodedSize(ev Event) int64 {
	return int64(HeaderSize + len(ev.Name) + len(ev.Value))
}

// Decoder reads records written by Encoder. Decode returns io.EOF only
// at a clean record boundary; a partial record yields ErrTruncatedRecord.
type Decoder struct {
	r   io.Reader
	hdr [HeaderSize]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func (d *Decoder) Decode() (Event, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, ErrTruncatedRecord
	}

	tp := Type(binary.LittleEndian.Uint32(d.hdr[0:4]))
	nameLen := binary.LittleEndian.Uint32(d.hdr[4:8])
	valueLen := binary.LittleEndian.Uint32(d.hdr[8:12])

	if tp > Value {
		return Event{}, errors.Wrapf(ErrUnknownType, "type %d", uint32(tp))
	}
	if nameLen > MaxPayloadSize || valueLen > MaxPayloadSize {
		return Event{}, ErrRecordTooLarge
	}

	ev := Event{Type: tp}
	if nameLen > 0 {
		ev.Name = make([]byte, nameLen)
		if _, err := io.ReadFull(d.r, ev.Name); err != nil {
			return Event{}, ErrTruncatedRecord
		}
	}
	if valueLen > 0 {
		ev.Value = make([]byte, valueLen)
		if _, err := io.ReadFull(d.r, ev.Value); err != nil {
			return Event{}, ErrTruncatedRecord
		}
	}

	return ev, nil
}

// Balanced verifies the per-file invariant: every BlockEnd matches an
// open BlockBegin and every block opened is closed by the end of the
// stream. It returns the first violation found.
func Balanced(r io.Reader) error {
	dec := NewDecoder(r)
	depth := 0
	for {
		ev, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch ev.Type {
		case BlockBegin:
			depth++
		case BlockEnd:
			depth--
			if depth < 0 {
				return errors.New("block end without matching begin")
			}
		}
	}
	if depth != 0 {
		return errors.Errorf("%d blocks left open at end of stream", depth)
	}

	return nil
}
