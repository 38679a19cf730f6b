package trace

import (
	"strconv"
	"sync"

	"github.com/krogueintel/blackbox/pkg/event"
)

// Handle identifies one instrumentation session, opaque to the caller.
type Handle any

// SessionParams is the callback block handed to the instrumentation
// layer when a session begins. The session never calls into the
// instrumentation layer; all traffic flows through these callbacks in
// the other direction.
type SessionParams struct {
	Write        func(event.Event)
	Close        func()
	PreDispatch  func(id uint64)
	PostDispatch func(id uint64)
}

// Instrumentation is the external layer that decodes intercepted calls
// into trace events. The tracer notifies it around every dispatch; it
// produces events through the session callbacks.
type Instrumentation interface {
	BeginSession(params SessionParams) (Handle, error)
	EndSession(h Handle)
	PreCall(id uint64, name string)
	PostCall(id uint64)
}

// Passthrough is the built-in minimal instrumentation: it brackets
// every intercepted call in a block named after the call and treats
// each call as one dispatch boundary. It performs no semantic decoding;
// it exists so the transport produces real, decodable traces without an
// external decoder.
type Passthrough struct {
	mu     sync.Mutex
	params SessionParams
	active bool
}

func NewPassthrough() *Passthrough {
	return new(Passthrough)
}

func (p *Passthrough) BeginSession(params SessionParams) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		return nil, ErrSessionInProgress
	}
	p.params = params
	p.active = true

	return p, nil
}

func (p *Passthrough) EndSession(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active || h != Handle(p) {
		return
	}
	if p.params.Close != nil {
		p.params.Close()
	}
	p.params = SessionParams{}
	p.active = false
}

func (p *Passthrough) PreCall(id uint64, name string) {
	p.mu.Lock()
	params, active := p.params, p.active
	p.mu.Unlock()
	if !active {
		return
	}

	params.PreDispatch(id)
	params.Write(event.Begin([]byte(name), []byte(strconv.FormatUint(id, 10))))
}

func (p *Passthrough) PostCall(id uint64) {
	p.mu.Lock()
	params, active := p.params, p.active
	p.mu.Unlock()
	if !active {
		return
	}

	params.Write(event.End())
	params.PostDispatch(id)
}
