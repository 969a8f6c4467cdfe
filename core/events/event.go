package events

// Event is a structured record of a ledger state change.
type Event interface {
	EventType() string
}

// Emitter receives events as they are produced. Implementations must not
// block; the engine calls Emit while holding the node's state lock.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. It is the default sink until a real one
// is attached.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}
