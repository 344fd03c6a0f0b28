// Package events models the observable side effects the three engines
// emit for external monitors: RelationshipCreated, Heartbeat, Boosted,
// Slashed, Killed, PolicyCreated, PolicyBound, SpendRecorded, and
// ActionLogged.
//
// A fan-out notification Bus rather than a durable store: these events
// are observable side effects for external monitors, not part of the
// durable state any of the three core modules needs to replay on its
// own.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names one of the nine events the engines emit.
type Kind string

const (
	RelationshipCreated Kind = "RelationshipCreated"
	Heartbeat           Kind = "Heartbeat"
	Boosted             Kind = "Boosted"
	Slashed             Kind = "Slashed"
	Killed              Kind = "Killed"
	PolicyCreated       Kind = "PolicyCreated"
	PolicyBound         Kind = "PolicyBound"
	SpendRecorded       Kind = "SpendRecorded"
	ActionLogged        Kind = "ActionLogged"
)

// Event is an immutable, observable side effect.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Bus fans an event out to every subscriber registered at the time the
// event is published. It holds no history: a subscriber added after an
// event was published never sees it.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new buffered channel that receives every event
// published from this point on. The caller owns draining it.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, buffer)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish builds an Event of the given kind and payload, stamps it with
// a fresh ID and the current wall time, and fans it out to every
// subscriber. Publish never blocks on a full subscriber channel; an
// event is dropped for that subscriber rather than stalling the caller,
// since engine operations must complete in bounded time.
func (b *Bus) Publish(kind Kind, payload map[string]any) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}
