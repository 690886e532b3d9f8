package session

import (
	"sync"

	"voicelink/domain/voice/command"
	"voicelink/domain/voice/packet"
)

// Event is delivered on Session.Events. The concrete types are Connected,
// Disconnected, Error, Voice, Command, TextMessage and Debug.
type Event interface {
	event()
}

type Connected struct {
	ClientID   uint16
	ServerName string
}

// Disconnected is sent once per connection. Reason is nil after a
// requested disconnect.
type Disconnected struct {
	Reason error
}

// Error reports a failure. Fatal errors are followed by Disconnected.
type Error struct {
	Err error
}

type Voice struct {
	Frame packet.VoiceFrame
	// Whisper is set for frames addressed to a subset of clients.
	Whisper bool
}

type Command struct {
	Command command.Command
}

type TextMessage struct {
	Message command.TextMessage
}

// Debug carries protocol traces.
type Debug struct {
	Message string
}

func (Connected) event()    {}
func (Disconnected) event() {}
func (Error) event()        {}
func (Voice) event()        {}
func (Command) event()      {}
func (TextMessage) event()  {}
func (Debug) event()        {}

// eventQueue decouples the reactor from the consumer: push never blocks,
// and a dispatcher goroutine hands events to out in order.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	wake   chan struct{}
	out    chan Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
	}
	go q.dispatch()
	return q
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.signal()
}

// close stops accepting events. Queued events are still delivered before
// out is closed.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) dispatch() {
	defer close(q.out)
	for {
		q.mu.Lock()
		items, closed := q.items, q.closed
		q.items = nil
		q.mu.Unlock()

		for _, e := range items {
			q.out <- e
		}
		if len(items) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}
