// Package reliability implements acknowledgement tracking, retransmission,
// ordered delivery and fragment reassembly for reliable packets.
package reliability

import (
	"fmt"
	"time"

	"voicelink/domain/voice/packet"
)

const (
	DefaultResendInterval = 1000 * time.Millisecond
	DefaultResendTimeout  = 30000 * time.Millisecond
)

// Key identifies an outstanding packet.
type Key struct {
	Type packet.Type
	ID   uint16
}

func (k Key) String() string {
	return fmt.Sprintf("%s#%d", k.Type, k.ID)
}

// Entry is a sent packet awaiting acknowledgement. Raw is retransmitted
// unchanged.
type Entry struct {
	Key       Key
	Raw       []byte
	FirstSent time.Time
	LastSent  time.Time
	Sends     int
}

// Policy decides when an entry is resent and when it is given up on.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Interval: DefaultResendInterval, Timeout: DefaultResendTimeout}
}

// check returns whether e is due for retransmission at now, or
// ErrResendTimeout once it has been outstanding longer than the timeout.
func (p Policy) check(e *Entry, now time.Time) (bool, error) {
	if now.Sub(e.FirstSent) > p.Timeout {
		return false, fmt.Errorf("%w: %s outstanding for %s", ErrResendTimeout, e.Key, now.Sub(e.FirstSent))
	}
	return now.Sub(e.LastSent) > p.Interval, nil
}

// ResendQueue tracks reliable packets in send order. It is owned by the
// connection's reactor and is not safe for concurrent use.
type ResendQueue struct {
	policy  Policy
	entries []*Entry
}

func NewResendQueue(policy Policy) *ResendQueue {
	return &ResendQueue{policy: policy}
}

// Track registers a packet just written to the wire.
func (q *ResendQueue) Track(key Key, raw []byte, now time.Time) {
	q.entries = append(q.entries, &Entry{
		Key:       key,
		Raw:       raw,
		FirstSent: now,
		LastSent:  now,
		Sends:     1,
	})
}

// Ack removes the entry matching key and reports whether one existed.
func (q *ResendQueue) Ack(key Key) bool {
	for i, e := range q.entries {
		if e.Key == key {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Poll returns the packets due for retransmission, marking them as resent
// at now. When any entry has timed out the queue is cleared and the error
// is returned, so a timeout is reported exactly once.
func (q *ResendQueue) Poll(now time.Time) ([][]byte, error) {
	var due [][]byte
	for _, e := range q.entries {
		resend, err := q.policy.check(e, now)
		if err != nil {
			q.Clear()
			return nil, err
		}
		if resend {
			e.LastSent = now
			e.Sends++
			due = append(due, e.Raw)
		}
	}
	return due, nil
}

func (q *ResendQueue) Len() int { return len(q.entries) }

func (q *ResendQueue) Clear() {
	clear(q.entries)
	q.entries = q.entries[:0]
}

// Slot tracks the single outstanding handshake packet. Each new step
// replaces the previous one.
type Slot struct {
	policy Policy
	entry  *Entry
}

func NewSlot(policy Policy) *Slot {
	return &Slot{policy: policy}
}

func (s *Slot) Replace(raw []byte, now time.Time) {
	s.entry = &Entry{
		Key:       Key{Type: packet.Init, ID: packet.InitPacketID},
		Raw:       raw,
		FirstSent: now,
		LastSent:  now,
		Sends:     1,
	}
}

func (s *Slot) Clear() { s.entry = nil }

func (s *Slot) Active() bool { return s.entry != nil }

// Poll returns the packet if it is due for retransmission. A timeout
// clears the slot.
func (s *Slot) Poll(now time.Time) ([]byte, error) {
	if s.entry == nil {
		return nil, nil
	}
	resend, err := s.policy.check(s.entry, now)
	if err != nil {
		s.entry = nil
		return nil, err
	}
	if !resend {
		return nil, nil
	}
	s.entry.LastSent = now
	s.entry.Sends++
	return s.entry.Raw, nil
}
