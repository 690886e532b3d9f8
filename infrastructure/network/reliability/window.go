package reliability

// DefaultWindowSize is how far ahead of the next expected id packets are
// buffered.
const DefaultWindowSize = 128

const halfSequence = 0x8000

// Verdict tells what the window did with a pushed packet.
type Verdict uint8

const (
	Delivered Verdict = iota
	Buffered
	Duplicate
	OutOfWindow
)

func (v Verdict) String() string {
	switch v {
	case Delivered:
		return "delivered"
	case Buffered:
		return "buffered"
	case Duplicate:
		return "duplicate"
	default:
		return "out of window"
	}
}

// ReceiveWindow releases reliable packets in id order and drops
// duplicates. Ids wrap at 65536.
type ReceiveWindow[T any] struct {
	next    uint16
	size    uint16
	pending map[uint16]T
}

func NewReceiveWindow[T any](first, size uint16) *ReceiveWindow[T] {
	return &ReceiveWindow[T]{next: first, size: size, pending: make(map[uint16]T)}
}

// Next is the id the window is waiting for.
func (w *ReceiveWindow[T]) Next() uint16 { return w.next }

// Push accepts the packet with the given id and returns the run of values
// that became deliverable, in order.
func (w *ReceiveWindow[T]) Push(id uint16, v T) ([]T, Verdict) {
	distance := id - w.next
	switch {
	case distance >= halfSequence:
		return nil, Duplicate
	case distance >= w.size:
		return nil, OutOfWindow
	}
	if _, ok := w.pending[id]; ok {
		return nil, Duplicate
	}
	w.pending[id] = v
	if distance != 0 {
		return nil, Buffered
	}

	var run []T
	for {
		next, ok := w.pending[w.next]
		if !ok {
			break
		}
		run = append(run, next)
		delete(w.pending, w.next)
		w.next++
	}
	return run, Delivered
}

func (w *ReceiveWindow[T]) Reset(first uint16) {
	w.next = first
	clear(w.pending)
}
