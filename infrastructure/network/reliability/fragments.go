package reliability

import (
	"fmt"

	"voicelink/domain/voice/packet"
)

// MaxReassembledSize bounds the bytes buffered for one fragmented payload.
const MaxReassembledSize = 1 << 20

// Fragment is a command payload together with the flags that describe it.
type Fragment struct {
	Payload []byte
	Flags   packet.Flags
}

// FragmentBuffer reassembles fragmented command payloads. A Fragmented
// packet starts accumulation and the next Fragmented packet terminates it;
// unflagged packets received in between are middle chunks.
type FragmentBuffer struct {
	active bool
	flags  packet.Flags
	chunks [][]byte
	size   int
}

// Push feeds one in-order payload. It returns the complete payload and true
// when a whole message is available. The returned flags are those of the
// first chunk without the Fragmented bit.
func (b *FragmentBuffer) Push(payload []byte, flags packet.Flags) (Fragment, bool, error) {
	fragmented := flags.Has(packet.FlagFragmented)
	if !b.active && !fragmented {
		return Fragment{Payload: payload, Flags: flags}, true, nil
	}

	if total := b.size + len(payload); total > MaxReassembledSize {
		b.Reset()
		return Fragment{}, false, fmt.Errorf("%w: %d bytes", ErrFragmentsTooLarge, total)
	}
	if !b.active {
		b.active = true
		b.flags = flags &^ packet.FlagFragmented
	}
	b.chunks = append(b.chunks, payload)
	b.size += len(payload)
	if !fragmented || len(b.chunks) == 1 {
		return Fragment{}, false, nil
	}

	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	f := Fragment{Payload: out, Flags: b.flags}
	b.Reset()
	return f, true, nil
}

// Pending reports whether a fragmented message is being accumulated.
func (b *FragmentBuffer) Pending() bool { return b.active }

func (b *FragmentBuffer) Reset() {
	b.active = false
	b.flags = packet.FlagNone
	clear(b.chunks)
	b.chunks = b.chunks[:0]
	b.size = 0
}

// Split cuts payload into chunks of at most size bytes, each carrying
// flags. When more than one chunk is needed the first and the last are
// marked Fragmented, the layout FragmentBuffer reassembles.
func Split(payload []byte, flags packet.Flags, size int) []Fragment {
	if size <= 0 || len(payload) <= size {
		return []Fragment{{Payload: payload, Flags: flags}}
	}
	n := (len(payload) + size - 1) / size
	out := make([]Fragment, 0, n)
	for i := 0; i < n; i++ {
		chunk := payload[i*size : min((i+1)*size, len(payload))]
		f := Fragment{Payload: chunk, Flags: flags}
		if i == 0 || i == n-1 {
			f.Flags |= packet.FlagFragmented
		}
		out = append(out, f)
	}
	return out
}
