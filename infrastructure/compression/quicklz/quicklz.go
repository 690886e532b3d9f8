// Package quicklz decompresses QuickLZ level 1 blocks, the format the
// server uses for compressed command payloads.
package quicklz

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrCorrupt          = errors.New("corrupt quicklz block")
	ErrUnsupportedLevel = errors.New("unsupported quicklz compression level")
	ErrTooLarge         = errors.New("quicklz block exceeds size limit")
)

// MaxDecompressedSize bounds the output of a single block.
const MaxDecompressedSize = 1 << 20

const (
	flagCompressed = 0x01
	flagLongHeader = 0x02

	shortHeaderLength = 3
	longHeaderLength  = 9
	controlWordLength = 4
	hashTableSize     = 4096
	// Literals are copied verbatim once fewer than this many output bytes remain.
	tailLength = 10
)

// Header describes a block without decompressing it.
type Header struct {
	Compressed       bool
	HeaderLength     int
	CompressedSize   int
	DecompressedSize int
}

func ParseHeader(data []byte) (Header, error) {
	if len(data) < shortHeaderLength {
		return Header{}, fmt.Errorf("%w: header truncated", ErrCorrupt)
	}
	flags := data[0]
	if level := (flags >> 2) & 0x03; level != 1 {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedLevel, level)
	}
	h := Header{Compressed: flags&flagCompressed != 0}
	if flags&flagLongHeader != 0 {
		if len(data) < longHeaderLength {
			return Header{}, fmt.Errorf("%w: header truncated", ErrCorrupt)
		}
		h.HeaderLength = longHeaderLength
		h.CompressedSize = int(binary.LittleEndian.Uint32(data[1:5]))
		h.DecompressedSize = int(binary.LittleEndian.Uint32(data[5:9]))
	} else {
		h.HeaderLength = shortHeaderLength
		h.CompressedSize = int(data[1])
		h.DecompressedSize = int(data[2])
	}
	if h.DecompressedSize > MaxDecompressedSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, h.DecompressedSize)
	}
	if h.CompressedSize > len(data) || h.CompressedSize < h.HeaderLength {
		return Header{}, fmt.Errorf("%w: compressed size %d of %d bytes", ErrCorrupt, h.CompressedSize, len(data))
	}
	return h, nil
}

// Decompress expands a single block.
func Decompress(data []byte) ([]byte, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	src := data[h.HeaderLength:h.CompressedSize]
	if !h.Compressed {
		if len(src) < h.DecompressedSize {
			return nil, fmt.Errorf("%w: stored block truncated", ErrCorrupt)
		}
		return append([]byte(nil), src[:h.DecompressedSize]...), nil
	}
	if h.DecompressedSize == 0 {
		return []byte{}, nil
	}
	d := decoder{src: src, dst: make([]byte, h.DecompressedSize), lastHashed: -1}
	if err := d.run(); err != nil {
		return nil, err
	}
	return d.dst, nil
}

type decoder struct {
	src        []byte
	dst        []byte
	s, d       int
	control    uint32
	lastHashed int
	table      [hashTableSize]int
}

// fetch reads up to four little-endian bytes at s, padding with zeros.
func (x *decoder) fetch() uint32 {
	var v uint32
	for i := 0; i < 4 && x.s+i < len(x.src); i++ {
		v |= uint32(x.src[x.s+i]) << (8 * i)
	}
	return v
}

func (x *decoder) readControl() error {
	if x.s+controlWordLength > len(x.src) {
		return fmt.Errorf("%w: control word truncated", ErrCorrupt)
	}
	x.control = binary.LittleEndian.Uint32(x.src[x.s:]) | 1<<31
	x.s += controlWordLength
	return nil
}

func (x *decoder) hashAt(p int) int {
	v := uint32(x.dst[p]) | uint32(x.dst[p+1])<<8 | uint32(x.dst[p+2])<<16
	return int(((v >> 12) ^ v) & (hashTableSize - 1))
}

func (x *decoder) hashUpTo(limit int) {
	for x.lastHashed < limit {
		x.lastHashed++
		x.table[x.hashAt(x.lastHashed)] = x.lastHashed
	}
}

func (x *decoder) run() error {
	last := len(x.dst) - 1
	x.control = 1
	for {
		if x.control == 1 {
			if err := x.readControl(); err != nil {
				return err
			}
		}

		if x.control&1 == 1 {
			x.control >>= 1
			if err := x.copyMatch(); err != nil {
				return err
			}
			continue
		}

		if x.d < last-tailLength {
			if x.s >= len(x.src) {
				return fmt.Errorf("%w: literal truncated", ErrCorrupt)
			}
			x.dst[x.d] = x.src[x.s]
			x.d++
			x.s++
			x.control >>= 1
			x.hashUpTo(x.d - 3)
			continue
		}

		for x.d <= last {
			if x.control == 1 {
				x.s += controlWordLength
				x.control = 1 << 31
			}
			if x.s >= len(x.src) {
				return fmt.Errorf("%w: tail truncated", ErrCorrupt)
			}
			x.dst[x.d] = x.src[x.s]
			x.d++
			x.s++
			x.control >>= 1
		}
		return nil
	}
}

func (x *decoder) copyMatch() error {
	if x.s+2 > len(x.src) {
		return fmt.Errorf("%w: match truncated", ErrCorrupt)
	}
	fetch := x.fetch()
	offset := x.table[(fetch>>4)&(hashTableSize-1)]

	var length int
	if fetch&0x0f != 0 {
		length = int(fetch&0x0f) + 2
		x.s += 2
	} else {
		if x.s+3 > len(x.src) {
			return fmt.Errorf("%w: match truncated", ErrCorrupt)
		}
		length = int(x.src[x.s+2])
		x.s += 3
	}
	if length < 3 || offset >= x.d || x.d+length > len(x.dst) {
		return fmt.Errorf("%w: match out of range", ErrCorrupt)
	}
	// Byte by byte: source and destination may overlap.
	for i := 0; i < length; i++ {
		x.dst[x.d+i] = x.dst[offset+i]
	}
	x.d += length
	x.hashUpTo(x.d - length)
	x.lastHashed = x.d - 1
	return nil
}
