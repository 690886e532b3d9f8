// Package license parses the server license block chain and derives the
// server's edwards25519 key from it.
package license

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

type BlockType byte

const (
	BlockIntermediate BlockType = 0
	BlockWebsite      BlockType = 1
	BlockServer       BlockType = 2
	BlockCode         BlockType = 3
	BlockTs5Server    BlockType = 8
	BlockEphemeral    BlockType = 32
)

func (t BlockType) String() string {
	switch t {
	case BlockIntermediate:
		return "intermediate"
	case BlockWebsite:
		return "website"
	case BlockServer:
		return "server"
	case BlockCode:
		return "code"
	case BlockTs5Server:
		return "ts5server"
	case BlockEphemeral:
		return "ephemeral"
	default:
		return fmt.Sprintf("BlockType(%d)", byte(t))
	}
}

const (
	version      = 1
	minBlockLen  = 42
	keyKindPlain = 0
	// Block timestamps count seconds from this unix offset.
	epochOffset = 0x50e22700
)

// Block is one link of the license chain.
type Block struct {
	Type      BlockType
	Key       [32]byte
	NotBefore time.Time
	NotAfter  time.Time
	// Issuer is the issuer name for intermediate and server blocks.
	Issuer string
	// Properties holds the raw property entries of ts5server blocks.
	Properties [][]byte
	// raw covers the whole block; the derivation hash skips its first byte.
	raw []byte
}

// Chain is a parsed license in issuance order.
type Chain []Block

// Parse decodes a license: a version byte followed by blocks until the
// data is exhausted.
func Parse(data []byte) (Chain, error) {
	if len(data) < 1 {
		return nil, ErrTruncated
	}
	if data[0] != version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}
	data = data[1:]

	var chain Chain
	for len(data) > 0 {
		block, n, err := parseBlock(data)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", len(chain), err)
		}
		chain = append(chain, block)
		data = data[n:]
	}
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}
	return chain, nil
}

func parseBlock(data []byte) (Block, int, error) {
	if len(data) < minBlockLen {
		return Block{}, 0, ErrTruncated
	}
	if data[0] != keyKindPlain {
		return Block{}, 0, fmt.Errorf("%w: %d", ErrUnknownKeyKind, data[0])
	}

	b := Block{Type: BlockType(data[33])}
	copy(b.Key[:], data[1:33])
	b.NotBefore = blockTime(data[34:38])
	b.NotAfter = blockTime(data[38:42])
	if b.NotAfter.Before(b.NotBefore) {
		return Block{}, 0, ErrInvalidValidity
	}

	var body int
	switch b.Type {
	case BlockIntermediate:
		// four reserved bytes precede the issuer
		issuer, n, err := cString(data, minBlockLen+4)
		if err != nil {
			return Block{}, 0, err
		}
		b.Issuer, body = issuer, 4+n
	case BlockServer:
		// license type byte and four reserved bytes precede the issuer
		issuer, n, err := cString(data, minBlockLen+5)
		if err != nil {
			return Block{}, 0, err
		}
		b.Issuer, body = issuer, 5+n
	case BlockTs5Server:
		props, n, err := properties(data)
		if err != nil {
			return Block{}, 0, err
		}
		b.Properties, body = props, n
	case BlockEphemeral:
	default:
		return Block{}, 0, fmt.Errorf("%w: %s", ErrUnknownBlockType, b.Type)
	}

	total := minBlockLen + body
	b.raw = data[:total:total]
	return b, total, nil
}

func blockTime(b []byte) time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(b))+epochOffset, 0).UTC()
}

// cString reads a NUL-terminated string at off and returns it with the
// number of bytes consumed including the terminator.
func cString(data []byte, off int) (string, int, error) {
	if off > len(data) {
		return "", 0, ErrTruncated
	}
	end := bytes.IndexByte(data[off:], 0)
	if end < 0 {
		return "", 0, ErrTruncated
	}
	return string(data[off : off+end]), end + 1, nil
}

// properties reads the ts5server body: license type, property count, then
// length-prefixed entries.
func properties(data []byte) ([][]byte, int, error) {
	off := minBlockLen
	if len(data) < off+2 {
		return nil, 0, ErrTruncated
	}
	count := int(data[off+1])
	off += 2
	props := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if off >= len(data) {
			return nil, 0, ErrTruncated
		}
		n := int(data[off])
		off++
		if off+n > len(data) {
			return nil, 0, ErrTruncated
		}
		props = append(props, data[off:off+n:off+n])
		off += n
	}
	return props, off - minBlockLen, nil
}
