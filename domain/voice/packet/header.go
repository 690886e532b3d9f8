package packet

import (
	"encoding/binary"
	"fmt"
)

// Header is the plaintext part of a packet that follows the MAC. It is also
// the associated data of the AEAD.
type Header struct {
	ID       uint16
	ClientID uint16 // only present on client-to-server packets
	Type     Type
	Flags    Flags
}

// MarshalC2S encodes the 5-byte client-to-server header.
func (h Header) MarshalC2S() []byte {
	b := make([]byte, C2SHeaderLength)
	binary.BigEndian.PutUint16(b[0:2], h.ID)
	binary.BigEndian.PutUint16(b[2:4], h.ClientID)
	b[4] = joinTypeByte(h.Type, h.Flags)
	return b
}

// MarshalS2C encodes the 3-byte server-to-client header.
func (h Header) MarshalS2C() []byte {
	b := make([]byte, S2CHeaderLength)
	binary.BigEndian.PutUint16(b[0:2], h.ID)
	b[2] = joinTypeByte(h.Type, h.Flags)
	return b
}

func (h *Header) UnmarshalC2S(b []byte) error {
	if len(b) < C2SHeaderLength {
		return ErrTooShort
	}
	t, f := splitTypeByte(b[4])
	if !t.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	h.ID = binary.BigEndian.Uint16(b[0:2])
	h.ClientID = binary.BigEndian.Uint16(b[2:4])
	h.Type = t
	h.Flags = f
	return nil
}

func (h *Header) UnmarshalS2C(b []byte) error {
	if len(b) < S2CHeaderLength {
		return ErrTooShort
	}
	t, f := splitTypeByte(b[2])
	if !t.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	h.ID = binary.BigEndian.Uint16(b[0:2])
	h.ClientID = 0
	h.Type = t
	h.Flags = f
	return nil
}

// Packet is a decoded wire packet: MAC ‖ header ‖ payload.
type Packet struct {
	MAC     [MACLength]byte
	Header  Header
	Payload []byte
}

// Direction selects which header shape a packet carries.
type Direction uint8

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) HeaderLength() int {
	if d == ClientToServer {
		return C2SHeaderLength
	}
	return S2CHeaderLength
}

func (d Direction) MarshalHeader(h Header) []byte {
	if d == ClientToServer {
		return h.MarshalC2S()
	}
	return h.MarshalS2C()
}

// Split separates a raw datagram into MAC, header bytes and body without
// copying. The header is decoded according to the direction.
func Split(d Direction, raw []byte) (mac [MACLength]byte, h Header, headerBytes, body []byte, err error) {
	hl := d.HeaderLength()
	if len(raw) < MACLength+hl {
		return mac, h, nil, nil, ErrTooShort
	}
	if len(raw) > MaxPacketSize {
		return mac, h, nil, nil, ErrTooLarge
	}
	copy(mac[:], raw[:MACLength])
	headerBytes = raw[MACLength : MACLength+hl]
	if d == ClientToServer {
		err = h.UnmarshalC2S(headerBytes)
	} else {
		err = h.UnmarshalS2C(headerBytes)
	}
	if err != nil {
		return mac, h, nil, nil, err
	}
	return mac, h, headerBytes, raw[MACLength+hl:], nil
}

// Assemble concatenates MAC, header bytes and body into a datagram.
func Assemble(mac [MACLength]byte, headerBytes, body []byte) ([]byte, error) {
	total := MACLength + len(headerBytes) + len(body)
	if total > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, total)
	}
	out := make([]byte, 0, total)
	out = append(out, mac[:]...)
	out = append(out, headerBytes...)
	return append(out, body...), nil
}
