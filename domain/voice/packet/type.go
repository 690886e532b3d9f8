package packet

import "fmt"

// Type is the low nibble of the type&flags header byte.
type Type uint8

const (
	Voice Type = iota
	VoiceWhisper
	Command
	CommandLow
	Ping
	Pong
	Ack
	AckLow
	Init
)

// TypeCount is the number of packet types, each owning its own counters.
const TypeCount = 9

func (t Type) IsValid() bool {
	return t < TypeCount
}

// IsReliable reports whether packets of this type must be acked and resent.
func (t Type) IsReliable() bool {
	return t == Command || t == CommandLow
}

// AckType returns the ack type answering a reliable type.
func (t Type) AckType() (Type, bool) {
	switch t {
	case Command:
		return Ack, true
	case CommandLow:
		return AckLow, true
	default:
		return 0, false
	}
}

// AckedType is the inverse of AckType.
func (t Type) AckedType() (Type, bool) {
	switch t {
	case Ack:
		return Command, true
	case AckLow:
		return CommandLow, true
	default:
		return 0, false
	}
}

func (t Type) String() string {
	switch t {
	case Voice:
		return "Voice"
	case VoiceWhisper:
		return "VoiceWhisper"
	case Command:
		return "Command"
	case CommandLow:
		return "CommandLow"
	case Ping:
		return "Ping"
	case Pong:
		return "Pong"
	case Ack:
		return "Ack"
	case AckLow:
		return "AckLow"
	case Init:
		return "Init"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Flags occupy the high nibble of the type&flags header byte.
type Flags uint8

const (
	FlagNone        Flags = 0
	FlagFragmented  Flags = 0x10
	FlagNewProtocol Flags = 0x20
	FlagCompressed  Flags = 0x40
	FlagUnencrypted Flags = 0x80
)

func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

const typeMask = 0x0f

func splitTypeByte(b byte) (Type, Flags) {
	return Type(b & typeMask), Flags(b &^ typeMask)
}

func joinTypeByte(t Type, f Flags) byte {
	return byte(t)&typeMask | byte(f)&^typeMask
}
