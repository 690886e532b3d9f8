package packetcrypto

import "fmt"

// Role selects which header shape the engine writes and which derivation
// direction applies to each side of the connection.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// Mode records which key material protects packets.
type Mode uint8

const (
	// ModeBootstrap uses the protocol's fixed dummy key and nonce.
	ModeBootstrap Mode = iota
	// ModeLegacy uses IV material from the P-256 key exchange.
	ModeLegacy
	// ModeLicensed uses IV material from the license chain key exchange.
	ModeLicensed
)

func (m Mode) String() string {
	switch m {
	case ModeBootstrap:
		return "bootstrap"
	case ModeLegacy:
		return "legacy"
	case ModeLicensed:
		return "licensed"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}
