package packetcrypto

import (
	"crypto/sha256"
	"encoding/binary"

	"voicelink/domain/voice/packet"
)

const (
	KeySize   = 16
	NonceSize = 16

	directionFromServer byte = 0x30
	directionFromClient byte = 0x31
)

var (
	dummyKey   = [KeySize]byte([]byte("c:\\windows\\syste"))
	dummyNonce = [NonceSize]byte([]byte("m\\firewall32.cpl"))
)

// DeriveKeyNonce computes the per-packet key and nonce:
// SHA-256(direction ‖ type ‖ generation ‖ iv) split in halves, with the
// packet id folded into the first two key bytes.
func DeriveKeyNonce(fromServer bool, id uint16, gen uint32, t packet.Type, iv []byte) (key [KeySize]byte, nonce [NonceSize]byte) {
	buf := make([]byte, 6, 6+len(iv))
	buf[0] = directionFromClient
	if fromServer {
		buf[0] = directionFromServer
	}
	buf[1] = byte(t) & 0x0f
	binary.BigEndian.PutUint32(buf[2:6], gen)
	buf = append(buf, iv...)

	sum := sha256.Sum256(buf)
	copy(key[:], sum[:KeySize])
	copy(nonce[:], sum[KeySize:])
	key[0] ^= byte(id >> 8)
	key[1] ^= byte(id)
	return key, nonce
}
