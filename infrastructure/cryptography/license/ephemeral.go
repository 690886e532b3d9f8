package license

import (
	"crypto/sha512"
	"fmt"
	"io"

	"filippo.io/edwards25519"
)

// Ephemeral is the per-connection key pair of the licensed key exchange.
type Ephemeral struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateEphemeral draws a clamped scalar from rand and computes its
// public point on the base point.
func GenerateEphemeral(rand io.Reader) (Ephemeral, error) {
	var e Ephemeral
	if _, err := io.ReadFull(rand, e.Private[:]); err != nil {
		return Ephemeral{}, fmt.Errorf("failed to read ephemeral key: %w", err)
	}
	clamp(&e.Private)
	pub, err := scalarMult(e.Private, edwards25519.NewGeneratorPoint())
	if err != nil {
		return Ephemeral{}, err
	}
	copy(e.Public[:], pub.Bytes())
	return e, nil
}

// SharedSecret returns SHA-512 of the encoded point private*serverKey.
// The top bit of the private scalar is ignored.
func SharedSecret(serverKey, private [32]byte) ([64]byte, error) {
	point, err := new(edwards25519.Point).SetBytes(serverKey[:])
	if err != nil {
		return [64]byte{}, fmt.Errorf("%w: server key: %w", ErrInvalidPoint, err)
	}
	private[31] &= 0x7f
	shared, err := scalarMult(private, point)
	if err != nil {
		return [64]byte{}, err
	}
	return sha512.Sum512(shared.Bytes()), nil
}
