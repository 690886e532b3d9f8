// Package identity manages the long-term P-256 client identity: its key
// pair, the mined key offset that raises the security level, and the
// obfuscated export string used to persist it.
package identity

import (
	"context"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Identity is immutable once created. Improve returns a new value.
type Identity struct {
	signing   *ecdsa.PrivateKey
	agreement *ecdh.PrivateKey
	publicKey string
	uid       string
	keyOffset uint64
}

// Generate creates a fresh key pair and mines a key offset reaching level.
func Generate(ctx context.Context, level int) (*Identity, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity key: %w", err)
	}
	id, err := fromScalar(new(big.Int).SetBytes(key.Bytes()), 0)
	if err != nil {
		return nil, err
	}
	return id.Improve(ctx, level)
}

// Import parses an "<offset>V<base64>" export string.
func Import(export string) (*Identity, error) {
	offset, der, err := parseExportString(export)
	if err != nil {
		return nil, err
	}
	material, err := parseKey(der)
	if err != nil {
		return nil, err
	}
	if material.d == nil {
		return nil, ErrNoPrivateKey
	}
	id, err := fromScalar(material.d, offset)
	if err != nil {
		return nil, err
	}
	pub := id.signing.PublicKey
	if pub.X.Cmp(material.x) != 0 || pub.Y.Cmp(material.y) != 0 {
		return nil, ErrPublicKeyMismatch
	}
	return id, nil
}

// Restore rebuilds an identity from a decimal private scalar as produced
// by Scalar.
func Restore(scalar string, keyOffset uint64) (*Identity, error) {
	d, ok := new(big.Int).SetString(scalar, 10)
	if !ok {
		return nil, fmt.Errorf("%w: scalar %q is not a decimal integer", ErrInvalidKey, scalar)
	}
	return fromScalar(d, keyOffset)
}

func fromScalar(d *big.Int, keyOffset uint64) (*Identity, error) {
	raw, err := fixed32(d)
	if err != nil {
		return nil, err
	}
	agreement, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	point := agreement.PublicKey().Bytes()
	x := new(big.Int).SetBytes(point[1 : 1+scalarSize])
	y := new(big.Int).SetBytes(point[1+scalarSize:])

	publicKey, err := publicKeyString(x, y)
	if err != nil {
		return nil, err
	}
	uid := sha1.Sum([]byte(publicKey))

	return &Identity{
		signing: &ecdsa.PrivateKey{
			PublicKey: ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
			D:         new(big.Int).Set(d),
		},
		agreement: agreement,
		publicKey: publicKey,
		uid:       base64.StdEncoding.EncodeToString(uid[:]),
		keyOffset: keyOffset,
	}, nil
}

// PublicKeyString is the base64 key structure sent as omega.
func (i *Identity) PublicKeyString() string { return i.publicKey }

// UID is base64(SHA-1(PublicKeyString)).
func (i *Identity) UID() string { return i.uid }

func (i *Identity) KeyOffset() uint64 { return i.keyOffset }

// Scalar returns the private scalar in decimal.
func (i *Identity) Scalar() string { return i.signing.D.String() }

func (i *Identity) SecurityLevel() int {
	return securityLevel(i.publicKey, i.keyOffset)
}

// Improve mines offsets beyond the current one until the security level
// reaches target. A target at or below the current level is a no-op.
func (i *Identity) Improve(ctx context.Context, target int) (*Identity, error) {
	if i.SecurityLevel() >= target {
		return i, nil
	}
	offset, _, err := mine(ctx, i.publicKey, i.keyOffset, target)
	if err != nil {
		return nil, fmt.Errorf("security level mining interrupted: %w", err)
	}
	improved := *i
	improved.keyOffset = offset
	return &improved, nil
}

// Export renders the identity as "<offset>V<base64>".
func (i *Identity) Export() (string, error) {
	pub := i.signing.PublicKey
	der, err := marshalKey(keyMaterial{x: pub.X, y: pub.Y, d: i.signing.D})
	if err != nil {
		return "", err
	}
	return formatExportString(i.keyOffset, der), nil
}

// SharedSecret runs ECDH against the peer's public key string and returns
// SHA-1 of the 32-byte x coordinate.
func (i *Identity) SharedSecret(peerPublicKey string) ([]byte, error) {
	peer, err := ParsePublicKeyString(peerPublicKey)
	if err != nil {
		return nil, err
	}
	x, err := i.agreement.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}
	sum := sha1.Sum(x)
	return sum[:], nil
}

// Sign produces an ASN.1 ECDSA signature over SHA-256(data).
func (i *Identity) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, i.signing, digest[:])
}

// Verify checks an ASN.1 ECDSA signature made by the holder of publicKey.
func Verify(publicKey string, data, signature []byte) (bool, error) {
	pub, err := ParsePublicKeyString(publicKey)
	if err != nil {
		return false, err
	}
	point := pub.Bytes()
	key := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(point[1 : 1+scalarSize]),
		Y:     new(big.Int).SetBytes(point[1+scalarSize:]),
	}
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(key, digest[:], signature), nil
}
