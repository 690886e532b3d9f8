package license

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"filippo.io/edwards25519"
)

// RootKey is the public key every license chain descends from.
var RootKey = mustDecodeKey("cd0de2aed46345509a7e3cfd8f68b3dc7555b29dccec73cd18750f993812408a")

func mustDecodeKey(s string) [32]byte {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		panic("license: malformed root key")
	}
	var key [32]byte
	copy(key[:], raw)
	return key
}

// DeriveKey folds the chain onto parent: for every block,
// key = clamp(SHA-512(block[1:])[:32]) * blockKey + key.
func (c Chain) DeriveKey(parent [32]byte) ([32]byte, error) {
	if len(c) == 0 {
		return [32]byte{}, ErrEmptyChain
	}
	key := parent
	for i := range c {
		next, err := c[i].derive(key)
		if err != nil {
			return [32]byte{}, fmt.Errorf("block %d: %w", i, err)
		}
		key = next
	}
	return key, nil
}

func (b *Block) derive(parent [32]byte) ([32]byte, error) {
	blockKey, err := new(edwards25519.Point).SetBytes(b.Key[:])
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: block key: %w", ErrInvalidPoint, err)
	}
	parentKey, err := new(edwards25519.Point).SetBytes(parent[:])
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: parent key: %w", ErrInvalidPoint, err)
	}

	digest := sha512.Sum512(b.raw[1:])
	var h [32]byte
	copy(h[:], digest[:32])
	clamp(&h)

	product, err := scalarMult(h, blockKey)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], new(edwards25519.Point).Add(product, parentKey).Bytes())
	return out, nil
}

func clamp(k *[32]byte) {
	k[0] &= 248
	k[31] &= 63
	k[31] |= 64
}

// scalarMult multiplies p by the little-endian integer k below 2^255
// without reducing k modulo the group order, so points outside the prime
// order subgroup get the same result as a plain double-and-add.
// k = 8m + r with m < 2^252 canonical, hence k*P = m*(8P) + r*P.
func scalarMult(k [32]byte, p *edwards25519.Point) (*edwards25519.Point, error) {
	if k[31]&0x80 != 0 {
		return nil, fmt.Errorf("%w: scalar exceeds 255 bits", ErrInvalidPoint)
	}
	r := k[0] & 7
	var m [32]byte
	for i := 0; i < 32; i++ {
		m[i] = k[i] >> 3
		if i < 31 {
			m[i] |= k[i+1] << 5
		}
	}
	ms, err := edwards25519.NewScalar().SetCanonicalBytes(m[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPoint, err)
	}

	result := new(edwards25519.Point).ScalarMult(ms, new(edwards25519.Point).MultByCofactor(p))
	for ; r > 0; r-- {
		result.Add(result, p)
	}
	return result, nil
}
