package identity

import (
	"crypto/ecdh"
	encoding_asn1 "encoding/asn1"
	"encoding/base64"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const (
	scalarSize = 32
	// keySizeField is the INTEGER that follows the flag bit; it is always 32.
	keySizeField = 32

	flagPublic  byte = 0x00
	flagPrivate byte = 0x80
)

// keyMaterial is the decoded form of the protocol's key structure:
// SEQUENCE { BIT STRING(1 bit: has private), INTEGER 32, INTEGER x, INTEGER y [, INTEGER d] }.
type keyMaterial struct {
	x, y *big.Int
	d    *big.Int // nil for public-only encodings
}

func marshalKey(k keyMaterial) ([]byte, error) {
	flag := flagPublic
	if k.d != nil {
		flag = flagPrivate
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.BIT_STRING, func(b *cryptobyte.Builder) {
			// seven unused bits, one significant bit
			b.AddBytes([]byte{7, flag})
		})
		b.AddASN1Int64(keySizeField)
		b.AddASN1BigInt(k.x)
		b.AddASN1BigInt(k.y)
		if k.d != nil {
			b.AddASN1BigInt(k.d)
		}
	})
	return b.Bytes()
}

func parseKey(der []byte) (keyMaterial, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() {
		return keyMaterial{}, fmt.Errorf("%w: malformed sequence", ErrInvalidKey)
	}

	var flags encoding_asn1.BitString
	if !seq.ReadASN1BitString(&flags) || flags.BitLength < 1 {
		return keyMaterial{}, fmt.Errorf("%w: malformed flag bits", ErrInvalidKey)
	}
	var size int64
	if !seq.ReadASN1Integer(&size) || size != keySizeField {
		return keyMaterial{}, fmt.Errorf("%w: unexpected key size field", ErrInvalidKey)
	}

	k := keyMaterial{x: new(big.Int), y: new(big.Int)}
	if !seq.ReadASN1Integer(k.x) || !seq.ReadASN1Integer(k.y) {
		return keyMaterial{}, fmt.Errorf("%w: malformed coordinates", ErrInvalidKey)
	}
	if flags.At(0) == 1 {
		k.d = new(big.Int)
		if !seq.ReadASN1Integer(k.d) {
			return keyMaterial{}, fmt.Errorf("%w: malformed private scalar", ErrInvalidKey)
		}
	}
	if !seq.Empty() {
		return keyMaterial{}, fmt.Errorf("%w: trailing data", ErrInvalidKey)
	}
	return k, nil
}

// fixed32 encodes n as a 32-byte big-endian buffer with left zero padding.
func fixed32(n *big.Int) ([]byte, error) {
	if n.Sign() < 0 || n.BitLen() > scalarSize*8 {
		return nil, fmt.Errorf("%w: integer does not fit in %d bytes", ErrInvalidKey, scalarSize)
	}
	return n.FillBytes(make([]byte, scalarSize)), nil
}

func uncompressedPoint(x, y *big.Int) ([]byte, error) {
	xb, err := fixed32(x)
	if err != nil {
		return nil, err
	}
	yb, err := fixed32(y)
	if err != nil {
		return nil, err
	}
	point := make([]byte, 0, 1+2*scalarSize)
	point = append(point, 0x04)
	point = append(point, xb...)
	return append(point, yb...), nil
}

// ParsePublicKeyString decodes a base64 key structure (as sent in the
// omega parameter) into an ECDH public key on P-256.
func ParsePublicKeyString(s string) (*ecdh.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	k, err := parseKey(der)
	if err != nil {
		return nil, err
	}
	point, err := uncompressedPoint(k.x, k.y)
	if err != nil {
		return nil, err
	}
	pub, err := ecdh.P256().NewPublicKey(point)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return pub, nil
}

// publicKeyString encodes the public half of a key as the protocol's
// base64 key structure.
func publicKeyString(x, y *big.Int) (string, error) {
	der, err := marshalKey(keyMaterial{x: x, y: y})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
