// Package eax implements the EAX authenticated encryption mode
// (Bellare, Rogaway, Wagner) as a cipher.AEAD over a 128-bit block cipher.
package eax

import (
	"crypto/cipher"
	"crypto/subtle"
	"errors"
)

const (
	blockSize      = 16
	NonceSize      = blockSize
	DefaultTagSize = blockSize
	MinTagSize     = 4
)

var (
	ErrBlockSize = errors.New("eax: cipher block size must be 16")
	ErrTagSize   = errors.New("eax: invalid tag size")
	ErrNonceSize = errors.New("eax: incorrect nonce length")
	ErrOpen      = errors.New("eax: message authentication failed")
)

type eax struct {
	block   cipher.Block
	tagSize int
	k1, k2  [blockSize]byte
}

// NewEAX returns EAX with the full 16-byte tag.
func NewEAX(block cipher.Block) (cipher.AEAD, error) {
	return NewEAXWithTagSize(block, DefaultTagSize)
}

// NewEAXWithTagSize returns EAX producing truncated tags of tagSize bytes.
func NewEAXWithTagSize(block cipher.Block, tagSize int) (cipher.AEAD, error) {
	if block.BlockSize() != blockSize {
		return nil, ErrBlockSize
	}
	if tagSize < MinTagSize || tagSize > blockSize {
		return nil, ErrTagSize
	}
	e := &eax{block: block, tagSize: tagSize}
	var l [blockSize]byte
	block.Encrypt(l[:], l[:])
	e.k1 = double(l)
	e.k2 = double(e.k1)
	return e, nil
}

func (e *eax) NonceSize() int { return NonceSize }

func (e *eax) Overhead() int { return e.tagSize }

func (e *eax) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	if len(nonce) != NonceSize {
		panic(ErrNonceSize)
	}
	n := e.omac(0, nonce)
	h := e.omac(1, additionalData)

	ret, out := sliceForAppend(dst, len(plaintext)+e.tagSize)
	ct := out[:len(plaintext)]
	cipher.NewCTR(e.block, n[:]).XORKeyStream(ct, plaintext)

	c := e.omac(2, ct)
	tag := out[len(plaintext):]
	for i := range tag {
		tag[i] = n[i] ^ h[i] ^ c[i]
	}
	return ret
}

func (e *eax) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrNonceSize
	}
	if len(ciphertext) < e.tagSize {
		return nil, ErrOpen
	}
	ct := ciphertext[:len(ciphertext)-e.tagSize]
	tag := ciphertext[len(ciphertext)-e.tagSize:]

	n := e.omac(0, nonce)
	h := e.omac(1, additionalData)
	c := e.omac(2, ct)
	expected := make([]byte, e.tagSize)
	for i := range expected {
		expected[i] = n[i] ^ h[i] ^ c[i]
	}
	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return nil, ErrOpen
	}

	ret, out := sliceForAppend(dst, len(ct))
	cipher.NewCTR(e.block, n[:]).XORKeyStream(out, ct)
	return ret, nil
}

// omac computes OMAC^t(m): CMAC over the block [0..0 t] ‖ m.
func (e *eax) omac(t byte, m []byte) [blockSize]byte {
	data := make([]byte, blockSize+len(m))
	data[blockSize-1] = t
	copy(data[blockSize:], m)
	return e.cmac(data)
}

// cmac expects at least one byte of input, which omac guarantees.
func (e *eax) cmac(data []byte) [blockSize]byte {
	var x [blockSize]byte
	for len(data) > blockSize {
		subtle.XORBytes(x[:], x[:], data[:blockSize])
		e.block.Encrypt(x[:], x[:])
		data = data[blockSize:]
	}

	var last [blockSize]byte
	copy(last[:], data)
	if len(data) == blockSize {
		subtle.XORBytes(last[:], last[:], e.k1[:])
	} else {
		last[len(data)] = 0x80
		subtle.XORBytes(last[:], last[:], e.k2[:])
	}
	subtle.XORBytes(x[:], x[:], last[:])
	e.block.Encrypt(x[:], x[:])
	return x
}

// double multiplies by x in GF(2^128) as required for the CMAC subkeys.
func double(in [blockSize]byte) [blockSize]byte {
	var out [blockSize]byte
	carry := in[0] >> 7
	for i := 0; i < blockSize-1; i++ {
		out[i] = in[i]<<1 | in[i+1]>>7
	}
	out[blockSize-1] = in[blockSize-1] << 1
	out[blockSize-1] ^= 0x87 & -carry
	return out
}

func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}
