// Package packetcrypto protects packets with EAX over AES-128 using keys
// derived per packet from the negotiated IV material.
package packetcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/subtle"
	"fmt"

	"voicelink/domain/voice/packet"
	"voicelink/infrastructure/cryptography/eax"
	"voicelink/infrastructure/cryptography/mem"
)

const (
	legacyHalf       = 10
	legacyIVLength   = 2 * legacyHalf
	alphaLength      = 10
	licensedBeta     = 54
	licensedIVLength = alphaLength + licensedBeta
)

// Engine holds the crypto state of one connection. It is owned by the
// connection's reactor and is not safe for concurrent use.
type Engine struct {
	role          Role
	mode          Mode
	iv            []byte
	fakeSignature [packet.MACLength]byte
}

func NewEngine(role Role) *Engine {
	return &Engine{role: role}
}

func (e *Engine) Mode() Mode { return e.mode }

// Complete reports whether negotiated key material is in use.
func (e *Engine) Complete() bool { return e.mode != ModeBootstrap }

func (e *Engine) outgoing() packet.Direction {
	if e.role == RoleClient {
		return packet.ClientToServer
	}
	return packet.ServerToClient
}

func (e *Engine) incoming() packet.Direction {
	if e.role == RoleClient {
		return packet.ServerToClient
	}
	return packet.ClientToServer
}

// CompleteLegacy installs IV material from the P-256 exchange:
// (secret[:10] ^ alpha) ‖ (secret[10:20] ^ beta).
func (e *Engine) CompleteLegacy(alpha, beta, sharedSecret []byte) error {
	if len(alpha) != legacyHalf || len(beta) != legacyHalf || len(sharedSecret) != legacyIVLength {
		return fmt.Errorf("%w: alpha %d, beta %d, secret %d bytes", ErrInvalidMaterial, len(alpha), len(beta), len(sharedSecret))
	}
	iv := make([]byte, legacyIVLength)
	subtle.XORBytes(iv[:legacyHalf], sharedSecret[:legacyHalf], alpha)
	subtle.XORBytes(iv[legacyHalf:], sharedSecret[legacyHalf:], beta)
	e.install(ModeLegacy, iv)
	return nil
}

// CompleteLicensed installs IV material from the license exchange: the
// 64-byte secret with alpha over its first 10 bytes and beta over the rest.
func (e *Engine) CompleteLicensed(alpha, beta []byte, sharedSecret [64]byte) error {
	if len(alpha) != alphaLength || len(beta) != licensedBeta {
		return fmt.Errorf("%w: alpha %d, beta %d bytes", ErrInvalidMaterial, len(alpha), len(beta))
	}
	iv := make([]byte, licensedIVLength)
	subtle.XORBytes(iv[:alphaLength], sharedSecret[:alphaLength], alpha)
	subtle.XORBytes(iv[alphaLength:], sharedSecret[alphaLength:], beta)
	e.install(ModeLicensed, iv)
	return nil
}

func (e *Engine) install(mode Mode, iv []byte) {
	e.zero()
	e.mode = mode
	e.iv = iv
	sum := sha1.Sum(iv)
	copy(e.fakeSignature[:], sum[:packet.MACLength])
}

// Reset zeroes the IV material and returns to the dummy key.
func (e *Engine) Reset() {
	e.zero()
	e.mode = ModeBootstrap
}

func (e *Engine) zero() {
	mem.ZeroBytes(e.iv)
	e.iv = nil
	mem.ZeroBytes(e.fakeSignature[:])
}

// Seal encrypts payload under h and returns the datagram. Init packets
// carry the constant init MAC and unencrypted packets the fake signature.
func (e *Engine) Seal(h packet.Header, payload []byte, gen uint32) ([]byte, error) {
	headerBytes := e.outgoing().MarshalHeader(h)

	switch {
	case h.Type == packet.Init:
		return packet.Assemble(packet.InitMAC, headerBytes, payload)
	case h.Flags.Has(packet.FlagUnencrypted):
		return packet.Assemble(e.fakeSignature, headerBytes, payload)
	}

	key, nonce := e.keyNonce(e.mode, e.role == RoleServer, h, gen)
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce[:], payload, headerBytes)
	body, tag := sealed[:len(payload)], sealed[len(payload):]

	var mac [packet.MACLength]byte
	copy(mac[:], tag)
	return packet.Assemble(mac, headerBytes, body)
}

// Open authenticates and decrypts a datagram from the peer. Encrypted
// packets are tried under the current mode first and then under the other
// one, so packets sealed under the dummy key just before the exchange
// completed are still accepted. A successful open commits the packet's
// generation to gens.
func (e *Engine) Open(raw []byte, gens *packet.IncomingGenerations) (packet.Packet, error) {
	mac, h, headerBytes, body, err := packet.Split(e.incoming(), raw)
	if err != nil {
		return packet.Packet{}, err
	}
	p := packet.Packet{MAC: mac, Header: h}

	switch {
	case h.Type == packet.Init:
		if mac != packet.InitMAC {
			return packet.Packet{}, ErrInitMAC
		}
		p.Payload = append([]byte(nil), body...)
		return p, nil
	case h.Flags.Has(packet.FlagUnencrypted):
		if e.Complete() && mac != e.fakeSignature {
			return packet.Packet{}, ErrFakeSignature
		}
		p.Payload = append([]byte(nil), body...)
		gens.Commit(h.Type, h.ID)
		return p, nil
	}

	gen := gens.Estimate(h.Type, h.ID)
	modes := []Mode{e.mode}
	if e.Complete() {
		modes = append(modes, ModeBootstrap)
	}
	for _, mode := range modes {
		payload, err := e.decrypt(mode, h, gen, mac, headerBytes, body)
		if err != nil {
			continue
		}
		p.Payload = payload
		gens.Commit(h.Type, h.ID)
		return p, nil
	}
	return packet.Packet{}, fmt.Errorf("%w: %s packet %d", ErrAuthentication, h.Type, h.ID)
}

func (e *Engine) decrypt(mode Mode, h packet.Header, gen uint32, mac [packet.MACLength]byte, headerBytes, body []byte) ([]byte, error) {
	key, nonce := e.keyNonce(mode, e.role == RoleClient, h, gen)
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(body)+packet.MACLength)
	sealed = append(sealed, body...)
	sealed = append(sealed, mac[:]...)
	return aead.Open(nil, nonce[:], sealed, headerBytes)
}

func (e *Engine) keyNonce(mode Mode, fromServer bool, h packet.Header, gen uint32) ([KeySize]byte, [NonceSize]byte) {
	if mode == ModeBootstrap {
		return dummyKey, dummyNonce
	}
	return DeriveKeyNonce(fromServer, h.ID, gen, h.Type, e.iv)
}

func newAEAD(key [KeySize]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return eax.NewEAXWithTagSize(block, packet.MACLength)
}
