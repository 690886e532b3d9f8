package handshake

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"voicelink/domain/voice/command"
	"voicelink/infrastructure/cryptography/identity"
	"voicelink/infrastructure/cryptography/license"
	"voicelink/infrastructure/cryptography/packetcrypto"
)

// Path is the key exchange variant that completed the handshake. The
// first of initivexpand or initivexpand2 to arrive decides it.
type Path uint8

const (
	PathNone Path = iota
	PathLegacy
	PathLicensed
)

func (p Path) String() string {
	switch p {
	case PathLegacy:
		return "legacy"
	case PathLicensed:
		return "licensed"
	default:
		return "none"
	}
}

const (
	legacyBetaLength   = 10
	licensedBetaLength = 54
)

// Bootstrap runs the key exchange and installs the result in the engine.
type Bootstrap struct {
	engine   *packetcrypto.Engine
	identity *identity.Identity
	rand     io.Reader
	path     Path
}

func NewBootstrap(engine *packetcrypto.Engine, id *identity.Identity, rnd io.Reader) *Bootstrap {
	if rnd == nil {
		rnd = rand.Reader
	}
	return &Bootstrap{engine: engine, identity: id, rand: rnd}
}

func (b *Bootstrap) Path() Path { return b.path }

func (b *Bootstrap) Reset() { b.path = PathNone }

// Legacy completes the P-256 exchange from initivexpand.
func (b *Bootstrap) Legacy(alpha []byte, expand command.InitIVExpand) error {
	if b.path != PathNone {
		return fmt.Errorf("%w: via %s", ErrAlreadyBootstrapped, b.path)
	}
	echoed, err := decodeParam("alpha", expand.Alpha, alphaLength)
	if err != nil {
		return err
	}
	if !bytes.Equal(echoed, alpha) {
		return ErrAlphaMismatch
	}
	beta, err := decodeParam("beta", expand.Beta, legacyBetaLength)
	if err != nil {
		return err
	}
	secret, err := b.identity.SharedSecret(expand.Omega)
	if err != nil {
		return fmt.Errorf("failed to agree on legacy secret: %w", err)
	}
	if err := b.engine.CompleteLegacy(alpha, beta, secret); err != nil {
		return err
	}
	b.path = PathLegacy
	return nil
}

// Licensed completes the license chain exchange from initivexpand2. The
// clientek command is handed to send before the engine switches keys, so
// it still travels under the bootstrap key.
func (b *Bootstrap) Licensed(alpha []byte, expand command.InitIVExpand2, send func(command.Command) error) error {
	if b.path != PathNone {
		return fmt.Errorf("%w: via %s", ErrAlreadyBootstrapped, b.path)
	}
	if len(alpha) != alphaLength {
		return fmt.Errorf("%w: alpha has %d bytes", ErrInvalidParameter, len(alpha))
	}
	beta, err := decodeParam("beta", expand.Beta, licensedBetaLength)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(expand.License)
	if err != nil {
		return fmt.Errorf("%w: license: %w", ErrInvalidParameter, err)
	}
	chain, err := license.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse license: %w", err)
	}
	serverKey, err := chain.DeriveKey(license.RootKey)
	if err != nil {
		return fmt.Errorf("failed to derive server key: %w", err)
	}

	ephemeral, err := license.GenerateEphemeral(b.rand)
	if err != nil {
		return err
	}
	signed := make([]byte, 0, len(ephemeral.Public)+len(beta))
	signed = append(signed, ephemeral.Public[:]...)
	signed = append(signed, beta...)
	proof, err := b.identity.Sign(signed)
	if err != nil {
		return fmt.Errorf("failed to sign ephemeral key: %w", err)
	}
	secret, err := license.SharedSecret(serverKey, ephemeral.Private)
	if err != nil {
		return err
	}

	ek := command.ClientEk{
		Ek:    base64.StdEncoding.EncodeToString(ephemeral.Public[:]),
		Proof: base64.StdEncoding.EncodeToString(proof),
	}
	if err := send(ek.Command()); err != nil {
		return fmt.Errorf("failed to send clientek: %w", err)
	}
	if err := b.engine.CompleteLicensed(alpha, beta, secret); err != nil {
		return err
	}
	b.path = PathLicensed
	return nil
}

func decodeParam(name, value string, length int) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidParameter, name, err)
	}
	if len(raw) != length {
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrInvalidParameter, name, len(raw), length)
	}
	return raw, nil
}
