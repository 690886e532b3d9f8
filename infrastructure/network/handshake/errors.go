package handshake

import "errors"

var (
	ErrMalformedInit       = errors.New("malformed init packet")
	ErrUnexpectedStep      = errors.New("unexpected init step")
	ErrPuzzleLevel         = errors.New("puzzle level out of range")
	ErrPuzzleModulus       = errors.New("puzzle modulus is zero")
	ErrAlreadyBootstrapped = errors.New("key exchange already completed")
	ErrAlphaMismatch       = errors.New("server echoed a different alpha")
	ErrInvalidParameter    = errors.New("invalid key exchange parameter")
	ErrNoAlpha             = errors.New("init exchange has not produced alpha yet")
)
