package identity

import "errors"

var (
	ErrInvalidExport     = errors.New("invalid identity export string")
	ErrInvalidKey        = errors.New("invalid key encoding")
	ErrNoPrivateKey      = errors.New("key encoding carries no private scalar")
	ErrPublicKeyMismatch = errors.New("stored public key does not match private scalar")
)
