package packetcrypto

import "errors"

var (
	ErrAuthentication  = errors.New("packet authentication failed")
	ErrInitMAC         = errors.New("init packet carries an unexpected MAC")
	ErrFakeSignature   = errors.New("unencrypted packet carries an unexpected signature")
	ErrInvalidMaterial = errors.New("invalid key exchange material")
)
