package packet

import "errors"

var (
	ErrTooShort    = errors.New("packet too short")
	ErrTooLarge    = errors.New("packet exceeds maximum size")
	ErrUnknownType = errors.New("unknown packet type")
)
