package reliability

import "errors"

var (
	ErrResendTimeout     = errors.New("packet was not acknowledged in time")
	ErrFragmentsTooLarge = errors.New("reassembled payload exceeds size limit")
)
