package license

import "errors"

var (
	ErrUnsupportedVersion = errors.New("unsupported license version")
	ErrTruncated          = errors.New("license block truncated")
	ErrUnknownKeyKind     = errors.New("unknown license key kind")
	ErrUnknownBlockType   = errors.New("unknown license block type")
	ErrInvalidValidity    = errors.New("license block expires before it becomes valid")
	ErrEmptyChain         = errors.New("license chain has no blocks")
	ErrInvalidPoint       = errors.New("invalid curve point")
)
