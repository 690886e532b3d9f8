package handshake

import (
	"fmt"
	"math/big"
)

const (
	puzzleNumberLength = 64
	MaxPuzzleLevel     = 1_000_000
)

// SolvePuzzle computes y = x^(2^level) mod n as a 64-byte big-endian number.
func SolvePuzzle(x, n []byte, level int32) ([]byte, error) {
	if level < 0 || level > MaxPuzzleLevel {
		return nil, fmt.Errorf("%w: %d", ErrPuzzleLevel, level)
	}
	modulus := new(big.Int).SetBytes(n)
	if modulus.Sign() == 0 {
		return nil, ErrPuzzleModulus
	}
	exponent := new(big.Int).Lsh(big.NewInt(1), uint(level))
	y := new(big.Int).Exp(new(big.Int).SetBytes(x), exponent, modulus)
	if y.BitLen() > puzzleNumberLength*8 {
		return nil, fmt.Errorf("%w: solution exceeds %d bytes", ErrMalformedInit, puzzleNumberLength)
	}
	return y.FillBytes(make([]byte, puzzleNumberLength)), nil
}
