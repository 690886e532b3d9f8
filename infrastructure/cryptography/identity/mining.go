package identity

import (
	"context"
	"crypto/sha1"
	"strconv"
)

const cancellationCheckInterval = 1 << 12

// securityLevel is the number of leading zero bits of SHA-1(publicKey ‖ offset).
func securityLevel(publicKey string, offset uint64) int {
	buf := make([]byte, 0, len(publicKey)+20)
	buf = append(buf, publicKey...)
	buf = strconv.AppendUint(buf, offset, 10)
	sum := sha1.Sum(buf)
	return leadingZeroBits(sum[:])
}

// leadingZeroBits counts whole zero bytes, then the zero bits of the first
// non-zero byte starting from its least significant bit.
func leadingZeroBits(hash []byte) int {
	count := 0
	for _, b := range hash {
		if b == 0 {
			count += 8
			continue
		}
		for bit := 0; bit < 8 && b&(1<<bit) == 0; bit++ {
			count++
		}
		break
	}
	return count
}

// mine searches offsets starting at start until one reaches target.
// On cancellation it returns the best offset found so far with ctx.Err().
func mine(ctx context.Context, publicKey string, start uint64, target int) (uint64, int, error) {
	best, bestLevel := start, securityLevel(publicKey, start)
	for offset := start; bestLevel < target; {
		if offset-start > 0 && (offset-start)%cancellationCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return best, bestLevel, err
			}
		}
		offset++
		if level := securityLevel(publicKey, offset); level > bestLevel {
			best, bestLevel = offset, level
		}
	}
	return best, bestLevel, nil
}
