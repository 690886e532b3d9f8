package identity

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	obfuscationHashedPrefix = 20
	obfuscationKeyedPrefix  = 100
)

var obfuscationKey = []byte("b9dfaa7bee6ac57ac7b65f1094a1c155e747327bc2fe5d51c512023fe54a280201004e90ad1daaae1075d53b7d571c30e063b5a62a4a017bb394833aa0983e6e")

// hashedSegment is the part of the blob whose SHA-1 masks the first 20 bytes:
// everything after them up to the first NUL.
func hashedSegment(data []byte) []byte {
	seg := data[obfuscationHashedPrefix:]
	if i := bytes.IndexByte(seg, 0); i >= 0 {
		seg = seg[:i]
	}
	return seg
}

func xorPrefix(dst, key []byte, n int) {
	n = min(n, len(dst), len(key))
	for i := 0; i < n; i++ {
		dst[i] ^= key[i]
	}
}

func obfuscate(data []byte) {
	xorPrefix(data, obfuscationKey, obfuscationKeyedPrefix)
	sum := sha1.Sum(hashedSegment(data))
	xorPrefix(data, sum[:], obfuscationHashedPrefix)
}

func deobfuscate(data []byte) {
	sum := sha1.Sum(hashedSegment(data))
	xorPrefix(data, sum[:], obfuscationHashedPrefix)
	xorPrefix(data, obfuscationKey, obfuscationKeyedPrefix)
}

// parseExportString splits "<offset>V<base64>" and returns the key offset
// and the DER key structure hidden in the blob.
func parseExportString(s string) (uint64, []byte, error) {
	offsetText, blobText, ok := strings.Cut(strings.TrimSpace(s), "V")
	if !ok || offsetText == "" || blobText == "" {
		return 0, nil, fmt.Errorf("%w: expected <offset>V<base64>", ErrInvalidExport)
	}
	offset, err := strconv.ParseUint(offsetText, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: key offset %q", ErrInvalidExport, offsetText)
	}
	blob, err := base64.StdEncoding.DecodeString(blobText)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	if len(blob) <= obfuscationHashedPrefix {
		return 0, nil, fmt.Errorf("%w: blob too short", ErrInvalidExport)
	}

	deobfuscate(blob)
	inner := strings.TrimRight(string(blob), "\x00\r\n ")
	der, err := base64.StdEncoding.DecodeString(inner)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: inner key: %w", ErrInvalidExport, err)
	}
	return offset, der, nil
}

func formatExportString(offset uint64, der []byte) string {
	blob := []byte(base64.StdEncoding.EncodeToString(der))
	obfuscate(blob)
	return strconv.FormatUint(offset, 10) + "V" + base64.StdEncoding.EncodeToString(blob)
}
