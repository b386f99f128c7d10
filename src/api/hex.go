package api

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// parseHex decodes an optionally 0x-prefixed hex string.
func parseHex(value string) ([]byte, error) {
	value = strings.TrimPrefix(value, "0x")
	if len(value)%2 != 0 {
		return nil, fmt.Errorf("invalid hex length")
	}
	return hex.DecodeString(value)
}

// parseFixedHex decodes hex and enforces an exact byte length.
func parseFixedHex(value string, length int) ([]byte, error) {
	bytes, err := parseHex(value)
	if err != nil {
		return nil, err
	}
	if len(bytes) != length {
		return nil, fmt.Errorf("expected %d bytes, got %d", length, len(bytes))
	}
	return bytes, nil
}
