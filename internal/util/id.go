package util

import (
	"crypto/rand"
	"encoding/hex"
)

const shareAlphabet = "useandom-26T198340PX75pxJACKVERYMINDBUSHWOLF_GQZbfghjklqvwyzrict"

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewShareID returns a URL-safe random identifier of length n.
func NewShareID(n int) string {
	if n <= 0 {
		n = 16
	}
	bytes := make([]byte, n)
	_, _ = rand.Read(bytes)
	out := make([]byte, n)
	for i, b := range bytes {
		out[i] = shareAlphabet[b&63]
	}
	return string(out)
}
