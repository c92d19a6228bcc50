package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FingerprintHeaders are the request attributes folded into a device fingerprint.
type FingerprintHeaders struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	ClientIP       string
	Accept         string
	Connection     string
}

func HashData(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func DeviceFingerprint(h FingerprintHeaders) string {
	return HashData(strings.Join([]string{
		h.UserAgent,
		h.AcceptLanguage,
		h.AcceptEncoding,
		h.ClientIP,
		h.Accept,
		h.Connection,
	}, "|"))
}
