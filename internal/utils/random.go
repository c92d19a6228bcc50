package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	letterBytes  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numberBytes  = "0123456789"
	lowerAlnum   = "abcdefghijklmnopqrstuvwxyz0123456789"
	alphanumeric = letterBytes + numberBytes
)

func GenerateRandomString(length int) string {
	return generateRandom(length, alphanumeric)
}

func generateRandom(length int, charset string) string {
	result := make([]byte, length)
	charsetLength := big.NewInt(int64(len(charset)))

	for i := range result {
		num, _ := rand.Int(rand.Reader, charsetLength)
		result[i] = charset[num.Int64()]
	}

	return string(result)
}

// GenerateEventID returns <prefix>_<unix-ms>_<random>.
func GenerateEventID(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = "evt"
	}
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), generateRandom(9, lowerAlnum))
}

func GenerateSessionID() string {
	return uuid.NewString()
}

func GenerateRequestID() string {
	return uuid.NewString()
}
