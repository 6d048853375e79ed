package common

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter is the number of random bytes, so the resulting string
// is twice as long.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateCode returns an uppercase alphanumeric code of the given length.
func GenerateCode(length int) (string, error) {
	s, err := MakeRandHexString((length + 1) / 2)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(s[:length]), nil
}

// WipeByteArray overwrites the contents of b with zeros.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
