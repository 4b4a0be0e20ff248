package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParseSignature extracts the parts of a request signature.
// Format: wv-v1-<secret_id>-<unix_seconds>-<hex_mac>.
// Returns ErrInvalidSignatureFormat if format doesn't match.
func ParseSignature(sig string) (secretID string, timestamp int64, mac []byte, err error) {
	parts := strings.Split(sig, "-")
	if len(parts) != 5 {
		return "", 0, nil, ErrInvalidSignatureFormat
	}
	if parts[0] != "wv" || parts[1] != "v1" {
		return "", 0, nil, ErrInvalidSignatureFormat
	}

	secretID = parts[2]
	if len(secretID) != 32 || !isLowerHex(secretID) {
		return "", 0, nil, ErrInvalidSignatureFormat
	}

	timestamp, err = strconv.ParseInt(parts[3], 10, 64)
	if err != nil || timestamp <= 0 {
		return "", 0, nil, ErrInvalidSignatureFormat
	}

	// SHA-256 MAC is 64 hex chars
	if len(parts[4]) != 64 || !isLowerHex(parts[4]) {
		return "", 0, nil, ErrInvalidSignatureFormat
	}
	mac, err = hex.DecodeString(parts[4])
	if err != nil {
		return "", 0, nil, ErrInvalidSignatureFormat
	}
	return secretID, timestamp, mac, nil
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// ComputeHMAC computes the HMAC-SHA256 of a full RPC method name and
// timestamp.
func ComputeHMAC(secret []byte, method string, timestamp int64) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return h.Sum(nil)
}

// VerifyHMAC compares MACs in constant time.
func VerifyHMAC(expected, computed []byte) bool {
	return hmac.Equal(expected, computed)
}

// FormatSignature constructs a signature from its components.
func FormatSignature(secretID string, timestamp int64, mac []byte) string {
	return fmt.Sprintf("wv-v1-%s-%d-%s", secretID, timestamp, hex.EncodeToString(mac))
}
