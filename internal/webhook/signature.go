package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

const (
	// SignatureHeader carries the base64 HMAC-SHA256 of timestamp ++ body
	SignatureHeader = "X-WHOOP-Signature"
	// TimestampHeader carries the millisecond timestamp the sender signed
	TimestampHeader = "X-WHOOP-Signature-Timestamp"
)

// VerifySignature checks a WHOOP webhook signature: HMAC-SHA256 over the
// raw timestamp header bytes concatenated with the raw request body, keyed
// by the client secret and base64-encoded. Comparison is constant-time.
func VerifySignature(secret, timestamp string, body []byte, signature string) bool {
	if timestamp == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
