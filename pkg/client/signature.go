package client

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	HeaderAPIKey    = "X-API-Key"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
	HeaderRequestID = "X-Request-ID"
)

// MaxClockSkew bounds how far a signed request's timestamp may drift from the receiver's clock.
const MaxClockSkew = 5 * time.Minute

// Sign returns the hex HMAC-SHA256 over method, path, body and timestamp.
func Sign(secret, method, path string, body []byte, timestamp int64) string {
	message := fmt.Sprintf("%s %s.%s.%d", method, path, body, timestamp)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature produced by Sign and rejects stale timestamps.
func Verify(secret, method, path string, body []byte, timestampHeader, signature string, now time.Time) error {
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew > MaxClockSkew || skew < -MaxClockSkew {
		return fmt.Errorf("timestamp outside allowed window")
	}
	expected := Sign(secret, method, path, body, ts)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
