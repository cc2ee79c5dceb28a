package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// signatureTolerance bounds how far the signed timestamp may drift from the
// broker's clock before the event is rejected as a replay.
const signatureTolerance = 5 * time.Minute

// verifyStripeSignature verifies a Stripe webhook signature.
// Stripe signs with HMAC-SHA256 and sends the signature in the
// Stripe-Signature header as: t=<timestamp>,v1=<signature>[,v0=<test_signature>]
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" {
		return true // bypass for development
	}
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string

	parts := strings.Split(header, ",")
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if abs64(now.Unix()-ts) > int64(signatureTolerance.Seconds()) {
		return false
	}

	// Expected signature: HMAC-SHA256(secret, "timestamp.payload")
	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
