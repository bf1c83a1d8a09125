package scheduling

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyHMACSignature checks a webhook signature header against the raw body.
// Two header forms are accepted:
//
//	t=<unix>,v1=<hex>   HMAC-SHA256 over "<unix>.<body>" (Calendly)
//	<hex>               HMAC-SHA256 over the body
//
// An empty secret never verifies.
func VerifyHMACSignature(secret string, rawPayload []byte, header string) bool {
	header = strings.TrimSpace(header)
	if secret == "" || header == "" {
		return false
	}

	timestamp, signatures := parseSignatureHeader(header)
	if len(signatures) == 0 {
		return false
	}

	var expected []byte
	if timestamp != "" {
		expected = computeHMAC(secret, []byte(timestamp+"."), rawPayload)
	} else {
		expected = computeHMAC(secret, rawPayload)
	}

	for _, sig := range signatures {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return true
		}
	}
	return false
}

// SignPayload returns a Calendly-style header for body at the unix time ts.
func SignPayload(secret string, rawPayload []byte, ts string) string {
	mac := computeHMAC(secret, []byte(ts+"."), rawPayload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac)
}

func parseSignatureHeader(header string) (string, []string) {
	if !strings.Contains(header, "=") {
		return "", []string{header}
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" {
		return "", nil
	}
	return timestamp, signatures
}

func computeHMAC(secret string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}
