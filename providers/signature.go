package providers

import (
	"crypto/hmac"
	"encoding/hex"
	"hash"
	"strings"
)

// VerifyHMAC recomputes the keyed hash of body and compares it in constant
// time with the hex signature supplied by the provider. An empty secret or
// signature never verifies.
func VerifyHMAC(body []byte, secret, signatureHex string, newHash func() hash.Hash) bool {
	if secret == "" || signatureHex == "" {
		return false
	}
	given, err := hex.DecodeString(strings.TrimSpace(signatureHex))
	if err != nil {
		return false
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), given)
}

// SignHMAC returns the hex signature a provider would send for body.
func SignHMAC(body []byte, secret string, newHash func() hash.Hash) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
