package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signer produces and checks the "remember" cookie, sign(key):key.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) Signer { return Signer{secret: []byte(secret)} }

func (s Signer) Sign(value string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s Signer) Remember(key string) string { return s.Sign(key) + ":" + key }

// Verify returns the order key from a remember cookie value.
func (s Signer) Verify(cookie string) (string, bool) {
	sig, key, ok := strings.Cut(cookie, ":")
	if !ok || key == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(s.Sign(key))) {
		return "", false
	}
	return key, true
}
