// Package auth signs venue API requests using HMAC-SHA256.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
)

// Credentials holds the API key pair for signing requests.
type Credentials struct {
	APIKey    string // API key identifier
	APISecret string // Shared secret for HMAC signing
}

// LoadCredentials builds credentials from the key and a secret that is
// either given inline or read from a file path prefixed with "@".
func LoadCredentials(apiKey, apiSecret string) (*Credentials, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if apiSecret == "" {
		return nil, fmt.Errorf("API secret is required")
	}

	if path, ok := strings.CutPrefix(apiSecret, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read secret file: %w", err)
		}
		apiSecret = strings.TrimSpace(string(data))
	}

	return &Credentials{APIKey: apiKey, APISecret: apiSecret}, nil
}

// SignRequest generates authentication headers for an API request. For
// WebSocket handshakes, verb is "GET" and path is the handshake path with
// an empty body.
func (c *Credentials) SignRequest(verb, path string, body []byte) map[string]string {
	expires := time.Now().Add(30 * time.Second).Unix()
	return map[string]string{
		"api-key":       c.APIKey,
		"api-expires":   fmt.Sprintf("%d", expires),
		"api-signature": c.Sign(verb, path, expires, body),
	}
}

// Sign computes the hex HMAC-SHA256 over verb + path + expires + body.
func (c *Credentials) Sign(verb, path string, expires int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.APISecret))
	fmt.Fprintf(mac, "%s%s%d", verb, path, expires)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
