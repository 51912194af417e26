// ABOUTME: Verification of customer-signed mini-app credentials
// ABOUTME: HMAC check over the canonicalized payload plus a replay-window TTL

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CustomerCredentialTTL is the maximum accepted age of a customer-signed
// credential. Older blobs are rejected outright as a replay defense.
const CustomerCredentialTTL = 3600 * time.Second

// hmacKeyContext is the fixed key used to derive the signing secret from the
// bot token, per the mini-app platform's signing scheme.
const hmacKeyContext = "WebAppData"

// initDataUser mirrors the user object embedded in the signed blob.
type initDataUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// verifyInitData validates a customer-signed credential payload and extracts
// the embedded user identity. The payload is URL-encoded key/value pairs
// including "user" (JSON), "auth_date" (unix seconds) and "hash" (hex HMAC).
//
// Verification recomputes HMAC-SHA256 over the canonical form of the payload:
// all pairs except "hash", sorted by key, joined as "k=v" lines. The HMAC key
// is itself derived by signing the bot token with the platform's fixed key
// context. No external I/O is performed.
func verifyInitData(payload, botToken string, now time.Time) (*Customer, error) {
	values, err := url.ParseQuery(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed payload", ErrInvalidSignature)
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrInvalidSignature)
	}
	values.Del("hash")

	if !hmac.Equal([]byte(gotHash), []byte(computeInitDataHash(values, botToken))) {
		return nil, ErrInvalidSignature
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed auth_date", ErrInvalidSignature)
	}
	if now.Sub(time.Unix(authDate, 0)) > CustomerCredentialTTL {
		return nil, ErrExpired
	}

	var user initDataUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return nil, fmt.Errorf("%w: malformed user field", ErrInvalidSignature)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidSignature)
	}

	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}

	return &Customer{
		ExternalID:  strconv.FormatInt(user.ID, 10),
		DisplayName: name,
	}, nil
}

// computeInitDataHash produces the expected hex HMAC for a payload that has
// already had its "hash" pair removed.
func computeInitDataHash(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	checkString := strings.Join(lines, "\n")

	secret := hmac.New(sha256.New, []byte(hmacKeyContext))
	secret.Write([]byte(botToken))

	sig := hmac.New(sha256.New, secret.Sum(nil))
	sig.Write([]byte(checkString))
	return hex.EncodeToString(sig.Sum(nil))
}

// SignInitData produces a signed customer credential payload. Exists for
// tests and local tooling; production blobs are issued by the chat platform.
func SignInitData(values url.Values, botToken string) string {
	values.Del("hash")
	hash := computeInitDataHash(values, botToken)
	signed := url.Values{}
	for k, vs := range values {
		signed[k] = vs
	}
	signed.Set("hash", hash)
	return signed.Encode()
}
