package auth

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest signing secret accepted.
const MinSecretLength = 32

// Key purposes. Each purpose gets its own key so a user token can never
// pass as a service identity token and the other way round.
const (
	purposeUserAccess      = "quizrun user access v1"
	purposeServiceIdentity = "quizrun service identity v1"
)

// deriveKey derives a 32-byte HMAC key for purpose from the shared secret.
func deriveKey(secret, purpose string) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", purpose, err)
	}
	return key, nil
}
