// Package keys issues API key secrets and resolves presented secrets to stored keys.
package keys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/apihub/internal/store"
	"github.com/kiranshivaraju/apihub/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	SecretPrefix = "sk_live_"
	IDPrefix     = "key_"

	// PrefixLen is how much of the secret is stored in clear for lookup.
	PrefixLen = 16

	secretBytes     = 20
	idBytes         = 8
	maxIssueRetries = 3
)

// ErrUnknownKey is returned by Lookup when no stored key matches the secret.
var ErrUnknownKey = errors.New("unknown api key")

// Finder is the read side Lookup needs.
type Finder interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
}

// Creator persists a new key. It must return store.ErrDuplicateKey on a prefix clash.
type Creator interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// NewSecret returns a fresh secret of the form sk_live_<27 base64url chars>.
func NewSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return SecretPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// NewID returns a key id of the form key_<16 hex chars>.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key id: %w", err)
	}
	return IDPrefix + hex.EncodeToString(b), nil
}

// Prefix returns the lookup prefix of a secret, or "" when the secret is too short to be ours.
func Prefix(secret string) string {
	if len(secret) < PrefixLen || !strings.HasPrefix(secret, SecretPrefix) {
		return ""
	}
	return secret[:PrefixLen]
}

func Hash(secret string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

func Verify(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// Lookup resolves a presented secret to its stored key, active or not.
func Lookup(ctx context.Context, f Finder, secret string) (*models.APIKey, error) {
	prefix := Prefix(secret)
	if prefix == "" {
		return nil, ErrUnknownKey
	}

	candidates, err := f.GetAPIKeysByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	for _, k := range candidates {
		if Verify(k.KeyHash, secret) {
			return k, nil
		}
	}
	return nil, ErrUnknownKey
}

// Issued is a newly created key together with its one-time plaintext secret.
type Issued struct {
	Key    *models.APIKey
	Secret string
}

// Issuer creates keys with the configured bcrypt cost.
type Issuer struct {
	store Creator
	cost  int
	now   func() time.Time
}

func NewIssuer(s Creator, cost int) *Issuer {
	return &Issuer{store: s, cost: cost, now: time.Now}
}

// Issue creates an active key named name. A prefix collision is retried with a new secret.
func (i *Issuer) Issue(ctx context.Context, name string) (*Issued, error) {
	for attempt := 0; attempt < maxIssueRetries; attempt++ {
		secret, err := NewSecret()
		if err != nil {
			return nil, err
		}
		id, err := NewID()
		if err != nil {
			return nil, err
		}
		hash, err := Hash(secret, i.cost)
		if err != nil {
			return nil, err
		}

		key := &models.APIKey{
			ID:        id,
			Name:      name,
			KeyPrefix: Prefix(secret),
			KeyHash:   hash,
			CreatedAt: i.now().UTC(),
			IsActive:  true,
		}
		err = i.store.CreateAPIKey(ctx, key)
		if errors.Is(err, store.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("issue api key: %w", err)
		}
		return &Issued{Key: key, Secret: secret}, nil
	}
	return nil, fmt.Errorf("issue api key: %w after %d attempts", store.ErrDuplicateKey, maxIssueRetries)
}
