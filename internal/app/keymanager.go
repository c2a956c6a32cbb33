// Package app implements application-level services for the Gandalf event-mesh ingress.
package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	gateway "github.com/eugener/gandalf/internal"
	"github.com/eugener/gandalf/internal/storage"
	"github.com/google/uuid"
)

// KeyManager handles API key lifecycle (create, delete).
type KeyManager struct {
	store storage.APIKeyStore
}

// NewKeyManager returns a KeyManager backed by store.
func NewKeyManager(store storage.APIKeyStore) *KeyManager {
	return &KeyManager{store: store}
}

// CreateKeyOpts holds the fields an admin can set when minting a new key.
type CreateKeyOpts struct {
	OrgID     string
	UserID    string
	TeamID    string
	Role      string
	RPMLimit  *int64
	TPMLimit  *int64
	ExpiresAt *time.Time
}

// CreateKey generates a new API key per opts, stores its hash, and
// returns the plaintext (shown once) along with the persisted record.
func (km *KeyManager) CreateKey(ctx context.Context, opts CreateKeyOpts) (string, *gateway.APIKey, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}

	plaintext := gateway.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(raw)
	hash := gateway.HashKey(plaintext)

	role := opts.Role
	if role == "" {
		role = "member"
	}
	key := &gateway.APIKey{
		ID:        uuid.New().String(),
		KeyHash:   hash,
		KeyPrefix: plaintext[:8],
		OrgID:     opts.OrgID,
		UserID:    opts.UserID,
		TeamID:    opts.TeamID,
		Role:      role,
		RPMLimit:  opts.RPMLimit,
		TPMLimit:  opts.TPMLimit,
		ExpiresAt: opts.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := km.store.CreateKey(ctx, key); err != nil {
		return "", nil, err
	}

	return plaintext, key, nil
}

// DeleteKey removes the API key with the given ID.
func (km *KeyManager) DeleteKey(ctx context.Context, id string) error {
	return km.store.DeleteKey(ctx, id)
}
