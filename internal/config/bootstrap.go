// Package config provides configuration loading and database bootstrapping.
package config

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/google/uuid"

	gateway "github.com/eugener/gandalf/internal"
	"github.com/eugener/gandalf/internal/storage"
)

// Bootstrap seeds admin API keys from the config file on first run.
func Bootstrap(ctx context.Context, cfg *Config, store storage.Store) error {
	for _, k := range cfg.Keys {
		if k.Key == "" {
			continue
		}
		hash := gateway.HashKey(k.Key)

		existing, _ := store.GetKeyByHash(ctx, hash)
		if existing != nil {
			continue // already exists, skip
		}

		prefix := k.Key
		if len(prefix) > 12 {
			prefix = prefix[:12]
		}

		role := k.Role
		if role == "" {
			role = "member"
		}

		key := &gateway.APIKey{
			ID:        uuid.Must(uuid.NewV7()).String(),
			KeyHash:   hash,
			KeyPrefix: prefix,
			OrgID:     k.OrgID,
			Role:      role,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.CreateKey(ctx, key); err != nil {
			return err
		}
		slog.Info("bootstrapped api key", "name", k.Name, "prefix", prefix)
	}

	return nil
}

// GenerateAdminKey creates a random admin key and returns the plaintext.
func GenerateAdminKey() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	return gateway.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(raw)
}
