// Package storage defines persistence interfaces for the ingress front-end.
package storage

import (
	"context"

	gateway "github.com/eugener/gandalf/internal"
)

// APIKeyStore manages admin API key persistence.
type APIKeyStore interface {
	CreateKey(ctx context.Context, key *gateway.APIKey) error
	GetKey(ctx context.Context, id string) (*gateway.APIKey, error)
	GetKeyByHash(ctx context.Context, hash string) (*gateway.APIKey, error)
	ListKeys(ctx context.Context, orgID string, offset, limit int) ([]*gateway.APIKey, error)
	UpdateKey(ctx context.Context, key *gateway.APIKey) error
	DeleteKey(ctx context.Context, id string) error
	TouchKeyUsed(ctx context.Context, id string) error
	CountKeys(ctx context.Context, orgID string) (int, error)
}

// IngressRouteStore manages persisted ingress route bindings, from which
// the ingress route table is rebuilt at startup, before Server.Start.
type IngressRouteStore interface {
	CreateIngressRoute(ctx context.Context, b *gateway.IngressRouteBinding) error
	ListIngressRoutes(ctx context.Context) ([]*gateway.IngressRouteBinding, error)
	DeleteIngressRoute(ctx context.Context, id string) error
}

// IngressAuditStore persists and retrieves ingress route audit entries.
type IngressAuditStore interface {
	InsertIngressAudit(ctx context.Context, entries []gateway.IngressAuditEntry) error
	ListIngressAudit(ctx context.Context, offset, limit int) ([]gateway.IngressAuditEntry, error)
}

// Store combines all storage interfaces.
type Store interface {
	APIKeyStore
	IngressRouteStore
	IngressAuditStore
	Close() error
}
