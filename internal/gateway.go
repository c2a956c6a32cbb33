// Package gateway defines domain types and interfaces for the ingress
// front-end: authenticated admin access to the route table and audit
// log, and the persisted shapes the ingress dispatcher itself consumes.
// This package has no project imports -- it is the dependency root.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"
)

// --- Admin identity ---

// APIKey represents an admin API key for authentication against the
// route-management and audit-log endpoints.
type APIKey struct {
	ID         string     `json:"id"`
	KeyHash    string     `json:"-"` // SHA-256 hex, never exposed
	KeyPrefix  string     `json:"key_prefix"`
	UserID     string     `json:"user_id,omitempty"`
	TeamID     string     `json:"team_id,omitempty"`
	OrgID      string     `json:"org_id"`
	Role       string     `json:"role"` // "admin", "member", "viewer"
	RPMLimit   *int64     `json:"rpm_limit,omitempty"`
	TPMLimit   *int64     `json:"tpm_limit,omitempty"` // forwarded-byte budget per minute; nil/0 = unlimited
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Blocked    bool       `json:"blocked"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Identity is the authenticated caller context attached to request context.
type Identity struct {
	Subject    string     `json:"subject"` // key prefix
	KeyID      string     `json:"key_id"`  // API key ID for per-key bucketing
	UserID     string     `json:"user_id"`
	TeamID     string     `json:"team_id"`
	OrgID      string     `json:"org_id"`
	Role       string     `json:"role"`
	Perms      Permission `json:"-"` // resolved bitmask
	AuthMethod string     `json:"auth_method"`
	RPMLimit   int64      `json:"-"` // effective admission RPM limit (0 = unlimited)
	TPMLimit   int64      `json:"-"` // effective admission byte-budget-per-minute (0 = unlimited)
}

// --- RBAC ---

// Permission is a bitmask representing authorization capabilities over
// the ingress admin surface.
type Permission uint32

const (
	PermManageIngressRoutes Permission = 1 << iota // register/remove code and URI route bindings
	PermViewIngressAudit                           // view the route-table audit log
	PermManageAdminKeys                            // create/block/delete admin API keys
)

// Can reports whether the identity has the given permission.
func (id *Identity) Can(p Permission) bool { return id.Perms&p == p }

// RolePermissions maps role names to their permission bitmasks.
var RolePermissions = map[string]Permission{
	"admin":  PermManageIngressRoutes | PermViewIngressAudit | PermManageAdminKeys,
	"member": PermManageIngressRoutes | PermViewIngressAudit,
	"viewer": PermViewIngressAudit,
}

// ValidRole reports whether role is one of the known role names.
func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// --- Ingress route table persistence ---

// IngressRouteBinding is a persisted ingress route registration: which
// processor name handles a code or URI prefix, and the worker pool
// sizing to build for it at startup. Storage is the source of truth on
// restart; the built-in default routes are seeded into it when it holds
// no bindings.
type IngressRouteBinding struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`  // "code" or "uri"
	Match         string    `json:"match"` // the code or URI prefix
	ProcessorName string    `json:"processor_name"`
	PoolWorkers   int       `json:"pool_workers"`
	PoolQueueSize int       `json:"pool_queue_size"`
	CreatedAt     time.Time `json:"created_at"`
}

// IngressAuditEntry records a change to the ingress route table (a code
// or URI processor registration, or a route deletion), for after-the-fact
// review of who changed routing and when.
type IngressAuditEntry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"` // "register_code", "register_uri", "delete_route"
	Target    string    `json:"target"` // the code or URI prefix affected
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// The Identity field is set later by the authenticate middleware via mutation
// of the same pointer, avoiding a second context.WithValue + Request.WithContext.
type requestMeta struct {
	RequestID string
	Identity  *Identity
}

// metaFromContext returns the requestMeta stored in ctx, or nil.
func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// IdentityFromContext extracts the authenticated identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	if m := metaFromContext(ctx); m != nil {
		return m.Identity
	}
	return nil
}

// ContextWithIdentity stores the identity in the existing requestMeta if present,
// avoiding a new context.WithValue allocation. Falls back to creating new metadata
// if none exists (e.g., in tests).
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Identity = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Identity: id})
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// --- Shared constants and helpers ---

// APIKeyPrefix is the prefix for all admin API keys.
const APIKeyPrefix = "gnd_"

// HashKey returns the hex-encoded SHA-256 hash of a raw API key.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// --- Authenticator interface ---

// Authenticator validates request credentials and returns the caller identity.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}
