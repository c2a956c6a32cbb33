package sqlite

import (
	"context"
	"testing"
	"time"

	gateway "github.com/eugener/gandalf/internal"
)

func TestIngressRoute_CreateListDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	route := &gateway.IngressRouteBinding{
		ID:            "route-1",
		Kind:          "code",
		Match:         "200",
		ProcessorName: "echo",
		PoolWorkers:   4,
		PoolQueueSize: 64,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	if err := s.CreateIngressRoute(ctx, route); err != nil {
		t.Fatalf("create: %v", err)
	}

	routes, err := s.ListIngressRoutes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("list count = %d, want 1", len(routes))
	}
	got := routes[0]
	if got.ID != route.ID || got.Kind != "code" || got.Match != "200" || got.ProcessorName != "echo" {
		t.Fatalf("got = %+v", got)
	}
	if got.PoolWorkers != 4 || got.PoolQueueSize != 64 {
		t.Fatalf("pool sizing = %+v", got)
	}
	if !got.CreatedAt.Equal(route.CreatedAt) {
		t.Fatalf("createdAt = %v, want %v", got.CreatedAt, route.CreatedAt)
	}

	if err := s.DeleteIngressRoute(ctx, route.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	routes, err = s.ListIngressRoutes(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(routes) != 0 {
		t.Fatalf("list count after delete = %d, want 0", len(routes))
	}
}

func TestIngressRoute_ListOrdersCodeBeforeURI(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	uri := &gateway.IngressRouteBinding{
		ID: "r-uri", Kind: "uri", Match: "/eventmesh/", ProcessorName: "forward",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	code := &gateway.IngressRouteBinding{
		ID: "r-code", Kind: "code", Match: "200", ProcessorName: "echo",
		CreatedAt: time.Now().UTC().Truncate(time.Second).Add(time.Second),
	}
	if err := s.CreateIngressRoute(ctx, uri); err != nil {
		t.Fatalf("create uri: %v", err)
	}
	if err := s.CreateIngressRoute(ctx, code); err != nil {
		t.Fatalf("create code: %v", err)
	}

	routes, err := s.ListIngressRoutes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("list count = %d, want 2", len(routes))
	}
	if routes[0].Kind != "code" || routes[1].Kind != "uri" {
		t.Fatalf("order = [%s, %s], want [code, uri]", routes[0].Kind, routes[1].Kind)
	}
}

func TestInsertIngressAudit_BatchWithOptionalDetail(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	entries := []gateway.IngressAuditEntry{
		{ID: "a1", Actor: "bootstrap", Action: "register_code", Target: "200", CreatedAt: time.Now().UTC()},
		{ID: "a2", Actor: "admin", Action: "register_uri", Target: "/eventmesh/", Detail: "upstream=mesh-1", CreatedAt: time.Now().UTC()},
	}
	if err := s.InsertIngressAudit(ctx, entries); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var count int
	if err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingress_audit_log`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	var detail *string
	if err := s.read.QueryRowContext(ctx, `SELECT detail FROM ingress_audit_log WHERE id = ?`, "a1").Scan(&detail); err != nil {
		t.Fatalf("scan detail: %v", err)
	}
	if detail != nil {
		t.Fatalf("detail for a1 = %v, want NULL", *detail)
	}
}

func TestInsertIngressAudit_EmptyBatchIsNoop(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertIngressAudit(ctx, nil); err != nil {
		t.Fatalf("insert empty: %v", err)
	}
}

func TestListIngressAudit_OrdersMostRecentFirstAndPaginates(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	entries := []gateway.IngressAuditEntry{
		{ID: "a1", Actor: "bootstrap", Action: "register_code", Target: "200", CreatedAt: base},
		{ID: "a2", Actor: "admin", Action: "register_uri", Target: "/eventmesh/", Detail: "upstream=mesh-1", CreatedAt: base.Add(time.Second)},
		{ID: "a3", Actor: "admin", Action: "delete_route", Target: "/eventmesh/", CreatedAt: base.Add(2 * time.Second)},
	}
	if err := s.InsertIngressAudit(ctx, entries); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.ListIngressAudit(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("count = %d, want 3", len(got))
	}
	if got[0].ID != "a3" || got[1].ID != "a2" || got[2].ID != "a1" {
		t.Fatalf("order = [%s, %s, %s], want [a3, a2, a1]", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[0].Detail != "" {
		t.Fatalf("a3 detail = %q, want empty", got[0].Detail)
	}
	if got[1].Detail != "upstream=mesh-1" {
		t.Fatalf("a2 detail = %q, want upstream=mesh-1", got[1].Detail)
	}

	page, err := s.ListIngressAudit(ctx, 1, 1)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "a2" {
		t.Fatalf("paginated result = %+v, want [a2]", page)
	}
}
