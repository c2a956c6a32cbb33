package ingress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eugener/gandalf/internal/telemetry"
)

func TestSnapshotRequestHeaders_CapturesShape(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodPost, "/eventmesh/publish", nil)

	snap := snapshotRequestHeaders(r)
	if snap.method != http.MethodPost {
		t.Fatalf("method = %q", snap.method)
	}
	if snap.url != "/eventmesh/publish" {
		t.Fatalf("url = %q", snap.url)
	}
	if snap.flavor == "" {
		t.Fatal("flavor should not be empty")
	}
}

func TestStartAndEndValidationSpan_NoopTracerDoesNotPanic(t *testing.T) {
	t.Parallel()
	tracer := telemetry.NoopTracer()
	snap := headerSnapshot{method: http.MethodGet, flavor: "HTTP/1.1", url: "/"}

	_, span := startValidationSpan(context.Background(), tracer, snap)
	endValidationSpan(span, "bad request")
}
