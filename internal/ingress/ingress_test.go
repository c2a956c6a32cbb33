package ingress

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnrich_SetsDefaultsWithoutOverwritingVersion(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:54321"
	r.Header.Set("VERSION", "V2")

	enrich(r, "10.0.0.1")

	if r.Header.Get("VERSION") != "V2" {
		t.Fatalf("VERSION = %q, enrich must not overwrite an explicit value", r.Header.Get("VERSION"))
	}
	if r.Header.Get("IP") != "10.0.0.5" {
		t.Fatalf("IP = %q, want the RemoteAddr host", r.Header.Get("IP"))
	}
	if r.Header.Get("REQ_SEND_EVENTMESH_IP") != "10.0.0.1" {
		t.Fatalf("REQ_SEND_EVENTMESH_IP = %q", r.Header.Get("REQ_SEND_EVENTMESH_IP"))
	}
	if r.Header.Get("REQ_C2EVENTMESH_TIMESTAMP") == "" {
		t.Fatal("REQ_C2EVENTMESH_TIMESTAMP was not set")
	}
}

func TestEnrich_DefaultsVersionWhenAbsent(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:54321"

	enrich(r, "10.0.0.1")

	if r.Header.Get("VERSION") != string(V1) {
		t.Fatalf("VERSION = %q, want default V1", r.Header.Get("VERSION"))
	}
}

func TestRemoteIP_FallsBackToRawValueWithoutPort(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "not-a-host-port"

	if got := remoteIP(r); got != "not-a-host-port" {
		t.Fatalf("remoteIP = %q", got)
	}
}

func TestValidate_NotStartedIsServiceUnavailable(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("VERSION", string(V1))

	status, ok := validate(r, false)
	if ok || status != http.StatusServiceUnavailable {
		t.Fatalf("validate(not started) = (%d, %v), want (503, false)", status, ok)
	}
}

func TestValidate_RejectsUnsupportedMethod(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodPut, "/", nil)
	r.Header.Set("VERSION", string(V1))

	status, ok := validate(r, true)
	if ok || status != http.StatusMethodNotAllowed {
		t.Fatalf("validate(PUT) = (%d, %v), want (405, false)", status, ok)
	}
}

func TestValidate_RejectsUnknownVersion(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("VERSION", "V9")

	status, ok := validate(r, true)
	if ok || status != http.StatusBadRequest {
		t.Fatalf("validate(V9) = (%d, %v), want (400, false)", status, ok)
	}
}

func TestValidate_AcceptsGetAndPostWithKnownVersion(t *testing.T) {
	t.Parallel()
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		r := httptest.NewRequest(method, "/", nil)
		r.Header.Set("VERSION", string(V2))

		status, ok := validate(r, true)
		if !ok || status != http.StatusOK {
			t.Fatalf("validate(%s) = (%d, %v), want (200, true)", method, status, ok)
		}
	}
}

func TestStatusMessage_KnownAndFallback(t *testing.T) {
	t.Parallel()
	cases := map[int]string{
		http.StatusServiceUnavailable: "server not started",
		http.StatusMethodNotAllowed:   "method not allowed",
		http.StatusBadRequest:         "bad request",
		http.StatusTeapot:             http.StatusText(http.StatusTeapot),
	}
	for status, want := range cases {
		if got := statusMessage(status); got != want {
			t.Fatalf("statusMessage(%d) = %q, want %q", status, got, want)
		}
	}
}
