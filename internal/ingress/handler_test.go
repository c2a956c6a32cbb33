package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eugener/gandalf/internal/ingress/async"
	"github.com/eugener/gandalf/internal/ingress/pool"
	"github.com/eugener/gandalf/internal/ingress/respond"
	"github.com/eugener/gandalf/internal/ingress/route"
)

type echoCodeProcessor struct{}

func (echoCodeProcessor) RejectRequest(context.Context) bool { return false }
func (echoCodeProcessor) ProcessRequest(ctx context.Context, actx *async.Context[*route.CodeCommand]) error {
	actx.Complete(&route.CodeCommand{ResponseCode: 0, ResponseMsg: "SUCCESS", ResponseBody: actx.Request.Body})
	return nil
}
func (echoCodeProcessor) BuildHeader(code string, h map[string]string) (map[string]string, error) {
	return h, nil
}
func (echoCodeProcessor) BuildBody(code string, b map[string]any) (map[string]any, error) {
	return b, nil
}

// newTestServer builds a Server with its route table pre-registered and
// frozen, and started flipped true, without going through Start (which
// would bind a real listener).
func newTestServer(t *testing.T, register func(*route.Table, *pool.Pool)) *Server {
	t.Helper()
	s := New(Config{ServerIP: "127.0.0.1", Charset: "utf-8"}, nil, nil)
	p := pool.New(pool.Config{Workers: 2, QueueSize: 8})
	t.Cleanup(p.Close)
	if register != nil {
		register(s.table, p)
	}
	s.table.Freeze()
	s.completer = pool.New(pool.Config{Workers: 2, QueueSize: 8})
	t.Cleanup(s.completer.Close)
	s.started.Store(true)
	return s
}

func TestServeHTTP_NotStartedReturns503(t *testing.T) {
	t.Parallel()
	s := New(Config{ServerIP: "127.0.0.1"}, nil, nil)
	s.table.Freeze()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("VERSION", "V1")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, r)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestServeHTTP_InvalidMethodReturns405(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	r := httptest.NewRequest(http.MethodPut, "/", nil)
	r.Header.Set("VERSION", "V1")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, r)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestServeHTTP_CodePathHappy(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(tbl *route.Table, p *pool.Pool) {
		if err := tbl.RegisterCode("200", echoCodeProcessor{}, p); err != nil {
			t.Fatalf("register: %v", err)
		}
	})

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("VERSION", "V1")
	r.Header.Set("REQUEST_CODE", "200")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, r)

	var env respond.Envelope
	body := rec.Body.Bytes()
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode envelope: %v (body=%s)", err, body)
	}
	if env.RetCode != respond.CodeOK {
		t.Fatalf("retCode = %d, want CodeOK", env.RetCode)
	}
}

func TestServeHTTP_UnknownCodeReturnsEnvelopeError(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("VERSION", "V1")
	r.Header.Set("REQUEST_CODE", "9999")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, r)

	var env respond.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.RetCode != respond.CodeRequestCodeInvalid {
		t.Fatalf("retCode = %d, want CodeRequestCodeInvalid", env.RetCode)
	}
	// Validation passed (VERSION/method were fine) so the envelope comes
	// back with HTTP 200, not a validator-style status code.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
