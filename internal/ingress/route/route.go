// Package route holds the ingress route table: the two registries
// (request-code and URI-prefix) that decide which processor and worker
// pool handles a given request, plus the request/response envelope types
// those processors operate on.
package route

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/maypok86/otter/v2"

	"github.com/eugener/gandalf/internal/ingress/async"
	"github.com/eugener/gandalf/internal/ingress/pool"
)

// maxKnownCodes bounds the request-code enum cache. Codes are registered
// once at startup from processor init-style registrations, never per
// request, so this ceiling only guards against a misconfigured deployment
// registering an unbounded number of codes.
const maxKnownCodes = 100_000

// ErrFrozen is returned by Register* once Freeze has run (invariant R1).
var ErrFrozen = errors.New("route: table frozen")

// ErrNoMatch names the outcome where neither a URI prefix nor a request
// code resolves a request. Dispatch does not return it: a request with no
// URI match takes the code path, which answers an unknown code with a
// REQUESTCODE_INVALID envelope.
var ErrNoMatch = errors.New("route: no matching route")

// CodeCommand mirrors the legacy request-code envelope carried over
// POST/GET and dispatched by request code.
type CodeCommand struct {
	HTTPMethod   string
	HTTPVersion  string
	RequestCode  string
	Header       map[string]string
	Body         map[string]any
	ReqTime      int64
	ResponseCode int
	ResponseMsg  string
	ResponseBody any
}

// EventWrapper mirrors the URI-routed event envelope.
type EventWrapper struct {
	HTTPVersion  string
	RequestURI   string
	HeaderMap    map[string]string
	BodyBytes    []byte
	ReqTime      int64
	ResponseCode int
	ResponseMsg  string
	ResponseBody any
}

// CodeProcessor handles a registered request code.
type CodeProcessor interface {
	// RejectRequest reports whether the processor wants to self-reject
	// before any work is performed.
	RejectRequest(ctx context.Context) bool
	// ProcessRequest performs the work, completing asyncCtx either
	// inline or later via asyncCtx.Completer.
	ProcessRequest(ctx context.Context, asyncCtx *async.Context[*CodeCommand]) error
	// BuildHeader and BuildBody construct the envelope's header/body maps
	// for the given code. A non-nil error here produces RUNTIME_ERR.
	BuildHeader(code string, headerMap map[string]string) (map[string]string, error)
	BuildBody(code string, bodyMap map[string]any) (map[string]any, error)
}

// EventProcessor handles requests routed by URI prefix.
type EventProcessor interface {
	RejectRequest(ctx context.Context) bool
	ProcessRequest(ctx context.Context, asyncCtx *async.Context[*EventWrapper]) error
}

// CodeEntry binds a registered request code to its processor and pool.
type CodeEntry struct {
	Processor CodeProcessor
	Pool      *pool.Pool
}

// URIEntry binds a registered URI prefix to its processor and pool.
type URIEntry struct {
	Prefix    string
	Processor EventProcessor
	Pool      *pool.Pool
}

// Table is the ingress route table: append-only before Freeze, read-only
// (lock-free) after.
type Table struct {
	mu         sync.RWMutex
	codeRoutes map[string]CodeEntry
	codeEnum   *otter.Cache[string, struct{}] // known request codes, independent of registration
	uriRoutes  []URIEntry
	frozen     atomic.Bool
}

// NewTable returns an empty, unfrozen route table. Panics only on a
// misconfigured otter cache, which cannot happen with a fixed
// MaximumSize and no expiry calculator.
func NewTable() *Table {
	enum, err := otter.New(&otter.Options[string, struct{}]{
		MaximumSize: maxKnownCodes,
	})
	if err != nil {
		panic(fmt.Sprintf("route: create code enum cache: %v", err))
	}
	return &Table{
		codeRoutes: make(map[string]CodeEntry),
		codeEnum:   enum,
	}
}

// RegisterCode binds a request code to a processor and pool. All three
// arguments must be non-nil/non-empty. Returns ErrFrozen after Freeze.
func (t *Table) RegisterCode(code string, p CodeProcessor, wp *pool.Pool) error {
	if code == "" || p == nil || wp == nil {
		return errors.New("route: RegisterCode requires a non-empty code, processor and pool")
	}
	if t.frozen.Load() {
		return ErrFrozen
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen.Load() {
		return ErrFrozen
	}
	t.codeRoutes[code] = CodeEntry{Processor: p, Pool: wp}
	t.codeEnum.Set(code, struct{}{})
	return nil
}

// RegisterCodeEnum records code as a syntactically valid request code
// without binding it to a processor yet — lets the validity check in
// Dispatch run independent of whether a pool has been registered for it.
func (t *Table) RegisterCodeEnum(code string) error {
	if code == "" {
		return errors.New("route: RegisterCodeEnum requires a non-empty code")
	}
	if t.frozen.Load() {
		return ErrFrozen
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen.Load() {
		return ErrFrozen
	}
	t.codeEnum.Set(code, struct{}{})
	return nil
}

// RegisterURI binds a URI prefix to a processor and pool. All three
// arguments must be non-nil/non-empty. Returns ErrFrozen after Freeze.
func (t *Table) RegisterURI(prefix string, p EventProcessor, wp *pool.Pool) error {
	if prefix == "" || p == nil || wp == nil {
		return errors.New("route: RegisterURI requires a non-empty prefix, processor and pool")
	}
	if t.frozen.Load() {
		return ErrFrozen
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen.Load() {
		return ErrFrozen
	}
	t.uriRoutes = append(t.uriRoutes, URIEntry{Prefix: prefix, Processor: p, Pool: wp})
	return nil
}

// Freeze sorts uriRoutes longest-prefix-first (ties broken by
// registration order via a stable sort, invariant R2) and stops
// accepting further registrations (invariant R1). Idempotent.
func (t *Table) Freeze() {
	if t.frozen.Load() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen.Load() {
		return
	}
	sort.SliceStable(t.uriRoutes, func(i, j int) bool {
		return len(t.uriRoutes[i].Prefix) > len(t.uriRoutes[j].Prefix)
	})
	t.frozen.Store(true)
}

// MatchURI returns the first (longest-prefix-first) URI entry whose
// prefix matches path, and whether a match was found. Lock-free: safe to
// call only after Freeze, which is the dispatcher's only caller.
func (t *Table) MatchURI(path string) (URIEntry, bool) {
	for _, e := range t.uriRoutes {
		if strings.HasPrefix(path, e.Prefix) {
			return e, true
		}
	}
	return URIEntry{}, false
}

// CodeEntry looks up a registered request code.
func (t *Table) CodeEntry(code string) (CodeEntry, bool) {
	e, ok := t.codeRoutes[code]
	return e, ok
}

// KnownCode reports whether code is a member of the request-code enum,
// independent of whether a processor has been registered for it.
func (t *Table) KnownCode(code string) bool {
	_, ok := t.codeEnum.GetIfPresent(code)
	return ok
}
