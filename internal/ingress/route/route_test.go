package route

import (
	"context"
	"testing"

	"github.com/eugener/gandalf/internal/ingress/async"
	"github.com/eugener/gandalf/internal/ingress/pool"
)

type stubCodeProcessor struct{}

func (stubCodeProcessor) RejectRequest(context.Context) bool { return false }
func (stubCodeProcessor) ProcessRequest(ctx context.Context, actx *async.Context[*CodeCommand]) error {
	actx.Complete(&CodeCommand{ResponseCode: 0, ResponseMsg: "SUCCESS"})
	return nil
}
func (stubCodeProcessor) BuildHeader(code string, h map[string]string) (map[string]string, error) {
	return h, nil
}
func (stubCodeProcessor) BuildBody(code string, b map[string]any) (map[string]any, error) {
	return b, nil
}

type stubEventProcessor struct{}

func (stubEventProcessor) RejectRequest(context.Context) bool { return false }
func (stubEventProcessor) ProcessRequest(ctx context.Context, actx *async.Context[*EventWrapper]) error {
	actx.Complete(&EventWrapper{ResponseCode: 0, ResponseMsg: "SUCCESS"})
	return nil
}

func newTestPool() *pool.Pool { return pool.New(pool.Config{Workers: 1, QueueSize: 4}) }

func TestTable_RegisterAndMatchURI_LongestPrefixFirst(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	p := newTestPool()
	defer p.Close()

	if err := tbl.RegisterURI("/eventmesh/", stubEventProcessor{}, p); err != nil {
		t.Fatalf("register short prefix: %v", err)
	}
	if err := tbl.RegisterURI("/eventmesh/publish/", stubEventProcessor{}, p); err != nil {
		t.Fatalf("register long prefix: %v", err)
	}
	tbl.Freeze()

	entry, ok := tbl.MatchURI("/eventmesh/publish/topic-a")
	if !ok {
		t.Fatal("expected a match")
	}
	if entry.Prefix != "/eventmesh/publish/" {
		t.Fatalf("matched prefix = %q, want the longer /eventmesh/publish/", entry.Prefix)
	}
}

func TestTable_MatchURI_NoMatch(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	tbl.Freeze()

	if _, ok := tbl.MatchURI("/unregistered"); ok {
		t.Fatal("expected no match on an empty table")
	}
}

func TestTable_RegisterAfterFreezeFails(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	p := newTestPool()
	defer p.Close()
	tbl.Freeze()

	if err := tbl.RegisterCode("200", stubCodeProcessor{}, p); err != ErrFrozen {
		t.Fatalf("RegisterCode after Freeze = %v, want ErrFrozen", err)
	}
	if err := tbl.RegisterURI("/x/", stubEventProcessor{}, p); err != ErrFrozen {
		t.Fatalf("RegisterURI after Freeze = %v, want ErrFrozen", err)
	}
	if err := tbl.RegisterCodeEnum("9999"); err != ErrFrozen {
		t.Fatalf("RegisterCodeEnum after Freeze = %v, want ErrFrozen", err)
	}
}

func TestTable_KnownCode(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	p := newTestPool()
	defer p.Close()

	if tbl.KnownCode("200") {
		t.Fatal("code should not be known before registration")
	}
	if err := tbl.RegisterCodeEnum("200"); err != nil {
		t.Fatalf("RegisterCodeEnum: %v", err)
	}
	if !tbl.KnownCode("200") {
		t.Fatal("code should be known after RegisterCodeEnum, even without a processor")
	}
	if _, ok := tbl.CodeEntry("200"); ok {
		t.Fatal("CodeEntry should not resolve a code that only has an enum reservation")
	}

	if err := tbl.RegisterCode("201", stubCodeProcessor{}, p); err != nil {
		t.Fatalf("RegisterCode: %v", err)
	}
	if !tbl.KnownCode("201") {
		t.Fatal("RegisterCode should also mark the code known")
	}
	if _, ok := tbl.CodeEntry("201"); !ok {
		t.Fatal("CodeEntry should resolve a fully registered code")
	}
}

func TestTable_RegisterRejectsMissingArgs(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	p := newTestPool()
	defer p.Close()

	if err := tbl.RegisterCode("", stubCodeProcessor{}, p); err == nil {
		t.Fatal("expected error for empty code")
	}
	if err := tbl.RegisterCode("200", nil, p); err == nil {
		t.Fatal("expected error for nil processor")
	}
	if err := tbl.RegisterURI("/x/", stubEventProcessor{}, nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
