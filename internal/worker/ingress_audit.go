package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	gateway "github.com/eugener/gandalf/internal"
)

const (
	ingressAuditChanSize   = 256
	ingressAuditBatchSize  = 50
	ingressAuditFlushEvery = 5 * time.Second
	ingressAuditDrainTime  = 10 * time.Second
)

// IngressAuditStore is the persistence interface consumed by IngressAuditWorker.
type IngressAuditStore interface {
	InsertIngressAudit(ctx context.Context, entries []gateway.IngressAuditEntry) error
}

// IngressAuditWorker buffers ingress route-table audit entries and
// batch-flushes them to the store, using the same drop-on-full channel
// batching as the rest of this package for a much lower-volume stream
// (admin actions, not requests).
type IngressAuditWorker struct {
	ch    chan gateway.IngressAuditEntry
	store IngressAuditStore
}

// NewIngressAuditWorker creates an IngressAuditWorker backed by store.
func NewIngressAuditWorker(store IngressAuditStore) *IngressAuditWorker {
	return &IngressAuditWorker{
		ch:    make(chan gateway.IngressAuditEntry, ingressAuditChanSize),
		store: store,
	}
}

// Name returns the worker identifier.
func (a *IngressAuditWorker) Name() string { return "ingress_audit" }

// Record enqueues an audit entry for a route-table mutation. actor is the
// identity that initiated the change (an admin key name, or "bootstrap"
// for the routes registered from storage at startup).
func (a *IngressAuditWorker) Record(actor, action, target, detail string) {
	entry := gateway.IngressAuditEntry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Actor:     actor,
		Action:    action,
		Target:    target,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case a.ch <- entry:
	default:
		slog.Warn("ingress audit entry dropped, channel full", "action", action, "target", target)
	}
}

// Run processes entries until ctx is cancelled, then drains remaining entries.
func (a *IngressAuditWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(ingressAuditFlushEvery)
	defer ticker.Stop()

	buf := make([]gateway.IngressAuditEntry, 0, ingressAuditBatchSize)

	for {
		select {
		case e := <-a.ch:
			buf = append(buf, e)
			if len(buf) >= ingressAuditBatchSize {
				a.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ticker.C:
			if len(buf) > 0 {
				a.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ctx.Done():
			a.drain(buf)
			return nil
		}
	}
}

func (a *IngressAuditWorker) drain(buf []gateway.IngressAuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), ingressAuditDrainTime)
	defer cancel()

	for {
		select {
		case e := <-a.ch:
			buf = append(buf, e)
			if len(buf) >= ingressAuditBatchSize {
				a.flush(ctx, buf)
				buf = buf[:0]
			}
		default:
			if len(buf) > 0 {
				a.flush(ctx, buf)
			}
			return
		}
	}
}

func (a *IngressAuditWorker) flush(ctx context.Context, buf []gateway.IngressAuditEntry) {
	batch := make([]gateway.IngressAuditEntry, len(buf))
	copy(batch, buf)

	if err := a.store.InsertIngressAudit(ctx, batch); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "ingress audit flush failed",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
	}
}
