package research

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/server/metrics"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

// Source produces the research payload (opaque JSON) for a thinker name.
// The call is remote and fallible; a name with no findable material returns
// an empty payload and nil error.
type Source interface {
	Research(ctx context.Context, name string) (string, error)
}

// Store is the persistence surface the researcher needs.
type Store interface {
	GetResearchRecord(ctx context.Context, name string) (*store.ResearchRecord, error)
	CreateResearchRecord(ctx context.Context, create *store.ResearchRecord) (*store.ResearchRecord, error)
	ListResearchRecords(ctx context.Context, find *store.FindResearchRecord) ([]*store.ResearchRecord, error)
	SetResearchInProgress(ctx context.Context, name string) (bool, error)
	CompleteResearch(ctx context.Context, name string, payload string) error
	FailResearch(ctx context.Context, name string, errorMessage string) error
}

// Researcher runs background knowledge-research jobs, one per thinker name at
// most, and maintains the cached ResearchRecord state machine:
//
//	pending -> in_progress -> {complete | failed}
//	complete -> in_progress   (refresh, or staleness on read)
//	failed   -> in_progress   (refresh, or re-read)
//
// Reads never block on research. Duplicate suppression is the store's
// compare-and-set on status, so it holds across processes too; the semaphore
// only bounds how many remote research calls run at once.
type Researcher struct {
	store      Store
	source     Source
	sem        *semaphore.Weighted
	staleness  time.Duration
	jobTimeout time.Duration

	// Background jobs outlive the request that triggered them but not the
	// process: baseCtx is cancelled on Shutdown and wg drains live jobs.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Researcher. workers bounds concurrent research jobs,
// staleness is the freshness window for complete records.
func New(st Store, source Source, workers int, staleness time.Duration) *Researcher {
	if workers <= 0 {
		workers = 2
	}
	if staleness <= 0 {
		staleness = 30 * 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Researcher{
		store:      st,
		source:     source,
		sem:        semaphore.NewWeighted(int64(workers)),
		staleness:  staleness,
		jobTimeout: 90 * time.Second,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// IsStale reports whether a record should be re-researched. Anything not
// complete counts as stale; complete records age out after the staleness
// window.
func (r *Researcher) IsStale(rec *store.ResearchRecord) bool {
	if rec.Status != store.ResearchComplete {
		return true
	}
	return time.Unix(rec.UpdatedTs, 0).Before(time.Now().Add(-r.staleness))
}

// GetOrTrigger returns the current record immediately, creating a pending one
// if absent, and as a side effect triggers asynchronous research when the
// record is stale. Stale complete data is returned as-is; the caller never
// waits on the research itself.
func (r *Researcher) GetOrTrigger(ctx context.Context, name string) (*store.ResearchRecord, error) {
	rec, err := r.getOrCreate(ctx, name)
	if err != nil {
		return nil, err
	}
	if rec.Status != store.ResearchInProgress && r.IsStale(rec) {
		r.trigger(name)
	}
	return rec, nil
}

// Status is a read-only check. Unlike GetOrTrigger it neither creates a
// record nor triggers research; absent records return nil.
func (r *Researcher) Status(ctx context.Context, name string) (*store.ResearchRecord, error) {
	return r.store.GetResearchRecord(ctx, name)
}

// Refresh forces a new research job regardless of freshness, including
// retrying a previously failed record. Already-running jobs are left alone
// (the compare-and-set in trigger no-ops).
func (r *Researcher) Refresh(ctx context.Context, name string) (*store.ResearchRecord, error) {
	rec, err := r.getOrCreate(ctx, name)
	if err != nil {
		return nil, err
	}
	if rec.Status != store.ResearchInProgress {
		r.trigger(name)
	}
	return rec, nil
}

// RefreshStale re-triggers research for every complete record older than the
// staleness window. Returns the number of records queued.
func (r *Researcher) RefreshStale(ctx context.Context) (int, error) {
	status := store.ResearchComplete
	cutoff := time.Now().Add(-r.staleness).Unix()
	stale, err := r.store.ListResearchRecords(ctx, &store.FindResearchRecord{
		Status:        &status,
		UpdatedBefore: &cutoff,
	})
	if err != nil {
		return 0, err
	}
	for _, rec := range stale {
		r.trigger(rec.Name)
	}
	return len(stale), nil
}

// Shutdown stops accepting work and waits for live jobs, bounded by ctx.
func (r *Researcher) Shutdown(ctx context.Context) {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("research: shutdown timed out waiting for jobs")
	}
}

func (r *Researcher) getOrCreate(ctx context.Context, name string) (*store.ResearchRecord, error) {
	rec, err := r.store.GetResearchRecord(ctx, name)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	now := time.Now().Unix()
	rec, err = r.store.CreateResearchRecord(ctx, &store.ResearchRecord{
		Name:      name,
		Status:    store.ResearchPending,
		Payload:   "{}",
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		// Lost a create race: the other caller's row is the record.
		if existing, getErr := r.store.GetResearchRecord(ctx, name); getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return rec, nil
}

// trigger starts a background research job for name. Fire-and-forget: the
// caller is never blocked. The in_progress compare-and-set decides ownership,
// so concurrent triggers start exactly one job.
func (r *Researcher) trigger(name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		won, err := r.store.SetResearchInProgress(r.baseCtx, name)
		if err != nil {
			slog.Error("research: failed to claim record", "name", name, "error", err)
			return
		}
		if !won {
			slog.Debug("research: already in progress", "name", name)
			return
		}
		metrics.ResearchTriggers.Inc()

		if err := r.sem.Acquire(r.baseCtx, 1); err != nil {
			// Shutting down; release the claim so a later trigger can retry.
			_ = r.store.FailResearch(context.Background(), name, "research aborted by shutdown")
			return
		}
		defer r.sem.Release(1)

		slog.Info("research: started background job", "name", name)

		jobCtx, cancel := context.WithTimeout(r.baseCtx, r.jobTimeout)
		defer cancel()

		payload, err := r.source.Research(jobCtx, name)
		if err != nil {
			slog.Error("research: job failed", "name", name, "error", err)
			if failErr := r.store.FailResearch(context.Background(), name, err.Error()); failErr != nil {
				slog.Error("research: failed to record failure", "name", name, "error", failErr)
			}
			return
		}
		if payload == "" {
			payload = "{}"
		}
		if err := r.store.CompleteResearch(context.Background(), name, payload); err != nil {
			slog.Error("research: failed to persist result", "name", name, "error", err)
			return
		}
		slog.Info("research: completed", "name", name, "payload_bytes", len(payload))
	}()
}
