// Package schedule runs jobs on cron specs and records every run in the
// ledger, holding a lease so catalog writers never overlap.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/database"
	"github.com/TobiSchelling/briefcast/internal/metrics"
)

// CatalogLock is the lease held by every job that rewrites the catalog.
const CatalogLock = "catalog"

// ErrLocked is returned when another job holds the lease.
var ErrLocked = errors.New("another job holds the catalog lock")

// Job is a unit of scheduled work. The outcome's Err marks a failed run.
type Job func(ctx context.Context) database.Outcome

// Guard records runs in the ledger and serializes catalog writers.
type Guard struct {
	db     *database.DB
	ttl    time.Duration
	holder string

	// busy is held by the running locked job of this process.
	busy sync.Mutex
}

// NewGuard creates a guard. A nil db runs jobs without a ledger or lock.
func NewGuard(db *database.DB, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	host, _ := os.Hostname()
	return &Guard{
		db:     db,
		ttl:    ttl,
		holder: fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8]),
	}
}

// Locked runs job while holding the catalog lease. If another job of this
// process or another process holds it, the job is skipped and ErrLocked is
// returned. The lease is renewed every third of its TTL until job returns.
func (g *Guard) Locked(ctx context.Context, kind string, job Job) (database.Outcome, error) {
	if !g.busy.TryLock() {
		return g.skip(kind, g.holder)
	}
	defer g.busy.Unlock()

	if g.db == nil {
		return g.Record(ctx, kind, job)
	}

	holder := g.holder + "-" + uuid.NewString()[:8]
	ok, err := g.db.AcquireLock(CatalogLock, holder, g.ttl)
	if err != nil {
		return database.Outcome{}, err
	}
	if !ok {
		current, _ := g.db.LockHolder(CatalogLock)
		return g.skip(kind, current)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.renew(holder, stop)
	}()
	defer func() {
		close(stop)
		wg.Wait()
		if err := g.db.ReleaseLock(CatalogLock, holder); err != nil {
			log.Warn().Err(err).Msg("Could not release catalog lock")
		}
	}()

	return g.Record(ctx, kind, job)
}

func (g *Guard) renew(holder string, stop <-chan struct{}) {
	ticker := time.NewTicker(max(g.ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok, err := g.db.AcquireLock(CatalogLock, holder, g.ttl)
			if err != nil || !ok {
				log.Warn().Err(err).Str("holder", holder).Msg("Could not renew catalog lock")
			}
		}
	}
}

func (g *Guard) skip(kind, holder string) (database.Outcome, error) {
	log.Warn().Str("kind", kind).Str("holder", holder).Msg("Catalog lock held, skipping job")
	if g.db != nil {
		if id, err := g.db.StartRun(kind); err == nil {
			g.db.FinishRun(id, database.Outcome{Status: database.StatusSkipped})
		}
	}
	metrics.RunDuration.WithLabelValues(kind, database.StatusSkipped).Observe(0)
	return database.Outcome{Status: database.StatusSkipped}, ErrLocked
}

// Record runs job and stores its outcome in the ledger without locking.
func (g *Guard) Record(ctx context.Context, kind string, job Job) (database.Outcome, error) {
	var runID int64
	if g.db != nil {
		id, err := g.db.StartRun(kind)
		if err != nil {
			log.Warn().Err(err).Str("kind", kind).Msg("Could not record run start")
		}
		runID = id
	}

	start := time.Now()
	out := job(ctx)
	if out.Status == "" {
		out.Status = database.StatusSuccess
		if out.Err != nil {
			out.Status = database.StatusFailed
		}
	}
	metrics.RunDuration.WithLabelValues(kind, out.Status).Observe(time.Since(start).Seconds())

	if runID != 0 {
		if err := g.db.FinishRun(runID, out); err != nil {
			log.Warn().Err(err).Str("kind", kind).Msg("Could not record run outcome")
		}
	}
	return out, out.Err
}
