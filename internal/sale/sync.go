package sale

import (
	"context"
	"sync"

	"sales-engine/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SyncStatus is the outcome class of one sync attempt.
type SyncStatus string

const (
	SyncSynced   SyncStatus = "SYNCED"
	SyncDeferred SyncStatus = "DEFERRED"
	SyncFailed   SyncStatus = "FAILED"
)

// SyncOutcome is the result of AttemptSync for one sale.
type SyncOutcome struct {
	Status   SyncStatus
	RemoteID string
	Reason   string
}

// SyncReport summarizes one pending-sales sweep.
type SyncReport struct {
	Attempted int
	Synced    int
	Deferred  int
	Failed    int
}

// AttemptSync submits one committed sale to the remote ledger. The sale's
// local id is the idempotency key, so a retried attempt cannot create a
// second remote record. A remote or transport failure leaves the sale
// PENDING; no retry is scheduled here, retries happen on the next
// explicit sweep. The returned error reports local store problems only.
func (c *Coordinator) AttemptSync(ctx context.Context, session Session, localID int64) (SyncOutcome, error) {
	sale, err := c.store.GetSale(ctx, localID)
	if err != nil {
		return SyncOutcome{}, err
	}

	// Forward-only: an already synced sale is done, resubmitting would be
	// pointless even though the remote would deduplicate it.
	if sale.SyncState == domain.SyncSynced {
		return SyncOutcome{Status: SyncSynced, RemoteID: sale.RemoteID}, nil
	}

	if !session.Online {
		return SyncOutcome{Status: SyncDeferred, Reason: "offline"}, nil
	}
	if sale.WarehouseID == "" {
		return SyncOutcome{Status: SyncDeferred, Reason: "no warehouse resolved at commit"}, nil
	}

	items, err := c.store.GetSaleItems(ctx, localID)
	if err != nil {
		return SyncOutcome{}, err
	}

	remoteID, err := c.ledger.Send(ctx, sale, items)
	if err != nil {
		c.logger.Warn("Sale sync attempt failed, sale stays pending",
			zap.Int64("local_id", localID),
			zap.Error(err),
		)
		return SyncOutcome{Status: SyncFailed, Reason: err.Error()}, nil
	}

	if err := c.store.MarkSynced(ctx, localID, remoteID); err != nil {
		return SyncOutcome{}, err
	}

	return SyncOutcome{Status: SyncSynced, RemoteID: remoteID}, nil
}

// SyncPending is the explicit "sync pending sales" sweep: every PENDING
// sale gets one attempt, with bounded concurrency. Individual failures
// are counted, never aborting the sweep.
func (c *Coordinator) SyncPending(ctx context.Context, session Session) (SyncReport, error) {
	pending, err := c.store.ListPendingSales(ctx)
	if err != nil {
		return SyncReport{}, err
	}

	var mu sync.Mutex
	report := SyncReport{Attempted: len(pending)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.syncConcurrency)

	for _, p := range pending {
		localID := p.LocalID
		g.Go(func() error {
			outcome, err := c.AttemptSync(gctx, session, localID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
			case outcome.Status == SyncSynced:
				report.Synced++
			case outcome.Status == SyncDeferred:
				report.Deferred++
			default:
				report.Failed++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	c.logger.Info("Pending sales sweep finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("synced", report.Synced),
		zap.Int("deferred", report.Deferred),
		zap.Int("failed", report.Failed),
	)

	return report, nil
}
