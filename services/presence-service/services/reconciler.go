package services

import (
	"context"
	"fmt"
	"time"

	"chorus/services/presence-service/metrics"
	"chorus/services/presence-service/models"
	"chorus/services/presence-service/registry"
	"chorus/services/presence-service/utils"
)

// Reconciler periodically converges the presence store onto the registry.
// It reads the registry but never mutates it, and it is the only path that
// marks a user offline without a disconnect.
type Reconciler struct {
	registry  *registry.Registry
	store     PresenceStore
	presence  *Presence
	interval  time.Duration
	threshold time.Duration
	logger    *utils.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewReconciler(
	reg *registry.Registry,
	store PresenceStore,
	presence *Presence,
	interval, threshold time.Duration,
	logger *utils.Logger,
	m *metrics.Metrics,
) *Reconciler {
	return &Reconciler{
		registry:  reg,
		store:     store,
		presence:  presence,
		interval:  interval,
		threshold: threshold,
		logger:    logger.With("component", "reconciler"),
		metrics:   m,
		now:       time.Now,
	}
}

// Run ticks until ctx is cancelled. Tick failures are logged and retried on
// the next interval.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("Starting presence reconciler",
		"interval", r.interval.String(),
		"threshold", r.threshold.String(),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Presence reconciler stopped")
			return nil
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Error("Reconciliation tick aborted", "error", err)
			}
		}
	}
}

// Tick runs one reconciliation pass: re-assert registered users online,
// expire stale records of unregistered users, then broadcast the union.
// A store failure aborts the pass before anything is broadcast.
func (r *Reconciler) Tick(ctx context.Context) error {
	err := r.tick(ctx)
	r.metrics.ReconcileRun(err)
	return err
}

func (r *Reconciler) tick(ctx context.Context) error {
	now := r.now()
	connected, err := r.reassertAt(ctx, now)
	if err != nil {
		return err
	}

	expired, err := r.store.ExpireInactive(ctx, now.Add(-r.threshold), connected)
	r.metrics.Expired(len(expired))
	if err != nil {
		return transient("expiring inactive users", err)
	}
	for _, rec := range expired {
		r.logger.Info("Marked inactive user offline",
			"user_id", rec.UserID,
			"last_active_at", rec.LastActiveAt,
		)
	}

	r.presence.PublishOnline(ctx)
	return nil
}

// Reassert marks every registered user online as of now and returns them.
func (r *Reconciler) Reassert(ctx context.Context) ([]string, error) {
	return r.reassertAt(ctx, r.now())
}

// reassertAt rechecks the registry after each write. A user who disconnected
// between the snapshot and the write is put back offline. A racing reconnect
// stays visible through the registry side of the online set.
func (r *Reconciler) reassertAt(ctx context.Context, now time.Time) ([]string, error) {
	snapshot := r.registry.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for _, id := range snapshot {
		if err := r.store.SetOnline(ctx, id, now); err != nil {
			return nil, transient("re-asserting online status", err)
		}
		if _, ok := r.registry.Lookup(id); ok {
			ids = append(ids, id)
			continue
		}
		r.logger.Debug("User disconnected during re-assert", "user_id", id)
		if err := r.store.SetOffline(ctx, id, now); err != nil {
			return nil, transient("reverting re-asserted user", err)
		}
	}
	return ids, nil
}

// Cleanup expires records inactive for longer than threshold on demand and
// broadcasts the result. A non-positive threshold means the configured one.
func (r *Reconciler) Cleanup(ctx context.Context, threshold time.Duration) (models.CleanupResponse, error) {
	if threshold <= 0 {
		threshold = r.threshold
	}
	now := r.now()

	expired, err := r.store.ExpireInactive(ctx, now.Add(-threshold), r.registry.Snapshot())
	r.metrics.Expired(len(expired))
	if err != nil {
		return models.CleanupResponse{}, transient("cleaning up online status", err)
	}

	stale := make([]models.StaleUser, 0, len(expired))
	for _, rec := range expired {
		stale = append(stale, models.StaleUser{
			UserID:       rec.UserID,
			LastActiveAt: rec.LastActiveAt,
			InactiveFor:  rec.InactiveFor(now).Round(time.Second).String(),
		})
	}

	r.presence.PublishOnline(ctx)

	return models.CleanupResponse{
		Message:    fmt.Sprintf("Marked %d inactive users offline", len(stale)),
		Threshold:  threshold.String(),
		StaleUsers: stale,
	}, nil
}
