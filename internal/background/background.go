// Package background runs the periodic maintenance loops: snapshot writer,
// TTL reaper and quota monitor. Each loop observes context cancellation on
// every tick and returns promptly at shutdown.
package background

import (
	"context"
	"time"

	"github.com/stashfs/stashfs/internal/logger"
	"github.com/stashfs/stashfs/pkg/catalog"
	"github.com/stashfs/stashfs/pkg/metrics"
	"github.com/stashfs/stashfs/pkg/service"
	"github.com/stashfs/stashfs/pkg/snapshot"
	"github.com/stashfs/stashfs/pkg/wal"
)

// Snapshotter periodically persists the catalog and truncates the WAL.
type Snapshotter struct {
	cat      *catalog.Catalog
	wlog     *wal.Writer
	path     string
	interval time.Duration
	met      *metrics.Metrics
}

// NewSnapshotter wires a snapshot loop writing to path every interval.
func NewSnapshotter(cat *catalog.Catalog, wlog *wal.Writer, path string, interval time.Duration, met *metrics.Metrics) *Snapshotter {
	return &Snapshotter{cat: cat, wlog: wlog, path: path, interval: interval, met: met}
}

// Run loops until ctx is cancelled, then writes one final snapshot so a
// clean shutdown leaves an empty WAL.
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.WriteOnce(); err != nil {
				logger.Error("final snapshot failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := s.WriteOnce(); err != nil {
				logger.Error("snapshot failed", "error", err)
			}
		}
	}
}

// WriteOnce takes a point-in-time copy of the catalog, persists it and, only
// on success, truncates the WAL. A failed write leaves the WAL intact so the
// next attempt covers the same or newer state.
func (s *Snapshotter) WriteOnce() error {
	start := time.Now()
	snap := s.cat.Snapshot(start.UTC())

	if err := snapshot.Save(s.path, snap); err != nil {
		return err
	}
	if err := s.wlog.Truncate(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	if s.met != nil {
		s.met.SnapshotDuration.Observe(elapsed.Seconds())
	}
	logger.Debug("snapshot written",
		"repos", len(snap.Repos), "elapsed", elapsed)
	return nil
}

// RunReaper deletes expired files every interval until ctx is cancelled.
func RunReaper(ctx context.Context, svc *service.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := svc.SweepExpired(); n > 0 {
				logger.Info("expired files reaped", "count", n)
			}
		}
	}
}

// RunQuotaMonitor evicts from over-ceiling repositories every interval until
// ctx is cancelled.
func RunQuotaMonitor(ctx context.Context, svc *service.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.EvictOverLimit()
		}
	}
}
