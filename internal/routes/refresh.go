package routes

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"hostproxy/internal/metrics"
)

// DefaultRefreshInterval is how often the route table is re-read.
const DefaultRefreshInterval = 24 * time.Hour

// Refresher periodically rebuilds the route table and swaps it into Store.
type Refresher struct {
	Store    *Store
	Source   Source
	Interval time.Duration
	Logger   logrus.FieldLogger
}

// RefreshNow loads a new table and publishes it. On failure the table in
// effect is left untouched and the error is returned.
func (r *Refresher) RefreshNow(ctx context.Context) (*Table, error) {
	next, err := Load(ctx, r.Source)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	prev := r.Store.Swap(next)
	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	r.logger().WithFields(logrus.Fields{
		"source":     next.Source,
		"generation": next.Generation,
		"previous":   prev.Generation,
		"upstreams":  len(next.Upstreams),
		"locals":     len(next.Locals),
	}).Info("route table refreshed")
	return next, nil
}

// Run refreshes every Interval until ctx is cancelled. Failed refreshes are
// logged and skipped.
func (r *Refresher) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if _, err := r.RefreshNow(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger().WithError(err).WithField("generation", r.Store.Current().Generation).
					Error("route table refresh failed, keeping previous table")
			}
			timer.Reset(interval)
		}
	}
}

func (r *Refresher) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}
