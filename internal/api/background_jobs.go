package api

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartBackgroundWorkers launches the explanation cache janitor. Workers stop
// when ctx is cancelled; WaitBackgroundWorkers blocks until they have.
func (a *API) StartBackgroundWorkers(ctx context.Context) {
	a.workersDone = make(chan struct{})
	if a.cache == nil {
		close(a.workersDone)
		return
	}
	go a.cacheJanitor(ctx, a.opts.CacheSweepInterval)
	a.log.Info("background workers started", zap.Duration("cache_sweep_interval", a.opts.CacheSweepInterval))
}

func (a *API) WaitBackgroundWorkers() {
	if a.workersDone != nil {
		<-a.workersDone
	}
}

// cacheJanitor drops expired explanations every interval.
func (a *API) cacheJanitor(ctx context.Context, interval time.Duration) {
	defer close(a.workersDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Debug("cache janitor stopped")
			return
		case <-ticker.C:
			if n := a.cache.CleanExpired(); n > 0 {
				a.log.Debug("expired explanations purged", zap.Int("purged", n), zap.Int("remaining", a.cache.Len()))
			}
		}
	}
}
