package scheduler

import (
	"errors"
	"time"

	"vocabremind/internal/task/engine"
	logx "vocabremind/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// reportEnqueueError logs a rejected firing. Overlap skips are routine and
// logged at debug; other failures warn at most once per throttle window per
// reminder.
func (r *Registry) reportEnqueueError(id string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrOverlapSkip) {
		r.log.Debug("firing skipped: previous delivery still running", logx.String("reminder", id))
		return
	}

	now := time.Now()
	r.enqMu.Lock()
	last := r.lastEnqWarn[id]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		r.enqMu.Unlock()
		return
	}
	r.lastEnqWarn[id] = now
	r.enqMu.Unlock()

	r.log.Warn("firing dropped: enqueue failed", logx.String("reminder", id), logx.Err(err))
}
