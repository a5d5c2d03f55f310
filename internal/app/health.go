package app

import (
	"time"

	"vocabremind/internal/runtime/supervisor"
	"vocabremind/internal/task/engine"
	"vocabremind/internal/task/scheduler"
)

// Health is served on /healthz.
type Health struct {
	Status     string              `json:"status"`
	Started    time.Time           `json:"started"`
	Uptime     string              `json:"uptime"`
	Storage    string              `json:"storage"`
	Triggers   int                 `json:"triggers"`
	Scheduler  scheduler.Snapshot  `json:"scheduler"`
	Engine     engine.Snapshot     `json:"engine"`
	Supervisor supervisor.Snapshot `json:"supervisor"`
}

func (a *App) health() any {
	h := Health{
		Status:  "ok",
		Started: a.started,
		Uptime:  time.Since(a.started).Round(time.Second).String(),
		Storage: a.storageDriver,
	}
	if a.sched != nil {
		h.Scheduler = a.sched.Snapshot()
		h.Triggers = len(h.Scheduler.Triggers)
	}
	if a.engine != nil {
		h.Engine = a.engine.Snapshot()
		h.Engine.History = nil
	}
	if a.sup != nil {
		h.Supervisor = a.sup.Snapshot()
		if h.Supervisor.FirstError != "" {
			h.Status = "degraded"
		}
	}
	return h
}
