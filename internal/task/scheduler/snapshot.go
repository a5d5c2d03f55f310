package scheduler

import (
	"sort"
	"time"
)

// FireEvent is the payload of trigger.* events.
type FireEvent struct {
	Reminder string    `json:"reminder"`
	At       time.Time `json:"at"`
}

type TriggerInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Frequency   string    `json:"frequency"`
	Spec        string    `json:"spec"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Next        time.Time `json:"next"`
	Prev        time.Time `json:"prev,omitempty"`
	Fired       int       `json:"fired"`
	LastFired   time.Time `json:"last_fired,omitempty"`
}

type Snapshot struct {
	Enabled  bool          `json:"enabled"`
	Running  bool          `json:"running"`
	Timezone string        `json:"timezone"`
	Triggers []TriggerInfo `json:"triggers"`
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	items := make([]TriggerInfo, 0, len(r.triggers))
	for _, t := range r.triggers {
		it := TriggerInfo{
			ID:          t.ID,
			UserID:      t.Reminder.UserID,
			Frequency:   t.Reminder.Frequency,
			Spec:        t.Rule.Spec(),
			WindowStart: t.Rule.Window.Start,
			WindowEnd:   t.Rule.Window.End,
			Next:        t.Rule.Next(now),
			Fired:       t.fired,
			LastFired:   t.lastFired,
		}
		if r.c != nil && t.entryID != 0 {
			it.Prev = r.c.Entry(t.entryID).Prev
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	return Snapshot{
		Enabled:  r.cfg.Enabled,
		Running:  r.c != nil,
		Timezone: r.loc.String(),
		Triggers: items,
	}
}
