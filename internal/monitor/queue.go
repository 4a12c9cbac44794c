package monitor

import "github.com/eliteGoblin/pathfinder/internal/domain"

// Queue is a bounded FIFO of recent actions. The oldest entry is evicted
// silently when full. Not safe for concurrent use; the Monitor guards it.
type Queue struct {
	items []domain.DetectedActionEvent
	max   int
}

// NewQueue creates a queue holding at most max entries.
func NewQueue(max int) *Queue {
	if max < 1 {
		max = 1
	}
	return &Queue{max: max}
}

// Push appends ev, evicting the oldest entry if needed.
func (q *Queue) Push(ev domain.DetectedActionEvent) {
	if len(q.items) == q.max {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
	}
	q.items = append(q.items, ev)
}

// Snapshot returns a copy of the queued actions, oldest first.
func (q *Queue) Snapshot() []domain.DetectedActionEvent {
	out := make([]domain.DetectedActionEvent, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Clear() { q.items = q.items[:0] }
