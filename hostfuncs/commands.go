package hostfuncs

import (
	"sync"

	"github.com/larch-dev/larch-host/domain/entities"
)

// Queue is a concurrency-safe FIFO of deferred commands. Host functions
// append during a guest call; the plugin handler drains after the call
// returns. Deferring keeps host functions from touching the scheduler or
// router while the sandbox lock is held.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// Push appends one command.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Drain removes and returns all queued commands in arrival order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued commands.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// SchedulerCommandKind discriminates scheduler commands.
type SchedulerCommandKind uint8

const (
	SchedulerSchedule SchedulerCommandKind = iota
	SchedulerCancel
)

// SchedulerCommand is a deferred timer operation requested by the guest.
type SchedulerCommand struct {
	Kind   SchedulerCommandKind
	Config entities.TimerConfig // SchedulerSchedule
	Name   string               // SchedulerCancel
}

// SubscriptionCommandKind discriminates subscription commands.
type SubscriptionCommandKind uint8

const (
	SubscriptionSubscribe SubscriptionCommandKind = iota
	SubscriptionUnsubscribe
)

// SubscriptionCommand is a deferred hook subscription change requested by
// the guest.
type SubscriptionCommand struct {
	Kind    SubscriptionCommandKind
	Pattern string
}
