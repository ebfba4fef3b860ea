// Package scheduler runs per-plugin named timers. When a timer fires, the
// guest's plugin_on_timer export is called with the timer name. Timer
// counts are bounded and intervals clamped so a runaway guest cannot
// exhaust the host.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/domain/errors"
	"github.com/larch-dev/larch-host/hostfuncs"
	"github.com/larch-dev/larch-host/sandbox"
)

// Scheduler manages the timers of a single plugin. Each scheduled timer
// runs its own goroutine; the shared guest handle serializes the actual
// callback calls.
type Scheduler struct {
	plugin  string
	guest   sandbox.GuestCaller
	timeout time.Duration
	logger  *slog.Logger

	mu sync.Mutex
	// timers holds the cancel function of each active timer task, keyed by
	// timer name. Completed one-shot timers keep their entry until
	// cancelled or replaced, and count against the limit.
	timers map[string]context.CancelFunc
}

// New creates a scheduler bound to one plugin's guest handle.
func New(plugin string, guest sandbox.GuestCaller, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		plugin:  plugin,
		guest:   guest,
		timeout: timeout,
		logger:  logger,
		timers:  make(map[string]context.CancelFunc),
	}
}

// Schedule starts a timer, replacing any existing timer with the same
// name. Intervals are clamped to the allowed range. Fails when the plugin
// is already at its timer limit.
func (s *Scheduler) Schedule(config entities.TimerConfig) error {
	interval := config.ClampedInterval()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.timers[config.Name]; !exists && len(s.timers) >= entities.MaxTimersPerPlugin {
		return &errors.ResourceLimitError{
			Plugin:   s.plugin,
			Resource: "timers",
			Limit:    entities.MaxTimersPerPlugin,
		}
	}
	if cancel, ok := s.timers[config.Name]; ok {
		cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.timers[config.Name] = cancel
	go s.run(ctx, config.Name, interval, config.Repeating)

	s.logger.Info("timer scheduled",
		"plugin", s.plugin,
		"timer", config.Name,
		"interval_ms", interval.Milliseconds(),
		"repeating", config.Repeating)
	return nil
}

// run is the timer task: wait one interval, fire, repeat if configured.
func (s *Scheduler) run(ctx context.Context, name string, interval time.Duration, repeating bool) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		input, err := json.Marshal(name)
		if err != nil {
			s.logger.Warn("failed to encode timer name", "plugin", s.plugin, "timer", name, "error", err)
			return
		}
		if _, err := s.guest.Call(ctx, "plugin_on_timer", input, s.timeout); err != nil {
			s.logger.Warn("timer callback failed",
				"plugin", s.plugin, "timer", name, "error", err)
		} else {
			s.logger.Debug("timer callback completed", "plugin", s.plugin, "timer", name)
		}

		if !repeating {
			return
		}
		timer.Reset(interval)
	}
}

// Cancel stops a timer by name. Returns true if the timer existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.timers[name]
	if !ok {
		return false
	}
	cancel()
	delete(s.timers, name)
	s.logger.Info("timer cancelled", "plugin", s.plugin, "timer", name)
	return true
}

// CancelAll stops every timer. Called during plugin shutdown.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := len(s.timers)
	for name, cancel := range s.timers {
		cancel()
		delete(s.timers, name)
	}
	if count > 0 {
		s.logger.Info("all timers cancelled", "plugin", s.plugin, "cancelled", count)
	}
}

// Count returns the number of registered timers.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Apply executes deferred scheduler commands drained from the host
// function queue. Failures are logged, never propagated to the guest call
// that enqueued them.
func (s *Scheduler) Apply(commands []hostfuncs.SchedulerCommand) {
	for _, cmd := range commands {
		switch cmd.Kind {
		case hostfuncs.SchedulerSchedule:
			if err := s.Schedule(cmd.Config); err != nil {
				s.logger.Warn("failed to schedule timer",
					"plugin", s.plugin, "timer", cmd.Config.Name, "error", err)
			}
		case hostfuncs.SchedulerCancel:
			s.Cancel(cmd.Name)
		}
	}
}
