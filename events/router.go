// Package events routes hook events into plugins. Each plugin owns one
// Router holding its subscription patterns; events whose topic matches any
// pattern are delivered to the guest's plugin_on_hook_event export.
//
// Topic patterns use NATS-style wildcards over dot-delimited segments:
// `*` matches exactly one segment, `>` matches zero or more trailing
// segments.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/domain/errors"
	"github.com/larch-dev/larch-host/hostfuncs"
	"github.com/larch-dev/larch-host/sandbox"
	"github.com/larch-dev/larch-host/wireformat"
)

// Router manages hook subscriptions for a single plugin and delivers
// matching events to its guest.
type Router struct {
	plugin  string
	guest   sandbox.GuestCaller
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.RWMutex
	patterns map[string]struct{}
}

// NewRouter creates an event router bound to one plugin's guest handle.
func NewRouter(plugin string, guest sandbox.GuestCaller, timeout time.Duration, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		plugin:   plugin,
		guest:    guest,
		timeout:  timeout,
		logger:   logger,
		patterns: make(map[string]struct{}),
	}
}

// Subscribe adds a pattern. Subscribing twice to the same pattern is
// idempotent. Fails when the plugin is at its subscription limit.
func (r *Router) Subscribe(pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patterns[pattern]; ok {
		return nil
	}
	if len(r.patterns) >= entities.MaxHookSubscriptionsPerPlugin {
		return &errors.ResourceLimitError{
			Plugin:   r.plugin,
			Resource: "hook_subscriptions",
			Limit:    entities.MaxHookSubscriptionsPerPlugin,
		}
	}
	r.patterns[pattern] = struct{}{}
	r.logger.Info("hook subscription added", "plugin", r.plugin, "pattern", pattern)
	return nil
}

// Unsubscribe removes a pattern. Returns true if it was present.
func (r *Router) Unsubscribe(pattern string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patterns[pattern]; !ok {
		return false
	}
	delete(r.patterns, pattern)
	r.logger.Info("hook subscription removed", "plugin", r.plugin, "pattern", pattern)
	return true
}

// UnsubscribeAll clears every subscription. Called during plugin shutdown.
func (r *Router) UnsubscribeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := len(r.patterns)
	clear(r.patterns)
	if count > 0 {
		r.logger.Info("all hook subscriptions removed", "plugin", r.plugin, "removed", count)
	}
}

// HasMatch reports whether any subscription matches the topic.
func (r *Router) HasMatch(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for pattern := range r.patterns {
		if Matches(pattern, topic) {
			return true
		}
	}
	return false
}

// Count returns the number of active subscriptions.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}

// Deliver passes a hook event to the guest if any subscription matches the
// topic. Guest failures are logged, never propagated; a wedged or faulty
// plugin cannot disturb event producers. Returns true when a subscription
// matched.
func (r *Router) Deliver(ctx context.Context, topic string, event json.RawMessage) bool {
	if !r.HasMatch(topic) {
		return false
	}

	envelope := wireformat.HookEventWire{Topic: topic, Event: event}
	if len(event) == 0 {
		envelope.Event = json.RawMessage("null")
	}
	input, err := json.Marshal(envelope)
	if err != nil {
		r.logger.Warn("failed to serialize hook event for delivery",
			"plugin", r.plugin, "topic", topic, "error", err)
		return false
	}

	if _, err := r.guest.Call(ctx, "plugin_on_hook_event", input, r.timeout); err != nil {
		r.logger.Warn("hook event delivery failed",
			"plugin", r.plugin, "topic", topic, "error", err)
	} else {
		r.logger.Debug("hook event delivered", "plugin", r.plugin, "topic", topic)
	}
	return true
}

// Apply executes deferred subscription commands drained from the host
// function queue.
func (r *Router) Apply(commands []hostfuncs.SubscriptionCommand) {
	for _, cmd := range commands {
		switch cmd.Kind {
		case hostfuncs.SubscriptionSubscribe:
			if err := r.Subscribe(cmd.Pattern); err != nil {
				r.logger.Warn("failed to add hook subscription",
					"plugin", r.plugin, "pattern", cmd.Pattern, "error", err)
			}
		case hostfuncs.SubscriptionUnsubscribe:
			r.Unsubscribe(cmd.Pattern)
		}
	}
}

// Matches reports whether a NATS-style pattern matches a dot-delimited
// topic. `*` matches exactly one segment; `>` matches zero or more
// trailing segments.
//
//	Matches("hooks.kv.*", "hooks.kv.write_committed")  == true
//	Matches("hooks.>", "hooks.cluster.leader_elected") == true
//	Matches(">", anything)                             == true
func Matches(pattern, topic string) bool {
	patternParts := strings.Split(pattern, ".")
	topicParts := strings.Split(topic, ".")

	ti := 0
	for _, p := range patternParts {
		if p == ">" {
			return true
		}
		if ti >= len(topicParts) {
			return false
		}
		if p != "*" && p != topicParts[ti] {
			return false
		}
		ti++
	}
	return ti >= len(topicParts)
}
