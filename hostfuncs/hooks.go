package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/larch-dev/larch-host/abi"
	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/wireformat"
)

// hookSubscribe queues a subscription to a topic pattern. The router
// applies it after the current guest call returns.
func (hc *HostContext) hookSubscribe() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "hooks", hc.permissions.Hooks); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		pattern := string(payload)
		if pattern == "" {
			return abi.ErrString("hook pattern cannot be empty"), nil
		}
		if len(pattern) > entities.MaxHookPatternLen {
			return abi.ErrString(fmt.Sprintf("hook pattern exceeds %d bytes", entities.MaxHookPatternLen)), nil
		}
		hc.subscriptionQueue.Push(SubscriptionCommand{Kind: SubscriptionSubscribe, Pattern: pattern})
		return abi.OKString(""), nil
	}
}

// hookUnsubscribe queues removal of a subscription.
func (hc *HostContext) hookUnsubscribe() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "hooks", hc.permissions.Hooks); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		pattern := string(payload)
		if pattern == "" {
			return abi.ErrString("hook pattern cannot be empty"), nil
		}
		hc.subscriptionQueue.Push(SubscriptionCommand{Kind: SubscriptionUnsubscribe, Pattern: pattern})
		return abi.OKString(""), nil
	}
}

// hookList reports the configured hook handlers. Only registered when a
// hook collaborator is present.
func (hc *HostContext) hookList() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "hooks", hc.permissions.Hooks); err != nil {
			return abi.ErrBytes(err.Error()), nil
		}
		handlers, err := hc.hooks.Handlers(ctx)
		if err != nil {
			return abi.ErrBytes(fmt.Sprintf("hook_list failed: %v", err)), nil
		}
		resp := wireformat.HookListResponse{
			IsEnabled: hc.hooks.Enabled(),
			Handlers:  make([]wireformat.HookHandlerWire, len(handlers)),
		}
		for i, h := range handlers {
			resp.Handlers[i] = wireformat.HookHandlerWire{
				Name:          h.Name,
				Pattern:       h.Pattern,
				HandlerType:   h.HandlerType,
				ExecutionMode: h.ExecutionMode,
				Enabled:       h.Enabled,
				TimeoutMs:     h.TimeoutMs,
				RetryCount:    h.RetryCount,
			}
		}
		encoded, err := json.Marshal(resp)
		if err != nil {
			return abi.ErrBytes(fmt.Sprintf("serialize failed: %v", err)), nil
		}
		return abi.OKBytes(encoded), nil
	}
}

// hookMetrics reports hook execution metrics. The payload is an optional
// handler name filter.
func (hc *HostContext) hookMetrics() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "hooks", hc.permissions.Hooks); err != nil {
			return abi.ErrBytes(err.Error()), nil
		}
		snapshot, err := hc.hooks.Metrics(ctx, string(payload))
		if err != nil {
			return abi.ErrBytes(fmt.Sprintf("hook_metrics failed: %v", err)), nil
		}
		resp := wireformat.HookMetricsResponse{
			IsEnabled:            snapshot.Enabled,
			TotalEventsProcessed: snapshot.TotalEventsProcessed,
			Handlers:             make([]wireformat.HookHandlerMetricsW, len(snapshot.Handlers)),
		}
		for i, m := range snapshot.Handlers {
			resp.Handlers[i] = wireformat.HookHandlerMetricsW{
				Name:          m.Name,
				SuccessCount:  m.SuccessCount,
				FailureCount:  m.FailureCount,
				DroppedCount:  m.DroppedCount,
				JobsSubmitted: m.JobsSubmitted,
				AvgDurationUs: m.AvgDurationUs,
				MaxDurationUs: m.MaxDurationUs,
			}
		}
		encoded, err := json.Marshal(resp)
		if err != nil {
			return abi.ErrBytes(fmt.Sprintf("serialize failed: %v", err)), nil
		}
		return abi.OKBytes(encoded), nil
	}
}

// hookTrigger dispatches a synthetic event. A disabled or missing service
// answers with a structured failure rather than a protocol error so guests
// can probe availability.
func (hc *HostContext) hookTrigger() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "hooks", hc.permissions.Hooks); err != nil {
			return abi.ErrBytes(err.Error()), nil
		}
		if !gjson.ValidBytes(payload) {
			return abi.ErrBytes("invalid JSON in hook_trigger request"), nil
		}
		req := gjson.ParseBytes(payload)
		eventType := req.Get("event_type").String()
		if eventType == "" {
			return abi.ErrBytes("missing 'event_type'"), nil
		}
		eventPayload := json.RawMessage(`{}`)
		if p := req.Get("payload"); p.Exists() {
			eventPayload = json.RawMessage(p.Raw)
		}

		var resp wireformat.HookTriggerResponse
		if !hc.hooks.Enabled() {
			resp = wireformat.HookTriggerResponse{Error: "hooks not enabled", HandlerFailures: []string{}}
		} else {
			dispatch, err := hc.hooks.Trigger(ctx, eventType, eventPayload)
			if err != nil {
				resp = wireformat.HookTriggerResponse{Error: err.Error(), HandlerFailures: []string{}}
			} else {
				resp = wireformat.HookTriggerResponse{
					IsSuccess:       dispatch.Success,
					DispatchedCount: dispatch.DispatchedCount,
					Error:           dispatch.Error,
					HandlerFailures: dispatch.HandlerFailures,
				}
				if resp.HandlerFailures == nil {
					resp.HandlerFailures = []string{}
				}
			}
		}
		encoded, err := json.Marshal(resp)
		if err != nil {
			return abi.ErrBytes(fmt.Sprintf("serialize failed: %v", err)), nil
		}
		return abi.OKBytes(encoded), nil
	}
}
