package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/larch-dev/larch-host/abi"
	"github.com/larch-dev/larch-host/domain/entities"
)

// scheduleTimer queues a timer request. The scheduler itself applies it
// after the current guest call returns; enqueueing here would deadlock on
// the sandbox lock if the timer fired immediately.
func (hc *HostContext) scheduleTimer() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "timers", hc.permissions.Timers); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		var config entities.TimerConfig
		if err := json.Unmarshal(payload, &config); err != nil {
			return abi.ErrString(fmt.Sprintf("invalid timer config: %v", err)), nil
		}
		if config.Name == "" {
			return abi.ErrString("timer name cannot be empty"), nil
		}
		if len(config.Name) > entities.MaxTimerNameLen {
			return abi.ErrString(fmt.Sprintf("timer name exceeds %d bytes", entities.MaxTimerNameLen)), nil
		}
		hc.schedulerQueue.Push(SchedulerCommand{Kind: SchedulerSchedule, Config: config})
		return abi.OKString(""), nil
	}
}

// cancelTimer queues a cancellation by name.
func (hc *HostContext) cancelTimer() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "timers", hc.permissions.Timers); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		name := string(payload)
		if name == "" {
			return abi.ErrString("timer name cannot be empty"), nil
		}
		hc.schedulerQueue.Push(SchedulerCommand{Kind: SchedulerCancel, Name: name})
		return abi.OKString(""), nil
	}
}
