package hostfuncs

import (
	"context"
	"log/slog"

	"github.com/larch-dev/larch-host/abi"
)

// Guest logging. The payload is the raw message; the plugin name is
// attached so interleaved plugin output stays attributable. Always
// registered regardless of permissions.

func (hc *HostContext) logAt(level slog.Level) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		hc.logger.Log(ctx, level, string(payload), "plugin", hc.pluginName)
		return abi.OKString(""), nil
	}
}
