package hostfuncs

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/larch-dev/larch-host/abi"
)

// serviceExecute dispatches to a named host service. The request is JSON
// with a "service" field naming the executor and an optional "op" naming
// the method; the executor receives the full request so it can define its
// own parameter shape. Only registered when at least one executor is
// configured.
func (hc *HostContext) serviceExecute() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if !gjson.ValidBytes(payload) {
			return abi.ErrBytes("invalid JSON in service_execute request"), nil
		}
		req := gjson.ParseBytes(payload)
		service := req.Get("service").String()
		if service == "" {
			return abi.ErrBytes("missing 'service' field"), nil
		}
		executor, ok := hc.services[service]
		if !ok {
			return abi.ErrBytes(fmt.Sprintf("unknown service: %s", service)), nil
		}
		result, err := executor.Execute(ctx, req.Get("op").String(), payload)
		if err != nil {
			hc.logger.Warn("service_execute failed", "plugin", hc.pluginName, "service", service, "error", err)
			return abi.ErrBytes(err.Error()), nil
		}
		return abi.OKBytes(result), nil
	}
}
