package hostfuncs

import "log/slog"

// BuildRegistry assembles the byte-handler surface for this plugin. The
// scalar exports (now_ms, node_id, hlc_now, is_leader, leader_id,
// random_bytes) are not registered here; the sandbox adapter wires those
// directly because they bypass the packed-buffer protocol.
//
// Conditionally registered: hook_list/hook_metrics/hook_trigger need a
// hook collaborator, sql_query needs a SQL collaborator, and
// service_execute needs at least one service executor. Absent
// collaborators leave the export missing entirely so guests can feature
// detect at link time.
func (hc *HostContext) BuildRegistry() (*HandlerRegistry, error) {
	opts := []RegistryOption{
		WithMiddleware(PanicRecoveryMiddleware()),
		WithMiddleware(LoggingMiddleware(hc.logger, hc.pluginName)),

		WithByteHandler("log_info", hc.logAt(slog.LevelInfo)),
		WithByteHandler("log_debug", hc.logAt(slog.LevelDebug)),
		WithByteHandler("log_warn", hc.logAt(slog.LevelWarn)),

		WithByteHandler("kv_get", hc.kvGet()),
		WithByteHandler("kv_put", hc.kvPut()),
		WithByteHandler("kv_delete", hc.kvDelete()),
		WithByteHandler("kv_cas", hc.kvCas()),
		WithByteHandler("kv_scan", hc.kvScan()),
		WithByteHandler("kv_batch", hc.kvBatch()),
		WithByteHandler("kv_execute", hc.kvExecute()),

		WithByteHandler("blob_has", hc.blobHas()),
		WithByteHandler("blob_get", hc.blobGet()),
		WithByteHandler("blob_put", hc.blobPut()),

		WithByteHandler("sign", hc.sign()),
		WithByteHandler("verify", hc.verify()),
		WithByteHandler("public_key_hex", hc.publicKeyHex()),

		WithByteHandler("schedule_timer", hc.scheduleTimer()),
		WithByteHandler("cancel_timer", hc.cancelTimer()),

		WithByteHandler("hook_subscribe", hc.hookSubscribe()),
		WithByteHandler("hook_unsubscribe", hc.hookUnsubscribe()),
	}

	if hc.hooks != nil {
		opts = append(opts,
			WithByteHandler("hook_list", hc.hookList()),
			WithByteHandler("hook_metrics", hc.hookMetrics()),
			WithByteHandler("hook_trigger", hc.hookTrigger()),
		)
	}
	if hc.sql != nil {
		opts = append(opts, WithByteHandler("sql_query", hc.sqlQuery()))
	}
	if len(hc.services) > 0 {
		opts = append(opts, WithByteHandler("service_execute", hc.serviceExecute()))
	}

	return NewRegistry(opts...)
}
