package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/larch-dev/larch-host/abi"
	"github.com/larch-dev/larch-host/domain/ports"
	"github.com/larch-dev/larch-host/wireformat"
)

// coerceSQLParams maps JSON parameter values onto SQL values: null stays
// nil, bools become 0/1 integers, numbers become integers when they fit
// and reals otherwise, strings pass through, and anything structured is
// stringified.
func coerceSQLParams(paramsJSON string) ([]any, error) {
	if paramsJSON == "" {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(paramsJSON), &raw); err != nil {
		return nil, fmt.Errorf("invalid params JSON: %w", err)
	}
	params := make([]any, len(raw))
	for i, r := range raw {
		var v any
		dec := json.NewDecoder(strings.NewReader(string(r)))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("invalid params JSON: %w", err)
		}
		switch t := v.(type) {
		case nil:
			params[i] = nil
		case bool:
			if t {
				params[i] = int64(1)
			} else {
				params[i] = int64(0)
			}
		case json.Number:
			if n, err := t.Int64(); err == nil {
				params[i] = n
			} else if f, err := t.Float64(); err == nil {
				params[i] = f
			} else {
				params[i] = t.String()
			}
		case string:
			params[i] = t
		default:
			params[i] = string(r)
		}
	}
	return params, nil
}

// sqlQuery runs a read-only query. Only registered when a SQL collaborator
// is configured. Blob cells are rendered as "base64:<data>" strings.
func (hc *HostContext) sqlQuery() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "sql_query", hc.permissions.SQLQuery); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		var req wireformat.SQLQueryRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return abi.ErrString(fmt.Sprintf("invalid sql_query request: %v", err)), nil
		}
		params, err := coerceSQLParams(req.ParamsJSON)
		if err != nil {
			return abi.ErrString(err.Error()), nil
		}
		consistency := "linearizable"
		if strings.EqualFold(req.Consistency, "stale") {
			consistency = "stale"
		}
		result, err := hc.sql.Query(ctx, ports.SQLQuery{
			Query:       req.Query,
			Params:      params,
			Consistency: consistency,
			Limit:       req.Limit,
			TimeoutMs:   req.TimeoutMs,
		})
		if err != nil {
			hc.logger.Warn("sql_query failed", "plugin", hc.pluginName, "error", err)
			return abi.ErrString(err.Error()), nil
		}
		rows := make([][]any, len(result.Rows))
		for i, row := range result.Rows {
			cells := make([]any, len(row))
			for j, cell := range row {
				if b, ok := cell.([]byte); ok {
					cells[j] = "base64:" + abi.EncodeBase64(b)
				} else {
					cells[j] = cell
				}
			}
			rows[i] = cells
		}
		resp := wireformat.SQLQueryResponse{
			Columns:         result.Columns,
			Rows:            rows,
			RowCount:        result.RowCount,
			IsTruncated:     result.Truncated,
			ExecutionTimeMs: result.ExecutionTimeMs,
		}
		encoded, err := json.Marshal(resp)
		if err != nil {
			return abi.ErrString(fmt.Sprintf("failed to serialize SQL result: %v", err)), nil
		}
		return abi.OKBytes(encoded), nil
	}
}
