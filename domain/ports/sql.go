package ports

import "context"

// SQLQuery is one read-only query with already-coerced parameters: each
// param is nil, int64, float64, string, or []byte.
type SQLQuery struct {
	Query       string
	Params      []any
	Consistency string // "linearizable" (default) or "stale"
	Limit       uint32
	TimeoutMs   uint64
}

// SQLResult carries rows in column order. Cell values use the same domain
// as SQLQuery params.
type SQLResult struct {
	Columns         []string
	Rows            [][]any
	RowCount        int
	Truncated       bool
	ExecutionTimeMs uint64
}

// SQLQueryExecutor runs read-only SQL on behalf of plugins. Optional: when
// absent, the sql_query host function is not registered.
type SQLQueryExecutor interface {
	Query(ctx context.Context, q SQLQuery) (*SQLResult, error)
}
