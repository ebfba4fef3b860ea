package wireformat

import (
	"encoding/json"
	"fmt"

	domerrors "github.com/larch-dev/larch-host/domain/errors"
)

// RPCRequest is the externally-tagged request envelope dispatched to guest
// request handlers: {"Kind": {...body...}} for payload-carrying requests,
// or the bare string "Kind" for unit requests.
type RPCRequest struct {
	Kind string
	Body json.RawMessage
}

func (r RPCRequest) MarshalJSON() ([]byte, error) {
	if len(r.Body) == 0 {
		return json.Marshal(r.Kind)
	}
	return json.Marshal(map[string]json.RawMessage{r.Kind: r.Body})
}

func (r *RPCRequest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Kind = s
		r.Body = nil
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("request envelope must have exactly one variant, got %d", len(m))
	}
	for k, v := range m {
		r.Kind = k
		r.Body = v
	}
	return nil
}

// RequestKind extracts the variant name from a serialized request without
// decoding its body.
func RequestKind(data []byte) (string, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", &domerrors.DecodeError{What: "request envelope", Err: err}
	}
	if req.Kind == "" {
		return "", &domerrors.DecodeError{What: "request envelope", Err: fmt.Errorf("empty variant name")}
	}
	return req.Kind, nil
}
