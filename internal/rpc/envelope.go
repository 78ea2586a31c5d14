package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// requestEnvelope is the wire shape of a caller -> worker message.
type requestEnvelope struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// responseEnvelope is the wire shape of a worker -> caller message.
type responseEnvelope struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func encodeRequest(id int64, name string, args interface{}) ([]byte, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal args for %q: %w", name, err)
	}
	return json.Marshal(requestEnvelope{ID: id, Name: name, Args: raw})
}

func decodeRequest(b []byte) (requestEnvelope, error) {
	var req requestEnvelope
	if err := json.Unmarshal(b, &req); err != nil {
		return requestEnvelope{}, fmt.Errorf("rpc: malformed request: %w", err)
	}
	return req, nil
}

func encodeResponse(id int64, result interface{}, callErr error) ([]byte, error) {
	resp := responseEnvelope{ID: id}
	if callErr != nil {
		resp.Error = callErr.Error()
	} else if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("rpc: marshal result for id %d: %w", id, err)
		}
		resp.Result = raw
	}
	return json.Marshal(resp)
}

// peekResponseID reads just the "id" field without a full decode — the
// demultiplexing hot path only needs the id to find the pending caller.
func peekResponseID(b []byte) (int64, bool) {
	r := gjson.GetBytes(b, "id")
	if !r.Exists() {
		return 0, false
	}
	return r.Int(), true
}

// peekHasError reports whether the envelope carries a non-empty "error"
// field, without unmarshalling the (possibly large) "result" field.
func peekHasError(b []byte) bool {
	r := gjson.GetBytes(b, "error")
	return r.Exists() && r.String() != ""
}

// peekResult extracts the raw "result" field without unmarshalling the
// rest of the envelope. Used on the success path, which is the common
// case, to avoid a full json.Unmarshal per response.
func peekResult(b []byte) json.RawMessage {
	r := gjson.GetBytes(b, "result")
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}

func decodeResponse(b []byte) (responseEnvelope, error) {
	var resp responseEnvelope
	if err := json.Unmarshal(b, &resp); err != nil {
		return responseEnvelope{}, fmt.Errorf("rpc: malformed response: %w", err)
	}
	return resp, nil
}
