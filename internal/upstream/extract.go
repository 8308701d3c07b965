package upstream

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gaspardpetit/bundocs-mcp/internal/logx"
	"github.com/gaspardpetit/bundocs-mcp/internal/metrics"
	"github.com/gaspardpetit/bundocs-mcp/internal/sse"
)

// extractResponse consumes SSE records one at a time until it finds the first
// data payload that parses as a JSON object carrying a result or error key,
// then stops without reading further. Heartbeats, progress frames, and
// malformed records are skipped. A stream that ends without a terminal
// payload yields ErrNoResponse.
func extractResponse(body io.Reader) (json.RawMessage, error) {
	dec := sse.NewDecoder(body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, sse.ErrMalformedRecord) {
			metrics.RecordsSkipped.Inc()
			logx.Log.Warn().Msg("skipping malformed sse record")
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil, ErrNoResponse
		}
		if err != nil {
			return nil, err
		}
		if !terminalCandidate(ev) {
			logx.Log.Debug().Str("event", ev.Name).Msg("skipping non-terminal sse event")
			continue
		}
		var probe struct {
			Result json.RawMessage `json:"result"`
			Error  json.RawMessage `json:"error"`
		}
		if json.Unmarshal([]byte(ev.Data), &probe) != nil {
			continue
		}
		if probe.Result == nil && probe.Error == nil {
			continue
		}
		return json.RawMessage(ev.Data), nil
	}
}

// terminalCandidate filters to message-like events with a data payload;
// unnamed events default to "message" per the SSE spec.
func terminalCandidate(ev *sse.Event) bool {
	if ev.Data == "" {
		return false
	}
	name := ev.Name
	if name == "" {
		name = "message"
	}
	return name == "message" || name == "completion"
}
