package stdio

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/gaspardpetit/bundocs-mcp/internal/jsonrpc"
	"github.com/gaspardpetit/bundocs-mcp/internal/logx"
)

// Handler answers one decoded request.
type Handler interface {
	Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response
}

// Serve runs the request loop: read one line, dispatch, write one line,
// repeat. Requests never overlap, so responses are emitted in request order.
// Per-request failures are answered on the stream and never stop the loop;
// Serve returns when the input closes or the context is done.
func Serve(ctx context.Context, t *Transport, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := t.ReadMessage()
		if errors.Is(err, io.EOF) {
			logx.Log.Info().Msg("connection closed")
			return nil
		}
		if err != nil {
			return err
		}

		rid := uuid.NewString()[:8]
		var resp *jsonrpc.Response
		req, derr := jsonrpc.DecodeRequest([]byte(line))
		if derr != nil {
			logx.Log.Error().Str("rid", rid).Err(derr).Msg("failed to parse request")
			resp = jsonrpc.NewError(jsonrpc.NullID, jsonrpc.CodeParseError, "Parse error: "+derr.Error())
		} else {
			logx.Log.Info().Str("rid", rid).Str("method", req.Method).Msg("received request")
			resp = h.Handle(ctx, req)
		}

		out, err := resp.Encode()
		if err != nil {
			logx.Log.Error().Str("rid", rid).Err(err).Msg("failed to encode response")
			continue
		}
		if err := t.WriteMessage(out); err != nil {
			logx.Log.Error().Str("rid", rid).Err(err).Msg("failed to write response")
			return err
		}
	}
}
