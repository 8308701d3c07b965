// Package stdio carries newline-delimited JSON-RPC over a reader/writer
// pair, normally stdin and stdout, and runs the sequential serve loop.
package stdio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gaspardpetit/bundocs-mcp/internal/logx"
)

// max characters of a message shown in debug logs
const debugMessageMaxLen = 80

// Transport reads and writes one JSON document per line. All logging goes to
// stderr so the stream stays clean.
type Transport struct {
	in  *bufio.Reader
	out *bufio.Writer
}

// New returns a Transport over the given reader and writer.
func New(r io.Reader, w io.Writer) *Transport {
	return &Transport{in: bufio.NewReader(r), out: bufio.NewWriter(w)}
}

// NewStdio returns a Transport bound to the process stdin/stdout.
func NewStdio() *Transport {
	return New(os.Stdin, os.Stdout)
}

// ReadMessage returns the next non-empty line with surrounding whitespace
// trimmed. It returns io.EOF when the input closes.
func (t *Transport) ReadMessage() (string, error) {
	for {
		line, err := t.in.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && strings.TrimSpace(line) != "" {
				// final line missing its terminator
				msg := strings.TrimSpace(line)
				logx.Log.Debug().Str("message", truncateForDebug(msg)).Msg("read message")
				return msg, nil
			}
			if errors.Is(err, io.EOF) {
				logx.Log.Debug().Msg("EOF on input")
			}
			return "", err
		}
		msg := strings.TrimSpace(line)
		if msg == "" {
			continue
		}
		logx.Log.Debug().Str("message", truncateForDebug(msg)).Msg("read message")
		return msg, nil
	}
}

// WriteMessage writes one message followed by a newline and flushes.
func (t *Transport) WriteMessage(msg []byte) error {
	if _, err := t.out.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := t.out.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := t.out.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// truncateForDebug shortens a message for logging without splitting a rune.
func truncateForDebug(msg string) string {
	if len(msg) <= debugMessageMaxLen {
		return msg
	}
	cut := debugMessageMaxLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}
