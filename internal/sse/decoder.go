// Package sse decodes Server-Sent-Events framing from a byte stream.
//
// The decoder is pull-based: each call to Next consumes one record from the
// underlying reader and returns it as an Event. Beyond bufio read-ahead it
// does not consume past the record boundary, so a caller that stops early
// leaves the rest of the stream unread.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrMalformedRecord reports a record that could not be decoded: a field line
// without a colon, invalid UTF-8, or a record left unterminated at the end of
// the stream. The decoder has already skipped to the record boundary when it
// returns this error, so the caller may keep calling Next.
var ErrMalformedRecord = errors.New("malformed sse record")

// Event is one decoded record. Data holds all data field lines of the record
// joined with "\n".
type Event struct {
	Name string
	Data string
	ID   string
}

// Decoder incrementally decodes SSE records from r. Records are separated by
// a blank line; both "\r\n" and bare "\n" line terminators are accepted.
type Decoder struct {
	r   *bufio.Reader
	err error
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next event in the stream. It returns io.EOF at a clean end
// of stream and ErrMalformedRecord for a skippable bad record. Any other
// error is a read failure and is sticky.
func (d *Decoder) Next() (*Event, error) {
	if d.err != nil {
		return nil, d.err
	}
	var (
		fieldSeen bool
		malformed bool
		name, id  string
		data      []string
	)
	for {
		line, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.err = io.EOF
				if fieldSeen || malformed {
					// record ran off the end of the stream
					return nil, ErrMalformedRecord
				}
				return nil, io.EOF
			}
			d.err = err
			return nil, err
		}
		if line == "" {
			if malformed {
				return nil, ErrMalformedRecord
			}
			if !fieldSeen {
				// stray blank line or comment-only record
				continue
			}
			return &Event{Name: name, Data: strings.Join(data, "\n"), ID: id}, nil
		}
		if malformed {
			// draining to the record boundary
			continue
		}
		if !utf8.ValidString(line) {
			malformed = true
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			malformed = true
			continue
		}
		fieldSeen = true
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		case "id":
			id = value
		}
		// unknown fields (retry, ...) are ignored
	}
}

// readLine returns one line with its terminator stripped. A final line whose
// terminator is missing is returned as-is; the following call reports io.EOF
// and Next treats the record as unterminated.
func (d *Decoder) readLine() (string, error) {
	line, err := d.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return trimTerminator(line), nil
		}
		return "", err
	}
	return trimTerminator(line), nil
}

func trimTerminator(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
