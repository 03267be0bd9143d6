// Package sse decodes Server-Sent-Events streams and transcodes chat
// completion deltas into plain text chunks.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// MaxLineSize bounds a single SSE line
const MaxLineSize = 1 << 20

// DoneSentinel is the data value that ends a chat completion stream
const DoneSentinel = "[DONE]"

var (
	// ErrDone is returned by Decoder.Next once a data: [DONE] line is read
	ErrDone = errors.New("sse: done sentinel received")

	ErrLineTooLong = errors.New("sse: line too long")
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Event is a dispatched SSE event. Data lines are joined with "\n".
type Event struct {
	Event string
	ID    string
	Data  string
}

// Decoder reads events one at a time. It is not safe for concurrent use.
type Decoder struct {
	r         *bufio.Reader
	line      []byte
	data      bytes.Buffer
	hasData   bool
	event     string
	lastID    string
	skipLF    bool
	firstLine bool
	finished  bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), firstLine: true}
}

// readLine handles LF, CRLF and lone CR terminators. Lines are kept as raw
// bytes until complete so multi-byte characters split across reads are never
// decoded early.
func (d *Decoder) readLine() ([]byte, error) {
	d.line = d.line[:0]
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(d.line) > 0 {
				return d.line, nil
			}
			return nil, err
		}
		if d.skipLF {
			d.skipLF = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case '\n':
			return d.line, nil
		case '\r':
			d.skipLF = true
			return d.line, nil
		}
		if len(d.line) >= MaxLineSize {
			return nil, ErrLineTooLong
		}
		d.line = append(d.line, b)
	}
}

// Next returns the next event. It returns ErrDone when the sentinel is seen
// and io.EOF when the stream ends; a pending event without its terminating
// blank line is flushed before io.EOF.
func (d *Decoder) Next() (Event, error) {
	if d.finished {
		return Event{}, io.EOF
	}
	for {
		line, err := d.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Event{}, err
			}
			d.finished = true
			if d.hasData {
				return d.dispatch(), nil
			}
			return Event{}, io.EOF
		}
		if d.firstLine {
			d.firstLine = false
			line = bytes.TrimPrefix(line, bom)
		}

		if len(line) == 0 {
			if d.hasData {
				return d.dispatch(), nil
			}
			d.event = ""
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, found := bytes.Cut(line, []byte(":"))
		if found {
			value = bytes.TrimPrefix(value, []byte(" "))
		}

		switch string(field) {
		case "data":
			if string(value) == DoneSentinel {
				d.finished = true
				return Event{}, ErrDone
			}
			if d.hasData {
				d.data.WriteByte('\n')
			}
			d.data.Write(value)
			d.hasData = true
		case "event":
			d.event = string(value)
		case "id":
			if bytes.IndexByte(value, 0) == -1 {
				d.lastID = string(value)
			}
		}
	}
}

func (d *Decoder) dispatch() Event {
	ev := Event{Event: d.event, ID: d.lastID, Data: d.data.String()}
	d.data.Reset()
	d.hasData = false
	d.event = ""
	return ev
}
