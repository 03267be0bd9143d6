package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"relay-api/internal/shared"
)

var (
	ErrAlreadyConsumed = errors.New("sse: transcoder already consumed")
	ErrUpstreamEvent   = errors.New("sse: upstream sent an error event")
)

// Transcoder turns an upstream chat completion event stream into plain text
// chunks. Bytes are only read when the consumer asks for the next chunk.
type Transcoder struct {
	dec       *Decoder
	consumed  bool
	completed bool
	events    int
	skipped   int
}

func NewTranscoder(r io.Reader) *Transcoder {
	return &Transcoder{dec: NewDecoder(r)}
}

// Transcode is shorthand for NewTranscoder(r).Chunks()
func Transcode(r io.Reader) iter.Seq2[string, error] {
	return NewTranscoder(r).Chunks()
}

// Chunks yields deltas in arrival order. A read failure is yielded once as
// the final element; malformed frames are skipped. The sequence can only be
// ranged over once.
func (t *Transcoder) Chunks() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if t.consumed {
			yield("", ErrAlreadyConsumed)
			return
		}
		t.consumed = true

		for {
			ev, err := t.dec.Next()
			if errors.Is(err, ErrDone) {
				t.completed = true
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			t.events++

			text, err := DeltaText(ev.Data)
			if errors.Is(err, ErrUpstreamEvent) {
				yield("", err)
				return
			}
			if err != nil {
				t.skipped++
				continue
			}
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// Completed reports whether the stream ended with the done sentinel
func (t *Transcoder) Completed() bool {
	return t.completed
}

// Events is the number of dispatched events, including skipped ones
func (t *Transcoder) Events() int {
	return t.events
}

// Skipped is the number of events whose data was not a usable JSON chunk
func (t *Transcoder) Skipped() int {
	return t.skipped
}

// DeltaText extracts choices[0].delta.content from one event payload
func DeltaText(data string) (string, error) {
	var chunk shared.Response
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", err
	}
	if len(chunk.Error) > 0 && string(chunk.Error) != "null" {
		return "", fmt.Errorf("%w: %s", ErrUpstreamEvent, shared.Truncate(string(chunk.Error), 256))
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}
