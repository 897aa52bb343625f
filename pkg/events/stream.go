package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

const streamBuffer = 256

// ErrStreamClosed is returned by Publish after Close.
var ErrStreamClosed = errors.New("event stream closed")

// Event is one serialized debate event. Seq increases by one per event
// within a stream, making ordering testable on the consumer side.
type Event struct {
	Seq  uint64          `json:"seq"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// Stream is a single-publisher, single-subscriber ordered event pipe. The
// orchestrator is the only publisher, which gives each debate a total event
// order by construction.
type Stream struct {
	ch        chan Event
	seq       atomic.Uint64
	closeOnce sync.Once
	closed    chan struct{}
}

// NewStream creates a buffered stream.
func NewStream() *Stream {
	return &Stream{
		ch:     make(chan Event, streamBuffer),
		closed: make(chan struct{}),
	}
}

// Publish marshals the payload and delivers it in order. It blocks when the
// subscriber is slow and the buffer is full; Publish after Close is a no-op
// returning ErrStreamClosed.
func (s *Stream) Publish(name string, payload any) error {
	select {
	case <-s.closed:
		return ErrStreamClosed
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}
	ev := Event{Seq: s.seq.Add(1), Name: name, Data: data}

	select {
	case s.ch <- ev:
		return nil
	case <-s.closed:
		return ErrStreamClosed
	}
}

// Events returns the subscriber channel. It is closed after Close once all
// published events have been drained.
func (s *Stream) Events() <-chan Event { return s.ch }

// Close ends the stream. Idempotent. Close must be called from the
// publishing goroutine; closing while a Publish is in flight races on the
// underlying channel.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}
