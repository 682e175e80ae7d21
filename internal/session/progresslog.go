package session

import (
	"context"
	"errors"
	"sync"

	"github.com/xaimorph/morphd/internal/metrics"
)

var (
	// ErrTerminal is returned when appending past a terminal event.
	ErrTerminal = errors.New("progress log is terminal")
	// ErrEndOfStream signals a reader has consumed the terminal event.
	ErrEndOfStream = errors.New("end of stream")
)

// ProgressLog is a per-session append-only event sequence with one writer
// (the job's sequencer) and any number of readers holding independent
// cursors. Appends never block on readers; readers park on a broadcast
// channel until the next append. A reader attaching after the terminal event
// replays only that event.
type ProgressLog struct {
	mu     sync.Mutex
	events []Event
	done   bool
	wake   chan struct{}
}

// NewProgressLog returns an empty, open log.
func NewProgressLog() *ProgressLog {
	return &ProgressLog{wake: make(chan struct{})}
}

// Append adds an event to the log. Appending a terminal event seals the log;
// any append after that returns ErrTerminal.
func (l *ProgressLog) Append(ev Event) error {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return ErrTerminal
	}
	l.events = append(l.events, ev)
	if ev.IsTerminal() {
		l.done = true
	}
	// Broadcast to parked readers, then arm the next round.
	close(l.wake)
	l.wake = make(chan struct{})
	l.mu.Unlock()

	metrics.ProgressEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

// Reader attaches a new cursor. Attaching before the terminal event yields
// events from the attach point forward; attaching after it yields exactly the
// terminal event.
func (l *ProgressLog) Reader() *Reader {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := &Reader{log: l, cursor: len(l.events)}
	if l.done && r.cursor > 0 {
		r.cursor-- // replay the terminal event
	}
	return r
}

// Reader is one consumer's cursor into a ProgressLog. Not safe for
// concurrent use by multiple goroutines; each consumer takes its own.
type Reader struct {
	log    *ProgressLog
	cursor int
}

// Next returns the next event, blocking until one is appended. It returns
// ErrEndOfStream once the terminal event has been consumed, or the context
// error if ctx ends first. Detaching (abandoning the reader) never affects
// the writer or other readers.
func (r *Reader) Next(ctx context.Context) (Event, error) {
	for {
		r.log.mu.Lock()
		if r.cursor < len(r.log.events) {
			ev := r.log.events[r.cursor]
			r.cursor++
			r.log.mu.Unlock()
			return ev, nil
		}
		if r.log.done {
			r.log.mu.Unlock()
			return Event{}, ErrEndOfStream
		}
		wake := r.log.wake
		r.log.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-wake:
		}
	}
}
