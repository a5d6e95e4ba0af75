package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/guestexec/internal/procreg"
)

// Recorder bridges the event loop to a Sink. Registry records are converted
// to events and handed to a background goroutine, so sink latency (a slow
// database, an unreachable ClickHouse) never stalls request processing.
// Events are dropped with a warning when the queue is full.
type Recorder struct {
	sink Sink
	ch   chan Event
	done chan struct{}
	log  *slog.Logger
}

const recorderQueueDepth = 256

func NewRecorder(sink Sink, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		sink: sink,
		ch:   make(chan Event, recorderQueueDepth),
		done: make(chan struct{}),
		log:  log,
	}
	go r.drain()
	return r
}

// RecordExit enqueues an exit event for a terminal registry record.
func (r *Recorder) RecordExit(rec procreg.Record) {
	e := Event{
		Type:       EventExit,
		OccurredAt: time.Now(),
		Name:       rec.Name,
		User:       rec.User,
		Pid:        rec.Pid,
		StartedAt:  time.Unix(rec.StartTime, 0),
		EndedAt:    time.Unix(rec.EndTime, 0),
		ExitCode:   rec.ExitCode,
	}
	select {
	case r.ch <- e:
	default:
		r.log.Warn("history queue full, dropping event", "pid", rec.Pid)
	}
}

// Close flushes queued events and stops the background goroutine.
func (r *Recorder) Close() {
	close(r.ch)
	<-r.done
}

func (r *Recorder) drain() {
	defer close(r.done)
	for e := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.sink.Send(ctx, e); err != nil {
			r.log.Warn("history sink send failed", "pid", e.Pid, "error", err)
		}
		cancel()
	}
}
