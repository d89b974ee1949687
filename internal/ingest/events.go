package ingest

import (
	"math"
	"time"
)

// Event is one progress frame on an ingest run's stream. Lifecycle events
// carry a Type; per-file progress frames leave it empty and use
// Current/Total/File/Step, matching what the UI expects.
type Event struct {
	Type string `json:"type,omitempty"`

	// Per-file progress
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	File    string `json:"file,omitempty"`
	Step    string `json:"step,omitempty"`

	Message string `json:"message,omitempty"`

	// setup
	Subjects   int `json:"subjects,omitempty"`
	Packages   int `json:"packages,omitempty"`
	TotalFiles int `json:"total_files,omitempty"`

	// datasets
	Subject string `json:"subject,omitempty"`
	Created int    `json:"created,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
	Errors  int    `json:"errors,omitempty"`

	// complete
	PackageID       string   `json:"package_id,omitempty"`
	FileCount       int      `json:"file_count,omitempty"`
	SubjectsCreated []string `json:"subjects_created,omitempty"`

	// Seconds since the run started, one decimal.
	Elapsed float64 `json:"elapsed"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == "complete" || e.Type == "error"
}

// Emitter carries events from a running ingest to at most one consumer. The
// channel is buffered; per-file progress frames are dropped when the
// consumer lags, lifecycle frames always get through in order.
type Emitter struct {
	ch     chan Event
	start  time.Time
	closed bool
}

// NewEmitter creates an emitter buffering up to size events.
func NewEmitter(size int) *Emitter {
	if size <= 0 {
		size = 64
	}
	return &Emitter{
		ch:    make(chan Event, size),
		start: time.Now(),
	}
}

// Events is the consumer side. It closes after a terminal event.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

func (e *Emitter) stamp(ev Event) Event {
	ev.Elapsed = math.Round(time.Since(e.start).Seconds()*10) / 10
	return ev
}

// Progress sends a per-file frame, dropping it if the buffer is full. A
// slow or absent consumer never stalls the pipeline.
func (e *Emitter) Progress(ev Event) {
	if e.closed {
		return
	}
	select {
	case e.ch <- e.stamp(ev):
	default:
	}
}

// Lifecycle sends a frame that must not be dropped (setup, finalizing,
// datasets). Blocks until there is buffer room.
func (e *Emitter) Lifecycle(ev Event) {
	if e.closed {
		return
	}
	e.ch <- e.stamp(ev)
}

// Close sends the terminal frame and closes the stream. Exactly one
// terminal event is delivered per run; later calls are ignored.
func (e *Emitter) Close(ev Event) {
	if e.closed {
		return
	}
	e.closed = true
	e.ch <- e.stamp(ev)
	close(e.ch)
}
