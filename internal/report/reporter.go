// Package report bridges scheduler events to an observer running on its
// own goroutine. Posting never blocks the scheduler and events are
// delivered in emission order, so a slow observer (GUI, SSE fan-out)
// can never stall or reorder the acquisition loop.
package report

import (
	"sync"
)

// Observer receives events in the order they were emitted. All methods
// are invoked from a single delivery goroutine owned by the Reporter.
type Observer interface {
	OnLog(msg string)
	OnProgress(current, total int)
}

type eventKind int

const (
	kindLog eventKind = iota
	kindProgress
)

type event struct {
	kind    eventKind
	msg     string
	current int
	total   int
}

// Reporter is an order-preserving, non-blocking event queue with a
// single drain goroutine. Producers append under a mutex and return
// immediately; the queue is unbounded so no event is ever dropped.
type Reporter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []event
	closed bool

	done chan struct{}
}

// New creates a reporter delivering to obs and starts its delivery
// goroutine.
func New(obs Observer) *Reporter {
	r := &Reporter{done: make(chan struct{})}
	r.cond = sync.NewCond(&r.mu)
	go r.drain(obs)
	return r
}

// Log posts a log line. Never blocks.
func (r *Reporter) Log(msg string) {
	r.post(event{kind: kindLog, msg: msg})
}

// Progress posts a progress tick. Never blocks.
func (r *Reporter) Progress(current, total int) {
	r.post(event{kind: kindProgress, current: current, total: total})
}

func (r *Reporter) post(ev event) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, ev)
	r.mu.Unlock()
	r.cond.Signal()
}

// Close flushes all queued events to the observer, then stops the
// delivery goroutine. Events posted after Close are discarded. Safe to
// call more than once.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.cond.Signal()
	<-r.done
}

func (r *Reporter) drain(obs Observer) {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		batch := r.queue
		r.queue = nil
		closed := r.closed
		r.mu.Unlock()

		for _, ev := range batch {
			switch ev.kind {
			case kindLog:
				obs.OnLog(ev.msg)
			case kindProgress:
				obs.OnProgress(ev.current, ev.total)
			}
		}

		if closed && len(batch) == 0 {
			return
		}
		if closed {
			// One more pass to confirm the queue is empty.
			continue
		}
	}
}
