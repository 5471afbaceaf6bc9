package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cjeanneret/LapseGo/internal/report"
)

// StatusEvent represents a single status message for SSE.
// Log events carry Msg; progress events carry Current/Total.
type StatusEvent struct {
	Time    string `json:"t"`
	Level   string `json:"l,omitempty"`
	Msg     string `json:"msg,omitempty"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends a log message to all subscribed clients.
// Slow clients may miss messages (non-blocking, buffered); the run log
// remains the complete record.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	})
}

// BroadcastProgress sends a progress tick to all subscribed clients.
func (b *StatusBroadcaster) BroadcastProgress(current, total int) {
	b.send(StatusEvent{
		Time:    time.Now().Format(time.RFC3339),
		Level:   "progress",
		Current: current,
		Total:   total,
	})
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// broadcastObserver adapts the broadcaster to the reporter's Observer
// interface: scheduler events fan out to SSE clients without ever
// blocking the scheduler.
type broadcastObserver struct {
	b *StatusBroadcaster
}

// NewObserver wraps b as a run-event observer.
func NewObserver(b *StatusBroadcaster) report.Observer {
	return broadcastObserver{b: b}
}

func (o broadcastObserver) OnLog(msg string) {
	o.b.Broadcast("info", msg)
}

func (o broadcastObserver) OnProgress(current, total int) {
	o.b.BroadcastProgress(current, total)
}
