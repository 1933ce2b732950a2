// Package sse streams storage changes to subscribers as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/wstore/internal/models"
)

// DefaultHeartbeat is the keep-alive interval used when none is given.
const DefaultHeartbeat = 30 * time.Second

const subscriberBuffer = 64

// ChangeData is the payload of resource.* events.
type ChangeData struct {
	Path   string `json:"path"`
	Source string `json:"source,omitempty"`
}

// EventType returns the event name for a change operation.
func EventType(op models.Op) string {
	return "resource." + string(op)
}

// Subscription receives frames for changes at or below Prefix.
type Subscription struct {
	Prefix string
	C      <-chan []byte

	ch chan []byte
}

// Matches reports whether a change to path belongs to the subscription.
func (s *Subscription) Matches(path string) bool {
	return s.Prefix == "" || path == s.Prefix || strings.HasPrefix(path, s.Prefix+"/")
}

// Broker fans changes out to subscribers.
//
// A single goroutine owns the subscriber set and the event sequence; all
// public methods talk to it over channels. A subscriber whose buffer is full
// misses the frame rather than stalling the others.
type Broker struct {
	heartbeat time.Duration

	joinCh    chan *Subscription
	leaveCh   chan *Subscription
	changeCh  chan models.Change
	countCh   chan chan int
	stopCh    chan struct{}
	stoppedCh chan struct{}
	closed    atomic.Bool
}

// NewBroker starts a broker. Open streams receive a comment line every
// heartbeat so idle proxies keep them alive.
func NewBroker(heartbeat time.Duration) *Broker {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	b := &Broker{
		heartbeat: heartbeat,
		joinCh:    make(chan *Subscription),
		leaveCh:   make(chan *Subscription),
		changeCh:  make(chan models.Change, 256),
		countCh:   make(chan chan int),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stoppedCh)

	subs := make(map[*Subscription]struct{})
	var seq uint64

	for {
		select {
		case <-b.stopCh:
			for s := range subs {
				close(s.ch)
			}
			return

		case s := <-b.joinCh:
			subs[s] = struct{}{}

		case s := <-b.leaveCh:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.ch)
			}

		case c := <-b.changeCh:
			seq++
			frame, err := encodeFrame(seq, c)
			if err != nil {
				continue
			}
			for s := range subs {
				if !s.Matches(c.Path) {
					continue
				}
				select {
				case s.ch <- frame:
				default:
				}
			}

		case resp := <-b.countCh:
			resp <- len(subs)
		}
	}
}

func encodeFrame(id uint64, c models.Change) ([]byte, error) {
	data, err := json.Marshal(ChangeData{Path: c.Path, Source: c.Source})
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, EventType(c.Op), data), nil
}

// Close stops the broker and closes every subscription. It is idempotent.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stoppedCh
}

// Subscribe registers interest in changes at or below prefix ("" for all).
// The returned channel is closed by Unsubscribe or Close.
func (b *Broker) Subscribe(prefix string) *Subscription {
	ch := make(chan []byte, subscriberBuffer)
	s := &Subscription{Prefix: strings.Trim(prefix, "/"), C: ch, ch: ch}
	if b.closed.Load() {
		close(ch)
		return s
	}
	select {
	case b.joinCh <- s:
	case <-b.stoppedCh:
		close(ch)
	}
	return s
}

// Unsubscribe removes s and closes its channel.
func (b *Broker) Unsubscribe(s *Subscription) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaveCh <- s:
	case <-b.stoppedCh:
	}
}

// ClientCount returns the number of live subscriptions.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
	case <-b.stoppedCh:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stoppedCh:
		return 0
	}
}

// Record queues c for delivery. It never fails, so a slow or absent
// audience cannot fail a write.
func (b *Broker) Record(_ context.Context, c models.Change) error {
	if b.closed.Load() {
		return nil
	}
	select {
	case b.changeCh <- c:
	case <-b.stoppedCh:
	}
	return nil
}

// ServeHTTP streams events (GET /events?path=<prefix>).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := b.Subscribe(r.URL.Query().Get("path"))
	defer b.Unsubscribe(sub)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case frame, ok := <-sub.C:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
