package engine

import (
	"sync"

	"github.com/reviewstream/pkg/models"
)

// Bus fans one chunk stream out to any number of subscribers. Every
// subscriber gets every chunk in publish order through its own queue, so a
// slow consumer never stalls the upstream or its siblings. Subscribers that
// join mid-stream are caught up from history first.
type Bus struct {
	mu      sync.Mutex
	history []models.ReviewChunk
	subs    []*subscriber
	closed  bool
}

type subscriber struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []models.ReviewChunk
	out    chan models.ReviewChunk
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a consumer and returns its delivery channel. The
// channel is closed once the bus closes and the backlog drains.
func (b *Bus) Subscribe() <-chan models.ReviewChunk {
	sub := &subscriber{out: make(chan models.ReviewChunk, 16)}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	sub.queue = append(sub.queue, b.history...)
	sub.closed = b.closed
	if !b.closed {
		b.subs = append(b.subs, sub)
	}
	b.mu.Unlock()

	go sub.pump()
	return sub.out
}

// Publish delivers the chunk to every subscriber. It never blocks on a
// consumer.
func (b *Bus) Publish(chunk models.ReviewChunk) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.history = append(b.history, chunk)
	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.enqueue(chunk)
	}
}

// Close ends the stream. Subscribers receive their remaining backlog and
// then their channels close.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (s *subscriber) enqueue(chunk models.ReviewChunk) {
	s.mu.Lock()
	s.queue = append(s.queue, chunk)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, chunk := range batch {
			s.out <- chunk
		}
	}
}
