package realtime

import (
	"context"
	"sync"
)

const defaultBufferSize = 16

// Dispatcher fans messages out to subscribers of a topic. Slow subscribers drop messages
// instead of blocking the publisher.
type Dispatcher[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber[T]
	nextID      int64
	bufferSize  int
}

type subscriber[T any] struct {
	id     int64
	stream chan T
	once   sync.Once
}

// NewDispatcher constructs a dispatcher with per-subscriber buffers of bufferSize messages.
func NewDispatcher[T any](bufferSize int) *Dispatcher[T] {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Dispatcher[T]{
		subscribers: make(map[string]map[int64]*subscriber[T]),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber on topic. The stream is closed once the returned cleanup runs,
// which happens automatically when ctx is done.
func (d *Dispatcher[T]) Subscribe(ctx context.Context, topic string) (<-chan T, func()) {
	if topic == "" {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber[T]{
		id:     d.nextSequence(),
		stream: make(chan T, d.bufferSize),
	}
	d.registerSubscriber(topic, sub)
	cleanup := func() {
		d.unregisterSubscriber(topic, sub)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish delivers message to every current subscriber of topic.
func (d *Dispatcher[T]) Publish(topic string, message T) {
	if topic == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subscribers[topic] {
		select {
		case sub.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers on topic.
func (d *Dispatcher[T]) SubscriberCount(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[topic])
}

func (d *Dispatcher[T]) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher[T]) registerSubscriber(topic string, sub *subscriber[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*subscriber[T])
	}
	d.subscribers[topic][sub.id] = sub
}

func (d *Dispatcher[T]) unregisterSubscriber(topic string, sub *subscriber[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[topic]
	if subscribers != nil {
		delete(subscribers, sub.id)
		if len(subscribers) == 0 {
			delete(d.subscribers, topic)
		}
	}
	// Publish holds the read lock while sending, so closing under the write lock is safe.
	sub.once.Do(func() { close(sub.stream) })
}
