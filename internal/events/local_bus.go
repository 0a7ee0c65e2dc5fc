package events

import (
	"context"
	"errors"
	"sync"
)

// localBuffer is how many events a slow subscriber may lag behind.
const localBuffer = 256

// ErrSubscriberBehind is returned by LocalBus.Publish when a subscriber's
// buffer is full and the event was dropped for it.
var ErrSubscriberBehind = errors.New("event subscriber is behind, event dropped")

// LocalBus delivers events inside the process. Used when Redis is not
// configured. Like RedisSubscriber, every subscription runs its handler on its
// own goroutine, so Publish never waits for a handler.
type LocalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Event
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]chan Event)}
}

func (b *LocalBus) Publish(_ context.Context, stream string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var err error
	for _, ch := range b.subs[stream] {
		select {
		case ch <- event:
		default:
			err = ErrSubscriberBehind
		}
	}
	return err
}

// Subscribe registers handler until ctx is done.
func (b *LocalBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	ch := make(chan Event, localBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[stream] == nil {
		b.subs[stream] = make(map[int]chan Event)
	}
	b.subs[stream][id] = ch
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.subs[stream], id)
			b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-ch:
				handler(event)
			}
		}
	}()
	return nil
}

func (b *LocalBus) subscribers(stream string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[stream])
}
