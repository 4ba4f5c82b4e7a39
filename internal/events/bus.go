// Package events implements the bounded, lossy filesystem change bus:
// publishers never block, and subscribers see only events under their
// watched subtree.
package events

import (
	"log"
	"strings"
	"sync"

	"github.com/objectfs/vfscore/pkg/types"
)

const busCapacity = 256

// Bus is a bounded, lossy publish/subscribe of types.FsEvent. The zero
// value is not usable; use New.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*subscription]struct{}
}

type subscription struct {
	watchPath string
	ch        chan types.FsEvent
}

// Subscription is the handle returned by Subscribe. Events is the
// subscriber's independent, per-watch stream.
type Subscription struct {
	Events <-chan types.FsEvent
	bus    *Bus
	sub    *subscription
}

// New returns an empty event bus.
func New() *Bus {
	return &Bus{subscribers: make(map[*subscription]struct{})}
}

// Subscribe returns a stream of events whose path equals watchPath or is
// within its subtree (path starting with watchPath + "/"). The returned
// channel is buffered to busCapacity and never closed by the bus; callers
// should call Unsubscribe when done.
func (b *Bus) Subscribe(watchPath string) *Subscription {
	sub := &subscription{watchPath: watchPath, ch: make(chan types.FsEvent, busCapacity)}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return &Subscription{Events: sub.ch, bus: b, sub: sub}
}

// Unsubscribe removes s from the bus. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subscribers, s.sub)
	s.bus.mu.Unlock()
}

func inScope(watchPath, eventPath string) bool {
	return eventPath == watchPath || strings.HasPrefix(eventPath, watchPath+"/")
}

// Publish delivers evt to every subscriber whose watched subtree contains
// evt.Path. Delivery never blocks: a subscriber whose buffer is full drops
// the event and a warning is logged.
func (b *Bus) Publish(evt types.FsEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		if !inScope(sub.watchPath, evt.Path) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			log.Printf("events: dropping %s event for %s, subscriber on %s is full", evt.Kind, evt.Path, sub.watchPath)
		}
	}
}
