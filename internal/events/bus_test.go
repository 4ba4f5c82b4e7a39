package events

import (
	"testing"

	"github.com/objectfs/vfscore/pkg/types"
)

func TestSubscribeReceivesInScopeEvents(t *testing.T) {
	b := New()
	sub := b.Subscribe("/a")
	defer sub.Unsubscribe()

	b.Publish(types.FsEvent{Path: "/a", Kind: types.EventCreated})
	b.Publish(types.FsEvent{Path: "/a/b", Kind: types.EventModified})
	b.Publish(types.FsEvent{Path: "/z", Kind: types.EventDeleted})

	if len(sub.Events) != 2 {
		t.Fatalf("expected 2 in-scope events buffered, got %d", len(sub.Events))
	}
	first := <-sub.Events
	if first.Path != "/a" {
		t.Fatalf("expected first event at /a, got %s", first.Path)
	}
	second := <-sub.Events
	if second.Path != "/a/b" {
		t.Fatalf("expected second event at /a/b, got %s", second.Path)
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	b := New()
	sub := b.Subscribe("/a")
	defer sub.Unsubscribe()

	for i := 0; i < busCapacity+10; i++ {
		b.Publish(types.FsEvent{Path: "/a", Kind: types.EventModified})
	}
	if len(sub.Events) != busCapacity {
		t.Fatalf("expected buffer capped at %d, got %d", busCapacity, len(sub.Events))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe("/a")
	sub.Unsubscribe()

	b.Publish(types.FsEvent{Path: "/a", Kind: types.EventCreated})
	if len(sub.Events) != 0 {
		t.Fatal("expected no events after unsubscribe")
	}
}

func TestMultipleSubscribersIndependentStreams(t *testing.T) {
	b := New()
	subA := b.Subscribe("/a")
	subRoot := b.Subscribe("/")
	defer subA.Unsubscribe()
	defer subRoot.Unsubscribe()

	b.Publish(types.FsEvent{Path: "/a/f", Kind: types.EventCreated})

	if len(subA.Events) != 1 {
		t.Fatalf("expected /a subscriber to see the event, got %d", len(subA.Events))
	}
	if len(subRoot.Events) != 0 {
		t.Fatalf("root subscription scoped to '/' literal should not match /a/f, got %d", len(subRoot.Events))
	}
}
