package broker

import (
	"weak"

	"github.com/smazurov/framenode/internal/events"
	"github.com/smazurov/framenode/internal/frame"
)

// DefaultPriority is the priority a subscriber gets when it does not
// override Priority.
const DefaultPriority uint8 = 128

// FrameSubscriber is the capability a consumer registers with the broker.
//
// OnFrame runs on a broker worker goroutine. It must be quick, may read the
// descriptor and its backing memory, and must not retain either past
// return: the buffer reference the frame was dispatched with is released as
// soon as OnFrame returns. It must not call back into the broker's publish
// or subscribe paths.
type FrameSubscriber interface {
	// OnFrame delivers one frame.
	OnFrame(frame.Descriptor)

	// SubscriberName returns a stable name used in logs.
	SubscriberName() string

	// Priority orders dispatch; higher runs first. 0-255.
	Priority() uint8

	// OnUnsubscribed is called after the subscriber is explicitly removed.
	OnUnsubscribed()
}

// BaseSubscriber provides default Priority and OnUnsubscribed so consumers
// only implement OnFrame and SubscriberName. Embed it by value.
type BaseSubscriber struct{}

// Priority returns the default mid priority.
func (BaseSubscriber) Priority() uint8 { return DefaultPriority }

// OnUnsubscribed is a no-op.
func (BaseSubscriber) OnUnsubscribed() {}

// weakEntry is one registry slot. upgrade returns the subscriber while the
// caller still holds strong references to it, nil once it has been
// collected. The registry never keeps a consumer alive.
type weakEntry struct {
	upgrade func() FrameSubscriber
}

// Subscribe registers a consumer under a weak reference. Returns false for
// a nil subscriber or one already registered (identity is the upgraded
// referent). The broker holds no strong reference: a subscriber whose
// owner drops it simply stops receiving frames.
//
// Subscribers must be pointer values; the pointee's lifetime is what the
// weak reference tracks.
func Subscribe[T any, P interface {
	*T
	FrameSubscriber
}](b *Broker, sub P) bool {
	if sub == nil {
		return false
	}
	w := weak.Make((*T)(sub))
	e := weakEntry{upgrade: func() FrameSubscriber {
		if p := w.Value(); p != nil {
			return P(p)
		}
		return nil
	}}
	return b.subscribe(FrameSubscriber(sub), e)
}

func (b *Broker) subscribe(sub FrameSubscriber, e weakEntry) bool {
	b.subMu.Lock()
	for _, existing := range b.subs {
		if live := existing.upgrade(); live != nil && live == sub {
			b.subMu.Unlock()
			return false
		}
	}
	b.subs = append(b.subs, e)
	b.subMu.Unlock()

	if b.bus != nil {
		b.bus.Publish(events.SubscriberAddedEvent{
			Name:     sub.SubscriberName(),
			Priority: sub.Priority(),
		})
	}
	return true
}

// Unsubscribe removes every registry entry whose referent is sub, along
// with any entry that has already expired. The subscriber's OnUnsubscribed
// hook runs once if a live entry was removed.
func (b *Broker) Unsubscribe(sub FrameSubscriber) {
	if sub == nil {
		return
	}

	b.subMu.Lock()
	removed := false
	expired := 0
	kept := b.subs[:0]
	for _, e := range b.subs {
		live := e.upgrade()
		if live == nil {
			expired++
			continue
		}
		if live == sub {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	b.subs = kept
	b.subMu.Unlock()

	if expired > 0 && b.bus != nil {
		b.bus.Publish(events.SubscriberExpiredEvent{Count: expired})
	}
	if removed {
		sub.OnUnsubscribed()
	}
}

// ClearSubscribers drops all weak references.
func (b *Broker) ClearSubscribers() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subs = nil
}

// SubscriberCount returns the number of non-expired registrations.
func (b *Broker) SubscriberCount() int {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	count := 0
	for _, e := range b.subs {
		if e.upgrade() != nil {
			count++
		}
	}
	return count
}

// snapshotSubscribers prunes expired entries and returns strong references
// to the live subscribers, in registration order.
func (b *Broker) snapshotSubscribers() []FrameSubscriber {
	b.subMu.Lock()
	var live []FrameSubscriber
	kept := b.subs[:0]
	for _, e := range b.subs {
		if sub := e.upgrade(); sub != nil {
			kept = append(kept, e)
			live = append(live, sub)
		}
	}
	expired := len(b.subs) - len(kept)
	b.subs = kept
	b.subMu.Unlock()

	if expired > 0 && b.bus != nil {
		b.bus.Publish(events.SubscriberExpiredEvent{Count: expired})
	}
	return live
}

// SubscriberInfo describes one live registration.
type SubscriberInfo struct {
	Name     string `json:"name"`
	Priority uint8  `json:"priority"`
}

// Subscribers returns name and priority of every non-expired registration,
// in registration order.
func (b *Broker) Subscribers() []SubscriberInfo {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	infos := make([]SubscriberInfo, 0, len(b.subs))
	for _, e := range b.subs {
		if sub := e.upgrade(); sub != nil {
			infos = append(infos, SubscriberInfo{
				Name:     sub.SubscriberName(),
				Priority: sub.Priority(),
			})
		}
	}
	return infos
}
