// Package events provides the in-process pipeline event bus.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for pipeline event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish publishes an event to all subscribers of its type.
// Usage: bus.Publish(CaptureStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on the static type, so each concrete event
	// goes through the generic Publish with its own type.
	switch e := ev.(type) {
	case CaptureStartedEvent:
		event.Publish(b.dispatcher, e)
	case CaptureStoppedEvent:
		event.Publish(b.dispatcher, e)
	case CaptureErrorEvent:
		event.Publish(b.dispatcher, e)
	case FrameDroppedEvent:
		event.Publish(b.dispatcher, e)
	case SubscriberAddedEvent:
		event.Publish(b.dispatcher, e)
	case SubscriberExpiredEvent:
		event.Publish(b.dispatcher, e)
	case PoolLeakEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes a typed handler; the handler's parameter type
// selects which events it receives. Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e FrameDroppedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CaptureStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SubscriberAddedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SubscriberExpiredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PoolLeakEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
