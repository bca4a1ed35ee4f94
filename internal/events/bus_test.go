package events

import (
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureStartedEvent, 1)

	unsub := bus.Subscribe(func(e CaptureStartedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(CaptureStartedEvent{
		SourceID: 42,
		Device:   "/dev/video0",
		Width:    1920,
		Height:   1080,
		Format:   "NV12",
		FPS:      30,
	})

	got := <-received
	if got.SourceID != 42 || got.Device != "/dev/video0" {
		t.Errorf("unexpected event: %+v", got)
	}
}

func TestBusTypeSafety(t *testing.T) {
	bus := New()

	dropReceived := make(chan bool, 1)
	leakReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ FrameDroppedEvent) {
		dropReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ PoolLeakEvent) {
		leakReceived <- true
	})
	defer unsub2()

	bus.Publish(FrameDroppedEvent{SourceID: 1, FrameID: 10, Reason: "pool exhausted"})
	<-dropReceived

	select {
	case <-leakReceived:
		t.Fatal("leak subscriber should not receive FrameDroppedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(PoolLeakEvent{LeakedIDs: []uint32{0, 2}})
	<-leakReceived
}

func TestBusSubscriberLifecycleEvents(t *testing.T) {
	bus := New()

	added := make(chan SubscriberAddedEvent, 1)
	expired := make(chan SubscriberExpiredEvent, 1)
	defer bus.Subscribe(func(e SubscriberAddedEvent) { added <- e })()
	defer bus.Subscribe(func(e SubscriberExpiredEvent) { expired <- e })()

	bus.Publish(SubscriberAddedEvent{Name: "recorder", Priority: 200})
	got := <-added
	if got.Name != "recorder" || got.Priority != 200 {
		t.Errorf("unexpected event: %+v", got)
	}

	bus.Publish(SubscriberExpiredEvent{Count: 2})
	if e := <-expired; e.Count != 2 {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureErrorEvent, 1)

	unsub := bus.Subscribe(func(e CaptureErrorEvent) {
		received <- e
	})

	bus.Publish(CaptureErrorEvent{Device: "/dev/video0"})
	<-received

	unsub()

	bus.Publish(CaptureErrorEvent{Device: "/dev/video1"})
	select {
	case <-received:
		t.Fatal("should not receive after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBusUnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(int) {})
	unsub() // no-op unsubscribe must be safe
}
