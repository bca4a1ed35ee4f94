package events

// Event type constants for kelindar/event.
const (
	TypeCaptureStarted uint32 = iota + 1
	TypeCaptureStopped
	TypeCaptureError
	TypeFrameDropped
	TypeSubscriberAdded
	TypeSubscriberExpired
	TypePoolLeak
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CaptureStartedEvent is published when a capture source begins producing.
type CaptureStartedEvent struct {
	SourceID uint32 `json:"source_id"`
	Device   string `json:"device"`
	Width    uint32 `json:"width"`
	Height   uint32 `json:"height"`
	Format   string `json:"format"`
	FPS      uint32 `json:"fps"`
}

// Type returns the event type identifier for CaptureStartedEvent.
func (e CaptureStartedEvent) Type() uint32 { return TypeCaptureStarted }

// CaptureStoppedEvent is published when a capture source stops.
type CaptureStoppedEvent struct {
	SourceID uint32 `json:"source_id"`
	Frames   uint64 `json:"frames"`
	Dropped  uint64 `json:"dropped"`
}

// Type returns the event type identifier for CaptureStoppedEvent.
func (e CaptureStoppedEvent) Type() uint32 { return TypeCaptureStopped }

// CaptureErrorEvent is published when a capture source fails.
type CaptureErrorEvent struct {
	SourceID uint32 `json:"source_id"`
	Device   string `json:"device"`
	Message  string `json:"message"`
	Error    string `json:"error"`
}

// Type returns the event type identifier for CaptureErrorEvent.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// FrameDroppedEvent is published when a frame cannot enter the pipeline,
// typically on pool exhaustion.
type FrameDroppedEvent struct {
	SourceID uint32 `json:"source_id"`
	FrameID  uint32 `json:"frame_id"`
	Reason   string `json:"reason"`
}

// Type returns the event type identifier for FrameDroppedEvent.
func (e FrameDroppedEvent) Type() uint32 { return TypeFrameDropped }

// SubscriberAddedEvent is published when a consumer registers with the
// broker.
type SubscriberAddedEvent struct {
	Name     string `json:"name"`
	Priority uint8  `json:"priority"`
}

// Type returns the event type identifier for SubscriberAddedEvent.
func (e SubscriberAddedEvent) Type() uint32 { return TypeSubscriberAdded }

// SubscriberExpiredEvent is published when expired weak registrations are
// pruned from the broker's registry.
type SubscriberExpiredEvent struct {
	Count int `json:"count"`
}

// Type returns the event type identifier for SubscriberExpiredEvent.
func (e SubscriberExpiredEvent) Type() uint32 { return TypeSubscriberExpired }

// PoolLeakEvent is published when the buffer pool is cleared while buffers
// are still outstanding.
type PoolLeakEvent struct {
	LeakedIDs []uint32 `json:"leaked_ids"`
}

// Type returns the event type identifier for PoolLeakEvent.
func (e PoolLeakEvent) Type() uint32 { return TypePoolLeak }
