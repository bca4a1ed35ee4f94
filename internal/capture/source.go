// Package capture drives frames from a device (or a synthetic generator)
// into the buffer pool and broker.
//
// A source owns one producer goroutine. Each cycle it acquires a pooled
// buffer, fills it with frame bytes, builds a descriptor pointing into the
// buffer and publishes descriptor plus buffer reference through the
// broker. On pool exhaustion the frame is dropped and counted; the device
// side keeps running.
package capture

import (
	"encoding/binary"
	"log/slog"
	"unsafe"

	"github.com/google/uuid"

	"github.com/smazurov/framenode/internal/broker"
	"github.com/smazurov/framenode/internal/events"
	"github.com/smazurov/framenode/internal/frame"
	"github.com/smazurov/framenode/internal/pool"
)

// Source is a frame producer feeding the pipeline.
type Source interface {
	// Start begins producing frames. Returns an error when the device
	// cannot be opened or the configuration is invalid.
	Start() error

	// Stop ends production and waits for the producer goroutine.
	Stop()

	// Running reports whether the source is producing.
	Running() bool

	// FrameCount returns the number of frames published so far.
	FrameCount() uint64

	// DropCount returns the number of frames dropped on pool exhaustion.
	DropCount() uint64
}

// Options wires a source into the pipeline.
type Options struct {
	// Device is the capture device path; ignored by the synthetic source.
	Device string

	// Config is the capture geometry. Must be Valid.
	Config frame.CaptureConfig

	// Pool supplies the frame buffers. Must be initialized with regions of
	// at least Config.BufferSize() bytes.
	Pool *pool.Pool

	// Broker receives the published frames.
	Broker *broker.Broker

	// Bus, when set, receives capture lifecycle and drop events.
	Bus *events.Bus

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// newSourceID derives a stable 32-bit source id from a fresh UUID.
func newSourceID() uint32 {
	id := uuid.New()
	return binary.BigEndian.Uint32(id[:4])
}

// dataPointer returns the base address of a buffer region for descriptor
// use, or nil for an empty region.
func dataPointer(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
