//go:build linux

package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smazurov/framenode/internal/events"
	"github.com/smazurov/framenode/internal/frame"
	"github.com/smazurov/framenode/pkg/linuxav/v4l2"
)

// readyTimeout bounds each wait for a device buffer so the loop can notice
// a stop request.
const readyTimeout = 500 * time.Millisecond

// V4L2Source captures frames from a V4L2 device with streaming MMAP I/O
// and copies them into pooled buffers before publishing.
type V4L2Source struct {
	opts     Options
	sourceID uint32
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	dev     *v4l2.Device
	format  v4l2.Format

	frames atomic.Uint64
	drops  atomic.Uint64
}

// NewV4L2Source creates a V4L2-backed source for opts.Device.
func NewV4L2Source(opts Options) (Source, error) {
	if opts.Device == "" {
		return nil, fmt.Errorf("%w: device path is required", ErrInvalidConfig)
	}
	if !opts.Config.Valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidConfig, opts.Config)
	}
	return &V4L2Source{
		opts:     opts,
		sourceID: newSourceID(),
		logger:   opts.logger(),
	}, nil
}

// Start opens and configures the device, maps its buffers and begins the
// capture loop.
func (s *V4L2Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	cfg := s.opts.Config
	if s.opts.Pool == nil || s.opts.Broker == nil {
		return fmt.Errorf("%w: pool and broker are required", ErrInvalidConfig)
	}

	dev, err := v4l2.Open(s.opts.Device)
	if err != nil {
		s.captureError("failed to open device", err)
		return err
	}

	format, err := dev.SetFormat(cfg.Width, cfg.Height, fourccFor(cfg.Format))
	if err != nil {
		dev.Close()
		s.captureError("failed to set format", err)
		return err
	}
	if err := dev.SetFPS(cfg.FPS); err != nil {
		s.logger.Warn("frame rate not applied", "device", s.opts.Device, "error", err)
	}

	if s.opts.Pool.BufferSize() < uint64(format.SizeImage) {
		dev.Close()
		err := fmt.Errorf("%w: pool regions of %d bytes cannot hold %d-byte device frames",
			ErrInvalidConfig, s.opts.Pool.BufferSize(), format.SizeImage)
		s.captureError("pool too small for device format", err)
		return err
	}

	count, err := dev.RequestBuffers(cfg.BufferCount)
	if err != nil {
		dev.Close()
		s.captureError("failed to request buffers", err)
		return err
	}
	for i := 0; i < count; i++ {
		if err := dev.QueueBuffer(i); err != nil {
			dev.Close()
			s.captureError("failed to queue buffer", err)
			return err
		}
	}

	if err := dev.StreamOn(); err != nil {
		dev.Close()
		s.captureError("failed to start streaming", err)
		return err
	}

	s.dev = dev
	s.format = format
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	if s.opts.Bus != nil {
		s.opts.Bus.Publish(events.CaptureStartedEvent{
			SourceID: s.sourceID,
			Device:   s.opts.Device,
			Width:    format.Width,
			Height:   format.Height,
			Format:   cfg.Format.String(),
			FPS:      cfg.FPS,
		})
	}
	s.logger.Info("v4l2 capture started",
		"device", s.opts.Device, "name", dev.Name(),
		"width", format.Width, "height", format.Height,
		"size_image", format.SizeImage, "buffers", count)

	go s.loop()
	return nil
}

// Stop ends the capture loop, stops streaming and closes the device.
func (s *V4L2Source) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	if s.dev != nil {
		if err := s.dev.StreamOff(); err != nil {
			s.logger.Warn("failed to stop streaming", "error", err)
		}
		s.dev.Close()
		s.dev = nil
	}
	s.mu.Unlock()

	if s.opts.Bus != nil {
		s.opts.Bus.Publish(events.CaptureStoppedEvent{
			SourceID: s.sourceID,
			Frames:   s.frames.Load(),
			Dropped:  s.drops.Load(),
		})
	}
	s.logger.Info("v4l2 capture stopped",
		"device", s.opts.Device, "frames", s.frames.Load(), "dropped", s.drops.Load())
}

// Running reports whether the capture loop is active.
func (s *V4L2Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FrameCount returns the number of frames published.
func (s *V4L2Source) FrameCount() uint64 { return s.frames.Load() }

// DropCount returns the number of frames dropped on pool exhaustion.
func (s *V4L2Source) DropCount() uint64 { return s.drops.Load() }

func (s *V4L2Source) loop() {
	defer close(s.done)

	var frameID uint32
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		ready, err := s.dev.WaitReady(readyTimeout)
		if err != nil {
			s.captureError("device wait failed", err)
			return
		}
		if !ready {
			continue
		}

		dq, err := s.dev.DequeueBuffer()
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				continue
			}
			s.captureError("dequeue failed", err)
			return
		}

		s.handleFrame(frameID, dq)
		frameID++

		if err := s.dev.QueueBuffer(dq.Index); err != nil {
			s.captureError("requeue failed", err)
			return
		}
	}
}

// handleFrame copies one device buffer into a pooled region and publishes
// it. On pool exhaustion the frame is dropped; the device buffer is always
// requeued by the caller.
func (s *V4L2Source) handleFrame(frameID uint32, dq v4l2.DequeuedBuffer) {
	ref := s.opts.Pool.Acquire()
	if ref == nil {
		s.drops.Add(1)
		if s.opts.Bus != nil {
			s.opts.Bus.Publish(events.FrameDroppedEvent{
				SourceID: s.sourceID,
				FrameID:  frameID,
				Reason:   "pool exhausted",
			})
		}
		return
	}

	src := s.dev.Buffer(dq.Index)
	used := uint64(dq.BytesUsed)
	if used > ref.Size() {
		used = ref.Size()
	}
	if uint64(len(src)) < used {
		used = uint64(len(src))
	}
	copy(ref.Data()[:used], src[:used])

	cfg := s.opts.Config
	var desc frame.Descriptor
	desc.Reset()
	desc.FrameID = frameID
	desc.SourceID = s.sourceID
	desc.TimestampNs = dq.TimestampNs
	desc.Width = s.format.Width
	desc.Height = s.format.Height
	desc.Format = cfg.Format
	desc.MemoryType = frame.MemoryHeap
	desc.FD = -1
	desc.Ptr = dataPointer(ref.Data())
	desc.RegionSize = ref.Size()
	desc.Sequence = dq.Sequence
	desc.FillLayout(used)

	s.opts.Broker.PublishRef(desc, ref)
	ref.Release()
	s.frames.Add(1)
}

func (s *V4L2Source) captureError(msg string, err error) {
	s.logger.Error(msg, "device", s.opts.Device, "error", err)
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(events.CaptureErrorEvent{
			SourceID: s.sourceID,
			Device:   s.opts.Device,
			Message:  msg,
			Error:    err.Error(),
		})
	}
}

// fourccFor maps a pipeline pixel format to its V4L2 fourcc.
func fourccFor(f frame.PixelFormat) uint32 {
	switch f {
	case frame.FormatNV12:
		return v4l2.PixFmtNV12
	case frame.FormatYUYV:
		return v4l2.PixFmtYUYV
	case frame.FormatRGB888:
		return v4l2.PixFmtRGB24
	case frame.FormatRGBA8888:
		return v4l2.PixFmtRGBA
	case frame.FormatMJPEG:
		return v4l2.PixFmtMJPEG
	case frame.FormatH264:
		return v4l2.PixFmtH264
	case frame.FormatH265:
		return v4l2.PixFmtHEVC
	default:
		return 0
	}
}
