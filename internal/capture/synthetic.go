package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/framenode/internal/events"
	"github.com/smazurov/framenode/internal/frame"
)

// ErrInvalidConfig is returned when a source is started with an unusable
// capture configuration.
var ErrInvalidConfig = errors.New("capture: invalid configuration")

// SyntheticSource generates a moving test pattern at the configured frame
// rate. It exercises the whole pipeline without hardware and backs the
// stress harness.
type SyntheticSource struct {
	opts     Options
	sourceID uint32
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	frames atomic.Uint64
	drops  atomic.Uint64
	start  time.Time
}

// NewSyntheticSource creates a synthetic source. Start validates the
// configuration.
func NewSyntheticSource(opts Options) *SyntheticSource {
	return &SyntheticSource{
		opts:     opts,
		sourceID: newSourceID(),
		logger:   opts.logger(),
	}
}

// Start begins the producer goroutine.
func (s *SyntheticSource) Start() error {
	cfg := s.opts.Config
	if !cfg.Valid() {
		return fmt.Errorf("%w: %dx%d %s @%d, %d buffers",
			ErrInvalidConfig, cfg.Width, cfg.Height, cfg.Format, cfg.FPS, cfg.BufferCount)
	}
	if s.opts.Pool == nil || s.opts.Broker == nil {
		return fmt.Errorf("%w: pool and broker are required", ErrInvalidConfig)
	}
	if s.opts.Pool.BufferSize() < cfg.BufferSize() {
		return fmt.Errorf("%w: pool regions of %d bytes cannot hold %d-byte frames",
			ErrInvalidConfig, s.opts.Pool.BufferSize(), cfg.BufferSize())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.start = time.Now()

	if s.opts.Bus != nil {
		s.opts.Bus.Publish(events.CaptureStartedEvent{
			SourceID: s.sourceID,
			Device:   "synthetic",
			Width:    cfg.Width,
			Height:   cfg.Height,
			Format:   cfg.Format.String(),
			FPS:      cfg.FPS,
		})
	}
	s.logger.Info("synthetic capture started",
		"source_id", s.sourceID, "width", cfg.Width, "height", cfg.Height,
		"format", cfg.Format.String(), "fps", cfg.FPS)

	go s.loop()
	return nil
}

// Stop ends production and waits for the producer goroutine to exit.
func (s *SyntheticSource) Stop() {
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

	if s.opts.Bus != nil {
		s.opts.Bus.Publish(events.CaptureStoppedEvent{
			SourceID: s.sourceID,
			Frames:   s.frames.Load(),
			Dropped:  s.drops.Load(),
		})
	}
	s.logger.Info("synthetic capture stopped",
		"source_id", s.sourceID, "frames", s.frames.Load(), "dropped", s.drops.Load())
}

// Running reports whether the producer goroutine is active.
func (s *SyntheticSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FrameCount returns the number of frames published.
func (s *SyntheticSource) FrameCount() uint64 { return s.frames.Load() }

// DropCount returns the number of frames dropped on pool exhaustion.
func (s *SyntheticSource) DropCount() uint64 { return s.drops.Load() }

func (s *SyntheticSource) loop() {
	defer close(s.done)

	cfg := s.opts.Config
	interval := time.Second / time.Duration(cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var frameID uint32
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.produce(frameID)
			frameID++
		}
	}
}

func (s *SyntheticSource) produce(frameID uint32) {
	cfg := s.opts.Config

	ref := s.opts.Pool.Acquire()
	if ref == nil {
		s.drops.Add(1)
		s.logger.Debug("frame dropped, pool exhausted", "frame_id", frameID)
		if s.opts.Bus != nil {
			s.opts.Bus.Publish(events.FrameDroppedEvent{
				SourceID: s.sourceID,
				FrameID:  frameID,
				Reason:   "pool exhausted",
			})
		}
		return
	}

	size := cfg.BufferSize()
	fillPattern(ref.Data()[:size], cfg, frameID)

	desc := s.describe(frameID, ref.Data(), size)
	s.opts.Broker.PublishRef(desc, ref)
	ref.Release()

	s.frames.Add(1)
}

func (s *SyntheticSource) describe(frameID uint32, data []byte, used uint64) frame.Descriptor {
	cfg := s.opts.Config

	var desc frame.Descriptor
	desc.Reset()
	desc.FrameID = frameID
	desc.SourceID = s.sourceID
	desc.TimestampNs = uint64(time.Since(s.start).Nanoseconds())
	desc.Width = cfg.Width
	desc.Height = cfg.Height
	desc.Format = cfg.Format
	desc.MemoryType = frame.MemoryHeap
	desc.FD = -1
	desc.Ptr = dataPointer(data)
	desc.RegionSize = uint64(len(data))
	desc.Sequence = frameID
	desc.FillLayout(used)
	return desc
}

// fillPattern writes a frame-indexed gradient so consumers can verify they
// see distinct frames.
func fillPattern(dst []byte, cfg frame.CaptureConfig, frameID uint32) {
	shift := byte(frameID)
	for i := range dst {
		dst[i] = byte(i) + shift
	}

	// Neutral chroma for NV12 keeps the pattern viewable.
	if cfg.Format == frame.FormatNV12 {
		luma := int(cfg.Width) * int(cfg.Height)
		for i := luma; i < len(dst); i++ {
			dst[i] = 128
		}
	}
}
