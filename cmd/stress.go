package cmd

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/framenode/internal/broker"
	"github.com/smazurov/framenode/internal/capture"
	"github.com/smazurov/framenode/internal/events"
	"github.com/smazurov/framenode/internal/frame"
	"github.com/smazurov/framenode/internal/logging"
	"github.com/smazurov/framenode/internal/pool"
)

// stressConsumer counts frames and optionally simulates processing latency.
type stressConsumer struct {
	broker.BaseSubscriber
	name     string
	priority uint8
	latency  time.Duration
	frames   atomic.Uint64
}

func (c *stressConsumer) OnFrame(frame.Descriptor) {
	if c.latency > 0 {
		time.Sleep(c.latency)
	}
	c.frames.Add(1)
}

func (c *stressConsumer) SubscriberName() string { return c.name }

func (c *stressConsumer) Priority() uint8 { return c.priority }

// CreateStressCmd creates the stress command: a synthetic end-to-end run
// that loads the pool, broker and worker pool and prints the resulting
// counters.
func CreateStressCmd() *cobra.Command {
	var (
		duration   time.Duration
		width      uint32
		height     uint32
		fps        uint32
		buffers    uint32
		consumers  int
		workers    int
		queueSize  int
		latencyMs  int
		formatName string
	)

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a synthetic pipeline stress test",
		Long: `Drives a synthetic capture source through the buffer pool and frame broker ` +
			`with a configurable consumer fleet, then reports pool and broker statistics ` +
			`including drops and leak checks.`,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("stress")

			format := frame.ParseFormat(formatName)
			cfg := frame.CaptureConfig{
				Width:       width,
				Height:      height,
				Format:      format,
				FPS:         fps,
				BufferCount: buffers,
			}
			if !cfg.Valid() {
				logger.Error("invalid capture configuration",
					"width", width, "height", height, "format", formatName,
					"fps", fps, "buffers", buffers)
				os.Exit(1)
			}

			bus := events.New()
			defer bus.Subscribe(func(e events.FrameDroppedEvent) {
				logger.Debug("frame dropped", "frame_id", e.FrameID, "reason", e.Reason)
			})()

			bufferPool := pool.New(logging.GetLogger("pool"))
			if !bufferPool.Initialize(int(cfg.BufferCount), cfg.BufferSize()) {
				logger.Error("failed to initialize buffer pool")
				os.Exit(1)
			}

			frameBroker := broker.New(logging.GetLogger("broker"))
			frameBroker.SetMaxQueueSize(queueSize)
			frameBroker.SetEventBus(bus)
			frameBroker.Start(workers)

			fleet := make([]*stressConsumer, 0, consumers)
			for i := 0; i < consumers; i++ {
				c := &stressConsumer{
					name:     fmt.Sprintf("stress-%d", i),
					priority: uint8(255 - i*(255/max(consumers, 1))),
					latency:  time.Duration(latencyMs) * time.Millisecond,
				}
				fleet = append(fleet, c)
				broker.Subscribe(frameBroker, c)
			}

			source := capture.NewSyntheticSource(capture.Options{
				Config: cfg,
				Pool:   bufferPool,
				Broker: frameBroker,
				Bus:    bus,
				Logger: logging.GetLogger("capture"),
			})
			if err := source.Start(); err != nil {
				logger.Error("failed to start synthetic source", "error", err)
				os.Exit(1)
			}

			logger.Info("stress run started",
				"duration", duration, "consumers", consumers,
				"workers", workers, "queue_size", queueSize)
			time.Sleep(duration)

			source.Stop()
			frameBroker.Stop()

			ps := bufferPool.Stats()
			bs := frameBroker.Stats()

			fmt.Printf("\nStress run complete (%s)\n\n", duration)
			fmt.Printf("  frames published:  %d\n", bs.PublishedFrames)
			fmt.Printf("  tasks dispatched:  %d\n", bs.DispatchedTasks)
			fmt.Printf("  tasks dropped:     %d\n", bs.DroppedTasks)
			fmt.Printf("  source drops:      %d\n", source.DropCount())
			fmt.Printf("  pool acquires:     %d (failed %d)\n", ps.AcquireCount, ps.AcquireFail)
			fmt.Printf("  pool max in use:   %d\n", ps.MaxInUse)
			fmt.Printf("  pool max inflight: %d\n", ps.MaxInFlight)
			fmt.Println()
			for _, c := range fleet {
				fmt.Printf("  %-12s priority=%-3d frames=%d\n", c.name, c.priority, c.frames.Load())
			}

			if leaks := bufferPool.CheckLeaks(); len(leaks) > 0 {
				logger.Error("buffers leaked", "leaked_ids", leaks)
				os.Exit(1)
			}
			bufferPool.Clear()
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "How long to run")
	cmd.Flags().Uint32Var(&width, "width", 640, "Frame width")
	cmd.Flags().Uint32Var(&height, "height", 480, "Frame height")
	cmd.Flags().Uint32Var(&fps, "fps", 30, "Frames per second")
	cmd.Flags().Uint32Var(&buffers, "buffers", 4, "Pool buffer count (2-8)")
	cmd.Flags().IntVar(&consumers, "consumers", 4, "Number of consumers")
	cmd.Flags().IntVar(&workers, "workers", 0, "Broker workers (0 = CPU count)")
	cmd.Flags().IntVar(&queueSize, "queue-size", 64, "Dispatch queue capacity")
	cmd.Flags().IntVar(&latencyMs, "latency-ms", 0, "Simulated consumer latency")
	cmd.Flags().StringVar(&formatName, "format", "nv12", "Pixel format")

	return cmd
}
