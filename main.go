package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/framenode/cmd"
	"github.com/smazurov/framenode/internal/api"
	"github.com/smazurov/framenode/internal/broker"
	"github.com/smazurov/framenode/internal/capture"
	"github.com/smazurov/framenode/internal/config"
	"github.com/smazurov/framenode/internal/events"
	"github.com/smazurov/framenode/internal/frame"
	"github.com/smazurov/framenode/internal/logging"
	"github.com/smazurov/framenode/internal/metrics"
	"github.com/smazurov/framenode/internal/pool"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Pool settings
	PoolBufferCount int `help:"Number of pooled frame buffers" default:"4" toml:"pool.buffer_count" env:"POOL_BUFFER_COUNT"`
	PoolBufferSize  int `help:"Pooled buffer size in bytes (0 = derive from capture format)" default:"0" toml:"pool.buffer_size" env:"POOL_BUFFER_SIZE"`

	// Broker settings
	BrokerQueueSize int `help:"Dispatch queue capacity" default:"1024" toml:"broker.queue_size" env:"BROKER_QUEUE_SIZE"`
	BrokerWorkers   int `help:"Dispatch workers (0 = CPU count)" default:"0" toml:"broker.workers" env:"BROKER_WORKERS"`

	// Capture settings
	CaptureDevice string `help:"Capture device path, 'synthetic', or empty to disable" default:"synthetic" toml:"capture.device" env:"CAPTURE_DEVICE"`
	CaptureWidth  int    `help:"Capture width" default:"1920" toml:"capture.width" env:"CAPTURE_WIDTH"`
	CaptureHeight int    `help:"Capture height" default:"1080" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	CaptureFPS    int    `help:"Capture frame rate" default:"30" toml:"capture.fps" env:"CAPTURE_FPS"`
	CaptureFormat string `help:"Capture pixel format" default:"nv12" toml:"capture.format" env:"CAPTURE_FORMAT"`

	// Metrics settings
	MetricsEnabled bool `help:"Serve Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPool    string `help:"Pool logging level" default:"info" toml:"logging.pool" env:"LOGGING_POOL"`
	LoggingBroker  string `help:"Broker logging level" default:"info" toml:"logging.broker" env:"LOGGING_BROKER"`
	LoggingCapture string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// runtimeConfig is the subset of the config file that can change while the
// server is running.
type runtimeConfig struct {
	Broker struct {
		QueueSize int `toml:"queue_size"`
	} `toml:"broker"`
	Logging struct {
		Pool    string `toml:"pool"`
		Broker  string `toml:"broker"`
		Capture string `toml:"capture"`
		API     string `toml:"api"`
	} `toml:"logging"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"pool":    opts.LoggingPool,
				"broker":  opts.LoggingBroker,
				"capture": opts.LoggingCapture,
				"api":     opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")

		captureConfig := frame.CaptureConfig{
			Width:       uint32(opts.CaptureWidth),
			Height:      uint32(opts.CaptureHeight),
			Format:      frame.ParseFormat(opts.CaptureFormat),
			FPS:         uint32(opts.CaptureFPS),
			BufferCount: uint32(opts.PoolBufferCount),
		}

		bufferSize := uint64(opts.PoolBufferSize)
		if bufferSize == 0 {
			bufferSize = captureConfig.BufferSize()
		}
		if bufferSize == 0 {
			logger.Error("Cannot derive buffer size", "format", opts.CaptureFormat)
			os.Exit(1)
		}

		bufferPool := pool.New(logging.GetLogger("pool"))
		if !bufferPool.Initialize(opts.PoolBufferCount, bufferSize) {
			logger.Error("Failed to initialize buffer pool",
				"count", opts.PoolBufferCount, "size", bufferSize)
			os.Exit(1)
		}

		eventBus := events.New()

		frameBroker := broker.New(logging.GetLogger("broker"))
		frameBroker.SetMaxQueueSize(opts.BrokerQueueSize)
		frameBroker.SetEventBus(eventBus)

		eventBus.Subscribe(func(e events.CaptureErrorEvent) {
			logger.Error("Capture error", "device", e.Device, "message", e.Message, "error", e.Error)
		})
		eventBus.Subscribe(func(e events.PoolLeakEvent) {
			logger.Error("Pool leak detected", "leaked_ids", e.LeakedIDs)
		})

		var source capture.Source
		switch opts.CaptureDevice {
		case "":
			logger.Info("Capture disabled")
		case "synthetic":
			source = capture.NewSyntheticSource(capture.Options{
				Config: captureConfig,
				Pool:   bufferPool,
				Broker: frameBroker,
				Bus:    eventBus,
				Logger: logging.GetLogger("capture"),
			})
		default:
			v4l2Source, err := capture.NewV4L2Source(capture.Options{
				Device: opts.CaptureDevice,
				Config: captureConfig,
				Pool:   bufferPool,
				Broker: frameBroker,
				Bus:    eventBus,
				Logger: logging.GetLogger("capture"),
			})
			if err != nil {
				logger.Error("Failed to create capture source", "device", opts.CaptureDevice, "error", err)
				os.Exit(1)
			}
			source = v4l2Source
		}

		apiOpts := &api.Options{
			Pool:   bufferPool,
			Broker: frameBroker,
			Logger: logging.GetLogger("api"),
		}
		if opts.MetricsEnabled {
			handler, _ := metrics.Handler(bufferPool, frameBroker)
			apiOpts.MetricsHandler = handler
		}
		server := api.NewServer(apiOpts)

		// Hot-apply queue capacity and log levels on config file changes.
		watcher := config.NewWatcher(opts.Config, func(path string) (runtimeConfig, error) {
			var rc runtimeConfig
			data, err := os.ReadFile(path)
			if err != nil {
				return rc, err
			}
			return rc, toml.Unmarshal(data, &rc)
		}, logger)
		watcher.OnReload(func(rc runtimeConfig) {
			if rc.Broker.QueueSize > 0 {
				frameBroker.SetMaxQueueSize(rc.Broker.QueueSize)
				logger.Info("Queue capacity reloaded", "max_queue_size", rc.Broker.QueueSize)
			}
			for module, level := range map[string]string{
				"pool":    rc.Logging.Pool,
				"broker":  rc.Logging.Broker,
				"capture": rc.Logging.Capture,
				"api":     rc.Logging.API,
			} {
				if level != "" {
					logging.SetModuleLevel(module, level)
				}
			}
		})

		hooks.OnStart(func() {
			frameBroker.Start(opts.BrokerWorkers)

			if source != nil {
				if startErr := source.Start(); startErr != nil {
					logger.Error("Failed to start capture", "error", startErr)
					os.Exit(1)
				}
			}

			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config watcher unavailable", "error", watchErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			watcher.Stop()

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if source != nil {
				source.Stop()
			}
			frameBroker.Stop()

			if leaks := bufferPool.CheckLeaks(); len(leaks) > 0 {
				eventBus.Publish(events.PoolLeakEvent{LeakedIDs: leaks})
			}
			bufferPool.Clear()
		})
	})

	cli.Root().AddCommand(cmd.CreateStressCmd())
	cli.Root().AddCommand(cmd.CreateProbeCmd())

	cli.Run()
}
