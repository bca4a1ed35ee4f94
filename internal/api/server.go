// Package api exposes the pipeline's observability and control surface
// over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/framenode/internal/broker"
	"github.com/smazurov/framenode/internal/logging"
	"github.com/smazurov/framenode/internal/pool"
	"github.com/smazurov/framenode/internal/version"
)

// Options wires the API server into the pipeline.
type Options struct {
	Pool   *pool.Pool
	Broker *broker.Broker

	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// Server is the Huma v2 API server on the stdlib mux.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	opts       *Options
	logger     *slog.Logger
}

// PoolStats is the pool counter snapshot as served by the API. It is a
// distinct named type so its schema name does not collide with broker.Stats.
type PoolStats pool.Stats

// StatsResponse is the combined pipeline statistics snapshot.
type StatsResponse struct {
	Body struct {
		Pool   PoolStats    `json:"pool"`
		Broker broker.Stats `json:"broker"`
	}
}

// HealthResponse reports liveness and version.
type HealthResponse struct {
	Body struct {
		Status  string `json:"status" example:"ok"`
		Version string `json:"version"`
		Running bool   `json:"running" doc:"Whether the broker workers are active"`
	}
}

// SubscribersResponse lists the broker's live registrations.
type SubscribersResponse struct {
	Body struct {
		Count       int                     `json:"count"`
		Subscribers []broker.SubscriberInfo `json:"subscribers"`
	}
}

// QueueSizeInput sets the dispatch queue bound.
type QueueSizeInput struct {
	Body struct {
		MaxQueueSize int `json:"max_queue_size" minimum:"0" doc:"Queue capacity; 0 drops every task"`
	}
}

// QueueSizeResponse echoes the bound now in effect.
type QueueSizeResponse struct {
	Body struct {
		MaxQueueSize int `json:"max_queue_size"`
	}
}

// LogsResponse returns the recent log entries from the ring buffer.
type LogsResponse struct {
	Body struct {
		Entries []logging.LogEntry `json:"entries"`
	}
}

// LeaksResponse lists buffers not currently free.
type LeaksResponse struct {
	Body struct {
		LeakedIDs []uint32 `json:"leaked_ids"`
	}
}

// NewServer creates the API server and registers all routes.
func NewServer(opts *Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	config := huma.DefaultConfig("FrameNode API", version.Version)
	config.Info.Description = "Camera frame pipeline control and statistics"
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	s := &Server{
		api:    api,
		mux:    mux,
		opts:   opts,
		logger: logger,
	}
	s.registerRoutes()

	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	}

	return s
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Liveness check",
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{}
		resp.Body.Status = "ok"
		resp.Body.Version = version.Version
		resp.Body.Running = s.opts.Broker.IsRunning()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/api/stats",
		Summary:     "Pipeline statistics",
		Description: "Snapshot of buffer pool and frame broker counters.",
	}, func(_ context.Context, _ *struct{}) (*StatsResponse, error) {
		resp := &StatsResponse{}
		resp.Body.Pool = PoolStats(s.opts.Pool.Stats())
		resp.Body.Broker = s.opts.Broker.Stats()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-subscribers",
		Method:      http.MethodGet,
		Path:        "/api/subscribers",
		Summary:     "Live subscribers",
		Description: "Name and priority of every non-expired registration.",
	}, func(_ context.Context, _ *struct{}) (*SubscribersResponse, error) {
		subs := s.opts.Broker.Subscribers()
		resp := &SubscribersResponse{}
		resp.Body.Count = len(subs)
		resp.Body.Subscribers = subs
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-leaks",
		Method:      http.MethodGet,
		Path:        "/api/leaks",
		Summary:     "Buffer leak check",
		Description: "IDs of pool buffers not currently free.",
	}, func(_ context.Context, _ *struct{}) (*LeaksResponse, error) {
		resp := &LeaksResponse{}
		resp.Body.LeakedIDs = s.opts.Pool.CheckLeaks()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-queue-size",
		Method:      http.MethodPut,
		Path:        "/api/queue-size",
		Summary:     "Set dispatch queue capacity",
	}, func(_ context.Context, input *QueueSizeInput) (*QueueSizeResponse, error) {
		s.opts.Broker.SetMaxQueueSize(input.Body.MaxQueueSize)
		s.logger.Info("queue capacity changed", "max_queue_size", input.Body.MaxQueueSize)
		resp := &QueueSizeResponse{}
		resp.Body.MaxQueueSize = s.opts.Broker.GetMaxQueueSize()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-queue-size",
		Method:      http.MethodGet,
		Path:        "/api/queue-size",
		Summary:     "Get dispatch queue capacity",
	}, func(_ context.Context, _ *struct{}) (*QueueSizeResponse, error) {
		resp := &QueueSizeResponse{}
		resp.Body.MaxQueueSize = s.opts.Broker.GetMaxQueueSize()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent log entries",
	}, func(_ context.Context, _ *struct{}) (*LogsResponse, error) {
		resp := &LogsResponse{}
		resp.Body.Entries = logging.Buffer().ReadAll()
		return resp, nil
	})
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
