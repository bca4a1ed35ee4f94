// Package logging provides structured logging with per-module log levels.
//
// Built on slog with automatic output routing: stdout (text or json),
// systemd journal when available, and an in-memory ring buffer of recent
// entries served by the API. Module levels can be changed at runtime
// through the LevelVar each module logger carries.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger. Components
// that only need to emit can depend on this instead of the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config is the logging section of the application configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu              sync.RWMutex
	globalConfig    Config
	initialized     bool
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	logBuffer       = NewRingBuffer(defaultBufferSize)
)

// Initialize sets up the logging system. Module loggers created before
// Initialize are re-leveled and re-handled to pick up the configured
// format and outputs.
func Initialize(config Config) {
	mu.Lock()
	defer mu.Unlock()

	globalConfig = config
	initialized = true

	globalLevel := parseLevel(config.Level, slog.LevelInfo)

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(config, module, globalLevel))
		handler := buildHandler(config.Format, levelVar)
		moduleLoggers[module] = slog.New(handler).With("module", module)
	}

	rootVar := &slog.LevelVar{}
	rootVar.Set(globalLevel)
	slog.SetDefault(slog.New(buildHandler(config.Format, rootVar)))
}

// GetLogger returns the logger for a module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	if logger, ok := moduleLoggers[module]; ok {
		mu.RUnlock()
		return logger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if logger, ok := moduleLoggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	format := "text"
	if initialized {
		globalLevel := parseLevel(globalConfig.Level, slog.LevelInfo)
		levelVar.Set(moduleLevel(globalConfig, module, globalLevel))
		format = globalConfig.Format
	} else {
		levelVar.Set(slog.LevelInfo)
	}

	logger := slog.New(buildHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// SetModuleLevel changes one module's level at runtime. Unknown modules are
// created so the level applies when the module first logs.
func SetModuleLevel(module, level string) {
	GetLogger(module)

	mu.Lock()
	defer mu.Unlock()
	if levelVar, ok := moduleLevelVars[module]; ok {
		levelVar.Set(parseLevel(level, levelVar.Level()))
	}
}

// Buffer returns the ring buffer holding recent log entries.
func Buffer() *RingBuffer {
	return logBuffer
}

func moduleLevel(config Config, module string, fallback slog.Level) slog.Level {
	if levelStr, ok := config.Modules[module]; ok {
		return parseLevel(levelStr, fallback)
	}
	return fallback
}

// buildHandler assembles the handler chain: stdout, journal when running
// under systemd, and the ring buffer.
func buildHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	handlers := []slog.Handler{stdoutHandler}
	if journalAvailable() {
		handlers = append(handlers, newJournalHandler(level))
	}
	handlers = append(handlers, newBufferHandler(logBuffer, level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return newMultiHandler(handlers...)
}

func parseLevel(level string, fallback slog.Level) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

func levelString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
