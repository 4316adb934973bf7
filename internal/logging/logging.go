// Package logging configures the process-wide slog logger for the comfyone CLI.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names accepted by Config.Components.
const (
	ComponentAPI      = "api"
	ComponentWS       = "ws"
	ComponentHook     = "hook"
	ComponentWatch    = "watch"
	ComponentShutdown = "shutdown"
)

var (
	globalLogger *slog.Logger
	globalMu     sync.RWMutex

	// logWriter is the rotating file writer, if any.
	logWriter   io.WriteCloser
	logWriterMu sync.Mutex

	// nil means every component is logged
	allowedComponents map[string]bool
	componentsMu      sync.RWMutex
)

// FileConfig enables a rotating log file.
type FileConfig struct {
	// Path of the log file. Empty disables file logging.
	Path string
	// MaxSizeMB before rotation. Default: 10
	MaxSizeMB int
	// MaxBackups is how many rotated files to keep. Default: 3
	MaxBackups int
	Compress   bool
}

// Config holds logging configuration.
type Config struct {
	// Level is the minimum console level (debug, info, warn, error).
	Level string
	// FileLevel is the minimum file level. Defaults to Level.
	FileLevel string
	File      *FileConfig
	JSON      bool
	// Components restricts output to the named components. Empty means all.
	Components []string
	// Console defaults to os.Stderr so stdout stays clean for command output.
	Console io.Writer
}

// Initialize builds the global logger from cfg and installs it as slog's default.
func Initialize(cfg Config) error {
	consoleLevel := ParseLevel(cfg.Level)
	fileLevel := consoleLevel
	if cfg.FileLevel != "" {
		fileLevel = ParseLevel(cfg.FileLevel)
	}

	componentsMu.Lock()
	allowedComponents = nil
	if len(cfg.Components) > 0 {
		allowedComponents = make(map[string]bool, len(cfg.Components))
		for _, c := range cfg.Components {
			if c = strings.TrimSpace(c); c != "" {
				allowedComponents[c] = true
			}
		}
	}
	componentsMu.Unlock()

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	logWriterMu.Lock()
	defer logWriterMu.Unlock()

	if logWriter != nil {
		logWriter.Close()
		logWriter = nil
	}

	var fileWriter io.Writer
	if cfg.File != nil && cfg.File.Path != "" {
		maxSize := cfg.File.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := cfg.File.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.File.Path, err)
		}
		f.Close()

		lj := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   cfg.File.Compress,
		}
		logWriter = lj
		fileWriter = lj
	}

	newHandler := func(w io.Writer, level slog.Level) slog.Handler {
		opts := &slog.HandlerOptions{Level: level}
		if cfg.JSON {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}

	var handler slog.Handler
	switch {
	case fileWriter != nil && fileLevel != consoleLevel:
		handler = &multiHandler{handlers: []slog.Handler{
			newHandler(console, consoleLevel),
			newHandler(fileWriter, fileLevel),
		}}
	case fileWriter != nil:
		handler = newHandler(io.MultiWriter(console, fileWriter), consoleLevel)
	default:
		handler = newHandler(console, consoleLevel)
	}

	logger := slog.New(handler)

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()

	slog.SetDefault(logger)
	return nil
}

// multiHandler fans records out to handlers with different levels.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Get returns the global logger, or slog.Default() before Initialize.
func Get() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// Close closes the log file, if one is open.
func Close() error {
	logWriterMu.Lock()
	defer logWriterMu.Unlock()

	if logWriter != nil {
		err := logWriter.Close()
		logWriter = nil
		return err
	}
	return nil
}

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isComponentAllowed(component string) bool {
	componentsMu.RLock()
	defer componentsMu.RUnlock()

	if allowedComponents == nil {
		return true
	}
	return allowedComponents[component]
}

// componentFilterHandler drops records from components outside the allow list.
type componentFilterHandler struct {
	inner     slog.Handler
	component string
}

func (h *componentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if !isComponentAllowed(h.component) {
		return false
	}
	return h.inner.Enabled(ctx, level)
}

func (h *componentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	if !isComponentAllowed(h.component) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *componentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &componentFilterHandler{inner: h.inner.WithAttrs(attrs), component: h.component}
}

func (h *componentFilterHandler) WithGroup(name string) slog.Handler {
	return &componentFilterHandler{inner: h.inner.WithGroup(name), component: h.component}
}

// WithComponent returns a logger tagged with component=<name>. It logs
// nothing when component filtering excludes name.
func WithComponent(component string) *slog.Logger {
	base := Get()
	return slog.New(&componentFilterHandler{
		inner:     base.Handler().WithAttrs([]slog.Attr{slog.String("component", component)}),
		component: component,
	})
}

// API returns the logger for REST calls.
func API() *slog.Logger { return WithComponent(ComponentAPI) }

// WS returns the logger for the event stream.
func WS() *slog.Logger { return WithComponent(ComponentWS) }

// Hook returns the logger for completion hooks.
func Hook() *slog.Logger { return WithComponent(ComponentHook) }

// Watch returns the logger for the workflow directory watcher.
func Watch() *slog.Logger { return WithComponent(ComponentWatch) }

// Shutdown returns the logger for shutdown events.
func Shutdown() *slog.Logger { return WithComponent(ComponentShutdown) }

// WithPrompt adds the prompt and workflow being tracked.
func WithPrompt(base *slog.Logger, promptID, workflowID string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With("prompt_id", promptID, "workflow_id", workflowID)
}

// WithWorkflowFile adds the workflow file being synced.
func WithWorkflowFile(base *slog.Logger, path string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With("file", path)
}
