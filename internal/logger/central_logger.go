package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// LoggingConfig configures the central logger
type LoggingConfig struct {
	DefaultLevel string            // trace, debug, info, warn, error
	Timezone     string            // IANA zone name for file timestamps, empty means local
	Console      *ConsoleOutput    // nil means console at the default level
	FileOutput   *FileOutput       // nil or disabled means no log file
	ModuleLevels map[string]string // per-module level overrides, keyed by module path
}

// ConsoleOutput configures human-readable output
type ConsoleOutput struct {
	Enabled bool
	Level   string
	Writer  io.Writer // defaults to os.Stderr
}

// FileOutput configures JSON file output
type FileOutput struct {
	Enabled bool
	Path    string
	Level   string
}

// CentralLogger owns the log outputs and creates module loggers
type CentralLogger struct {
	root *SlogLogger
	file *bufferedFileWriter
}

// NewCentralLogger builds the console and file handlers described by cfg
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		cfg = &LoggingConfig{DefaultLevel: string(LogLevelInfo)}
	}

	tz := time.Local
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid logging timezone %q: %w", cfg.Timezone, err)
		}
		tz = loc
	}

	defaultLevel := parseSlogLevel(LogLevel(cfg.DefaultLevel))
	var handlers []slog.Handler

	console := cfg.Console
	if console == nil {
		console = &ConsoleOutput{Enabled: true, Level: cfg.DefaultLevel}
	}
	if console.Enabled {
		w := console.Writer
		if w == nil {
			w = os.Stderr
		}
		handlers = append(handlers, newTextHandler(w, levelOr(console.Level, defaultLevel), tz))
	}

	c := &CentralLogger{}
	if cfg.FileOutput != nil && cfg.FileOutput.Enabled && cfg.FileOutput.Path != "" {
		fw, err := openBufferedFileWriter(cfg.FileOutput.Path)
		if err != nil {
			return nil, err
		}
		c.file = fw
		handlers = append(handlers, slog.NewJSONHandler(fw, &slog.HandlerOptions{
			Level:       levelOr(cfg.FileOutput.Level, defaultLevel),
			ReplaceAttr: replaceAttr(tz, true),
		}))
	}

	moduleLevels := make(map[string]slog.Level, len(cfg.ModuleLevels))
	for module, lvl := range cfg.ModuleLevels {
		moduleLevels[module] = parseSlogLevel(LogLevel(lvl))
	}

	c.root = &SlogLogger{
		handler:  newMultiHandler(handlers...),
		level:    defaultLevel,
		levels:   moduleLevels,
		timezone: tz,
		flush:    c.Flush,
	}
	return c, nil
}

// Module returns a logger scoped to a module
func (c *CentralLogger) Module(name string) Logger {
	return c.root.Module(name)
}

// Logger returns the unscoped root logger
func (c *CentralLogger) Logger() Logger {
	return c.root
}

// Flush writes buffered file output
func (c *CentralLogger) Flush() error {
	if c.file == nil {
		return nil
	}
	return c.file.Flush()
}

// Close flushes and closes the log file
func (c *CentralLogger) Close() error {
	if c.file == nil {
		return nil
	}
	return c.file.Close()
}

func levelOr(level string, fallback slog.Level) slog.Level {
	if level == "" {
		return fallback
	}
	return parseSlogLevel(LogLevel(level))
}

// newTextHandler creates the console handler, records carry no timestamp since the
// console is usually captured by cron or journald which add their own
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr(tz, false),
	})
}

// global logger, a discarding logger until SetGlobal is called
var global atomic.Pointer[SlogLogger]

func init() {
	global.Store(NewSlogLogger(io.Discard, LogLevelError, nil))
}

// SetGlobal installs the central logger's root as the process-wide logger, nil
// restores the discarding logger
func SetGlobal(c *CentralLogger) {
	if c == nil {
		global.Store(NewSlogLogger(io.Discard, LogLevelError, nil))
		return
	}
	global.Store(c.root)
}

// Global returns the process-wide logger
func Global() Logger {
	return global.Load()
}

// ensureDir creates the parent directory of a log file
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
