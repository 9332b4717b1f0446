package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// LogConfig describes where the hook writes its logs.
type LogConfig struct {
	// Dir is the directory holding hook.log. An empty Dir disables the
	// file handler.
	Dir string

	// Level is the btclog level name (trace, debug, info, warn, error,
	// critical, off). Unknown names fall back to info.
	Level string

	// MaxLogFiles and MaxLogFileSize configure rotation, see
	// LogRotatorConfig.
	MaxLogFiles    int
	MaxLogFileSize int

	// Console, when set, receives a copy of every record. The hook sets
	// it to stderr when DEBUG=1 so stdout stays reserved for the hook
	// response.
	Console io.Writer
}

// Logs owns the log handlers of one process and hands out tagged loggers.
// The zero of *Logs (nil) is valid and hands out disabled loggers.
type Logs struct {
	handlers *HandlerSet
	rotator  *RotatingLogWriter
}

// NewLogs builds the handler set described by cfg.
func NewLogs(cfg LogConfig) (*Logs, error) {
	var (
		handlers []btclogv2.Handler
		rot      *RotatingLogWriter
	)

	if cfg.Dir != "" {
		rotCfg := DefaultLogRotatorConfig(cfg.Dir)
		if cfg.MaxLogFiles > 0 {
			rotCfg.MaxLogFiles = cfg.MaxLogFiles
		}
		if cfg.MaxLogFileSize > 0 {
			rotCfg.MaxLogFileSize = cfg.MaxLogFileSize
		}

		var err error
		rot, err = OpenRotatingLogWriter(rotCfg)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, btclogv2.NewDefaultHandler(rot))
	}

	if cfg.Console != nil {
		handlers = append(
			handlers, btclogv2.NewDefaultHandler(cfg.Console),
		)
	}

	set := NewHandlerSet(handlers...)
	set.SetLevel(ParseLevel(cfg.Level))

	return &Logs{handlers: set, rotator: rot}, nil
}

// ParseLevel maps a level name to a btclog level, defaulting to info.
func ParseLevel(name string) btclog.Level {
	if name == "" {
		return btclog.LevelInfo
	}

	level, ok := btclog.LevelFromString(name)
	if !ok {
		return btclog.LevelInfo
	}

	return level
}

// Logger returns a logger tagged with the given subsystem.
func (l *Logs) Logger(subsystem string) btclogv2.Logger {
	if l == nil || l.handlers == nil {
		return btclogv2.Disabled
	}

	return btclogv2.NewSLogger(l.handlers.SubSystem(subsystem))
}

// FileLogger returns a logger that writes to the process handlers and also
// appends to the file at path. The returned closer releases the file.
func (l *Logs) FileLogger(path, subsystem string) (btclogv2.Logger,
	io.Closer, error) {

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	file := btclogv2.NewDefaultHandler(f)

	base := NewHandlerSet()
	if l != nil && l.handlers != nil {
		base = l.handlers
	}
	set := base.With(file)

	return btclogv2.NewSLogger(set.SubSystem(subsystem)), f, nil
}

// Close flushes and closes the rotating hook log.
func (l *Logs) Close() error {
	if l == nil {
		return nil
	}

	return l.rotator.Close()
}
