package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

const (
	// DefaultMaxLogFiles is the default number of rotated hook logs kept
	// next to the active one.
	DefaultMaxLogFiles = 5

	// DefaultMaxLogFileSize is the default hook log size in MB before it
	// is rotated.
	DefaultMaxLogFileSize = 10

	// DefaultLogFilename is the name of the hook log inside the output
	// directory.
	DefaultLogFilename = "hook.log"
)

// LogRotatorConfig holds the configuration for the hook log rotator.
type LogRotatorConfig struct {
	// LogDir is the directory where log files are written.
	LogDir string

	// MaxLogFiles is the maximum number of rotated log files to keep.
	// Set to 0 to disable rotation (single file, unbounded growth).
	MaxLogFiles int

	// MaxLogFileSize is the maximum size of a log file in megabytes
	// before it is rotated.
	MaxLogFileSize int

	// Filename overrides DefaultLogFilename.
	Filename string
}

// DefaultLogRotatorConfig returns a LogRotatorConfig for the given
// directory using the package defaults.
func DefaultLogRotatorConfig(logDir string) *LogRotatorConfig {
	return &LogRotatorConfig{
		LogDir:         logDir,
		MaxLogFiles:    DefaultMaxLogFiles,
		MaxLogFileSize: DefaultMaxLogFileSize,
		Filename:       DefaultLogFilename,
	}
}

// RotatingLogWriter feeds a jrick/logrotate rotator through an io.Pipe.
// Rotated files are gzip compressed.
//
// A hook process lives for a single event, so Close blocks until the rotator
// goroutine has drained the pipe and flushed the file.
type RotatingLogWriter struct {
	pipe    *io.PipeWriter
	rotator *rotator.Rotator
	done    chan struct{}
}

// OpenRotatingLogWriter creates the log directory, starts the rotator
// goroutine and returns a writer ready for use.
func OpenRotatingLogWriter(cfg *LogRotatorConfig) (*RotatingLogWriter,
	error) {

	filename := cfg.Filename
	if filename == "" {
		filename = DefaultLogFilename
	}

	logFile := filepath.Join(cfg.LogDir, filename)
	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	maxSize := cfg.MaxLogFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxLogFileSize
	}

	// The rotator threshold is expressed in kilobytes.
	rot, err := rotator.New(
		logFile, int64(maxSize*1024), false, cfg.MaxLogFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	rot.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	w := &RotatingLogWriter{
		pipe:    pw,
		rotator: rot,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(w.done)

		// The rotator is the log destination, so its own failures can
		// only go to stderr.
		if err := rot.Run(pr); err != nil {
			_, _ = fmt.Fprintf(
				os.Stderr, "failed to run file rotator: %v\n",
				err,
			)
		}
		_ = rot.Close()
	}()

	return w, nil
}

// Write writes the byte slice to the rotator pipe. Writes on a nil writer are
// discarded.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if r == nil || r.pipe == nil {
		return len(b), nil
	}

	return r.pipe.Write(b)
}

// Close closes the pipe and waits for the rotator to finish writing.
func (r *RotatingLogWriter) Close() error {
	if r == nil || r.pipe == nil {
		return nil
	}

	err := r.pipe.Close()
	<-r.done

	return err
}
