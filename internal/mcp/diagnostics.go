package mcp

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DiagnosticLogger keeps operational logging off stdout while a stdio
// session owns it. In stdio mode output goes to a timestamped file under the
// system temp directory; otherwise it goes to stderr.
type DiagnosticLogger struct {
	mu       sync.Mutex
	file     *os.File
	logger   *log.Logger
	writer   io.Writer
	filePath string
	stdio    bool
}

// NewDiagnosticLogger creates the logger. A log file that cannot be created
// disables logging instead of failing startup.
func NewDiagnosticLogger(stdio bool) *DiagnosticLogger {
	dl := &DiagnosticLogger{stdio: stdio}

	if !stdio {
		dl.writer = os.Stderr
		dl.logger = log.New(os.Stderr, "[lwi] ", log.LstdFlags)
		return dl
	}

	logDir := filepath.Join(os.TempDir(), "lwi-logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		dl.writer = io.Discard
		dl.logger = log.New(io.Discard, "", 0)
		return dl
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("lwi-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		dl.writer = io.Discard
		dl.logger = log.New(io.Discard, "", 0)
		return dl
	}

	dl.file = file
	dl.filePath = logPath
	dl.writer = file
	dl.logger = log.New(file, "[lwi] ", log.LstdFlags|log.Lshortfile)
	return dl
}

// Printf logs one diagnostic line
func (dl *DiagnosticLogger) Printf(format string, v ...any) {
	if dl == nil || dl.logger == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	dl.logger.Printf(format, v...)
}

// Writer is the destination for redirecting the std log package
func (dl *DiagnosticLogger) Writer() io.Writer {
	if dl == nil || dl.writer == nil {
		return io.Discard
	}
	return dl.writer
}

// FilePath returns the log file path, empty when logging to stderr
func (dl *DiagnosticLogger) FilePath() string {
	if dl == nil {
		return ""
	}
	return dl.filePath
}

// Close flushes and closes the log file
func (dl *DiagnosticLogger) Close() error {
	if dl == nil {
		return nil
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file == nil {
		return nil
	}
	err := dl.file.Close()
	dl.file = nil
	dl.writer = io.Discard
	dl.logger = log.New(io.Discard, "", 0)
	return err
}
