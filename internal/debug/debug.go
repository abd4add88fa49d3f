package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Build flag for debug mode - can be overridden at build time
// go build -ldflags "-X github.com/standardbeagle/lwi/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// StdioMode is set by main when the protocol runs over stdin/stdout
var StdioMode = false

// debugOutput is the writer for debug output (nil means no output)
var debugOutput io.Writer

// debugFile holds the open file handle if debug output goes to a file
var debugFile *os.File

// debugMutex protects access to debug output
var debugMutex sync.Mutex

// SetStdioMode suppresses all debug output while stdout carries protocol frames
func SetStdioMode(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	StdioMode = enabled
}

// SetDebugOutput sets a custom writer for debug output.
// Pass nil to disable debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitDebugLogFile redirects debug output to a timestamped file under the
// system temp directory and returns its path.
func InitDebugLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "lwi-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// IsDebugEnabled reports whether debug output should be produced.
// A debug log file counts even in stdio mode since it never touches stdout.
func IsDebugEnabled() bool {
	debugMutex.Lock()
	toFile := debugFile != nil
	stdio := StdioMode
	debugMutex.Unlock()

	if stdio && !toFile {
		return false
	}

	if EnableDebug == "true" {
		return true
	}

	v := os.Getenv("DEBUG")
	return v == "1" || v == "true"
}

func getDebugWriter() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Log provides structured debug logging with component names
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format, append([]interface{}{component}, args...)...)
}

// LogIndexing logs scan and index commit activity
func LogIndexing(format string, args ...interface{}) {
	Log("INDEX", format, args...)
}

// LogWatch logs file watcher and rescan loop activity
func LogWatch(format string, args ...interface{}) {
	Log("WATCH", format, args...)
}

// LogRPC logs request dispatch and transport activity
func LogRPC(format string, args ...interface{}) {
	Log("RPC", format, args...)
}

// LogWorkspace logs workspace and service detection
func LogWorkspace(format string, args ...interface{}) {
	Log("WORKSPACE", format, args...)
}

// LogDiagnostics logs collector runs
func LogDiagnostics(format string, args ...interface{}) {
	Log("DIAG", format, args...)
}
