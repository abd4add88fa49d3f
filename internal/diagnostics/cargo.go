package diagnostics

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/standardbeagle/lwi/internal/types"
)

// ErrNoCommand is returned by a CargoSource without an argv
var ErrNoCommand = errors.New("diagnostics command is empty")

const maxMessageBytes = 4 * 1024 * 1024

// CargoSource runs a cargo command with --message-format=json in the
// workspace root and converts its compiler messages
type CargoSource struct {
	Dir     string
	Command []string
}

// NewCargoSource creates a source running argv in dir
func NewCargoSource(dir string, argv []string) *CargoSource {
	return &CargoSource{Dir: dir, Command: argv}
}

// Collect runs the command once. Cargo exits non-zero when the build has
// errors, so the exit status only counts as a failure when no JSON messages
// were produced.
func (s *CargoSource) Collect(ctx context.Context) ([]types.Diagnostic, error) {
	if len(s.Command) == 0 {
		return nil, ErrNoCommand
	}

	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Dir = s.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	records, seen, err := ParseCargoMessages(&stdout)
	if err != nil {
		return nil, err
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) || !seen {
			return nil, fmt.Errorf("%s: %w%s", strings.Join(s.Command, " "), runErr, stderrTail(stderr.String()))
		}
	}
	return records, nil
}

type cargoMessage struct {
	Reason  string `json:"reason"`
	Message *struct {
		Message string `json:"message"`
		Level   string `json:"level"`
		Code    *struct {
			Code string `json:"code"`
		} `json:"code"`
		Spans []struct {
			FileName    string `json:"file_name"`
			LineStart   int    `json:"line_start"`
			ColumnStart int    `json:"column_start"`
			IsPrimary   bool   `json:"is_primary"`
		} `json:"spans"`
	} `json:"message"`
}

// ParseCargoMessages reads cargo JSON lines. It returns the compiler
// diagnostics and whether any cargo message was recognised at all.
// Non-JSON lines are ignored.
func ParseCargoMessages(r io.Reader) ([]types.Diagnostic, bool, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageBytes)

	records := []types.Diagnostic{}
	seen := false

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var msg cargoMessage
		if err := json.Unmarshal(line, &msg); err != nil || msg.Reason == "" {
			continue
		}
		seen = true

		if msg.Reason != "compiler-message" || msg.Message == nil {
			continue
		}
		if len(msg.Message.Spans) == 0 && strings.HasPrefix(msg.Message.Message, "aborting due to") {
			continue
		}

		d := types.Diagnostic{
			Severity: severityOf(msg.Message.Level),
			Message:  msg.Message.Message,
		}
		if msg.Message.Code != nil {
			d.Code = msg.Message.Code.Code
		}
		for i, span := range msg.Message.Spans {
			if span.IsPrimary || i == len(msg.Message.Spans)-1 {
				d.File = span.FileName
				d.Line = span.LineStart
				d.Column = span.ColumnStart
				break
			}
		}
		records = append(records, d)
	}

	if err := scanner.Err(); err != nil {
		return nil, seen, fmt.Errorf("read cargo output: %w", err)
	}
	return records, seen, nil
}

func severityOf(level string) types.Severity {
	switch {
	case strings.Contains(level, "error"):
		return types.SeverityError
	case level == "warning":
		return types.SeverityWarning
	case level == "help":
		return types.SeverityHelp
	}
	return types.SeverityNote
}

func stderrTail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	if len(stderr) > 512 {
		stderr = "..." + stderr[len(stderr)-512:]
	}
	return ": " + stderr
}
