package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/lwi/internal/debug"
	"github.com/standardbeagle/lwi/internal/mcp"
)

// SessionStats counts the traffic of one session
type SessionStats struct {
	Requests      int64 `json:"requests"`
	Responses     int64 `json:"responses"`
	Oversized     int64 `json:"oversized"`
	Notifications int64 `json:"notifications"`
}

// session processes the requests of one connection strictly in order
type session struct {
	dispatcher *mcp.Dispatcher
	reader     *LineReader
	writer     *bufio.Writer
	maxLine    int
	writeMu    sync.Mutex
	stats      struct {
		requests, responses, oversized, notifications atomic.Int64
	}
}

func newSession(d *mcp.Dispatcher, r io.Reader, w io.Writer, maxLine int) *session {
	return &session{
		dispatcher: d,
		reader:     NewLineReader(r, maxLine),
		writer:     bufio.NewWriter(w),
		maxLine:    maxLine,
	}
}

// run serves until EOF or a read error. EOF ends the session cleanly.
func (s *session) run(ctx context.Context) error {
	for {
		line, err := s.reader.ReadLine()
		switch {
		case errors.Is(err, ErrLineTooLong):
			s.stats.oversized.Add(1)
			debug.LogRPC("rejected request over %d bytes\n", s.maxLine)
			if err := s.write(mcp.LineTooLongResponse(s.maxLine)); err != nil {
				return err
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		s.stats.requests.Add(1)
		resp := s.dispatcher.HandleLine(ctx, line)
		if resp == nil {
			s.stats.notifications.Add(1)
			continue
		}
		if err := s.write(resp); err != nil {
			return err
		}
	}
}

func (s *session) write(resp *mcp.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		// Fall back to an error the client can still correlate
		data, _ = json.Marshal(mcp.NewErrorResponse(resp.ID, mcp.CodeInternalError, fmt.Sprintf("internal error: encode response: %v", err)))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.writer.Write(append(data, '\n')); err != nil {
		return err
	}
	s.stats.responses.Add(1)
	return s.writer.Flush()
}

func (s *session) snapshot() SessionStats {
	return SessionStats{
		Requests:      s.stats.requests.Load(),
		Responses:     s.stats.responses.Load(),
		Oversized:     s.stats.oversized.Load(),
		Notifications: s.stats.notifications.Load(),
	}
}

// ServeStdio runs a single session over in and out. It returns nil when in
// reaches EOF.
func ServeStdio(ctx context.Context, d *mcp.Dispatcher, in io.Reader, out io.Writer, maxLine int) error {
	s := newSession(d, in, out, maxLine)
	err := s.run(ctx)
	stats := s.snapshot()
	debug.LogRPC("stdio session ended: %d requests, %d responses\n", stats.Requests, stats.Responses)
	return err
}
