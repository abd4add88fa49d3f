package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/standardbeagle/lwi/internal/config"
	"github.com/standardbeagle/lwi/internal/mcp"
)

// ClientResponse is a decoded response line
type ClientResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcp.RPCError   `json:"error,omitempty"`
}

// Client speaks the line protocol to a running TCPServer. Calls on one
// client are serialized.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *LineReader
	writer *bufio.Writer
	nextID int64
}

// Dial connects to addr
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		reader: NewLineReader(conn, config.DefaultMaxLineBytes*16),
		writer: bufio.NewWriter(conn),
	}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one request and waits for its response
func (c *Client) Call(ctx context.Context, method string, params any) (*ClientResponse, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	req := mcp.Request{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = raw
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.SendLine(ctx, line)
}

// SendLine writes a raw line and reads one response line
func (c *Client) SendLine(ctx context.Context, line []byte) (*ClientResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	if _, err := c.writer.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	respLine, err := c.reader.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp ClientResponse
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// Envelope decodes the result of a query method. It returns the RPC error
// when the call failed at the protocol level.
func (r *ClientResponse) Envelope() (map[string]any, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	var out map[string]any
	if err := json.Unmarshal(r.Result, &out); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return out, nil
}

// WaitForReady polls get_index_status until the index is ready or failed
func (c *Client) WaitForReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		resp, err := c.Call(ctx, "get_index_status", nil)
		if err != nil {
			return err
		}
		env, err := resp.Envelope()
		if err != nil {
			return err
		}
		if data, ok := env["data"].(map[string]any); ok {
			switch data["state"] {
			case "ready":
				return nil
			case "failed":
				return errors.New("index failed: " + fmt.Sprint(data["state_reason"]))
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for index to be ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
