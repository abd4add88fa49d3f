package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/lwi/internal/config"
	"github.com/standardbeagle/lwi/internal/mcp"
)

func TestNewTCPServerRefusesNonLoopback(t *testing.T) {
	d, cfg := newTestDispatcher(t)

	for _, host := range []string{"0.0.0.0", "192.168.1.10", "example.com", ""} {
		c := cfg.Server
		c.Host = host
		_, err := NewTCPServer(d, c)
		assert.ErrorIs(t, err, ErrNonLoopback, host)
	}

	for _, host := range []string{"localhost", "127.0.0.1", "::1"} {
		assert.True(t, config.IsLoopbackHost(host), host)
	}
}

func TestRequireLoopback(t *testing.T) {
	assert.NoError(t, requireLoopback(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8100}))
	assert.NoError(t, requireLoopback(&net.TCPAddr{IP: net.IPv6loopback, Port: 8100}))
	assert.ErrorIs(t, requireLoopback(&net.TCPAddr{IP: net.IPv4(192, 168, 1, 10), Port: 8100}), ErrNonLoopback)
	assert.ErrorIs(t, requireLoopback(&net.TCPAddr{IP: net.IPv4zero, Port: 8100}), ErrNonLoopback)
	assert.ErrorIs(t, requireLoopback(&net.UnixAddr{Name: "/tmp/lwi.sock", Net: "unix"}), ErrNonLoopback)
}

func TestStartBindsLoopback(t *testing.T) {
	d, cfg := newTestDispatcher(t)
	c := cfg.Server
	c.Host = "127.0.0.1"
	c.Port = 0

	srv, err := NewTCPServer(d, c)
	require.NoError(t, err)
	require.NoError(t, srv.Start(t.Context()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	assert.True(t, srv.Addr().(*net.TCPAddr).IP.IsLoopback())
}

func TestOversizedLineKeepsConnectionOpen(t *testing.T) {
	srv, cfg := startServer(t)

	client, err := Dial(t.Context(), srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	oversized := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", cfg.Server.MaxLineBytes) + `"}}`
	resp, err := client.SendLine(ctx, []byte(oversized))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.CodeInvalidRequest, resp.Error.Code)
	assert.Equal(t, fmt.Sprintf("request exceeds maximum line length of %d bytes", cfg.Server.MaxLineBytes), resp.Error.Message)
	assert.Equal(t, "null", string(resp.ID))

	// The same connection still answers
	resp, err = client.Call(ctx, "list_services", nil)
	require.NoError(t, err)
	env, err := resp.Envelope()
	require.NoError(t, err)
	assert.Equal(t, "high", env["confidence"])
	assert.Equal(t, []any{"auth", "billing"}, env["data"].(map[string]any)["names"])
}

func TestConcurrentClients(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrent client test in short mode")
	}
	srv, _ := startServer(t)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			client, err := Dial(gctx, srv.Addr().String())
			if err != nil {
				return err
			}
			defer client.Close()

			for j := 0; j < 10; j++ {
				resp, err := client.Call(gctx, "get_function_usage", map[string]string{"function": "create_order"})
				if err != nil {
					return err
				}
				env, err := resp.Envelope()
				if err != nil {
					return err
				}
				if env["confidence"] != "high" {
					return fmt.Errorf("client %d call %d: confidence %v", i, j, env["confidence"])
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestResponsesStayInRequestOrder(t *testing.T) {
	srv, _ := startServer(t)

	client, err := Dial(t.Context(), srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	for i := 1; i <= 5; i++ {
		resp, err := client.Call(ctx, "ping", nil)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), string(resp.ID))
	}
}

func TestShutdownClosesIdleConnections(t *testing.T) {
	d, cfg := newTestDispatcher(t)
	srv, err := NewTCPServer(d, cfg.Server)
	require.NoError(t, err)
	require.NoError(t, srv.Start(t.Context()))

	client, err := Dial(t.Context(), srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	_, err = client.Call(ctx, "ping", nil)
	require.NoError(t, err)

	require.NoError(t, srv.Shutdown(ctx))
	assert.Equal(t, 0, srv.Connections())

	_, err = Dial(ctx, srv.Addr().String())
	assert.Error(t, err)
}

func TestServeStdioSession(t *testing.T) {
	d, _ := newTestDispatcher(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"get_route_impact","params":{"method":"GET","path":"/orders/:id"}}`,
		`not json`,
		strings.Repeat("x", 600),
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
	}, "\n")

	var out bytes.Buffer
	err := ServeStdio(t.Context(), d, strings.NewReader(input), &out, 512)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)

	var responses []ClientResponse
	for _, line := range lines {
		var r ClientResponse
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		responses = append(responses, r)
	}

	assert.Equal(t, "1", string(responses[0].ID))

	env, err := responses[1].Envelope()
	require.NoError(t, err)
	assert.Equal(t, "partial", env["confidence"])
	data := env["data"].(map[string]any)
	assert.Equal(t, "unresolved", data["handler_resolution"])
	assert.Empty(t, data["called_functions"])

	assert.Equal(t, mcp.CodeParseError, responses[2].Error.Code)
	assert.Equal(t, mcp.CodeInvalidRequest, responses[3].Error.Code)
	assert.Equal(t, "3", string(responses[4].ID))
}

func TestServeStdioEmptyInput(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var out bytes.Buffer
	require.NoError(t, ServeStdio(t.Context(), d, strings.NewReader(""), &out, config.DefaultMaxLineBytes))
	assert.Empty(t, out.String())
}
