package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lwi/internal/debug"
	"github.com/standardbeagle/lwi/internal/indexing"
	"github.com/standardbeagle/lwi/internal/mcp"
	"github.com/standardbeagle/lwi/internal/metrics"
	"github.com/standardbeagle/lwi/internal/server"
	"github.com/standardbeagle/lwi/internal/version"
	"github.com/standardbeagle/lwi/internal/workspace"
	"github.com/standardbeagle/lwi/pkg/pathutil"
)

const (
	defaultCallTimeout = 30 * time.Second
	readyPollInterval  = 100 * time.Millisecond
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// debugRequested reports whether debug output was asked for, ignoring stdio
// suppression
func debugRequested() bool {
	v := os.Getenv("DEBUG")
	return debug.EnableDebug == "true" || v == "1" || v == "true"
}

// serveCommand runs the TCP transport until interrupted
func serveCommand(c *cli.Context) error {
	debug.SetDebugOutput(os.Stderr)

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	eng, err := startEngine(ctx, cfg)
	if err != nil {
		return err
	}

	srv, err := server.NewTCPServer(eng.dispatcher, cfg.Server)
	if err != nil {
		stop()
		eng.wait()
		return err
	}
	if err := srv.Start(ctx); err != nil {
		stop()
		eng.wait()
		return err
	}

	fmt.Fprintf(c.App.Writer, "lwi %s serving %s\n", version.Version, cfg.Workspace.Root)
	fmt.Fprintf(c.App.Writer, "Listening on %s\n", srv.Addr())
	debug.LogRPC("routing %d methods: %v\n", len(eng.dispatcher.Methods()), eng.dispatcher.Methods())

	<-ctx.Done()
	fmt.Fprintln(c.App.Writer, "\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)
	if err := eng.wait(); err != nil {
		return err
	}
	if shutdownErr != nil {
		return fmt.Errorf("shutdown error: %w", shutdownErr)
	}

	fmt.Fprintln(c.App.Writer, "Server shut down cleanly")
	return nil
}

// stdioCommand runs one session over stdin/stdout. Logging moves to a file
// so stdout carries only protocol frames.
func stdioCommand(c *cli.Context) error {
	debug.SetStdioMode(true)

	logger := mcp.NewDiagnosticLogger(true)
	defer logger.Close()
	log.SetOutput(logger.Writer())

	if debugRequested() {
		if path, err := debug.InitDebugLogFile(); err == nil {
			defer debug.CloseDebugLog()
			logger.Printf("debug output in %s", path)
		}
	}

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	eng, err := startEngine(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Printf("stdio session for %s (log %s)", cfg.Workspace.Root, logger.FilePath())

	sessionErr := server.ServeStdio(ctx, eng.dispatcher, os.Stdin, os.Stdout, cfg.Server.MaxLineBytes)
	stop()
	if err := eng.wait(); err != nil {
		return err
	}
	return sessionErr
}

// servicesCommand prints the workspace root and its services without
// starting a server
func servicesCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	resolver := workspace.NewResolver(cfg.Workspace.Root)
	services, err := resolver.Services()
	if err != nil {
		return err
	}

	if c.Bool("json") {
		type entry struct {
			Name string `json:"name"`
			Root string `json:"root"`
		}
		out := struct {
			Root     string  `json:"root"`
			Services []entry `json:"services"`
		}{Root: cfg.Workspace.Root, Services: []entry{}}
		for _, svc := range services {
			out.Services = append(out.Services, entry{Name: svc.Name, Root: pathutil.ToRelative(svc.Root, cfg.Workspace.Root)})
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(c.App.Writer, "Workspace: %s\n", cfg.Workspace.Root)
	if len(services) == 0 {
		fmt.Fprintln(c.App.Writer, "No services found")
		return nil
	}
	for _, svc := range services {
		fmt.Fprintf(c.App.Writer, "  %-20s %s\n", svc.Name, pathutil.ToRelative(svc.Root, cfg.Workspace.Root))
	}
	return nil
}

// statsCommand runs one scan and prints workspace statistics
func statsCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	state := indexing.NewProjectState(cfg.Workspace.Root, cfg)
	if err := state.InitialScan(ctx); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	snap := state.Snapshot()
	stats := metrics.Compute(snap.Index, snap.Routes)

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	fmt.Fprintf(c.App.Writer, "Workspace: %s\n\n", cfg.Workspace.Root)
	fmt.Fprint(c.App.Writer, stats.FormatAsText())
	return nil
}

// callCommand sends one request to a running server and prints the result
func callCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("method name required")
	}
	method := c.Args().Get(0)

	var params json.RawMessage
	if c.NArg() > 1 {
		params = json.RawMessage(c.Args().Get(1))
		if !json.Valid(params) {
			return fmt.Errorf("params are not valid JSON: %s", params)
		}
	}

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	client, err := server.Dial(ctx, cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("%w (is 'lwi serve' running?)", err)
	}
	defer client.Close()

	if c.Bool("wait") {
		if err := client.WaitForReady(ctx, readyPollInterval); err != nil {
			return err
		}
	}

	var p any
	if params != nil {
		p = params
	}
	resp, err := client.Call(ctx, method, p)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}

	var pretty any
	if err := json.Unmarshal(resp.Result, &pretty); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}

func versionCommand(c *cli.Context) error {
	fmt.Fprintln(c.App.Writer, version.FullInfo())
	fmt.Fprintf(c.App.Writer, "protocol %s, %s/%s, %s\n", version.ProtocolVersion, runtime.GOOS, runtime.GOARCH, runtime.Version())
	return nil
}
