package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lwi/internal/config"
	lwierrors "github.com/standardbeagle/lwi/internal/errors"
	"github.com/standardbeagle/lwi/internal/version"
	"github.com/standardbeagle/lwi/internal/workspace"
)

// loadConfigWithOverrides locates the workspace, loads its configuration
// and applies CLI flag overrides. A workspace that cannot be located is
// fatal.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	configPath := c.String("config")
	rootFlag := c.String("root")

	var cfg *config.Config
	var err error
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	}

	override := rootFlag
	if override == "" && cfg != nil {
		override = cfg.Workspace.Root
	}

	start, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}

	loc, err := workspace.Locate(start, override)
	if err != nil {
		return nil, lwierrors.NewConfigError("workspace.root", override, err)
	}

	if cfg == nil {
		if cfg, err = config.LoadWithRoot(loc.Root); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", filepath.Join(loc.Root, config.ConfigFileName), err)
		}
		// A root declared in the workspace file wins over detection
		if rootFlag == "" && cfg.Workspace.Root != "" && cfg.Workspace.Root != loc.Root {
			if loc, err = workspace.Locate(start, cfg.Workspace.Root); err != nil {
				return nil, lwierrors.NewConfigError("workspace.root", cfg.Workspace.Root, err)
			}
		}
	}
	cfg.Workspace.Root = loc.Root

	if c.IsSet("host") {
		cfg.Server.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("max-line-bytes") {
		cfg.Server.MaxLineBytes = c.Int("max-line-bytes")
	}
	if c.Bool("no-watch") {
		cfg.Index.WatchMode = false
	}
	if c.Bool("no-diagnostics") {
		cfg.Diagnostics.Enabled = false
	}

	if err := config.NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "lwi",
		Usage:                  "Live workspace intelligence for Rust microservice workspaces",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: <root>/" + config.ConfigFileName + ")",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Workspace root (overrides detection and config)",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Loopback host to listen on",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "TCP port to listen on",
			},
			&cli.IntFlag{
				Name:  "max-line-bytes",
				Usage: "Maximum request line length in bytes",
			},
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Disable the file watcher",
			},
			&cli.BoolFlag{
				Name:  "no-diagnostics",
				Usage: "Disable the diagnostics collector",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Index the workspace and serve JSON-RPC over loopback TCP",
				Action: serveCommand,
			},
			{
				Name:   "stdio",
				Usage:  "Index the workspace and serve a single JSON-RPC session over stdin/stdout",
				Action: stdioCommand,
			},
			{
				Name:   "services",
				Usage:  "Print the detected workspace root and services",
				Action: servicesCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Index the workspace once and print aggregate statistics",
				Action: statsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
			},
			{
				Name:      "call",
				Usage:     "Call a method on a running server",
				ArgsUsage: "<method> [json-params]",
				Action:    callCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Request timeout",
						Value: defaultCallTimeout,
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Wait for the index to be ready before calling",
					},
				},
			},
			{
				Name:   "version",
				Usage:  "Print version information",
				Action: versionCommand,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
