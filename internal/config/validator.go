package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	lwierrors "github.com/standardbeagle/lwi/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and fills zero values
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateIndexConfig(&cfg.Index); err != nil {
		return lwierrors.NewConfigError("index", "", err)
	}

	if err := v.validateServerConfig(&cfg.Server); err != nil {
		return lwierrors.NewConfigError("server", cfg.Server.Host, err)
	}

	if err := v.validateDiagnosticsConfig(&cfg.Diagnostics); err != nil {
		return lwierrors.NewConfigError("diagnostics", "", err)
	}

	if cfg.Routes.MaxImpactDepth < 0 {
		return lwierrors.NewConfigError("routes.max_impact_depth", strconv.Itoa(cfg.Routes.MaxImpactDepth),
			errors.New("cannot be negative"))
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateIndexConfig(index *Index) error {
	if index.MaxFileSize <= 0 {
		return fmt.Errorf("MaxFileSize must be positive, got %d", index.MaxFileSize)
	}
	if index.MaxFileSize > 100*1024*1024 {
		return fmt.Errorf("MaxFileSize should not exceed 100MB, got %d", index.MaxFileSize)
	}
	if index.Workers < 0 {
		return fmt.Errorf("Workers cannot be negative, got %d", index.Workers)
	}
	if index.WatchDebounceMs < 0 {
		return fmt.Errorf("WatchDebounceMs cannot be negative, got %d", index.WatchDebounceMs)
	}
	if index.EventQueueSize < 0 {
		return fmt.Errorf("EventQueueSize cannot be negative, got %d", index.EventQueueSize)
	}
	return nil
}

// validateServerConfig enforces the loopback-only listen address
func (v *Validator) validateServerConfig(server *Server) error {
	if !IsLoopbackHost(server.Host) {
		return fmt.Errorf("host %q is not a loopback address", server.Host)
	}
	if server.Port < 0 || server.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", server.Port)
	}
	if server.MaxLineBytes < 0 {
		return fmt.Errorf("MaxLineBytes cannot be negative, got %d", server.MaxLineBytes)
	}
	return nil
}

func (v *Validator) validateDiagnosticsConfig(diag *Diagnostics) error {
	if !diag.Enabled {
		return nil
	}
	if diag.IntervalSec < 0 {
		return fmt.Errorf("IntervalSec cannot be negative, got %d", diag.IntervalSec)
	}
	if len(diag.Command) == 0 {
		return errors.New("command cannot be empty when diagnostics are enabled")
	}
	return nil
}

func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Server.MaxLineBytes == 0 {
		cfg.Server.MaxLineBytes = DefaultMaxLineBytes
	}
	if cfg.Index.EventQueueSize == 0 {
		cfg.Index.EventQueueSize = DefaultEventQueueSize
	}
	if cfg.Diagnostics.IntervalSec == 0 {
		cfg.Diagnostics.IntervalSec = DefaultDiagIntervalSec
	}
	if cfg.Routes.MaxImpactDepth == 0 {
		cfg.Routes.MaxImpactDepth = DefaultMaxImpactDepth
	}
}

// IsLoopbackHost reports whether host names the loopback interface.
// "localhost" is accepted by name; anything else must parse as a loopback IP.
func IsLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
