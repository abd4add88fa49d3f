package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	lwierrors "github.com/standardbeagle/lwi/internal/errors"
	"github.com/standardbeagle/lwi/internal/types"
	"github.com/standardbeagle/lwi/internal/workspace"
)

// ErrNoServices is returned when a root without a [workspace] manifest
// has no services to build either
var ErrNoServices = errors.New("no Cargo workspace and no services to check")

// WorkspaceSource runs the cargo command in the workspace root when its
// Cargo.toml declares [workspace], and otherwise once per service. The
// layout is re-read on every run.
type WorkspaceSource struct {
	Root     string
	Command  []string
	resolver *workspace.Resolver
}

// NewWorkspaceSource creates a source for a canonical workspace root
func NewWorkspaceSource(root string, argv []string) *WorkspaceSource {
	return &WorkspaceSource{Root: root, Command: argv, resolver: workspace.NewResolver(root)}
}

// Collect implements Source. File names are returned absolute for
// per-service runs, since each run reports them against its own directory.
func (s *WorkspaceSource) Collect(ctx context.Context) ([]types.Diagnostic, error) {
	if len(s.Command) == 0 {
		return nil, ErrNoCommand
	}
	if declaresWorkspace(s.Root) {
		return NewCargoSource(s.Root, s.Command).Collect(ctx)
	}

	services, err := s.resolver.Services()
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, ErrNoServices
	}

	records := []types.Diagnostic{}
	failures := lwierrors.NewMultiError(nil)
	for _, svc := range services {
		found, err := NewCargoSource(svc.Root, s.Command).Collect(ctx)
		if err != nil {
			failures.Add(fmt.Errorf("service %s: %w", svc.Name, err))
			continue
		}
		for i := range found {
			if found[i].File != "" && !filepath.IsAbs(found[i].File) {
				found[i].File = filepath.Join(svc.Root, filepath.FromSlash(found[i].File))
			}
		}
		records = append(records, found...)
	}

	if failures.Len() == len(services) {
		return nil, failures
	}
	if failures.Len() > 0 {
		log.Printf("Diagnostics incomplete: %v", failures)
	}
	return records, nil
}

func declaresWorkspace(root string) bool {
	manifest, err := workspace.ReadManifest(filepath.Join(root, workspace.ManifestFile))
	return err == nil && manifest.DeclaresWorkspace()
}
