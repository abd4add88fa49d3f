package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/lwi/internal/debug"
	"github.com/standardbeagle/lwi/internal/types"
	"github.com/standardbeagle/lwi/pkg/pathutil"
)

// ServiceContainers lists the directories that hold services, in priority
// order. The newer Backend/services layout outranks the legacy services/.
var ServiceContainers = []string{
	filepath.Join("Backend", "services"),
	"services",
}

var (
	// ErrOutsideWorkspace is returned for paths not under the workspace root
	ErrOutsideWorkspace = pathutil.ErrOutsideWorkspace
	// ErrOutsideAnyService is returned for workspace paths no service owns
	ErrOutsideAnyService = errors.New("outside any registered service")
)

// OutsideServiceError carries the known services for the refusal message
type OutsideServiceError struct {
	Path  string
	Known []string
}

func (e *OutsideServiceError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("%s is outside any registered service (no services found)", e.Path)
	}
	return fmt.Sprintf("%s is outside any registered service (known: %s)", e.Path, strings.Join(e.Known, ", "))
}

func (e *OutsideServiceError) Unwrap() error {
	return ErrOutsideAnyService
}

// IsValidService applies the service-validity predicate to dir: a Cargo.toml
// with a [package] table (build manifest), a [dependencies] table or a
// sibling Cargo.lock (dependency manifest), and src/main.rs (entry point).
func IsValidService(dir string) bool {
	manifest, err := ReadManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return false
	}
	if !manifest.DeclaresPackage() {
		return false
	}
	if !manifest.DeclaresDependencies() && !isRegularFile(filepath.Join(dir, LockFile)) {
		return false
	}
	return isRegularFile(filepath.Join(dir, filepath.FromSlash(EntryFile)))
}

// Resolver maps canonical file paths to the service that owns them.
// Services are rediscovered on every call; nothing is cached.
type Resolver struct {
	root string
}

// NewResolver creates a resolver for a canonical workspace root
func NewResolver(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

// Root returns the workspace root
func (r *Resolver) Root() string {
	return r.root
}

// Services enumerates valid services: Backend/services/*, then services/*,
// then direct workspace children, each group sorted by name. A directory
// reachable through more than one group is reported once.
func (r *Resolver) Services() ([]types.ServiceInfo, error) {
	return discoverServices(r.root)
}

// Resolve returns the service whose root contains path
func (r *Resolver) Resolve(path string) (types.ServiceInfo, error) {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) || !pathutil.IsWithin(clean, r.root) {
		return types.ServiceInfo{}, fmt.Errorf("%w: %s", ErrOutsideWorkspace, path)
	}

	services, err := r.Services()
	if err != nil {
		return types.ServiceInfo{}, err
	}

	for _, svc := range services {
		if pathutil.IsWithin(clean, svc.Root) {
			return svc, nil
		}
	}

	known := make([]string, len(services))
	for i, svc := range services {
		known[i] = svc.Name
	}
	return types.ServiceInfo{}, &OutsideServiceError{Path: pathutil.ToRelative(clean, r.root), Known: known}
}

func discoverServices(root string) ([]types.ServiceInfo, error) {
	var services []types.ServiceInfo
	seen := make(map[string]bool)

	groups := make([]string, 0, len(ServiceContainers)+1)
	for _, c := range ServiceContainers {
		groups = append(groups, filepath.Join(root, c))
	}
	groups = append(groups, root)

	for _, container := range groups {
		entries, err := os.ReadDir(container)
		if err != nil {
			if os.IsNotExist(err) && container != root {
				continue
			}
			return nil, fmt.Errorf("list services in %s: %w", container, err)
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			dir := filepath.Join(container, name)
			if seen[dir] || !IsValidService(dir) {
				continue
			}
			seen[dir] = true
			services = append(services, types.ServiceInfo{Name: name, Root: dir})
		}
	}

	debug.LogWorkspace("discovered %d services under %s\n", len(services), root)
	return services, nil
}

// hasValidService reports whether root holds at least one valid service
// in any container or as a direct child
func hasValidService(root string) bool {
	services, err := discoverServices(root)
	return err == nil && len(services) > 0
}

// containerHasService reports whether a single container directory holds a valid service
func containerHasService(container string) bool {
	entries, err := os.ReadDir(container)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() && IsValidService(filepath.Join(container, e.Name())) {
			return true
		}
	}
	return false
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
