package workspace

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Marker file names for the Cargo layout
const (
	ManifestFile = "Cargo.toml"
	LockFile     = "Cargo.lock"
	EntryFile    = "src/main.rs"
	SourceDir    = "src"
)

// CargoManifest is the subset of Cargo.toml the locator and resolver read
type CargoManifest struct {
	Package      map[string]interface{} `toml:"package"`
	Workspace    map[string]interface{} `toml:"workspace"`
	Dependencies map[string]interface{} `toml:"dependencies"`

	hasWorkspace    bool
	hasDependencies bool
}

// ReadManifest parses the Cargo.toml at path
func ReadManifest(path string) (*CargoManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// ParseManifest parses Cargo.toml content. Table presence is tracked
// separately from content so an empty `[dependencies]` still counts.
func ParseManifest(data []byte) (*CargoManifest, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ManifestFile, err)
	}

	var m CargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ManifestFile, err)
	}
	_, m.hasWorkspace = raw["workspace"]
	_, m.hasDependencies = raw["dependencies"]
	return &m, nil
}

// DeclaresWorkspace reports whether the manifest carries a [workspace] table
func (m *CargoManifest) DeclaresWorkspace() bool {
	return m.hasWorkspace
}

// DeclaresPackage reports whether the manifest carries a [package] table
func (m *CargoManifest) DeclaresPackage() bool {
	return m.Package != nil
}

// DeclaresDependencies reports whether the manifest carries a [dependencies] table
func (m *CargoManifest) DeclaresDependencies() bool {
	return m.hasDependencies
}

// PackageName returns package.name, or "" when absent
func (m *CargoManifest) PackageName() string {
	if name, ok := m.Package["name"].(string); ok {
		return name
	}
	return ""
}

// Members returns workspace.members
func (m *CargoManifest) Members() []string {
	raw, ok := m.Workspace["members"].([]interface{})
	if !ok {
		return nil
	}
	members := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			members = append(members, s)
		}
	}
	return members
}
