package version

import (
	"runtime/debug"
	"sync"
)

const (
	// Version is the engine release
	Version = "0.3.0"

	// ProtocolVersion is the tool protocol revision reported by initialize
	ProtocolVersion = "2025-06-18"
)

var (
	buildOnce sync.Once
	buildID   string
)

// BuildID identifies the binary in initialize responses: the VCS revision
// the binary was built from, with "+dirty" for modified trees, or "dev".
func BuildID() string {
	buildOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			buildID = "dev"
			return
		}
		buildID = revision(info.Settings)
	})
	return buildID
}

func revision(settings []debug.BuildSetting) string {
	var rev string
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "dev"
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		rev += "+dirty"
	}
	return rev
}

// FullInfo is the one-line banner printed by `lwi version`
func FullInfo() string {
	return "Live Workspace Intelligence " + Version + " (build " + BuildID() + ")"
}
