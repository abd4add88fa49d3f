package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// applyKDLFile overlays the KDL file at path onto cfg. A missing file is not an error.
func applyKDLFile(cfg *Config, path string) error {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	rootBefore := cfg.Workspace.Root
	if err := parseKDL(string(content), cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	// Resolve a relative root against the directory containing the file
	if cfg.Workspace.Root != "" && cfg.Workspace.Root != rootBefore && !filepath.IsAbs(cfg.Workspace.Root) {
		cfg.Workspace.Root = filepath.Clean(filepath.Join(filepath.Dir(path), cfg.Workspace.Root))
	}
	return nil
}

// parseKDL overlays the settings found in content onto cfg
func parseKDL(content string, cfg *Config) error {
	doc, err := kdl.Parse(strings.NewReader(terminateChildren(content)))
	if err != nil {
		return fmt.Errorf("failed to parse KDL config (each child node needs a newline or ';' after it, "+
			"e.g. server { port 8100; }): %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "version":
			if v, ok := firstIntArg(n); ok {
				cfg.Version = v
			}
		case "workspace":
			for _, cn := range n.Children { // workspace { root "."; name "shop" }
				assignSimpleString(cn, "root", func(v string) { cfg.Workspace.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Workspace.Name = v })
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileSize = int64(v)
					}
					if s, ok := firstStringArg(cn); ok {
						sz, err := parseSize(s)
						if err != nil {
							return fmt.Errorf("index.max_file_size: %w", err)
						}
						cfg.Index.MaxFileSize = sz
					}
				case "workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.Workers = v
					}
				case "watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.WatchMode = b
					}
				case "watch_debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.WatchDebounceMs = v
					}
				case "event_queue_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.EventQueueSize = v
					}
				}
			}
		case "server":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "host":
					if s, ok := firstStringArg(cn); ok {
						cfg.Server.Host = s
					}
				case "port":
					if v, ok := firstIntArg(cn); ok {
						cfg.Server.Port = v
					}
				case "max_line_bytes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Server.MaxLineBytes = v
					}
					if s, ok := firstStringArg(cn); ok {
						sz, err := parseSize(s)
						if err != nil {
							return fmt.Errorf("server.max_line_bytes: %w", err)
						}
						cfg.Server.MaxLineBytes = int(sz)
					}
				}
			}
		case "diagnostics":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Diagnostics.Enabled = b
					}
				case "interval_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Diagnostics.IntervalSec = v
					}
				case "command": // command "cargo" "check" "--message-format=json"
					if args := collectStringArgs(cn); len(args) > 0 {
						cfg.Diagnostics.Command = args
					}
				}
			}
		case "routes":
			for _, cn := range n.Children {
				if nodeName(cn) == "max_impact_depth" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Routes.MaxImpactDepth = v
					}
				}
			}
		case "exclude":
			cfg.Exclude = append(cfg.Exclude, collectStringArgs(n)...)
		}
	}

	return nil
}

// terminateChildren puts a newline before every closing brace outside
// strings and comments, so one-line blocks such as `server { port 8100 }`
// parse: the parser requires the last child of a block to be terminated.
func terminateChildren(content string) string {
	var sb strings.Builder
	sb.Grow(len(content) + 16)

	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case c == '"':
			end := quotedEnd(content, i)
			sb.WriteString(content[i:end])
			i = end - 1
		case c == 'r' && i+1 < len(content) && (content[i+1] == '"' || content[i+1] == '#'):
			end := rawEnd(content, i)
			sb.WriteString(content[i:end])
			i = end - 1
		case c == '/' && i+1 < len(content) && content[i+1] == '/':
			end := strings.IndexByte(content[i:], '\n')
			if end < 0 {
				end = len(content) - i
			}
			sb.WriteString(content[i : i+end])
			i += end - 1
		case c == '/' && i+1 < len(content) && content[i+1] == '*':
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				sb.WriteString(content[i:])
				return sb.String()
			}
			sb.WriteString(content[i : i+2+end+2])
			i += 2 + end + 1
		case c == '}':
			sb.WriteString("\n}")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// quotedEnd returns the index just past the string starting at content[start]
func quotedEnd(content string, start int) int {
	for i := start + 1; i < len(content); i++ {
		switch content[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(content)
}

// rawEnd returns the index just past the raw string r#"..."# at content[start]
func rawEnd(content string, start int) int {
	i := start + 1
	hashes := 0
	for i < len(content) && content[i] == '#' {
		hashes++
		i++
	}
	if i >= len(content) || content[i] != '"' {
		return start + 1
	}
	closing := "\"" + strings.Repeat("#", hashes)
	end := strings.Index(content[i+1:], closing)
	if end < 0 {
		return len(content)
	}
	return i + 1 + end + len(closing)
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

// collectStringArgs accepts both `exclude "a" "b"` and the block form
// `exclude { "a"; "b" }` where each child node name is the value.
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

// parseSize parses sizes like "2MB", "512KB" or "1024"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	numStr := s

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}

func getDefaultExclusions() []string {
	return []string{
		"**/.*/**",     // Hidden directories
		"**/target/**", // Cargo build output
		"**/node_modules/**",
		"**/vendor/**",
		"**/build/**",
		"**/dist/**",
		"**/*.rs.bk", // rustfmt backups
	}
}
