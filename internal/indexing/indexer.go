package indexing

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/lwi/internal/config"
	"github.com/standardbeagle/lwi/internal/debug"
	lwierrors "github.com/standardbeagle/lwi/internal/errors"
	"github.com/standardbeagle/lwi/internal/parser"
	"github.com/standardbeagle/lwi/internal/security"
	"github.com/standardbeagle/lwi/internal/types"
	"github.com/standardbeagle/lwi/internal/workspace"
)

// ScanReport summarises one scan attempt
type ScanReport struct {
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
	FilesIndexed int       `json:"files_indexed"`
	FilesReused  int       `json:"files_reused"`
	FilesSkipped int       `json:"files_skipped"`
	Routes       int       `json:"routes"`
	Problems     []string  `json:"problems,omitempty"`
	Error        string    `json:"error,omitempty"`

	SkippedByType map[lwierrors.ErrorType]int `json:"skipped_by_type,omitempty"`
}

// ScanResult is an uncommitted generation produced by SourceIndexer.Scan
type ScanResult struct {
	Index  *CodeIndex
	Routes *RouteRegistry
	Report ScanReport
	// Skipped holds the scan-local failures; nil when every file indexed
	Skipped error
}

// SourceIndexer parses every source file under the workspace scan roots
// into a fresh CodeIndex and RouteRegistry
type SourceIndexer struct {
	root      string
	resolver  *workspace.Resolver
	cfg       *config.Config
	validator *security.SourceValidator
}

// NewSourceIndexer creates an indexer for a canonical workspace root
func NewSourceIndexer(root string, resolver *workspace.Resolver, cfg *config.Config) *SourceIndexer {
	return &SourceIndexer{root: root, resolver: resolver, cfg: cfg, validator: security.NewSourceValidator()}
}

// ScanRoots returns each service's src directory, or the bare source
// directory when the workspace has no services
func (si *SourceIndexer) ScanRoots() ([]ScanRoot, error) {
	services, err := si.resolver.Services()
	if err != nil {
		return nil, lwierrors.NewIndexingError("enumerate services", err)
	}

	if len(services) == 0 {
		dir := filepath.Join(si.root, workspace.SourceDir)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			dir = si.root
		}
		return []ScanRoot{{Dir: dir}}, nil
	}

	roots := make([]ScanRoot, 0, len(services))
	for _, svc := range services {
		roots = append(roots, ScanRoot{
			Dir:     filepath.Join(svc.Root, workspace.SourceDir),
			Service: svc.Name,
		})
	}
	return roots, nil
}

type fileResult struct {
	file   *types.SourceFile
	routes []types.RouteInfo
	reused bool
	err    error
}

// Scan builds a new generation. prevIndex and prevRoutes may be nil; when
// present, files whose content hash is unchanged reuse their previous
// records. Parse failures skip the file and are reported in the result;
// only an unreadable scan root or cancellation fails the scan.
func (si *SourceIndexer) Scan(ctx context.Context, prevIndex *CodeIndex, prevRoutes *RouteRegistry) (*ScanResult, error) {
	started := time.Now()
	skipped := lwierrors.NewMultiError(nil)

	roots, err := si.ScanRoots()
	if err != nil {
		return nil, err
	}

	collector := &fileCollector{
		workspace:   si.root,
		exclude:     si.cfg.Exclude,
		maxFileSize: si.cfg.Index.MaxFileSize,
	}

	var files []collectedFile
	for _, root := range roots {
		found, err := collector.collect(ctx, root, skipped)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	debug.LogIndexing("collected %d source files from %d scan roots\n", len(files), len(roots))

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(si.cfg.Index.WorkerCount())

	for i := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = si.indexFile(files[i], prevIndex, prevRoutes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, lwierrors.NewIndexingError("parse files", err).WithRecoverable(true)
	}
	if err := ctx.Err(); err != nil {
		return nil, lwierrors.NewIndexingError("parse files", err).WithRecoverable(true)
	}

	byPath := make(map[string]*types.SourceFile, len(files))
	var routes []types.RouteInfo
	report := ScanReport{StartedAt: started}

	for _, res := range results {
		if res.err != nil {
			skipped.Add(res.err)
			continue
		}
		byPath[res.file.RelativePath] = res.file
		routes = append(routes, res.routes...)
		if res.reused {
			report.FilesReused++
		}
	}

	idx := NewCodeIndex(byPath)
	registry := NewRouteRegistry(routes).Resolve(idx)

	report.FilesIndexed = idx.FileCount()
	report.FilesSkipped = skipped.Len()
	report.Routes = registry.Len()
	report.DurationMs = time.Since(started).Milliseconds()
	for _, err := range skipped.Unwrap() {
		report.Problems = append(report.Problems, err.Error())
	}
	if skipped.Len() > 0 {
		report.SkippedByType = skipped.CountByType()
	}

	debug.LogIndexing("scan complete: %d files (%d reused), %d skipped, %d functions, %d routes in %dms\n",
		report.FilesIndexed, report.FilesReused, report.FilesSkipped, idx.FunctionCount(), report.Routes, report.DurationMs)

	return &ScanResult{
		Index:   idx,
		Routes:  registry,
		Report:  report,
		Skipped: skipped.ErrorOrNil(),
	}, nil
}

func (si *SourceIndexer) indexFile(f collectedFile, prevIndex *CodeIndex, prevRoutes *RouteRegistry) fileResult {
	content, err := os.ReadFile(f.abs)
	if err != nil {
		return fileResult{err: lwierrors.NewFileError("read", f.rel, err)}
	}
	hash := xxhash.Sum64(content)
	modified := time.Unix(0, f.modTime)

	if prevIndex != nil {
		if old, ok := prevIndex.File(f.rel); ok && old.ContentHash == hash && old.Service == f.root.Service {
			reused := *old
			reused.LastModified = modified
			var routes []types.RouteInfo
			if prevRoutes != nil {
				routes = prevRoutes.InFile(f.rel)
			}
			return fileResult{file: &reused, routes: routes, reused: true}
		}
	}

	if err := si.validator.Validate(content); err != nil {
		log.Printf("Warning: skipping %s: %v", f.rel, err)
		return fileResult{err: lwierrors.NewFileError("validate", f.rel, err)}
	}

	structure, err := parser.Parse(content)
	if err != nil {
		var pe *lwierrors.ParseError
		if errors.As(err, &pe) {
			pe.FilePath = f.rel
		}
		log.Printf("Warning: skipping %s: %v", f.rel, err)
		return fileResult{err: err}
	}

	relToSource, err := filepath.Rel(f.root.Dir, f.abs)
	if err != nil {
		relToSource = filepath.Base(f.abs)
	}

	file := &types.SourceFile{
		Path:         f.abs,
		RelativePath: f.rel,
		ModulePath:   parser.ModulePath(relToSource),
		Functions:    structure.Functions,
		Structs:      structure.Structs,
		LastModified: modified,
		Service:      f.root.Service,
		ContentHash:  hash,
	}

	matches, err := parser.ScanRoutes(content)
	if err != nil {
		log.Printf("Warning: route scan failed for %s: %v", f.rel, err)
		matches = nil
	}

	return fileResult{file: file, routes: RoutesFromMatches(matches, file)}
}
