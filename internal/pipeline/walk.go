package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/glob"
	"github.com/panjf2000/ants/v2"

	"github.com/oho/hikmara/internal/logger"
)

// excludeMatcher tests slash-separated paths relative to the walk root, as
// well as bare base names, against glob patterns.
type excludeMatcher struct {
	patterns []glob.Glob
}

func newExcludeMatcher(patterns []string) (*excludeMatcher, error) {
	m := &excludeMatcher{}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Wrapf(err, "invalid exclude pattern %q", p)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

func (m *excludeMatcher) Match(rel string) bool {
	if m == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, g := range m.patterns {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

// walk lists every file under root. Hidden files are included. Entries that
// cannot be read become read_error reports. A symlinked root is followed;
// symlinks to directories below it are skipped, which also keeps link cycles
// out of the walk. Returned paths stay under root as given.
func (in *Ingestor) walk(root string) ([]string, []*FileReport) {
	var paths []string
	var failures []*FileReport

	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		fr := &FileReport{Path: root, Kind: KindDirectory}
		return nil, []*FileReport{in.failFile(fr, StatusReadError, err)}
	}
	display := func(path string) string {
		if rel, err := filepath.Rel(resolved, path); err == nil {
			return filepath.Join(root, rel)
		}
		return path
	}

	filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fr := &FileReport{Path: display(path), Kind: "unknown"}
			failures = append(failures, in.failFile(fr, StatusReadError, err))
			if d != nil && d.IsDir() && path != resolved {
				return filepath.SkipDir
			}
			return nil
		}
		if path != resolved {
			rel, relErr := filepath.Rel(resolved, path)
			if relErr == nil && in.matcher.Match(rel) {
				in.log.Debugw("excluded", logger.FieldPath, display(path))
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				in.log.Debugw("skipping symlinked directory", logger.FieldPath, display(path))
				return nil
			}
		}
		paths = append(paths, display(path))
		return nil
	})
	return paths, failures
}

// ingestAll runs IngestFile over paths, concurrently when more than one
// worker is configured. Every path gets a report.
func (in *Ingestor) ingestAll(ctx context.Context, paths []string) []*FileReport {
	reports := make([]*FileReport, len(paths))
	if in.workers <= 1 || len(paths) <= 1 {
		for i, p := range paths {
			reports[i] = in.IngestFile(ctx, p)
		}
		return reports
	}

	pool, err := ants.NewPool(min(in.workers, len(paths)))
	if err != nil {
		in.log.Warnw("worker pool unavailable, ingesting sequentially", logger.FieldError, err)
		for i, p := range paths {
			reports[i] = in.IngestFile(ctx, p)
		}
		return reports
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			reports[i] = in.IngestFile(ctx, p)
		})
		if err != nil {
			wg.Done()
			reports[i] = in.IngestFile(ctx, p)
		}
	}
	wg.Wait()
	return reports
}

func sortFiles(files []*FileReport) {
	slices.SortStableFunc(files, func(a, b *FileReport) int {
		return strings.Compare(a.Path, b.Path)
	})
}
