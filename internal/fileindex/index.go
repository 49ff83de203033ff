// Package fileindex keeps an in-memory snapshot of the source files under
// a content root. The snapshot is rebuilt lazily once it is older than
// the configured TTL or after Invalidate.
package fileindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragchat/internal/ignore"
	"github.com/fyrsmithlabs/ragchat/internal/logging"
	"github.com/fyrsmithlabs/ragchat/internal/metrics"
)

// ErrNoRoot is returned when the content root is missing or unreadable.
var ErrNoRoot = errors.New("content root unavailable")

// fallbackIgnores apply when the root carries no ignore file.
var fallbackIgnores = []string{
	"*.min.css",
	"*.designer.cs",
	"package-lock.json",
}

// File is one indexed source file.
type File struct {
	// Path is relative to the content root, with forward slashes.
	Path    string
	Content string
	ModTime time.Time
	Size    int64
}

// Options configures an Index.
type Options struct {
	Root        string
	TTL         time.Duration
	MaxFileSize int64
	// Extensions are matched case-insensitively and include the dot.
	Extensions []string
	// Excludes are path segments, or slash-joined segment runs such as
	// "wwwroot/lib", that are never descended into.
	Excludes    []string
	IgnoreFiles []string

	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

type snapshot struct {
	files     []File
	scannedAt time.Time
}

// Index is safe for concurrent use. Readers always see a complete
// snapshot; concurrent rebuilds coalesce into one walk.
type Index struct {
	root        string
	ttl         time.Duration
	maxFileSize int64
	exts        map[string]bool
	excludes    []string
	parser      *ignore.Parser

	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	snap  atomic.Pointer[snapshot]
	stale atomic.Bool
	mu    sync.Mutex
}

// New creates an Index. Nothing is scanned until the first Files call.
func New(opts Options) (*Index, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, fmt.Errorf("%w: root is required", ErrNoRoot)
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving content root: %w", err)
	}
	if opts.TTL <= 0 {
		return nil, errors.New("ttl must be positive")
	}

	idx := &Index{
		root:        root,
		ttl:         opts.TTL,
		maxFileSize: opts.MaxFileSize,
		exts:        make(map[string]bool, len(opts.Extensions)),
		parser:      ignore.NewParser(opts.IgnoreFiles, fallbackIgnores),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Clock,
	}
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		idx.exts[ext] = true
	}
	for _, ex := range opts.Excludes {
		ex = strings.Trim(filepath.ToSlash(strings.TrimSpace(ex)), "/")
		if ex != "" {
			idx.excludes = append(idx.excludes, ex)
		}
	}
	if idx.logger == nil {
		idx.logger = logging.NewNop()
	}
	if idx.metrics == nil {
		idx.metrics = metrics.NewNop()
	}
	if idx.now == nil {
		idx.now = time.Now
	}
	return idx, nil
}

// Root returns the absolute content root.
func (x *Index) Root() string { return x.root }

// Files returns the current snapshot, rescanning first if it is stale.
// The returned slice is shared and must not be modified.
func (x *Index) Files(ctx context.Context) ([]File, error) {
	if s := x.fresh(); s != nil {
		return s.files, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if s := x.fresh(); s != nil {
		return s.files, nil
	}

	s, err := x.scan(ctx)
	if err != nil {
		return nil, err
	}
	x.snap.Store(s)
	return s.files, nil
}

// RefreshIfStale rescans when the snapshot has expired or was invalidated.
func (x *Index) RefreshIfStale(ctx context.Context) error {
	_, err := x.Files(ctx)
	return err
}

// Invalidate marks the snapshot stale. The next Files call rescans.
func (x *Index) Invalidate() {
	x.stale.Store(true)
}

// Stale reports whether the next Files call will rescan.
func (x *Index) Stale() bool {
	return x.fresh() == nil
}

// Size returns the number of files in the current snapshot.
func (x *Index) Size() int {
	if s := x.snap.Load(); s != nil {
		return len(s.files)
	}
	return 0
}

// LastScan returns when the current snapshot was built, or the zero time.
func (x *Index) LastScan() time.Time {
	if s := x.snap.Load(); s != nil {
		return s.scannedAt
	}
	return time.Time{}
}

// Indexed reports whether the extension of name is one the index keeps.
func (x *Index) Indexed(name string) bool {
	return x.exts[strings.ToLower(filepath.Ext(name))]
}

func (x *Index) fresh() *snapshot {
	s := x.snap.Load()
	if s == nil || x.stale.Load() {
		return nil
	}
	if x.now().Sub(s.scannedAt) >= x.ttl {
		return nil
	}
	return s
}

func (x *Index) scan(ctx context.Context) (*snapshot, error) {
	start := time.Now()
	// Events arriving during the walk re-mark the index.
	x.stale.Store(false)

	matcher, err := x.parser.ParseProject(x.root)
	if err != nil {
		x.logger.Warn(ctx, "reading ignore files failed", zap.String("root", x.root), zap.Error(err))
		matcher = nil
	}

	var files []File
	walkErr := filepath.WalkDir(x.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == x.root {
				return err
			}
			x.logger.Warn(ctx, "skipping unreadable path", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == x.root {
			return nil
		}

		rel, err := filepath.Rel(x.root, p)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if x.excluded(rel) || matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !x.Indexed(rel) || x.excluded(rel) || matcher.Match(rel, false) {
			return nil
		}

		f, ok := x.read(ctx, p, rel, d)
		if ok {
			files = append(files, f)
		}
		return nil
	})

	x.metrics.IndexScanDuration.Observe(time.Since(start).Seconds())
	if walkErr != nil {
		x.metrics.IndexScans.WithLabelValues("error").Inc()
		x.stale.Store(true)
		if ctx.Err() != nil {
			return nil, walkErr
		}
		return nil, fmt.Errorf("%w: %v", ErrNoRoot, walkErr)
	}

	x.metrics.IndexScans.WithLabelValues("ok").Inc()
	x.metrics.IndexFiles.Set(float64(len(files)))
	x.logger.Info(ctx, "content root scanned",
		zap.String("root", x.root),
		zap.Int("files", len(files)),
		zap.Duration("duration", time.Since(start)))

	if files == nil {
		files = []File{}
	}
	return &snapshot{files: files, scannedAt: x.now()}, nil
}

func (x *Index) read(ctx context.Context, p, rel string, d fs.DirEntry) (File, bool) {
	info, err := d.Info()
	if err != nil {
		x.logger.Warn(ctx, "stat failed", zap.String("path", rel), zap.Error(err))
		return File{}, false
	}
	if x.maxFileSize > 0 && info.Size() > x.maxFileSize {
		x.logger.Trace(ctx, "skipping large file", zap.String("path", rel), zap.Int64("size", info.Size()))
		return File{}, false
	}

	content, err := os.ReadFile(p)
	if err != nil {
		x.logger.Warn(ctx, "read failed", zap.String("path", rel), zap.Error(err))
		return File{}, false
	}
	if !utf8.Valid(content) {
		x.logger.Trace(ctx, "skipping non-UTF-8 file", zap.String("path", rel))
		return File{}, false
	}

	return File{
		Path:    rel,
		Content: string(content),
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, true
}

// excluded reports whether rel contains an exclude as a whole run of
// path segments.
func (x *Index) excluded(rel string) bool {
	padded := "/" + rel + "/"
	for _, ex := range x.excludes {
		if strings.Contains(padded, "/"+ex+"/") {
			return true
		}
	}
	return false
}
