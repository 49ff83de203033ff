package fileindex

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragchat/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func newTestIndex(t *testing.T, root string, clock *fakeClock) *Index {
	t.Helper()
	idx, err := New(Options{
		Root:        root,
		TTL:         5 * time.Minute,
		MaxFileSize: 1024,
		Extensions:  []string{".cs", "TS", ".json"},
		Excludes:    []string{"bin", "obj", "node_modules", "wwwroot/lib"},
		IgnoreFiles: []string{".ragignore", ".gitignore"},
		Clock:       clock.Now,
	})
	require.NoError(t, err)
	return idx
}

func paths(files []File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	sort.Strings(out)
	return out
}

func TestIndex_FiltersFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Controllers/StudentController.cs", "public class StudentController {}")
	writeFile(t, root, "Controllers/CombinedController.cs", "public class CombinedController {}")
	writeFile(t, root, "ClientApp/src/app.component.TS", "export class AppComponent {}")
	writeFile(t, root, "appsettings.json", `{"Logging":{}}`)
	writeFile(t, root, "README.md", "# docs")
	writeFile(t, root, "bin/Debug/App.cs", "compiled")
	writeFile(t, root, "ClientApp/node_modules/x/index.ts", "vendored")
	writeFile(t, root, "wwwroot/lib/jquery.json", "{}")
	writeFile(t, root, "wwwroot/app.json", "{}")
	writeFile(t, root, "Big.cs", string(make([]byte, 2048)))
	writeFile(t, root, "Binary.cs", "\xff\xfe\x00bad")
	writeFile(t, root, "seed/Students.json", "[]")
	writeFile(t, root, ".ragignore", "seed/\n")

	idx := newTestIndex(t, root, &fakeClock{now: time.Unix(1000, 0)})
	files, err := idx.Files(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ClientApp/src/app.component.TS",
		"Controllers/CombinedController.cs",
		"Controllers/StudentController.cs",
		"appsettings.json",
		"wwwroot/app.json",
	}, paths(files))
	assert.Equal(t, 5, idx.Size())

	for _, f := range files {
		if f.Path == "Controllers/StudentController.cs" {
			assert.Equal(t, "public class StudentController {}", f.Content)
			assert.Equal(t, int64(len(f.Content)), f.Size)
		}
	}
}

func TestIndex_TTL(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "A.cs", "a")
	clock := &fakeClock{now: time.Unix(1000, 0)}
	idx := newTestIndex(t, root, clock)

	files, err := idx.Files(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	first := idx.LastScan()

	writeFile(t, root, "B.cs", "b")

	clock.Advance(4 * time.Minute)
	files, err = idx.Files(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 1, "snapshot is reused before the TTL")
	assert.Equal(t, first, idx.LastScan())

	clock.Advance(time.Minute)
	files, err = idx.Files(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 2, "rescan at exactly the TTL")
	assert.True(t, idx.LastScan().After(first))
}

func TestIndex_Invalidate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "A.cs", "a")
	idx := newTestIndex(t, root, &fakeClock{now: time.Unix(1000, 0)})

	assert.True(t, idx.Stale())
	require.NoError(t, idx.RefreshIfStale(context.Background()))
	assert.False(t, idx.Stale())

	writeFile(t, root, "B.cs", "b")
	idx.Invalidate()
	assert.True(t, idx.Stale())

	files, err := idx.Files(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestIndex_MissingRoot(t *testing.T) {
	idx := newTestIndex(t, filepath.Join(t.TempDir(), "missing"), &fakeClock{now: time.Unix(1000, 0)})

	_, err := idx.Files(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRoot)
	assert.True(t, idx.Stale())
	assert.Equal(t, 0, idx.Size())
}

func TestIndex_EmptyRootIsNotNil(t *testing.T) {
	idx := newTestIndex(t, t.TempDir(), &fakeClock{now: time.Unix(1000, 0)})
	files, err := idx.Files(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestIndex_CancelledScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "A.cs", "a")
	idx := newTestIndex(t, root, &fakeClock{now: time.Unix(1000, 0)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := idx.Files(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndex_ConcurrentCallersCoalesce(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, root, filepath.Join("Models", string(rune('A'+i))+".cs"), "class X {}")
	}
	idx := newTestIndex(t, root, &fakeClock{now: time.Unix(1000, 0)})

	var wg sync.WaitGroup
	scans := make(chan time.Time, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			files, err := idx.Files(context.Background())
			assert.NoError(t, err)
			assert.Len(t, files, 20)
			scans <- idx.LastScan()
		}()
	}
	wg.Wait()
	close(scans)

	seen := map[time.Time]bool{}
	for ts := range scans {
		seen[ts] = true
	}
	assert.Len(t, seen, 1, "one scan serves every caller")
}

func TestIndex_UnreadableFileIsWarned(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	root := t.TempDir()
	writeFile(t, root, "A.cs", "a")
	writeFile(t, root, "Locked.cs", "b")
	require.NoError(t, os.Chmod(filepath.Join(root, "Locked.cs"), 0000))

	logger := logging.NewTestLogger()
	idx, err := New(Options{
		Root:       root,
		TTL:        time.Minute,
		Extensions: []string{".cs"},
		Logger:     logger.Logger,
	})
	require.NoError(t, err)

	files, err := idx.Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A.cs"}, paths(files))
	logger.AssertLogged(t, zapcore.WarnLevel, "read failed")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Root: " ", TTL: time.Minute})
	assert.ErrorIs(t, err, ErrNoRoot)

	_, err = New(Options{Root: t.TempDir()})
	assert.Error(t, err)
}

func TestIndex_Indexed(t *testing.T) {
	idx := newTestIndex(t, t.TempDir(), &fakeClock{now: time.Unix(1000, 0)})
	assert.True(t, idx.Indexed("/x/Student.CS"))
	assert.True(t, idx.Indexed("a.ts"))
	assert.False(t, idx.Indexed("a.md"))
}
