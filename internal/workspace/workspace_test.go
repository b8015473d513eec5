package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateful/dualdoc/internal/persistence"
	"github.com/stateful/dualdoc/internal/storage"
	"github.com/stateful/dualdoc/internal/surface"
	"github.com/stateful/dualdoc/internal/switcher"
	"github.com/stateful/dualdoc/internal/view"
	"github.com/stateful/dualdoc/internal/watcher"
	"github.com/stateful/dualdoc/internal/workspace"
)

func newWorkspace(t *testing.T, files map[string]string) (*workspace.Workspace, *storage.Billy) {
	t.Helper()

	backend := storage.NewMemory()
	for path, content := range files {
		require.NoError(t, util.WriteFile(backend.Filesystem(), path, []byte(content), 0o644))
	}

	p := persistence.New(backend, persistence.WithDebounce(time.Hour))
	sw := switcher.New(p, backend)
	w := workspace.New(p, sw, surface.NewHTML())
	t.Cleanup(func() { _ = w.Close() })

	return w, backend
}

func readFile(t *testing.T, backend *storage.Billy, path string) string {
	t.Helper()
	data, err := util.ReadFile(backend.Filesystem(), path)
	require.NoError(t, err)
	return string(data)
}

func TestWorkspace_ToggleWithoutEditKeepsFile(t *testing.T) {
	ctx := context.Background()
	w, backend := newWorkspace(t, map[string]string{"/notes/a.md": "Line 1\n\n\n\nLine 2"})

	require.NoError(t, w.Open(ctx, "/notes/a.md"))
	require.NoError(t, w.EnterRendered())
	assert.Equal(t, "Line 1\n\n\n\nLine 2", w.LeaveRendered())

	state, ok := w.State()
	require.True(t, ok)
	assert.False(t, state.IsDirty)

	result := w.Save(ctx)
	require.NoError(t, result.Err)
	assert.False(t, result.Saved)
	assert.Equal(t, "Line 1\n\n\n\nLine 2", readFile(t, backend, "/notes/a.md"))
}

func TestWorkspace_RenderedEditIsSaved(t *testing.T) {
	ctx := context.Background()
	w, backend := newWorkspace(t, map[string]string{"/notes/a.md": "Hello\n\n\n"})

	require.NoError(t, w.Open(ctx, "/notes/a.md"))
	require.NoError(t, w.EnterRendered())

	markup, err := w.EditRendered("<p>Hello <em>there</em></p>")
	require.NoError(t, err)
	assert.Equal(t, "Hello *there*\n", markup)

	state, _ := w.State()
	assert.True(t, state.IsDirty)

	result := w.Save(ctx)
	require.NoError(t, result.Err)
	assert.True(t, result.Saved)
	assert.Equal(t, "Hello *there*\n", readFile(t, backend, "/notes/a.md"))
	assert.Equal(t, "Hello *there*\n", w.LeaveRendered())
}

func TestWorkspace_EditRenderedInSourceView(t *testing.T) {
	w, _ := newWorkspace(t, map[string]string{"/a.md": "a"})

	require.NoError(t, w.Open(context.Background(), "/a.md"))
	_, err := w.EditRendered("<p>b</p>")
	assert.ErrorIs(t, err, view.ErrWrongMode)
}

func TestWorkspace_OpenSavesPrevious(t *testing.T) {
	ctx := context.Background()
	w, backend := newWorkspace(t, map[string]string{
		"/notes/a.md": "a",
		"/notes/b.md": "b",
	})

	require.NoError(t, w.Open(ctx, "/notes/a.md"))
	require.NoError(t, w.EditSource("a edited"))
	require.NoError(t, w.Open(ctx, "/notes/b.md"))

	assert.Equal(t, "a edited", readFile(t, backend, "/notes/a.md"))
	assert.Equal(t, "b", w.View().Content())

	state, _ := w.State()
	assert.Equal(t, "/notes/b.md", state.FilePath)
}

func TestWorkspace_HandleEvent(t *testing.T) {
	ctx := context.Background()
	w, backend := newWorkspace(t, map[string]string{"/notes/a.md": "one"})

	require.NoError(t, w.Open(ctx, "/notes/a.md"))
	require.NoError(t, w.EnterRendered())

	require.NoError(t, util.WriteFile(backend.Filesystem(), "/notes/a.md", []byte("two"), 0o644))
	require.NoError(t, w.HandleEvent(ctx, watcher.Event{Path: "/notes/a.md", Type: watcher.Modified}))

	assert.Equal(t, "two", w.View().Session().Raw)
	assert.Equal(t, "<p>two</p>", w.Surface().Serialize())

	// Unsaved edits win over a change on disk.
	_, err := w.EditRendered("<p>local</p>")
	require.NoError(t, err)
	require.NoError(t, util.WriteFile(backend.Filesystem(), "/notes/a.md", []byte("three"), 0o644))
	require.NoError(t, w.HandleEvent(ctx, watcher.Event{Path: "/notes/a.md", Type: watcher.Modified}))

	assert.Equal(t, "local\n", w.View().Content())

	// Other files and removals are ignored.
	require.NoError(t, w.HandleEvent(ctx, watcher.Event{Path: "/notes/b.md", Type: watcher.Modified}))
	require.NoError(t, w.HandleEvent(ctx, watcher.Event{Path: "/notes/a.md", Type: watcher.Removed}))
}

func TestWorkspace_Run(t *testing.T) {
	w, backend := newWorkspace(t, map[string]string{"/a.md": "one"})
	require.NoError(t, w.Open(context.Background(), "/a.md"))

	require.NoError(t, util.WriteFile(backend.Filesystem(), "/a.md", []byte("two"), 0o644))

	events := make(chan watcher.Event, 1)
	events <- watcher.Event{Path: "/a.md", Type: watcher.Modified}
	close(events)

	require.NoError(t, w.Run(context.Background(), events))
	assert.Equal(t, "two", w.View().Content())
}

func TestWorkspace_OnReload(t *testing.T) {
	w, backend := newWorkspace(t, map[string]string{"/a.md": "one"})
	require.NoError(t, w.Open(context.Background(), "/a.md"))

	var reloaded []string
	w.OnReload(func(content string) { reloaded = append(reloaded, content) })

	event := watcher.Event{Path: "/a.md", Type: watcher.Modified}

	// Unchanged content is not reported.
	require.NoError(t, w.HandleEvent(context.Background(), event))
	assert.Empty(t, reloaded)

	require.NoError(t, util.WriteFile(backend.Filesystem(), "/a.md", []byte("two"), 0o644))
	require.NoError(t, w.HandleEvent(context.Background(), event))
	assert.Equal(t, []string{"two"}, reloaded)
}

func TestWorkspace_FollowWithoutWatcher(t *testing.T) {
	w, _ := newWorkspace(t, nil)
	assert.Error(t, w.Follow(context.Background()))
}

func newWatchedWorkspace(t *testing.T) (*workspace.Workspace, *watcher.Watcher) {
	t.Helper()

	wt, err := watcher.New()
	require.NoError(t, err)

	backend := storage.NewOS()
	p := persistence.New(backend, persistence.WithDebounce(time.Hour))
	sw := switcher.New(p, backend, switcher.WithWatcher(wt))
	return workspace.New(p, sw, surface.NewHTML(), workspace.WithWatcher(wt)), wt
}

func TestWorkspace_Follow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o600))

	w, _ := newWatchedWorkspace(t)
	defer func() { require.NoError(t, w.Close()) }()

	require.NoError(t, w.Open(context.Background(), path))

	reloaded := make(chan string, 8)
	w.OnReload(func(content string) { reloaded <- content })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Follow(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("two"), 0o600))

	// Truncation may be reported separately from the write.
	timeout := time.After(5 * time.Second)
	for content := ""; content != "two"; {
		select {
		case content = <-reloaded:
		case <-timeout:
			t.Fatal("document was not reloaded")
		}
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWorkspace_CloseStopsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o600))
	deep := filepath.Join(dir, "deep", "x")
	require.NoError(t, os.MkdirAll(deep, 0o700))

	w, wt := newWatchedWorkspace(t)

	require.NoError(t, w.Open(context.Background(), path))
	require.NoError(t, w.Close())

	_, ok := w.State()
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(deep, "late.md"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("two"), 0o600))

	select {
	case e := <-wt.Events():
		t.Fatalf("event after close: %s %s", e.Type, e.Path)
	case <-time.After(200 * time.Millisecond):
	}
}
