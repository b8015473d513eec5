package persistence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateful/dualdoc/internal/persistence"
	"github.com/stateful/dualdoc/internal/storage"
	"github.com/stateful/dualdoc/internal/testutils"
)

const testDebounce = 50 * time.Millisecond

func newCoordinator(t *testing.T, backend *testutils.Backend, opts ...persistence.Option) *persistence.Coordinator {
	t.Helper()
	c := persistence.New(backend, append([]persistence.Option{persistence.WithDebounce(testDebounce)}, opts...)...)
	t.Cleanup(c.Close)
	require.NoError(t, c.Load(context.Background(), "a.md"))
	return c
}

func TestCoordinator_DebounceWritesLastContent(t *testing.T) {
	backend := testutils.NewBackend(map[string]string{"a.md": "orig"})
	c := newCoordinator(t, backend)

	require.NoError(t, c.UpdateContent("one"))
	require.NoError(t, c.UpdateContent("two"))
	require.NoError(t, c.UpdateContent("three"))

	require.Eventually(t, func() bool {
		return len(backend.Writes()) == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(2 * testDebounce)

	assert.Equal(t, []testutils.Write{{Path: "a.md", Content: "three"}}, backend.Writes())

	state, ok := c.State()
	require.True(t, ok)
	assert.False(t, state.IsDirty)
	assert.Equal(t, "three", state.OriginalContent)
}

func TestCoordinator_SaveSyncCancelsDebounce(t *testing.T) {
	backend := testutils.NewBackend(map[string]string{"a.md": "orig"})
	c := newCoordinator(t, backend)

	require.NoError(t, c.UpdateContent("x"))
	result := c.SaveSync(context.Background())

	require.NoError(t, result.Err)
	assert.True(t, result.Saved)
	assert.Equal(t, "a.md", result.Path)

	time.Sleep(3 * testDebounce)

	assert.Equal(t, []testutils.Write{{Path: "a.md", Content: "x"}}, backend.Writes())
}

func TestCoordinator_NoFileOpen(t *testing.T) {
	c := persistence.New(testutils.NewBackend(nil))

	assert.ErrorIs(t, c.UpdateContent("x"), persistence.ErrNoFileOpen)
	assert.ErrorIs(t, c.SaveNow(context.Background()).Err, persistence.ErrNoFileOpen)
	assert.ErrorIs(t, c.SaveSync(context.Background()).Err, persistence.ErrNoFileOpen)

	_, ok := c.State()
	assert.False(t, ok)
}

func TestCoordinator_LoadNotFound(t *testing.T) {
	c := persistence.New(testutils.NewBackend(nil))

	err := c.Load(context.Background(), "missing.md")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCoordinator_CleanSaveIsNoop(t *testing.T) {
	backend := testutils.NewBackend(map[string]string{"a.md": "orig"})

	var hooks int
	c := newCoordinator(t, backend,
		persistence.WithBeforeSave(func(persistence.State) { hooks++ }),
		persistence.WithAfterSave(func(persistence.Result) { hooks++ }),
	)

	result := c.SaveNow(context.Background())
	assert.Equal(t, persistence.Result{Path: "a.md"}, result)
	assert.Empty(t, backend.Writes())
	assert.Zero(t, hooks)
}

func TestCoordinator_DirtyTracksOriginal(t *testing.T) {
	backend := testutils.NewBackend(map[string]string{"a.md": "orig"})
	c := newCoordinator(t, backend, persistence.WithDebounce(time.Hour))

	require.NoError(t, c.UpdateContent("changed"))
	state, _ := c.State()
	assert.True(t, state.IsDirty)

	require.NoError(t, c.UpdateContent("orig"))
	state, _ = c.State()
	assert.False(t, state.IsDirty)
	assert.Equal(t, "orig", state.Content)
}

func TestCoordinator_Timeout(t *testing.T) {
	backend := testutils.NewBackend(map[string]string{"a.md": "orig"})
	backend.SetWriteDelay(300 * time.Millisecond)

	var (
		mu    sync.Mutex
		after []persistence.Result
	)
	c := newCoordinator(t, backend,
		persistence.WithDebounce(time.Hour),
		persistence.WithSaveTimeout(20*time.Millisecond),
		persistence.WithAfterSave(func(r persistence.Result) {
			mu.Lock()
			after = append(after, r)
			mu.Unlock()
		}),
	)

	require.NoError(t, c.UpdateContent("slow"))
	result := c.SaveSync(context.Background())

	var timeoutErr *persistence.TimeoutError
	require.True(t, errors.As(result.Err, &timeoutErr), "unexpected error: %v", result.Err)
	assert.Equal(t, 20*time.Millisecond, timeoutErr.Duration)
	assert.Equal(t, "write of a.md timed out after 20ms", timeoutErr.Error())
	assert.False(t, result.Saved)

	state, _ := c.State()
	assert.True(t, state.IsDirty)
	assert.False(t, state.Saving)
	assert.Equal(t, result.Err, state.Err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, after, 1)
	assert.Equal(t, result, after[0])
}

func TestCoordinator_WriteFailedKeepsDirty(t *testing.T) {
	backend := testutils.NewBackend(map[string]string{"a.md": "orig"})
	diskFull := errors.New("disk full")
	backend.FailWrites("a.md", diskFull)

	var before []persistence.State
	c := newCoordinator(t, backend,
		persistence.WithDebounce(time.Hour),
		persistence.WithBeforeSave(func(s persistence.State) { before = append(before, s) }),
	)

	require.NoError(t, c.UpdateContent("new"))
	result := c.SaveNow(context.Background())

	var writeErr *persistence.WriteFailedError
	require.True(t, errors.As(result.Err, &writeErr))
	assert.Equal(t, "a.md", writeErr.Path)
	assert.ErrorIs(t, result.Err, diskFull)

	state, _ := c.State()
	assert.True(t, state.IsDirty)
	assert.Equal(t, "orig", state.OriginalContent)

	backend.FailWrites("a.md", nil)
	result = c.SaveNow(context.Background())
	require.NoError(t, result.Err)

	state, _ = c.State()
	assert.False(t, state.IsDirty)
	assert.NoError(t, state.Err)

	require.Len(t, before, 2)
	assert.True(t, before[0].Saving)
	assert.Equal(t, "new", before[0].Content)

	content, _ := backend.Content("a.md")
	assert.Equal(t, "new", content)
}

func TestCoordinator_CanceledContext(t *testing.T) {
	backend := testutils.NewBackend(map[string]string{"a.md": "orig"})
	backend.SetWriteDelay(100 * time.Millisecond)
	c := newCoordinator(t, backend, persistence.WithDebounce(time.Hour))

	require.NoError(t, c.UpdateContent("new"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := c.SaveSync(ctx)

	var writeErr *persistence.WriteFailedError
	require.True(t, errors.As(result.Err, &writeErr))
	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestCoordinator_LoadDiscardsPendingAutosave(t *testing.T) {
	backend := testutils.NewBackend(map[string]string{"a.md": "a", "b.md": "b"})
	c := newCoordinator(t, backend)

	require.NoError(t, c.UpdateContent("edited a"))
	require.NoError(t, c.Load(context.Background(), "b.md"))

	time.Sleep(3 * testDebounce)
	assert.Empty(t, backend.Writes())

	state, _ := c.State()
	assert.Equal(t, "b.md", state.FilePath)
	assert.Equal(t, "b", state.Content)
}

func TestCoordinator_Close(t *testing.T) {
	backend := testutils.NewBackend(map[string]string{"a.md": "a"})
	c := newCoordinator(t, backend)

	require.NoError(t, c.UpdateContent("edited"))
	c.Close()

	time.Sleep(3 * testDebounce)
	assert.Empty(t, backend.Writes())

	_, ok := c.State()
	assert.False(t, ok)
}
