package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cartograph/internal/debounce"
)

// mockWatcher is a minimal in-memory FsWatcher for driving Watch without a
// real kernel-level watch.
type mockWatcher struct {
	events  chan fsnotify.Event
	errs    chan error
	added   []string
	removed []string
}

func newMockWatcher() *mockWatcher {
	return &mockWatcher{events: make(chan fsnotify.Event, 16), errs: make(chan error, 4)}
}

func (m *mockWatcher) Add(name string) error         { m.added = append(m.added, name); return nil }
func (m *mockWatcher) Remove(name string) error      { m.removed = append(m.removed, name); return nil }
func (m *mockWatcher) Close() error                  { return nil }
func (m *mockWatcher) Events() <-chan fsnotify.Event { return m.events }
func (m *mockWatcher) Errors() <-chan error          { return m.errs }

func newTestWatcherWithMock(t *testing.T, excludePaths []string) (*Watcher, *mockWatcher) {
	t.Helper()

	m := newMockWatcher()
	w := New(nil, excludePaths)
	w.watcherFactory = func() (FsWatcher, error) { return m, nil }

	return w, m
}

// recorder collects emitted events behind a mutex, safe for a watcher
// goroutine to write into while a test goroutine reads it.
type recorder struct {
	mu     sync.Mutex
	events []debounce.Event
}

func (r *recorder) emit(ev debounce.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []debounce.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]debounce.Event, len(r.events))
	copy(out, r.events)

	return out
}

func runWatch(t *testing.T, w *Watcher, root string, emit EventFunc, rescan chan struct{}) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = w.Watch(ctx, root, emit, rescan)
	}()

	return func() {
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Watch did not return after context cancellation")
		}
	}
}

func TestWatch_PlainWriteEventBecomesModify(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("x"), 0o644))

	w, m := newTestWatcherWithMock(t, nil)
	rec := &recorder{}
	rescan := make(chan struct{}, 1)

	stop := runWatch(t, w, dir, rec.emit, rescan)
	defer stop()

	m.events <- fsnotify.Event{Name: filepath.Join(dir, "a.md"), Op: fsnotify.Write}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	got := rec.snapshot()
	assert.Equal(t, "a.md", got[0].Path)
	assert.Equal(t, debounce.Modify, got[0].Kind)
}

func TestWatch_RenameThenCreatePairsIntoRename(t *testing.T) {
	dir := t.TempDir()

	w, m := newTestWatcherWithMock(t, nil)
	rec := &recorder{}
	rescan := make(chan struct{}, 1)

	stop := runWatch(t, w, dir, rec.emit, rescan)
	defer stop()

	m.events <- fsnotify.Event{Name: filepath.Join(dir, "old.md"), Op: fsnotify.Rename}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.md"), []byte("x"), 0o644))
	m.events <- fsnotify.Event{Name: filepath.Join(dir, "new.md"), Op: fsnotify.Create}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	got := rec.snapshot()
	require.Len(t, got, 1)
	assert.True(t, got[0].IsRename)
	assert.Equal(t, "old.md", got[0].From)
	assert.Equal(t, "new.md", got[0].To)
}

func TestWatch_UnpairedRenameBecomesDeleteAfterWindow(t *testing.T) {
	dir := t.TempDir()

	w, m := newTestWatcherWithMock(t, nil)
	rec := &recorder{}
	rescan := make(chan struct{}, 1)

	stop := runWatch(t, w, dir, rec.emit, rescan)
	defer stop()

	m.events <- fsnotify.Event{Name: filepath.Join(dir, "gone.md"), Op: fsnotify.Rename}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	got := rec.snapshot()
	require.Len(t, got, 1)
	assert.False(t, got[0].IsRename)
	assert.Equal(t, "gone.md", got[0].Path)
	assert.Equal(t, debounce.Delete, got[0].Kind)
}

func TestWatch_RemoveEventBecomesDelete(t *testing.T) {
	dir := t.TempDir()

	w, m := newTestWatcherWithMock(t, nil)
	rec := &recorder{}
	rescan := make(chan struct{}, 1)

	stop := runWatch(t, w, dir, rec.emit, rescan)
	defer stop()

	m.events <- fsnotify.Event{Name: filepath.Join(dir, "a.md"), Op: fsnotify.Remove}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	got := rec.snapshot()
	assert.Equal(t, debounce.Delete, got[0].Kind)
}

func TestWatch_ExcludedPathEventsAreIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "vendor"), 0o755))

	w, m := newTestWatcherWithMock(t, []string{"vendor"})
	rec := &recorder{}
	rescan := make(chan struct{}, 1)

	stop := runWatch(t, w, dir, rec.emit, rescan)
	defer stop()

	require.Eventually(t, func() bool { return len(m.removed) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, filepath.Join(dir, "vendor"), m.removed[0])

	m.events <- fsnotify.Event{Name: filepath.Join(dir, "vendor", "new.md"), Op: fsnotify.Create}

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot(), "events under an excluded path must be dropped")
}

func TestWatch_QueueOverflowRequestsRescan(t *testing.T) {
	dir := t.TempDir()

	w, m := newTestWatcherWithMock(t, nil)
	rec := &recorder{}
	rescan := make(chan struct{}, 1)

	stop := runWatch(t, w, dir, rec.emit, rescan)
	defer stop()

	m.errs <- fsnotify.ErrEventOverflow

	select {
	case <-rescan:
	case <-time.After(time.Second):
		t.Fatal("expected a rescan signal after a reported queue overflow")
	}
}
