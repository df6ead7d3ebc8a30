package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gamehoard/internal/settings"
	"gamehoard/internal/store"
)

type fakeStarter struct {
	mu    sync.Mutex
	calls []string
	ch    chan string
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{ch: make(chan string, 16)}
}

func (f *fakeStarter) Start(ctx context.Context, jobType string, force bool) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, jobType)
	f.mu.Unlock()
	f.ch <- jobType
	return "job-1", nil
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testRegistry(t *testing.T, keys map[string]string) *settings.Registry {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := settings.New(s)
	for k, v := range keys {
		require.NoError(t, reg.Set(k, v))
	}
	return reg
}

func TestFileChangeTriggersSync(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "galaxy-2.0.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o644))

	starter := newFakeStarter()
	w := New(starter, testRegistry(t, map[string]string{
		settings.KeyGOGDBPath: dbPath,
	}))
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	// Give the watcher a moment to install before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(dbPath, []byte("v2"), 0o644))

	select {
	case jobType := <-starter.ch:
		require.Equal(t, "store_sync_gog", jobType)
	case <-time.After(3 * time.Second):
		t.Fatal("no sync triggered after file change")
	}

	cancel()
	<-done
}

func TestBurstOfWritesDebouncesToOneSync(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "library.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o644))

	starter := newFakeStarter()
	w := New(starter, testRegistry(t, map[string]string{
		settings.KeyAmazonDBPath: dbPath,
	}))
	w.debounce = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(dbPath, []byte{byte(i)}, 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case jobType := <-starter.ch:
		require.Equal(t, "store_sync_amazon", jobType)
	case <-time.After(3 * time.Second):
		t.Fatal("no sync triggered after burst")
	}

	// The window has passed; no second trigger should be queued.
	time.Sleep(500 * time.Millisecond)
	require.Equal(t, 1, starter.count(), "burst must coalesce into one sync")
}

func TestIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "galaxy-2.0.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o644))

	starter := newFakeStarter()
	w := New(starter, testRegistry(t, map[string]string{
		settings.KeyGOGDBPath: dbPath,
	}))
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))

	select {
	case jobType := <-starter.ch:
		t.Fatalf("unrelated file triggered %s", jobType)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestNoTargetsIdlesUntilCancel(t *testing.T) {
	w := New(newFakeStarter(), testRegistry(t, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
