package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherCapture(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	w := NewWatcher(s, "/config", store.Ignored, time.Second, WithWatchAuthor("ui"))
	ctx := context.Background()
	root := mustHead(t, store)

	snap, err := w.Capture(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, root.ID, mustHead(t, store).ID)

	writeFiles(t, store.Filesystem(), map[string]string{"config.yaml": "a: 2\n"})
	snap, err = w.Capture(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, autoMessage, snap.Message)
	assert.Equal(t, "ui", snap.Author)
	assert.Equal(t, []string{"config.yaml"}, snap.ChangedPaths)
}

func TestWatcherRunSnapshotsExternalEdits(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("a: 1\n"), 0644))

	ws, err := NewWorkspace(dir, "")
	require.NoError(t, err)
	store, err := InitStore(context.Background(), ws, "tester")
	require.NoError(t, err)
	root := mustHead(t, store)

	s := NewSerializer(store)
	w := NewWatcher(s, ws.Root, store.Ignored, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "packages"), 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "packages", "lights.yaml"), []byte("l: 1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "home-assistant.log"), []byte("noise"), 0644))

	require.Eventually(t, func() bool {
		head := mustHead(t, store)
		return head.ID != root.ID && len(head.ChangedPaths) > 0
	}, 5*time.Second, 20*time.Millisecond)

	head := mustHead(t, store)
	assert.Equal(t, autoMessage, head.Message)
	assert.Contains(t, head.ChangedPaths, "packages/lights.yaml")
	assert.NotContains(t, head.ChangedPaths, "home-assistant.log")
}
