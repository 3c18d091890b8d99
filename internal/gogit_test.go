package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStorage fails object writes while fail is set.
type failingStorage struct {
	*memory.Storage
	fail atomic.Bool
}

func (s *failingStorage) SetEncodedObject(obj plumbing.EncodedObject) (plumbing.Hash, error) {
	if s.fail.Load() {
		return plumbing.ZeroHash, errors.New("no space left on device")
	}
	return s.Storage.SetEncodedObject(obj)
}

func testClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func writeFiles(t *testing.T, fs billy.Filesystem, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0644))
	}
}

func readLive(t *testing.T, fs billy.Filesystem, name string) string {
	t.Helper()
	data, err := util.ReadFile(fs, name)
	require.NoError(t, err)
	return string(data)
}

// liveTree reads every tracked file of fs.
func liveTree(t *testing.T, store *GitStore) Tree {
	t.Helper()
	out := make(Tree)
	err := walkFiles(store.Filesystem(), "", store.Ignored, func(p string, _ os.FileInfo) error {
		data, err := util.ReadFile(store.Filesystem(), p)
		out[p] = data
		return err
	})
	require.NoError(t, err)
	return out
}

func newTestStoreWith(t *testing.T, files map[string]string) (*GitStore, *failingStorage) {
	t.Helper()
	fs := memfs.New()
	writeFiles(t, fs, files)

	st := &failingStorage{Storage: memory.NewStorage()}
	store, err := InitGitStore(context.Background(), st, fs, "tester", WithClock(testClock()))
	require.NoError(t, err)
	return store, st
}

func newTestStore(t *testing.T) *GitStore {
	t.Helper()
	store, _ := newTestStoreWith(t, map[string]string{"config.yaml": "a: 1\n"})
	return store
}

func TestInitGitStoreBaseline(t *testing.T) {
	store, _ := newTestStoreWith(t, map[string]string{
		"config.yaml":          "a: 1\n",
		"automations.yaml":     "[]\n",
		"home-assistant.log":   "noise",
		".storage/core.config": "{}",
	})
	ctx := context.Background()

	head, err := store.Head(ctx)
	require.NoError(t, err)
	assert.True(t, head.IsRoot())
	assert.Equal(t, "tester", head.Author)
	assert.Equal(t, baselineMessage, head.Message)
	assert.Equal(t, []string{"automations.yaml", "config.yaml"}, head.ChangedPaths)

	tree, err := store.Materialize(ctx, head.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"automations.yaml", "config.yaml"}, tree.Paths())
	assert.Equal(t, "a: 1\n", string(tree["config.yaml"]))
}

func TestInitGitStoreEmptyTree(t *testing.T) {
	store, err := InitGitStore(context.Background(), memory.NewStorage(), memfs.New(), "")
	require.NoError(t, err)

	head, err := store.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultAuthor, head.Author)
	assert.Empty(t, head.ChangedPaths)
}

func TestInitGitStoreTwice(t *testing.T) {
	st := memory.NewStorage()
	fs := memfs.New()
	_, err := InitGitStore(context.Background(), st, fs, "tester")
	require.NoError(t, err)

	_, err = InitGitStore(context.Background(), st, fs, "tester")
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestGitStoreCommitLinearChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fs := store.Filesystem()

	root, err := store.Head(ctx)
	require.NoError(t, err)

	ids := []string{root.ID}
	for i, content := range []string{"a: 2\n", "a: 3\n", "a: 4\n"} {
		writeFiles(t, fs, map[string]string{"config.yaml": content})
		snap, err := store.Commit(ctx, "tester", "edit", false)
		require.NoError(t, err, "commit %d", i)
		assert.Equal(t, ids[len(ids)-1], snap.ParentID)
		assert.Equal(t, []string{"config.yaml"}, snap.ChangedPaths)
		ids = append(ids, snap.ID)
	}

	head, err := store.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[len(ids)-1], head.ID)

	var walked []string
	for snap, err := range store.Walk(ctx, head.ID) {
		require.NoError(t, err)
		walked = append(walked, snap.ID)
	}
	require.Len(t, walked, len(ids))
	for i := range ids {
		assert.Equal(t, ids[len(ids)-1-i], walked[i])
	}
}

func TestGitStoreCommitCleanTree(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Commit(ctx, "tester", "nothing", false)
	assert.ErrorIs(t, err, ErrCleanTree)

	snap, err := store.Commit(ctx, "tester", "explicit", true)
	require.NoError(t, err)
	assert.Empty(t, snap.ChangedPaths)
}

func TestGitStoreCommitDeletion(t *testing.T) {
	store, _ := newTestStoreWith(t, map[string]string{
		"config.yaml":          "a: 1\n",
		"packages/lights.yaml": "light: []\n",
	})
	ctx := context.Background()

	require.NoError(t, store.Filesystem().Remove("packages/lights.yaml"))
	snap, err := store.Commit(ctx, "tester", "remove", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"packages/lights.yaml"}, snap.ChangedPaths)

	changes, err := store.Changes(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeRemoved, changes[0].Kind)
}

func TestGitStoreCommitSkipsIgnored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	writeFiles(t, store.Filesystem(), map[string]string{
		"home-assistant_v2.db": "binary",
		"tts/cache.mp3":        "audio",
		".haconf-tmp-123":      "partial",
	})
	_, err := store.Commit(ctx, "tester", "noise", false)
	assert.ErrorIs(t, err, ErrCleanTree)

	dirty, err := store.Dirty(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestGitStoreIgnoreFile(t *testing.T) {
	store, _ := newTestStoreWith(t, map[string]string{
		"config.yaml":  "a: 1\n",
		IgnoreFilename: "secrets.yaml\n",
		"secrets.yaml": "token: x\n",
	})

	tree, err := store.Materialize(context.Background(), mustHead(t, store).ID)
	require.NoError(t, err)
	assert.Equal(t, []string{IgnoreFilename, "config.yaml"}, tree.Paths())
	assert.True(t, store.Ignored("secrets.yaml", false))
}

func TestGitStoreGetUnknown(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "0123456789abcdef0123456789abcdef01234567")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, "not-a-hash")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Materialize(ctx, "0123456789abcdef0123456789abcdef01234567")
	assert.ErrorIs(t, err, ErrUnknownVersion)
	var verr *VersionError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", verr.ID)
}

func TestGitStoreResolve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	root := mustHead(t, store)

	writeFiles(t, store.Filesystem(), map[string]string{"config.yaml": "a: 2\n"})
	next, err := store.Commit(ctx, "tester", "edit", false)
	require.NoError(t, err)

	got, err := store.Resolve(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, next.ID, got.ID)

	got, err = store.Resolve(ctx, "HEAD~1")
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ID)

	got, err = store.Resolve(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ID)

	_, err = store.Resolve(ctx, "HEAD~5")
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestGitStoreReadFileAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	root := mustHead(t, store)

	writeFiles(t, store.Filesystem(), map[string]string{"config.yaml": "a: 2\n"})
	next, err := store.Commit(ctx, "tester", "edit", false)
	require.NoError(t, err)

	data, err := store.ReadFileAt(ctx, root.ID, "config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))

	data, err = store.ReadFileAt(ctx, next.ID, "config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a: 2\n", string(data))

	_, err = store.ReadFileAt(ctx, next.ID, "missing.yaml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitStoreDirtyAndWorkingChanges(t *testing.T) {
	store, _ := newTestStoreWith(t, map[string]string{
		"config.yaml":  "a: 1\nb: 2\n",
		"scripts.yaml": "s: {}\n",
	})
	ctx := context.Background()
	fs := store.Filesystem()

	writeFiles(t, fs, map[string]string{
		"config.yaml": "a: 1\nb: 3\n",
		"scenes.yaml": "[]\n",
	})
	require.NoError(t, fs.Remove("scripts.yaml"))

	dirty, err := store.Dirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"config.yaml", "scenes.yaml", "scripts.yaml"}, dirty)

	changes, err := store.WorkingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, ChangeModified, changes[0].Kind)
	assert.Contains(t, changes[0].Patch, "-b: 2")
	assert.Contains(t, changes[0].Patch, "+b: 3")
	assert.Equal(t, ChangeAdded, changes[1].Kind)
	assert.Contains(t, changes[1].Patch, "--- /dev/null")
	assert.Equal(t, ChangeRemoved, changes[2].Kind)
	assert.Contains(t, changes[2].Patch, "+++ /dev/null")
}

func TestGitStoreCommitFailure(t *testing.T) {
	store, st := newTestStoreWith(t, map[string]string{"config.yaml": "a: 1\n"})
	ctx := context.Background()
	root := mustHead(t, store)

	writeFiles(t, store.Filesystem(), map[string]string{"config.yaml": "a: 2\n"})
	st.fail.Store(true)
	_, err := store.Commit(ctx, "tester", "edit", false)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	assert.Equal(t, root.ID, mustHead(t, store).ID)

	st.fail.Store(false)
	snap, err := store.Commit(ctx, "tester", "edit", false)
	require.NoError(t, err)
	assert.Equal(t, root.ID, snap.ParentID)
}

func TestStoreOnDiskPersists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("a: 1\n"), 0644))

	ws, err := NewWorkspace(dir, "")
	require.NoError(t, err)
	ctx := context.Background()

	store, err := InitStore(ctx, ws, "tester")
	require.NoError(t, err)
	assert.True(t, ws.Initialized())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("a: 2\n"), 0644))
	snap, err := store.Commit(ctx, "tester", "edit", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"config.yaml"}, snap.ChangedPaths)

	_, err = InitStore(ctx, ws, "tester")
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	reopened, err := OpenStore(ws)
	require.NoError(t, err)
	head, err := reopened.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, head.ID)

	tree, err := reopened.Materialize(ctx, head.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"config.yaml"}, tree.Paths())

	dirty, err := reopened.Dirty(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty, "metadata dir must not show up as a change")
}

func TestOpenStoreNotInitialized(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "")
	require.NoError(t, err)

	_, err = OpenStore(ws)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestStoreOnDiskExternalMeta(t *testing.T) {
	root := t.TempDir()
	meta := filepath.Join(t.TempDir(), "history")
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yaml"), []byte("a: 1\n"), 0644))

	ws, err := NewWorkspace(root, meta)
	require.NoError(t, err)

	store, err := InitStore(context.Background(), ws, "tester")
	require.NoError(t, err)
	assert.Equal(t, []string{"config.yaml"}, mustHead(t, store).ChangedPaths)

	_, err = os.Stat(filepath.Join(root, MetaDirName))
	assert.True(t, os.IsNotExist(err))
}

func mustHead(t *testing.T, store interface {
	Head(context.Context) (*Snapshot, error)
}) *Snapshot {
	t.Helper()
	head, err := store.Head(context.Background())
	require.NoError(t, err)
	return head
}

func TestGitStoreMessageVerbatim(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	writeFiles(t, store.Filesystem(), map[string]string{"config.yaml": "a: 2\n"})
	msg := "tune lights\n\n  keeps indentation\n"
	snap, err := store.Commit(ctx, "tester", msg, false)
	require.NoError(t, err)
	assert.Equal(t, msg, snap.Message)

	got, err := store.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, msg, got.Message)
}
