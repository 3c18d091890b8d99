package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSerializer(t *testing.T, files map[string]string, opts ...SerializerOption) (*Serializer, *GitStore, *failingStorage) {
	t.Helper()
	store, st := newTestStoreWith(t, files)
	return NewSerializer(store, opts...), store, st
}

func TestSerializerPerform(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	ctx := context.Background()
	root := mustHead(t, store)

	snap, err := s.Perform(ctx, []MutationRequest{
		WriteRequest("config.yaml", []byte("a: 2\n")),
		WriteRequest("packages/new.yaml", []byte("x: 1\n")),
		AppendRequest("automations.yaml", []byte("- id: one\n")),
	}, "agent", "edit config")
	require.NoError(t, err)

	assert.Equal(t, root.ID, snap.ParentID)
	assert.Equal(t, "agent", snap.Author)
	assert.Equal(t, "edit config", snap.Message)
	assert.Equal(t, []string{"automations.yaml", "config.yaml", "packages/new.yaml"}, snap.ChangedPaths)

	tree, err := store.Materialize(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, liveTree(t, store), tree)
}

func TestSerializerAppendAndDelete(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{
		"config.yaml":       "a: 1\n",
		"packages/old.yaml": "old: true\n",
	})
	ctx := context.Background()

	_, err := s.Perform(ctx, []MutationRequest{
		AppendRequest("config.yaml", []byte("b: 2\n")),
		DeleteRequest("packages/old.yaml"),
	}, "agent", "")
	require.NoError(t, err)

	assert.Equal(t, "a: 1\nb: 2\n", readLive(t, store.Filesystem(), "config.yaml"))
	_, err = store.Filesystem().Stat("packages")
	assert.Error(t, err, "empty directory should be pruned")

	head := mustHead(t, store)
	assert.Equal(t, "update 2 files", head.Message)
}

func TestSerializerDefaultMessage(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})

	_, err := s.Perform(context.Background(), []MutationRequest{
		WriteRequest("config.yaml", []byte("a: 2\n")),
	}, "", "")
	require.NoError(t, err)

	head := mustHead(t, store)
	assert.Equal(t, "write config.yaml", head.Message)
	assert.Equal(t, DefaultAuthor, head.Author)
}

func TestSerializerFailureIsolation(t *testing.T) {
	files := map[string]string{
		"config.yaml":  "a: 1\n",
		"scripts.yaml": "s: {}\n",
	}
	s, store, _ := newTestSerializer(t, files)
	ctx := context.Background()
	before := liveTree(t, store)
	root := mustHead(t, store)

	_, err := s.Perform(ctx, []MutationRequest{
		WriteRequest("config.yaml", []byte("a: 2\n")),
		AppendRequest("scripts.yaml", []byte("t: {}\n")),
		WriteRequest("new/file.yaml", []byte("n: 1\n")),
		DeleteRequest("missing.yaml"),
	}, "agent", "doomed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialApplyReverted)
	assert.ErrorIs(t, err, ErrNotFound)

	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, 3, applyErr.Index)
	assert.Equal(t, MutationDelete, applyErr.Kind)
	assert.Equal(t, "missing.yaml", applyErr.Path)

	assert.Equal(t, before, liveTree(t, store))
	assert.Equal(t, root.ID, mustHead(t, store).ID)
}

func TestSerializerRejectsIgnoredAndInvalid(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	ctx := context.Background()
	root := mustHead(t, store)

	_, err := s.Perform(ctx, []MutationRequest{
		WriteRequest("config.yaml", []byte("a: 2\n")),
		WriteRequest("home-assistant_v2.db", []byte("x")),
	}, "agent", "")
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.ErrorIs(t, err, ErrPartialApplyReverted)

	_, err = s.Perform(ctx, []MutationRequest{
		{Kind: MutationWrite, Path: "../escape", Payload: []byte("x")},
	}, "agent", "")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = s.Perform(ctx, []MutationRequest{
		{Kind: "chmod", Path: "config.yaml"},
	}, "agent", "")
	assert.ErrorIs(t, err, ErrPartialApplyReverted)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, "a: 1\n", readLive(t, store.Filesystem(), "config.yaml"))
	assert.Equal(t, root.ID, mustHead(t, store).ID)
}

func TestSerializerStoreUnavailable(t *testing.T) {
	s, store, st := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	ctx := context.Background()
	before := liveTree(t, store)
	root := mustHead(t, store)

	st.fail.Store(true)
	_, err := s.Perform(ctx, []MutationRequest{
		WriteRequest("config.yaml", []byte("a: 2\n")),
		WriteRequest("extra.yaml", []byte("e: 1\n")),
	}, "agent", "")
	st.fail.Store(false)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, before, liveTree(t, store))
	assert.Equal(t, root.ID, mustHead(t, store).ID)

	dirty, err := store.Dirty(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	snap, err := s.Perform(ctx, []MutationRequest{WriteRequest("config.yaml", []byte("a: 3\n"))}, "agent", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"config.yaml"}, snap.ChangedPaths)
}

func TestSerializerPreCommitRejects(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	ctx := context.Background()
	root := mustHead(t, store)
	reject := errors.New("nope")

	var seen string
	_, err := s.Execute(ctx, Batch{
		Requests: []MutationRequest{WriteRequest("config.yaml", []byte("a: 2\n"))},
		PreCommit: func(ctx context.Context) error {
			seen = readLive(t, store.Filesystem(), "config.yaml")
			return reject
		},
	})
	assert.ErrorIs(t, err, reject)
	assert.Equal(t, "a: 2\n", seen, "pre-commit sees the applied tree")
	assert.Equal(t, "a: 1\n", readLive(t, store.Filesystem(), "config.yaml"))
	assert.Equal(t, root.ID, mustHead(t, store).ID)
}

func TestSerializerPlanRunsUnderLock(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	ctx := context.Background()

	snap, err := s.Execute(ctx, Batch{
		Plan: func(ctx context.Context) ([]MutationRequest, error) {
			assert.Len(t, s.lock, 1)
			return []MutationRequest{WriteRequest("planned.yaml", []byte("p: 1\n"))}, nil
		},
		Message: "planned",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"planned.yaml"}, snap.ChangedPaths)

	planErr := errors.New("plan failed")
	_, err = s.Execute(ctx, Batch{
		Plan: func(ctx context.Context) ([]MutationRequest, error) { return nil, planErr },
	})
	assert.ErrorIs(t, err, planErr)
	assert.Equal(t, snap.ID, mustHead(t, store).ID)
}

func TestSerializerSkipIfClean(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	ctx := context.Background()
	root := mustHead(t, store)

	_, err := s.Execute(ctx, Batch{SkipIfClean: true})
	assert.ErrorIs(t, err, ErrCleanTree)
	assert.Equal(t, root.ID, mustHead(t, store).ID)

	writeFiles(t, store.Filesystem(), map[string]string{"config.yaml": "a: 9\n"})
	snap, err := s.Execute(ctx, Batch{SkipIfClean: true, Message: "auto"})
	require.NoError(t, err)
	assert.Equal(t, []string{"config.yaml"}, snap.ChangedPaths)
}

func TestSerializerLockTimeout(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	root := mustHead(t, store)

	s.lock <- struct{}{}
	defer s.release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.Perform(ctx, []MutationRequest{WriteRequest("config.yaml", []byte("a: 2\n"))}, "agent", "")
	assert.ErrorIs(t, err, ErrLockTimeout)

	var lockErr *LockTimeoutError
	require.ErrorAs(t, err, &lockErr)
	assert.GreaterOrEqual(t, lockErr.Waited, 20*time.Millisecond)

	assert.Equal(t, "a: 1\n", readLive(t, store.Filesystem(), "config.yaml"))
	assert.Equal(t, root.ID, mustHead(t, store).ID)
}

func TestSerializerConfiguredLockTimeout(t *testing.T) {
	s, _, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"}, WithLockTimeout(20*time.Millisecond))

	s.lock <- struct{}{}
	defer s.release()

	_, err := s.ReadFile(context.Background(), "config.yaml")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestSerializerCancelBeforeAcquire(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	root := mustHead(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Perform(ctx, []MutationRequest{WriteRequest("config.yaml", []byte("a: 2\n"))}, "agent", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrLockTimeout)

	s.lock <- struct{}{}
	ctx, cancel = context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = s.Perform(ctx, []MutationRequest{WriteRequest("config.yaml", []byte("a: 2\n"))}, "agent", "")
	s.release()
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, "a: 1\n", readLive(t, store.Filesystem(), "config.yaml"))
	assert.Equal(t, root.ID, mustHead(t, store).ID)
}

func TestSerializerCancelInsideCriticalSection(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	ctx, cancel := context.WithCancel(context.Background())

	snap, err := s.Execute(ctx, Batch{
		Requests: []MutationRequest{WriteRequest("config.yaml", []byte("a: 2\n"))},
		PreCommit: func(context.Context) error {
			cancel()
			return nil
		},
	})
	require.NoError(t, err, "cancellation after acquisition is deferred until commit")
	assert.Equal(t, snap.ID, mustHead(t, store).ID)
}

func TestSerializerConcurrentPerformsAreLinear(t *testing.T) {
	s, store, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"})
	ctx := context.Background()
	root := mustHead(t, store)

	const writers = 8
	var wg sync.WaitGroup
	snaps := make([]*Snapshot, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := Path("parallel/" + string(rune('a'+i)) + ".yaml")
			snaps[i], errs[i] = s.Perform(ctx, []MutationRequest{
				WriteRequest(p, []byte("v: 1\n")),
			}, "agent", "")
		}(i)
	}
	wg.Wait()

	parents := make(map[string]bool)
	for i := range snaps {
		require.NoError(t, errs[i])
		assert.Len(t, snaps[i].ChangedPaths, 1, "writes never interleave")
		assert.False(t, parents[snaps[i].ParentID], "no two snapshots share a parent")
		parents[snaps[i].ParentID] = true
	}

	count := 0
	var last *Snapshot
	for snap, err := range store.Walk(ctx, mustHead(t, store).ID) {
		require.NoError(t, err)
		count++
		last = snap
	}
	assert.Equal(t, writers+1, count)
	assert.Equal(t, root.ID, last.ID)

	tree, err := store.Materialize(ctx, mustHead(t, store).ID)
	require.NoError(t, err)
	assert.Equal(t, liveTree(t, store), tree)
}

func TestSerializerReadAndList(t *testing.T) {
	s, _, _ := newTestSerializer(t, map[string]string{
		"config.yaml":           "a: 1\n",
		"packages/lights.yaml":  "l: 1\n",
		"packages/climate.yaml": "c: 1\n",
		"home-assistant.log":    "log",
	})
	ctx := context.Background()

	data, err := s.ReadFile(ctx, "packages/lights.yaml")
	require.NoError(t, err)
	assert.Equal(t, "l: 1\n", string(data))

	_, err = s.ReadFile(ctx, "nope.yaml")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ReadFile(ctx, "home-assistant.log")
	assert.ErrorIs(t, err, ErrNotFound)

	files, err := s.ListFiles(ctx, "")
	require.NoError(t, err)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"config.yaml", "packages/climate.yaml", "packages/lights.yaml"}, paths)

	files, err = s.ListFiles(ctx, "packages/")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, int64(5), files[0].Size)
}

func TestSerializerCommitHooks(t *testing.T) {
	var got []*Snapshot
	s, _, _ := newTestSerializer(t, map[string]string{"config.yaml": "a: 1\n"},
		WithCommitHook(func(ctx context.Context, snap *Snapshot) { got = append(got, snap) }),
		WithCommitHook(func(ctx context.Context, snap *Snapshot) { panic("boom") }),
	)
	ctx := context.Background()

	snap, err := s.Perform(ctx, []MutationRequest{WriteRequest("config.yaml", []byte("a: 2\n"))}, "agent", "")
	require.NoError(t, err)

	_, err = s.Perform(ctx, []MutationRequest{DeleteRequest("missing")}, "agent", "")
	require.Error(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, snap.ID, got[0].ID)
	assert.Len(t, s.lock, 0, "hooks run after the lock is released")
}
