package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

const (
	DefaultBranch = "main"
	DefaultAuthor = "haconf"
	DefaultEmail  = "haconf@local"

	baselineMessage = "init: baseline snapshot"
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// FileInfo describes one file of a tree.
type FileInfo struct {
	Path string
	Size int64
}

// GitStore keeps snapshots as commits of a go-git repository whose worktree
// is the managed configuration directory.
type GitStore struct {
	mu       sync.RWMutex
	repo     *git.Repository
	worktree *git.Worktree
	fs       billy.Filesystem
	ignore   atomic.Pointer[IgnoreMatcher]
	extra    []string
	excludes []gitignore.Pattern
	now      func() time.Time
	logger   *slog.Logger

	cacheMu sync.Mutex
	changes map[string][]DiffEntry
}

type StoreOption func(*GitStore)

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *GitStore) { s.now = now }
}

func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *GitStore) { s.logger = logger }
}

// WithIgnorePatterns adds gitignore-style patterns on top of the defaults.
func WithIgnorePatterns(patterns ...string) StoreOption {
	return func(s *GitStore) { s.extra = append(s.extra, patterns...) }
}

// InitGitStore creates a repository over st and wt and commits the current
// content of wt as the root snapshot.
func InitGitStore(ctx context.Context, st storage.Storer, wt billy.Filesystem, author string, opts ...StoreOption) (*GitStore, error) {
	repo, err := git.InitWithOptions(st, wt, git.InitOptions{
		DefaultBranch: plumbing.NewBranchReferenceName(DefaultBranch),
	})
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return nil, ErrAlreadyInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}

	s, err := newGitStore(repo, wt, opts)
	if err != nil {
		return nil, err
	}

	if _, err := s.Commit(ctx, author, baselineMessage, true); err != nil {
		return nil, fmt.Errorf("baseline snapshot: %w", err)
	}

	return s, nil
}

// OpenGitStore opens an existing repository over st and wt.
func OpenGitStore(st storage.Storer, wt billy.Filesystem, opts ...StoreOption) (*GitStore, error) {
	repo, err := git.Open(st, wt)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return newGitStore(repo, wt, opts)
}

// InitStore initializes the on-disk repository of ws.
func InitStore(ctx context.Context, ws Workspace, author string, opts ...StoreOption) (*GitStore, error) {
	if ws.Initialized() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, ws.MetaPath)
	}
	if err := os.MkdirAll(ws.MetaPath, 0755); err != nil {
		return nil, fmt.Errorf("create meta directory: %w", err)
	}

	st, wt := diskBackends(ws)
	return InitGitStore(ctx, st, wt, author, append(workspaceOptions(ws), opts...)...)
}

// OpenStore opens the on-disk repository of ws.
func OpenStore(ws Workspace, opts ...StoreOption) (*GitStore, error) {
	if !ws.Initialized() {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, ws.MetaPath)
	}

	st, wt := diskBackends(ws)
	return OpenGitStore(st, wt, append(workspaceOptions(ws), opts...)...)
}

// metaStorage hides the storage filesystem from go-git, which would otherwise
// drop a .git file into the configuration root on init.
type metaStorage struct {
	storage.Storer
	fs *filesystem.Storage
}

func (s metaStorage) Init() error {
	return s.fs.Init()
}

func diskBackends(ws Workspace) (storage.Storer, billy.Filesystem) {
	st := filesystem.NewStorage(osfs.New(ws.MetaPath), cache.NewObjectLRUDefault())
	return metaStorage{Storer: st, fs: st}, osfs.New(ws.Root)
}

func workspaceOptions(ws Workspace) []StoreOption {
	if pattern, ok := ws.metaPattern(); ok {
		return []StoreOption{WithIgnorePatterns(pattern)}
	}
	return nil
}

func newGitStore(repo *git.Repository, wt billy.Filesystem, opts []StoreOption) (*GitStore, error) {
	s := &GitStore{
		repo:    repo,
		fs:      wt,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
		changes: make(map[string][]DiffEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	s.worktree = worktree
	s.excludes = slices.Clone(worktree.Excludes)

	if err := s.reloadIgnore(); err != nil {
		return nil, fmt.Errorf("load ignore patterns: %w", err)
	}

	return s, nil
}

// reloadIgnore rereads the live ignore file. Callers hold mu for writing or
// have not published s yet.
func (s *GitStore) reloadIgnore() error {
	m, err := NewIgnoreMatcher(s.fs, s.extra...)
	if err != nil {
		return err
	}
	s.ignore.Store(m)
	s.worktree.Excludes = append(slices.Clone(s.excludes), m.Patterns()...)
	return nil
}

// Filesystem returns the working tree.
func (s *GitStore) Filesystem() billy.Filesystem {
	return s.fs
}

// Ignored reports whether p is excluded from snapshots.
func (s *GitStore) Ignored(p string, isDir bool) bool {
	return s.ignore.Load().MatchAny(p, isDir)
}

// IgnoredAt reports whether p is excluded under the ignore rules recorded in
// snapshot id.
func (s *GitStore) IgnoredAt(ctx context.Context, id string, p string) (bool, error) {
	data, err := s.ReadFileAt(ctx, id, Path(IgnoreFilename))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	m, err := ignoreMatcherFor(data, s.extra...)
	if err != nil {
		return false, fmt.Errorf("parse %s at %s: %w", IgnoreFilename, shortID(id), err)
	}
	return m.MatchAny(p, false), nil
}

// Commit stages the whole working tree and records it as the new head.
// Without allowEmpty a clean tree yields ErrCleanTree and no snapshot.
func (s *GitStore) Commit(ctx context.Context, author, message string, allowEmpty bool) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if author == "" {
		author = DefaultAuthor
	}

	// The batch may have rewritten the ignore file; stage against its rules.
	if err := s.reloadIgnore(); err != nil {
		return nil, fmt.Errorf("%w: load ignore patterns: %w", ErrStoreUnavailable, err)
	}

	staged, err := s.stage()
	if err != nil {
		return nil, fmt.Errorf("%w: stage changes: %w", ErrStoreUnavailable, err)
	}

	_, headErr := s.repo.Head()
	if staged == 0 && !allowEmpty && headErr == nil {
		return nil, ErrCleanTree
	}

	sig := &object.Signature{
		Name:  author,
		Email: DefaultEmail,
		When:  s.now(),
	}
	hash, err := s.worktree.Commit(message, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrStoreUnavailable, err)
	}

	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: read commit: %w", ErrStoreUnavailable, err)
	}

	snap, err := s.toSnapshot(commit)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("snapshot committed",
		slog.String("version", snap.ID),
		slog.String("parent", snap.ParentID),
		slog.Int("changed", len(snap.ChangedPaths)))

	return snap, nil
}

func (s *GitStore) stage() (int, error) {
	status, err := s.worktree.Status()
	if err != nil {
		return 0, fmt.Errorf("status: %w", err)
	}

	paths := make([]string, 0, len(status))
	for p := range status {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	ignore := s.ignore.Load()
	staged := 0
	for _, p := range paths {
		fst := status[p]
		if ignore.MatchAny(p, false) {
			continue
		}

		switch fst.Worktree {
		case git.Unmodified:
			if fst.Staging != git.Unmodified {
				staged++
			}
			continue
		case git.Deleted:
			if _, err := s.worktree.Remove(p); err != nil {
				return staged, fmt.Errorf("remove %s: %w", p, err)
			}
		default:
			if err := s.worktree.AddWithOptions(&git.AddOptions{Path: p, SkipStatus: true}); err != nil {
				return staged, fmt.Errorf("add %s: %w", p, err)
			}
		}
		staged++
	}

	dropped, err := s.untrackIgnored(ignore)
	return staged + dropped, err
}

// untrackIgnored drops index entries that the ignore rules now exclude. The
// files stay on disk.
func (s *GitStore) untrackIgnored(ignore *IgnoreMatcher) (int, error) {
	idx, err := s.repo.Storer.Index()
	if err != nil {
		return 0, fmt.Errorf("read index: %w", err)
	}

	var drop []string
	for _, e := range idx.Entries {
		if ignore.MatchAny(e.Name, false) {
			drop = append(drop, e.Name)
		}
	}
	if len(drop) == 0 {
		return 0, nil
	}

	for _, name := range drop {
		if _, err := idx.Remove(name); err != nil {
			return 0, fmt.Errorf("untrack %s: %w", name, err)
		}
	}
	if err := s.repo.Storer.SetIndex(idx); err != nil {
		return 0, fmt.Errorf("write index: %w", err)
	}
	s.logger.Debug("untracked ignored paths", slog.Any("paths", drop))
	return len(drop), nil
}

// ResetIndex drops anything staged since head. Used after a failed commit.
func (s *GitStore) ResetIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil
	}
	if err := s.worktree.Reset(&git.ResetOptions{Mode: git.MixedReset}); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	return nil
}

func (s *GitStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commit, err := s.commit(id)
	if err != nil {
		return nil, err
	}
	return s.toSnapshot(commit)
}

func (s *GitStore) Head(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	head, err := s.headCommit()
	if err != nil {
		return nil, err
	}
	return s.toSnapshot(head)
}

// Resolve accepts a full version id or a revision expression such as HEAD~2.
func (s *GitStore) Resolve(ctx context.Context, rev string) (*Snapshot, error) {
	if hashPattern.MatchString(rev) {
		snap, err := s.Get(ctx, rev)
		if errors.Is(err, ErrNotFound) {
			return nil, &VersionError{ID: rev}
		}
		return snap, err
	}

	s.mu.RLock()
	hash, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	s.mu.RUnlock()
	if err != nil {
		return nil, &VersionError{ID: rev}
	}
	return s.Get(ctx, hash.String())
}

// Walk yields snapshots from id back to the root, newest first. The
// sequence can be restarted from any yielded id.
func (s *GitStore) Walk(ctx context.Context, from string) iter.Seq2[*Snapshot, error] {
	return func(yield func(*Snapshot, error) bool) {
		id := from
		for id != "" {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			snap, err := s.Get(ctx, id)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(snap, nil) {
				return
			}
			id = snap.ParentID
		}
	}
}

// Changes returns the file-level changes id introduced over its parent.
func (s *GitStore) Changes(ctx context.Context, id string) ([]DiffEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commit, err := s.commit(id)
	if err != nil {
		return nil, versionErr(id, err)
	}
	return s.changesOf(commit)
}

// DiffTrees compares the trees of two snapshots.
func (s *GitStore) DiffTrees(ctx context.Context, from, to string) ([]DiffEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromTree, err := s.treeOf(from)
	if err != nil {
		return nil, err
	}
	toTree, err := s.treeOf(to)
	if err != nil {
		return nil, err
	}

	entries, err := diffTrees(fromTree, toTree)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// Materialize reconstructs the full file tree of id.
func (s *GitStore) Materialize(ctx context.Context, id string) (Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, err := s.treeOf(id)
	if err != nil {
		return nil, err
	}

	out := make(Tree)
	err = tree.Files().ForEach(func(f *object.File) error {
		data, err := readBlob(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Name, err)
		}
		out[f.Name] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", shortID(id), err)
	}
	return out, nil
}

// Files lists the paths and sizes recorded in id.
func (s *GitStore) Files(ctx context.Context, id string) ([]FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, err := s.treeOf(id)
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	err = tree.Files().ForEach(func(f *object.File) error {
		files = append(files, FileInfo{Path: f.Name, Size: f.Size})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", shortID(id), err)
	}
	return files, nil
}

// ReadFileAt returns the content of p as recorded in id.
func (s *GitStore) ReadFileAt(ctx context.Context, id string, p Path) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, err := s.treeOf(id)
	if err != nil {
		return nil, err
	}

	f, err := tree.File(p.String())
	if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return nil, fmt.Errorf("%s at %s: %w", p, shortID(id), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", p, err)
	}
	return readBlob(f)
}

// Dirty lists the paths whose live content differs from head.
func (s *GitStore) Dirty(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, err := s.worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	var dirty []string
	for p, fst := range status {
		if s.ignore.Load().MatchAny(p, false) {
			continue
		}
		if fst.Worktree != git.Unmodified || fst.Staging != git.Unmodified {
			dirty = append(dirty, p)
		}
	}
	sort.Strings(dirty)
	return dirty, nil
}

// WorkingChanges lists how the live tree differs from head, each entry
// carrying a line patch.
func (s *GitStore) WorkingChanges(ctx context.Context) ([]DiffEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	head, err := s.headCommit()
	if err != nil {
		return nil, err
	}
	tree, err := head.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: read HEAD tree: %w", ErrStoreUnavailable, err)
	}

	status, err := s.worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	var entries []DiffEntry
	for p, fst := range status {
		if s.ignore.Load().MatchAny(p, false) {
			continue
		}
		if fst.Worktree == git.Unmodified && fst.Staging == git.Unmodified {
			continue
		}

		var before, after []byte
		if f, err := tree.File(p); err == nil {
			if before, err = readBlob(f); err != nil {
				return nil, fmt.Errorf("read %s at HEAD: %w", p, err)
			}
		}
		if data, err := readFile(s.fs, p); err == nil {
			after = data
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}

		e := DiffEntry{Path: p, Kind: ChangeModified}
		switch {
		case before == nil && after == nil:
			continue
		case before == nil:
			e.Kind = ChangeAdded
		case after == nil:
			e.Kind = ChangeRemoved
		case string(before) == string(after):
			continue
		}
		e.Patch = linePatch(p, before, after)
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

// helpers

func (s *GitStore) commit(id string) (*object.Commit, error) {
	if !hashPattern.MatchString(id) {
		return nil, fmt.Errorf("snapshot %q: %w", id, ErrNotFound)
	}
	commit, err := s.repo.CommitObject(plumbing.NewHash(id))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("snapshot %s: %w", shortID(id), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read commit %s: %w", ErrStoreUnavailable, shortID(id), err)
	}
	return commit, nil
}

func (s *GitStore) headCommit() (*object.Commit, error) {
	head, err := s.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrEmptyStore
	}
	if err != nil {
		return nil, fmt.Errorf("get HEAD: %w", err)
	}
	commit, err := s.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: read HEAD commit: %w", ErrStoreUnavailable, err)
	}
	return commit, nil
}

func (s *GitStore) treeOf(id string) (*object.Tree, error) {
	commit, err := s.commit(id)
	if err != nil {
		return nil, versionErr(id, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: read tree of %s: %w", ErrStoreUnavailable, shortID(id), err)
	}
	return tree, nil
}

func (s *GitStore) changesOf(c *object.Commit) ([]DiffEntry, error) {
	key := c.Hash.String()

	s.cacheMu.Lock()
	cached, ok := s.changes[key]
	s.cacheMu.Unlock()
	if ok {
		return append([]DiffEntry(nil), cached...), nil
	}

	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: read tree: %w", ErrStoreUnavailable, err)
	}

	var entries []DiffEntry
	if c.NumParents() == 0 {
		err = tree.Files().ForEach(func(f *object.File) error {
			entries = append(entries, DiffEntry{Path: f.Name, Kind: ChangeAdded})
			return nil
		})
	} else {
		var parent *object.Commit
		if parent, err = c.Parent(0); err == nil {
			var parentTree *object.Tree
			if parentTree, err = parent.Tree(); err == nil {
				entries, err = diffTrees(parentTree, tree)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("changes of %s: %w", shortID(key), err)
	}
	sortEntries(entries)

	s.cacheMu.Lock()
	s.changes[key] = entries
	s.cacheMu.Unlock()

	return append([]DiffEntry(nil), entries...), nil
}

func (s *GitStore) toSnapshot(c *object.Commit) (*Snapshot, error) {
	changes, err := s.changesOf(c)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:           c.Hash.String(),
		Timestamp:    c.Author.When,
		Author:       c.Author.Name,
		Message:      c.Message,
		ChangedPaths: entryPaths(changes),
	}
	if len(c.ParentHashes) > 0 {
		snap.ParentID = c.ParentHashes[0].String()
	}
	return snap, nil
}

func diffTrees(from, to *object.Tree) ([]DiffEntry, error) {
	changes, err := object.DiffTree(from, to)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	entries := make([]DiffEntry, 0, len(changes))
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return nil, fmt.Errorf("classify change: %w", err)
		}
		switch action {
		case merkletrie.Insert:
			entries = append(entries, DiffEntry{Path: ch.To.Name, Kind: ChangeAdded})
		case merkletrie.Delete:
			entries = append(entries, DiffEntry{Path: ch.From.Name, Kind: ChangeRemoved})
		case merkletrie.Modify:
			entries = append(entries, DiffEntry{Path: ch.To.Name, Kind: ChangeModified})
		}
	}
	return entries, nil
}

func readBlob(f *object.File) ([]byte, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func versionErr(id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &VersionError{ID: id}
	}
	return err
}
