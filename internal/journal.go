package internal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

const tempFilePrefix = ".haconf-tmp-"

// journal keeps the pre-image of every path a batch touches so the batch
// can be undone byte for byte.
type journal struct {
	fs      billy.Filesystem
	entries []preimage
	seen    map[Path]struct{}
}

type preimage struct {
	path    Path
	existed bool
	content []byte
}

func newJournal(fs billy.Filesystem) *journal {
	return &journal{fs: fs, seen: make(map[Path]struct{})}
}

func (j *journal) record(p Path) error {
	if _, ok := j.seen[p]; ok {
		return nil
	}

	data, err := util.ReadFile(j.fs, p.String())
	switch {
	case err == nil:
		j.entries = append(j.entries, preimage{path: p, existed: true, content: data})
	case errors.Is(err, os.ErrNotExist):
		j.entries = append(j.entries, preimage{path: p})
	default:
		return fmt.Errorf("read pre-image: %w", err)
	}

	j.seen[p] = struct{}{}
	return nil
}

// paths returns the touched paths in lexical order.
func (j *journal) paths() []string {
	out := make([]string, len(j.entries))
	for i, e := range j.entries {
		out[i] = e.path.String()
	}
	sort.Strings(out)
	return out
}

// undo restores every recorded pre-image, newest first.
func (j *journal) undo() error {
	var errs []error
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if e.existed {
			if err := writeFileAtomic(j.fs, e.path.String(), e.content); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", e.path, err))
			}
			continue
		}
		if err := j.fs.Remove(e.path.String()); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", e.path, err))
		}
	}
	return errors.Join(errs...)
}

// writeFileAtomic replaces name through a temp file in the same directory.
func writeFileAtomic(fs billy.Filesystem, name string, data []byte) error {
	dir := path.Dir(name)
	if dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	tmp, err := util.TempFile(fs, dir, tempFilePrefix)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("close: %w", err)
	}
	if err := fs.Rename(tmpName, name); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func readFile(fs billy.Filesystem, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// walkFiles visits every regular file below dir, skipping excluded paths.
func walkFiles(fs billy.Filesystem, dir string, skip func(p string, isDir bool) bool, fn func(p string, info os.FileInfo) error) error {
	infos, err := fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		p := info.Name()
		if dir != "" {
			p = path.Join(dir, info.Name())
		}
		if skip(p, info.IsDir()) {
			continue
		}
		if info.IsDir() {
			if err := walkFiles(fs, p, skip, fn); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := fn(p, info); err != nil {
			return err
		}
	}
	return nil
}
