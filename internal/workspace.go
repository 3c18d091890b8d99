package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvRoot = "HACONF_ROOT"
	EnvMeta = "HACONF_META"
)

// Workspace locates the managed configuration tree and its metadata
// directory (git object database and config.yaml).
type Workspace struct {
	Root     string
	MetaPath string
}

func NewWorkspace(root, meta string) (Workspace, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve root: %w", err)
	}
	if meta == "" {
		meta = filepath.Join(absRoot, MetaDirName)
	}
	absMeta, err := filepath.Abs(meta)
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve meta path: %w", err)
	}
	if absMeta == absRoot {
		return Workspace{}, fmt.Errorf("meta path must differ from root: %s", absRoot)
	}
	return Workspace{Root: absRoot, MetaPath: absMeta}, nil
}

func (w Workspace) ConfigPath() string {
	return filepath.Join(w.MetaPath, "config.yaml")
}

// Initialized reports whether a repository exists at MetaPath.
func (w Workspace) Initialized() bool {
	_, err := os.Stat(filepath.Join(w.MetaPath, "HEAD"))
	return err == nil
}

// metaPattern returns an ignore pattern for MetaPath when it lives inside Root.
func (w Workspace) metaPattern() (string, bool) {
	rel, err := filepath.Rel(w.Root, w.MetaPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return "/" + filepath.ToSlash(rel) + "/", true
}

type WorkspaceResolver struct {
	getwd  func() (string, error)
	getenv func(string) string
}

func NewWorkspaceResolver() *WorkspaceResolver {
	return &WorkspaceResolver{getwd: os.Getwd, getenv: os.Getenv}
}

// Resolve picks the workspace from explicit flags, then the environment, then
// the nearest ancestor of the working directory holding a metadata dir. It
// falls back to the working directory itself, uninitialized.
func (r *WorkspaceResolver) Resolve(root, meta string) (Workspace, error) {
	if root == "" {
		root = r.getenv(EnvRoot)
	}
	if meta == "" {
		meta = r.getenv(EnvMeta)
	}
	if root != "" {
		return NewWorkspace(root, meta)
	}

	cwd, err := r.getwd()
	if err != nil {
		return Workspace{}, fmt.Errorf("get working directory: %w", err)
	}
	if dir, ok := findWorkspaceRoot(cwd); ok {
		return NewWorkspace(dir, meta)
	}
	return NewWorkspace(cwd, meta)
}

func findWorkspaceRoot(dir string) (string, bool) {
	for {
		info, err := os.Stat(filepath.Join(dir, MetaDirName))
		if err == nil && info.IsDir() {
			return dir, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
