package internal

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const IgnoreFilename = ".haconfignore"

// DefaultIgnorePatterns cover runtime state the platform rewrites on its own.
var DefaultIgnorePatterns = []string{
	"*.db",
	"*.db-shm",
	"*.db-wal",
	"*.log",
	"*.log.*",
	".storage/",
	".cloud/",
	"tts/",
	"deps/",
	"__pycache__/",
	".git",
	tempFilePrefix + "*",
	MetaDirName + "/",
}

type IgnoreMatcher struct {
	patterns []gitignore.Pattern
}

// NewIgnoreMatcher loads the defaults, the extra patterns and the ignore file
// at the root of fs, if present.
func NewIgnoreMatcher(fs billy.Filesystem, extra ...string) (*IgnoreMatcher, error) {
	f, err := fs.Open(IgnoreFilename)
	if errors.Is(err, os.ErrNotExist) {
		return newIgnoreMatcher(nil, extra)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return newIgnoreMatcher(f, extra)
}

// ignoreMatcherFor builds the matcher that an ignore file holding data
// yields. Nil data means no ignore file.
func ignoreMatcherFor(data []byte, extra ...string) (*IgnoreMatcher, error) {
	if data == nil {
		return newIgnoreMatcher(nil, extra)
	}
	return newIgnoreMatcher(bytes.NewReader(data), extra)
}

func newIgnoreMatcher(file io.Reader, extra []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}
	for _, line := range DefaultIgnorePatterns {
		m.patterns = append(m.patterns, gitignore.ParsePattern(line, nil))
	}
	for _, line := range extra {
		if line = strings.TrimSpace(line); line != "" {
			m.patterns = append(m.patterns, gitignore.ParsePattern(line, nil))
		}
	}
	if file == nil {
		return m, nil
	}

	patterns, err := parseIgnorePatterns(file)
	if err != nil {
		return nil, err
	}
	m.patterns = append(m.patterns, patterns...)
	return m, nil
}

// Patterns returns the compiled patterns, in precedence order.
func (m *IgnoreMatcher) Patterns() []gitignore.Pattern {
	return m.patterns
}

// Match reports whether the slash-separated path is excluded.
func (m *IgnoreMatcher) Match(p string, isDir bool) bool {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	return gitignore.NewMatcher(m.patterns).Match(parts, isDir)
}

// MatchAny reports whether p or one of its parent directories is excluded.
func (m *IgnoreMatcher) MatchAny(p string, isDir bool) bool {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	matcher := gitignore.NewMatcher(m.patterns)
	for i := 1; i < len(parts); i++ {
		if matcher.Match(parts[:i], true) {
			return true
		}
	}
	return matcher.Match(parts, isDir)
}

func parseIgnorePatterns(r io.Reader) ([]gitignore.Pattern, error) {
	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}
