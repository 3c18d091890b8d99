package internal

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// MetaDirName is the default metadata directory created inside the root.
const MetaDirName = ".haconf"

var segmentPattern = regexp.MustCompile(`^[^\x00-\x1f\\]+$`)

// Path is a slash-separated file path relative to the working tree root.
type Path string

// NewPath cleans s and rejects anything that is absolute, escapes the root,
// or addresses the metadata directory.
func NewPath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	p, err := cleanPath(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, s)
	}
	return p, nil
}

func cleanPath(s string) (Path, error) {
	s = strings.ReplaceAll(s, "\\", "/")
	if strings.HasPrefix(s, "/") {
		return "", ErrInvalidPath
	}

	cleaned := path.Clean(s)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}

	for _, seg := range strings.Split(cleaned, "/") {
		if !segmentPattern.MatchString(seg) {
			return "", ErrInvalidPath
		}
		if seg == ".git" {
			return "", ErrInvalidPath
		}
	}

	first, _, _ := strings.Cut(cleaned, "/")
	if first == MetaDirName {
		return "", ErrInvalidPath
	}

	return Path(cleaned), nil
}

func (p Path) String() string {
	return string(p)
}

// HasPrefix reports whether p lies under the directory prefix, or equals it.
func (p Path) HasPrefix(prefix string) bool {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return true
	}
	s := string(p)
	return s == prefix || strings.HasPrefix(s, prefix+"/")
}
