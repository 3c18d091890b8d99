package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPath(t *testing.T) {
	valid := map[string]string{
		"config.yaml":             "config.yaml",
		"packages/lights.yaml":    "packages/lights.yaml",
		"./packages//lights.yaml": "packages/lights.yaml",
		`packages\climate.yaml`:   "packages/climate.yaml",
		" scripts.yaml ":          "scripts.yaml",
		"a/../b.yaml":             "b.yaml",
		".haconfignore":           ".haconfignore",
	}
	for in, want := range valid {
		p, err := NewPath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, p.String())
	}

	invalid := []string{
		"",
		"/etc/passwd",
		"..",
		"../secrets.yaml",
		"a/../../b",
		".",
		".git/config",
		"sub/.git/HEAD",
		MetaDirName + "/HEAD",
		"bad\x00name",
	}
	for _, in := range invalid {
		_, err := NewPath(in)
		assert.ErrorIs(t, err, ErrInvalidPath, "%q", in)
	}
}

func TestPathHasPrefix(t *testing.T) {
	p := Path("packages/lights.yaml")
	assert.True(t, p.HasPrefix(""))
	assert.True(t, p.HasPrefix("packages"))
	assert.True(t, p.HasPrefix("packages/"))
	assert.True(t, p.HasPrefix("packages/lights.yaml"))
	assert.False(t, p.HasPrefix("pack"))
	assert.False(t, p.HasPrefix("scripts"))
}
