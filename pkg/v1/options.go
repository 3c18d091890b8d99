package v1

import "time"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	root           string
	meta           string
	author         string
	coalesceWindow time.Duration
	coalesceSet    bool
	validator      Validator
	init           bool
}

// WithRoot sets the configuration root. Defaults to HACONF_ROOT or the
// nearest initialized ancestor of the working directory.
func WithRoot(dir string) Option {
	return func(c *clientConfig) {
		c.root = dir
	}
}

// WithMetaPath places the metadata directory outside the root.
func WithMetaPath(dir string) Option {
	return func(c *clientConfig) {
		c.meta = dir
	}
}

// WithAuthor sets the author recorded on every snapshot.
func WithAuthor(author string) Option {
	return func(c *clientConfig) {
		c.author = author
	}
}

// WithCoalesceWindow folds single-file mutations arriving within d into one
// snapshot.
func WithCoalesceWindow(d time.Duration) Option {
	return func(c *clientConfig) {
		c.coalesceWindow = d
		c.coalesceSet = true
	}
}

// WithValidator checks every rollback with v before it is committed.
func WithValidator(v Validator) Option {
	return func(c *clientConfig) {
		c.validator = v
	}
}

// WithInit initializes the workspace when it has no store yet.
func WithInit() Option {
	return func(c *clientConfig) {
		c.init = true
	}
}
