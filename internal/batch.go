package internal

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Coalescer folds requests submitted within a short window into a single
// batch. Every submitter of a batch receives the same snapshot or error.
type Coalescer struct {
	serializer *Serializer
	window     time.Duration
	maxBatch   int
	logger     *slog.Logger

	mu      sync.Mutex
	pending *pendingBatch
}

type pendingBatch struct {
	author  string
	entries []*submission
	timer   *time.Timer
	flushed bool

	done chan struct{}
	snap *Snapshot
	err  error
}

type submission struct {
	req     MutationRequest
	message string
}

type CoalescerOption func(*Coalescer)

func WithCoalescerLogger(logger *slog.Logger) CoalescerOption {
	return func(c *Coalescer) { c.logger = logger }
}

// NewCoalescer batches through s. A window of zero disables batching and
// maxBatch below one means no size limit.
func NewCoalescer(s *Serializer, window time.Duration, maxBatch int, opts ...CoalescerOption) *Coalescer {
	c := &Coalescer{
		serializer: s,
		window:     window,
		maxBatch:   maxBatch,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit queues req and waits for the batch it lands in to be committed.
// Cancelling ctx before the batch is flushed withdraws req from it.
func (c *Coalescer) Submit(ctx context.Context, req MutationRequest, author, message string) (*Snapshot, error) {
	if c.window <= 0 {
		return c.serializer.Perform(ctx, []MutationRequest{req}, author, message)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &submission{req: req, message: message}

	c.mu.Lock()
	if c.pending != nil && c.pending.author != author {
		go c.flush(c.pending)
		c.pending = nil
	}
	p := c.pending
	if p == nil {
		p = &pendingBatch{author: author, done: make(chan struct{})}
		p.timer = time.AfterFunc(c.window, func() { c.flush(p) })
		c.pending = p
	}
	p.entries = append(p.entries, sub)
	if c.maxBatch > 0 && len(p.entries) >= c.maxBatch {
		c.pending = nil
		go c.flush(p)
	}
	c.mu.Unlock()

	select {
	case <-p.done:
		return p.snap, p.err
	case <-ctx.Done():
	}

	c.mu.Lock()
	if !p.flushed {
		p.entries = slices.DeleteFunc(p.entries, func(s *submission) bool { return s == sub })
		c.mu.Unlock()
		c.logger.Debug("submission withdrawn", slog.String("request", req.Context.RequestID))
		return nil, ctx.Err()
	}
	c.mu.Unlock()

	// Already handed to the serializer; the outcome is shared.
	<-p.done
	return p.snap, p.err
}

// Flush commits the pending batch, if any, and waits for it.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	if p != nil {
		c.flush(p)
		<-p.done
	}
}

func (c *Coalescer) flush(p *pendingBatch) {
	c.mu.Lock()
	if p.flushed {
		c.mu.Unlock()
		return
	}
	p.flushed = true
	p.timer.Stop()
	if c.pending == p {
		c.pending = nil
	}
	entries := slices.Clone(p.entries)
	c.mu.Unlock()

	defer close(p.done)
	if len(entries) == 0 {
		return
	}

	requests := make([]MutationRequest, len(entries))
	var messages []string
	for i, e := range entries {
		requests[i] = e.req
		if e.message != "" && !slices.Contains(messages, e.message) {
			messages = append(messages, e.message)
		}
	}

	c.logger.Debug("flushing batch", slog.Int("requests", len(requests)), slog.String("author", p.author))
	p.snap, p.err = c.serializer.Execute(context.Background(), Batch{
		Requests: requests,
		Author:   p.author,
		Message:  strings.Join(messages, "; "),
	})
}
