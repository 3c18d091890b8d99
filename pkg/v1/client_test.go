package v1

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func setupClientTest(t *testing.T, opts ...Option) *Client {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "configuration.yaml"), []byte("homeassistant:\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	client, err := New(append([]Option{WithRoot(root), WithInit(), WithAuthor("tester")}, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientWriteAndRead(t *testing.T) {
	client := setupClientTest(t)
	ctx := context.Background()

	snap, err := client.Write(ctx, "packages/lights.yaml", []byte("light:\n"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if snap.Author != "tester" {
		t.Errorf("author = %q", snap.Author)
	}
	if len(snap.ChangedPaths) != 1 || snap.ChangedPaths[0] != "packages/lights.yaml" {
		t.Errorf("changed = %v", snap.ChangedPaths)
	}

	if _, err := client.Append(ctx, "packages/lights.yaml", []byte("  - platform: x\n")); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := client.Read(ctx, "packages/lights.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "light:\n  - platform: x\n" {
		t.Errorf("content = %q", got)
	}

	old, err := client.ReadAt(ctx, "packages/lights.yaml", snap.ID)
	if err != nil {
		t.Fatalf("read at: %v", err)
	}
	if string(old) != "light:\n" {
		t.Errorf("content at %s = %q", snap.ID, old)
	}

	data, err := os.ReadFile(filepath.Join(client.Root(), "packages", "lights.yaml"))
	if err != nil || string(data) != string(got) {
		t.Errorf("disk content = %q, %v", data, err)
	}
}

func TestClientDeleteAndErrors(t *testing.T) {
	client := setupClientTest(t)
	ctx := context.Background()

	if _, err := client.Delete(ctx, "configuration.yaml"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := client.Read(ctx, "configuration.yaml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("read deleted = %v, want ErrNotFound", err)
	}
	if _, err := client.Delete(ctx, "configuration.yaml"); !errors.Is(err, ErrPartialApplyReverted) {
		t.Errorf("delete missing = %v, want ErrPartialApplyReverted", err)
	}
	if _, err := client.Write(ctx, "../escape.yaml", nil); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("write outside root = %v, want ErrInvalidPath", err)
	}
}

func TestClientHistoryDiffRollback(t *testing.T) {
	client := setupClientTest(t)
	ctx := context.Background()

	root, err := client.Head(ctx)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if _, err := client.Write(ctx, "configuration.yaml", []byte("homeassistant:\n  name: Home\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	history, err := client.History(ctx, 0, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[1].ID != root.ID {
		t.Fatalf("history = %+v", history)
	}

	changes, err := client.Diff(ctx, root.ID, "")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(changes) != 1 || changes[0].Path != "configuration.yaml" || changes[0].Kind != "modified" {
		t.Errorf("changes = %+v", changes)
	}

	snap, err := client.Rollback(ctx, root.ID)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if snap.Message != "rollback: restore "+root.ID {
		t.Errorf("message = %q", snap.Message)
	}
	got, _ := client.Read(ctx, "configuration.yaml")
	if string(got) != "homeassistant:\n" {
		t.Errorf("after rollback = %q", got)
	}

	if _, err := client.Rollback(ctx, "0123456789abcdef0123456789abcdef01234567"); !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("rollback unknown = %v", err)
	}
}

type rejectAll struct{}

func (rejectAll) ValidateConfiguration(context.Context) (*ValidationResult, error) {
	return &ValidationResult{Valid: false, Errors: "nope"}, nil
}

func TestClientValidator(t *testing.T) {
	client := setupClientTest(t, WithValidator(rejectAll{}))
	ctx := context.Background()

	root, _ := client.Head(ctx)
	if _, err := client.Write(ctx, "configuration.yaml", []byte("x: 1\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := client.Rollback(ctx, root.ID); !errors.Is(err, ErrValidationRejected) {
		t.Errorf("rollback = %v, want ErrValidationRejected", err)
	}
}

func TestClientCoalesceWindow(t *testing.T) {
	client := setupClientTest(t, WithCoalesceWindow(200*time.Millisecond))
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i, name := range []string{"a.yaml", "b.yaml"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			snap, err := client.Write(ctx, name, []byte(name))
			if err != nil {
				t.Errorf("write %s: %v", name, err)
				return
			}
			ids[i] = snap.ID
		}(i, name)
	}
	wg.Wait()

	if ids[0] == "" || ids[0] != ids[1] {
		t.Errorf("expected one shared snapshot, got %v", ids)
	}
}

func TestClientNotInitialized(t *testing.T) {
	_, err := New(WithRoot(t.TempDir()))
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}
