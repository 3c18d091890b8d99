package api

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/4thel00z/haconf/internal"
	"github.com/4thel00z/haconf/internal/sse"
)

func TestCommitEvents(t *testing.T) {
	b := sse.NewBroker()
	defer b.Close()
	ch := b.Subscribe()

	CommitEvents(b)(context.Background(), &internal.Snapshot{ID: "abc", Author: "agent", Message: "write a.yaml"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "event: "+EventSnapshotCommitted+"\n") {
			t.Errorf("event = %q", s)
		}
		if !strings.Contains(s, `"id":"abc"`) || !strings.Contains(s, `"changed_paths":[]`) {
			t.Errorf("payload = %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}
