package api

import (
	"context"

	"github.com/4thel00z/haconf/internal"
	"github.com/4thel00z/haconf/internal/sse"
)

// EventSnapshotCommitted is published for every new snapshot.
const EventSnapshotCommitted = "snapshot.committed"

// CommitEvents returns a commit hook that publishes each snapshot on b.
func CommitEvents(b *sse.Broker) internal.CommitHook {
	return func(_ context.Context, snap *internal.Snapshot) {
		b.Publish(sse.Event{Type: EventSnapshotCommitted, Data: internal.NewSnapshotOutput(snap)})
	}
}
