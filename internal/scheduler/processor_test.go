package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/queue"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}

func TestProcessorDispatchesAndDeliversResult(t *testing.T) {
	var mu sync.Mutex
	var gotID uuid.UUID
	var gotResult string

	p := New[string, string]("test", 0, 2,
		func(ctx context.Context, assetID uuid.UUID, payload string) (string, error) {
			return payload + "-done", nil
		},
		func(assetID uuid.UUID, payload string, result string, err error) {
			mu.Lock()
			gotID, gotResult = assetID, result
			mu.Unlock()
		},
	)
	defer p.Stop()

	id := uuid.New()
	p.Enqueue(id, queue.Visible, "job")

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotResult != ""
	})

	mu.Lock()
	defer mu.Unlock()
	if gotID != id || gotResult != "job-done" {
		t.Fatalf("expected job-done for %v, got %q for %v", id, gotResult, gotID)
	}
}

// TestRequestDedupesActiveAsset exercises the "exactly one decode per id"
// invariant: a Request for an id that is already active only retargets its
// priority and reports false rather than admitting a duplicate job.
func TestRequestDedupesActiveAsset(t *testing.T) {
	release := make(chan struct{})
	p := New[string, string]("test", 0, 1,
		func(ctx context.Context, assetID uuid.UUID, payload string) (string, error) {
			<-release
			return payload, nil
		},
		func(assetID uuid.UUID, payload string, result string, err error) {},
	)
	defer func() {
		close(release)
		p.Stop()
	}()

	id := uuid.New()
	if ok := p.Request(id, queue.Background); !ok {
		t.Fatal("expected first Request to report admit-eligible")
	}
	p.Enqueue(id, queue.Background, "job")

	waitFor(t, time.Second, func() bool { return p.QueueSize() == 0 })

	if ok := p.Request(id, queue.Visible); ok {
		t.Fatal("expected Request for an already-active id to report false")
	}
}

// TestActiveClearedBeforeResultCallback exercises the critical ordering
// invariant: the asset id leaves the active set before onResult fires, so a
// fresh Request issued from inside the callback (e.g. a dependent
// regenerate) is never deduped against the job that just finished.
func TestActiveClearedBeforeResultCallback(t *testing.T) {
	var p *Processor[string, string]
	requeued := make(chan bool, 1)

	p = New[string, string]("test", 0, 1,
		func(ctx context.Context, assetID uuid.UUID, payload string) (string, error) {
			return payload, nil
		},
		func(assetID uuid.UUID, payload string, result string, err error) {
			requeued <- p.Request(assetID, queue.Visible)
		},
	)
	defer p.Stop()

	id := uuid.New()
	p.Enqueue(id, queue.Background, "job")

	select {
	case ok := <-requeued:
		if !ok {
			t.Fatal("expected Request from inside onResult to see the id no longer active")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for onResult callback")
	}
}

func TestCancelRemovesQueuedItem(t *testing.T) {
	release := make(chan struct{})
	p := New[string, string]("test", 0, 1,
		func(ctx context.Context, assetID uuid.UUID, payload string) (string, error) {
			<-release
			return payload, nil
		},
		func(assetID uuid.UUID, payload string, result string, err error) {},
	)
	defer func() {
		close(release)
		p.Stop()
	}()

	blocker, pending := uuid.New(), uuid.New()
	p.Enqueue(blocker, queue.Visible, "blocker")
	p.Enqueue(pending, queue.Background, "pending")

	p.Cancel(pending)

	if !p.Request(pending, queue.Visible) {
		t.Fatal("expected Request for a cancelled id to report admit-eligible")
	}
}

func TestCancelBackgroundRequestsRemovesOnlyBackground(t *testing.T) {
	release := make(chan struct{})
	p := New[string, string]("test", 0, 1,
		func(ctx context.Context, assetID uuid.UUID, payload string) (string, error) {
			<-release
			return payload, nil
		},
		func(assetID uuid.UUID, payload string, result string, err error) {},
	)
	defer func() {
		close(release)
		p.Stop()
	}()

	blocker := uuid.New()
	p.Enqueue(blocker, queue.Visible, "blocker")

	bg1, bg2, visible := uuid.New(), uuid.New(), uuid.New()
	p.Enqueue(bg1, queue.Background, "bg1")
	p.Enqueue(bg2, queue.Background, "bg2")
	p.Enqueue(visible, queue.Visible, "visible")

	removed := p.CancelBackgroundRequests()
	if removed != 2 {
		t.Fatalf("expected 2 background items removed, got %d", removed)
	}

	if !p.Request(bg1, queue.Visible) {
		t.Fatal("expected bg1 to no longer be active after cancellation")
	}
	if p.Request(visible, queue.Visible) {
		t.Fatal("expected the still-queued visible item to remain active")
	}
}

func TestStopDrainsInFlightTasks(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})

	p := New[string, string]("test", 0, 1,
		func(ctx context.Context, assetID uuid.UUID, payload string) (string, error) {
			close(started)
			time.Sleep(30 * time.Millisecond)
			close(finished)
			return payload, nil
		},
		func(assetID uuid.UUID, payload string, result string, err error) {},
	)

	p.Enqueue(uuid.New(), queue.Visible, "job")
	<-started
	p.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("expected Stop to wait for the in-flight task to finish")
	}
}
