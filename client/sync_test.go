package client

import (
	"context"
	"sync"
	"testing"
	"time"

	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/errs"
)

// scriptedFetcher serves whatever fn returns for the current call number,
// so each test scripts the exact sequence of poll outcomes it needs.
type scriptedFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, conversationID string) (*chatmodel.MessagePage, error)
}

func (f *scriptedFetcher) Recent(_ context.Context, conversationID string, _ int) (*chatmodel.MessagePage, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()
	return f.fn(call, conversationID)
}

func page(msgs ...*chatmodel.Message) *chatmodel.MessagePage {
	return &chatmodel.MessagePage{Messages: msgs}
}

// longInterval keeps the background ticker from ever firing so tests drive
// poll cycles by hand through syncOnce.
const longInterval = time.Hour

func (c *SyncClient) testEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func TestSelectLoadsInitialState(t *testing.T) {
	f := &scriptedFetcher{fn: func(int, string) (*chatmodel.MessagePage, error) {
		// the read path serves newest first
		return page(msg("m2", 2, "bob", "there"), msg("m1", 1, "bob", "hi")), nil
	}}
	var updates [][]*chatmodel.Message
	var notifs []Notification
	c := NewSyncClient(f, "alice",
		WithInterval(longInterval),
		WithOnUpdate(func(m []*chatmodel.Message) { updates = append(updates, m) }),
		WithOnNotify(func(n Notification) { notifs = append(notifs, n) }))
	defer c.Close()

	if err := c.Select(context.Background(), "c1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if c.State() != StateSynced {
		t.Errorf("state = %v, want synced", c.State())
	}
	snap := c.Snapshot()
	if len(snap) != 2 || snap[0].ID != "m1" || snap[1].ID != "m2" {
		t.Errorf("snapshot not ascending: %v", seqsOf(snap))
	}
	if len(updates) != 1 {
		t.Errorf("render callback fired %d times, want 1", len(updates))
	}
	if len(notifs) != 0 {
		t.Errorf("initial load replayed notifications: %v", notifs)
	}
}

func TestSelectInitialFetchFailure(t *testing.T) {
	f := &scriptedFetcher{fn: func(int, string) (*chatmodel.MessagePage, error) {
		return nil, errs.ErrTransient.WithDetail("backend down")
	}}
	c := NewSyncClient(f, "alice", WithInterval(longInterval))
	defer c.Close()

	if err := c.Select(context.Background(), "c1"); err == nil {
		t.Fatal("Select should surface the initial fetch error")
	}
	if c.State() != StateError {
		t.Errorf("state = %v, want error", c.State())
	}
}

func TestPollMergesAndNotifies(t *testing.T) {
	f := &scriptedFetcher{fn: func(call int, _ string) (*chatmodel.MessagePage, error) {
		if call == 0 {
			return page(msg("m1", 1, "bob", "hi")), nil
		}
		return page(msg("m2", 2, "bob", "new"), msg("m1", 1, "bob", "hi")), nil
	}}
	var notifs []Notification
	c := NewSyncClient(f, "alice",
		WithInterval(longInterval),
		WithOnNotify(func(n Notification) { notifs = append(notifs, n) }))
	defer c.Close()

	if err := c.Select(context.Background(), "c1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	epoch := c.testEpoch()

	// two poll cycles over the same server content: one merge, one notification
	c.syncOnce(context.Background(), "c1", epoch)
	c.syncOnce(context.Background(), "c1", epoch)

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d messages, want 2", len(snap))
	}
	if len(notifs) != 1 || notifs[0].MessageID != "m2" {
		t.Errorf("notifications = %v, want exactly one for m2", notifs)
	}
	if c.State() != StateSynced {
		t.Errorf("state = %v, want synced", c.State())
	}
}

func TestDegradedAfterConsecutiveFailures(t *testing.T) {
	f := &scriptedFetcher{fn: func(call int, _ string) (*chatmodel.MessagePage, error) {
		if call == 0 {
			return page(msg("m1", 1, "bob", "hi")), nil
		}
		if call <= 3 {
			return nil, errs.ErrTransient.WithDetail("flaky network")
		}
		return page(msg("m1", 1, "bob", "hi")), nil
	}}
	c := NewSyncClient(f, "alice", WithInterval(longInterval))
	defer c.Close()

	if err := c.Select(context.Background(), "c1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	epoch := c.testEpoch()

	for i := 1; i <= 2; i++ {
		c.syncOnce(context.Background(), "c1", epoch)
		if c.Degraded() {
			t.Fatalf("degraded after only %d failures", i)
		}
		if c.State() != StateSynced {
			t.Fatalf("failure %d: state = %v, want synced", i, c.State())
		}
	}

	c.syncOnce(context.Background(), "c1", epoch)
	if !c.Degraded() {
		t.Fatal("three consecutive failures should flip the degraded flag")
	}
	if c.State() != StateError {
		t.Errorf("state = %v, want error", c.State())
	}
	if len(c.Snapshot()) != 1 {
		t.Error("degraded mode discarded the synced messages")
	}

	// next success recovers without a reselect
	c.syncOnce(context.Background(), "c1", epoch)
	if c.Degraded() {
		t.Error("success did not clear the degraded flag")
	}
	if c.State() != StateSynced {
		t.Errorf("state after recovery = %v, want synced", c.State())
	}
}

func TestStaleResponseNeverApplies(t *testing.T) {
	f := &scriptedFetcher{fn: func(_ int, conversationID string) (*chatmodel.MessagePage, error) {
		if conversationID == "c1" {
			return page(msg("old", 9, "bob", "from c1")), nil
		}
		return page(msg("new", 1, "carol", "from c2")), nil
	}}
	c := NewSyncClient(f, "alice", WithInterval(longInterval))
	defer c.Close()

	if err := c.Select(context.Background(), "c1"); err != nil {
		t.Fatalf("Select c1: %v", err)
	}
	staleEpoch := c.testEpoch()

	if err := c.Select(context.Background(), "c2"); err != nil {
		t.Fatalf("Select c2: %v", err)
	}

	// a poll cycle for c1 that was still in flight when the user switched
	c.syncOnce(context.Background(), "c1", staleEpoch)

	snap := c.Snapshot()
	if len(snap) != 1 || snap[0].ID != "new" {
		t.Fatalf("stale c1 payload leaked into c2: %v", snap)
	}
}

func TestCloseResetsAndBlocksLateCycles(t *testing.T) {
	f := &scriptedFetcher{fn: func(int, string) (*chatmodel.MessagePage, error) {
		return page(msg("m1", 1, "bob", "hi")), nil
	}}
	c := NewSyncClient(f, "alice", WithInterval(longInterval))

	if err := c.Select(context.Background(), "c1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	epoch := c.testEpoch()

	c.Close()
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if len(c.Snapshot()) != 0 {
		t.Error("Close left messages behind")
	}

	c.syncOnce(context.Background(), "c1", epoch)
	if len(c.Snapshot()) != 0 {
		t.Error("cycle with a pre-Close epoch applied after Close")
	}
}

func TestWakeTriggersImmediatePoll(t *testing.T) {
	updated := make(chan struct{}, 8)
	f := &scriptedFetcher{fn: func(int, string) (*chatmodel.MessagePage, error) {
		return page(msg("m1", 1, "bob", "hi")), nil
	}}
	c := NewSyncClient(f, "alice",
		WithInterval(longInterval),
		WithOnUpdate(func([]*chatmodel.Message) { updated <- struct{}{} }))
	defer c.Close()

	if err := c.Select(context.Background(), "c1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	<-updated // initial load

	c.Wake()
	select {
	case <-updated:
	case <-time.After(2 * time.Second):
		t.Fatal("wake did not trigger a poll ahead of the interval")
	}
}
