package client

import (
	"context"
	"sync"
	"time"

	"github.com/threadswap/chat-service/logger"
	chatmodel "github.com/threadswap/chat-service/module/chat/model"
	"github.com/threadswap/chat-service/tools/safe"

	"go.uber.org/zap"
)

// State of the sync client. Error is reachable from any state and is
// non-terminal: polling continues and a later success returns to Synced.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateSynced
	StatePolling
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSynced:
		return "synced"
	case StatePolling:
		return "polling"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Fetcher is the read path the sync client polls. Polling the newest page is
// the default strategy; anything that can answer "the recent messages of this
// conversation" (HTTP client, in-process service, test fake) satisfies it.
type Fetcher interface {
	Recent(ctx context.Context, conversationID string, pageSize int) (*chatmodel.MessagePage, error)
}

const (
	DefaultPollInterval = 3 * time.Second
	DefaultPageSize     = 50

	// consecutive failed polls before the degraded flag goes visible
	maxPollFailures = 3
)

// SyncClient keeps a local mirror of one selected conversation by polling
// the Fetcher and merging pages by message id. All local state is a
// read-through snapshot at most one poll interval stale; the server stays
// authoritative.
type SyncClient struct {
	fetcher  Fetcher
	viewerID string
	interval time.Duration
	pageSize int
	cache    *ProfileCache
	deduper  *NotificationDeduper

	onUpdate func([]*chatmodel.Message)
	onNotify func(Notification)

	mu       sync.Mutex
	state    State
	convID   string
	epoch    uint64 // bumped by Select/Close; stale responses check it before applying
	messages []*chatmodel.Message
	failures int
	degraded bool
	cancel   context.CancelFunc

	wakeCh chan struct{}
}

type Option func(*SyncClient)

// WithInterval overrides the poll interval (tests use a short one; the
// product default is fixed at 3s).
func WithInterval(d time.Duration) Option {
	return func(c *SyncClient) { c.interval = d }
}

func WithPageSize(n int) Option {
	return func(c *SyncClient) { c.pageSize = n }
}

// WithProfileCache injects the shared peer-profile cache.
func WithProfileCache(pc *ProfileCache) Option {
	return func(c *SyncClient) { c.cache = pc }
}

// WithOnUpdate registers the render callback; it receives an ascending
// (seq-ordered) snapshot after every applied merge.
func WithOnUpdate(fn func([]*chatmodel.Message)) Option {
	return func(c *SyncClient) { c.onUpdate = fn }
}

// WithOnNotify registers the notification sink.
func WithOnNotify(fn func(Notification)) Option {
	return func(c *SyncClient) { c.onNotify = fn }
}

func NewSyncClient(fetcher Fetcher, viewerID string, opts ...Option) *SyncClient {
	c := &SyncClient{
		fetcher:  fetcher,
		viewerID: viewerID,
		interval: DefaultPollInterval,
		pageSize: DefaultPageSize,
		deduper:  NewNotificationDeduper(viewerID),
		state:    StateIdle,
		wakeCh:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Select switches to a conversation: cancels any in-flight poll for the
// previous one, performs the initial full fetch, replaces local state, and
// starts the poll loop. The epoch bump makes any response still in flight
// for the old conversation unappliable, regardless of when it lands.
func (c *SyncClient) Select(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.epoch++
	epoch := c.epoch
	c.convID = conversationID
	c.messages = nil
	c.failures = 0
	c.degraded = false
	c.state = StateLoading
	c.mu.Unlock()

	page, err := c.fetcher.Recent(ctx, conversationID, c.pageSize)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil // superseded by a newer Select/Close while loading
	}
	if err != nil {
		c.state = StateError
		c.mu.Unlock()
		return err
	}
	c.messages = mergeMessages(nil, page.Messages)
	c.deduper.Prime(conversationID, c.messages)
	c.state = StateSynced
	snapshot := c.snapshotLocked()

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	if c.onUpdate != nil {
		c.onUpdate(snapshot)
	}
	safe.Go("sync-loop", func() { c.loop(loopCtx, conversationID, epoch) })
	return nil
}

// Wake requests an immediate poll (e.g. from a NATS wake event). Non-blocking;
// coalesces with any pending request.
func (c *SyncClient) Wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// Close deselects and stops the poll loop; no timers survive it.
func (c *SyncClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.epoch++
	c.convID = ""
	c.messages = nil
	c.state = StateIdle
}

// Snapshot returns a copy of the local messages, ascending by seq.
func (c *SyncClient) Snapshot() []*chatmodel.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *SyncClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Degraded reports the visible-but-non-blocking error indicator: three
// consecutive poll failures set it, any success clears it. Synced messages
// stay rendered either way.
func (c *SyncClient) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Cache exposes the injected profile cache (nil when not configured).
func (c *SyncClient) Cache() *ProfileCache { return c.cache }

func (c *SyncClient) loop(ctx context.Context, conversationID string, epoch uint64) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.wakeCh:
		}
		c.syncOnce(ctx, conversationID, epoch)
	}
}

// syncOnce runs one poll cycle: fetch, then merge under the lock. The fetch
// is the only suspension point; everything after it is synchronous.
func (c *SyncClient) syncOnce(ctx context.Context, conversationID string, epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	if c.state == StateSynced {
		c.state = StatePolling
	}
	c.mu.Unlock()

	page, err := c.fetcher.Recent(ctx, conversationID, c.pageSize)

	c.mu.Lock()
	if c.epoch != epoch {
		// conversation switched while this response was in flight; its
		// payload must not leak into the new selection
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.failures++
		consecutive := c.failures
		if c.failures >= maxPollFailures {
			c.degraded = true
			c.state = StateError
		} else if c.state == StatePolling {
			c.state = StateSynced
		}
		c.mu.Unlock()
		if ctx.Err() == nil {
			logger.Warn("poll failed",
				zap.String("conversation", conversationID),
				zap.Int("consecutive", consecutive),
				zap.Error(err))
		}
		return
	}

	c.failures = 0
	c.degraded = false
	c.messages = mergeMessages(c.messages, page.Messages)
	c.state = StateSynced
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	notif := c.deduper.Observe(conversationID, snapshot)

	if c.onUpdate != nil {
		c.onUpdate(snapshot)
	}
	if notif != nil && c.onNotify != nil {
		c.onNotify(*notif)
	}
}

func (c *SyncClient) snapshotLocked() []*chatmodel.Message {
	return append([]*chatmodel.Message(nil), c.messages...)
}
