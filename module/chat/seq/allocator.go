package seq

import (
	"context"
	"time"

	"github.com/threadswap/chat-service/tools/errs"

	"github.com/redis/go-redis/v9"
)

const (
	defaultBlock    = 256
	defaultMaxRetry = 10
	segmentTTL      = 3600000 // ms
)

// In-segment issue. KEYS[1] = segment hash; ARGV[1] = count needed.
// Returns {0, start} on success, {1} when no segment is loaded, {2} when the
// current segment is exhausted.
var luaIssue = redis.NewScript(`
  local k = KEYS[1]
  local need = tonumber(ARGV[1])

  local curr = redis.call('HGET', k, 'curr')
  local endv = redis.call('HGET', k, 'end')
  if not curr or not endv then
    return {1, 0}
  end
  curr = tonumber(curr); endv = tonumber(endv)

  local newv = curr + need
  if newv > endv then
    return {2, 0}
  end
  redis.call('HSET', k, 'curr', newv)
  return {0, curr + 1}
`)

// Install a freshly leased segment and issue its first number in one step.
// KEYS[1] = segment hash; ARGV[1] = lease start; ARGV[2] = lease end;
// ARGV[3] = TTL ms. The install is rejected when the cached segment's end is
// already at or past the incoming one: a node whose older lease lands late
// must never roll curr/end backwards under numbers another node has issued.
// Returns {0, start} on install, {1, 0} on reject.
var luaLoad = redis.NewScript(`
  local k = KEYS[1]
  local startv = tonumber(ARGV[1])
  local endv = tonumber(ARGV[2])

  local stored = redis.call('HGET', k, 'end')
  if stored and tonumber(stored) >= endv then
    return {1, 0}
  end
  redis.call('HSET', k, 'curr', startv, 'end', endv)
  redis.call('PEXPIRE', k, tonumber(ARGV[3]))
  return {0, startv}
`)

// SegmentDAO is the lease authority behind the redis cache.
type SegmentDAO interface {
	AllocSegment(ctx context.Context, conversationID string, block int64) (start, end int64, err error)
	AdvanceCommit(ctx context.Context, conversationID string, toSeq int64) error
}

// Allocator issues strictly increasing per-conversation sequence numbers:
// redis hands out numbers inside a leased segment, mongo leases segments.
// A crashed node abandons the remainder of its segment, leaving a gap in
// issued numbers; gaps are harmless because ordering and pagination key on
// seq value, never on density.
type Allocator struct {
	Rdb      redis.Scripter
	DAO      SegmentDAO
	Block    int64
	MaxRetry int
}

func NewAllocator(rdb redis.Scripter, dao SegmentDAO) *Allocator {
	return &Allocator{Rdb: rdb, DAO: dao, Block: defaultBlock, MaxRetry: defaultMaxRetry}
}

func segmentKey(conversationID string) string { return "seq:blk:" + conversationID }

// Next returns the next seq for the conversation.
func (a *Allocator) Next(ctx context.Context, conversationID string) (int64, error) {
	block := a.Block
	if block <= 0 {
		block = defaultBlock
	}
	retries := a.MaxRetry
	if retries <= 0 {
		retries = defaultMaxRetry
	}
	key := segmentKey(conversationID)

	// fast path: issue inside the cached segment
	if seq, ok, err := a.issue(ctx, key); err == nil && ok {
		return seq, nil
	}

	// slow path: lease a segment from mongo and install it. The install
	// issues the lease's first number atomically, so this node never hands
	// out a seq from a segment it did not just install. A rejected install
	// means a newer segment is already cached; issue from that one and
	// abandon the lease (the gap is harmless).
	var lastErr error
	for i := 0; i < retries; i++ {
		start, end, err := a.DAO.AllocSegment(ctx, conversationID, block)
		if err != nil {
			return 0, err
		}
		seq, installed, err := a.load(ctx, key, start, end)
		if err != nil {
			lastErr = err
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if installed {
			return seq, nil
		}
		if seq, ok, err := a.issue(ctx, key); err != nil {
			lastErr = err
		} else if ok {
			return seq, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errs.New("seq segment retries exhausted", "conversation", conversationID)
	}
	return 0, errs.ErrTransient.WrapMsg("seq allocation failed", "cause", lastErr)
}

// Commit raises the durable committed waterline after a message lands. The
// waterline is advisory (ordering keys on seq value, and it is recoverable
// from the messages collection), so callers treat failures as non-fatal.
func (a *Allocator) Commit(ctx context.Context, conversationID string, toSeq int64) error {
	return a.DAO.AdvanceCommit(ctx, conversationID, toSeq)
}

func (a *Allocator) load(ctx context.Context, key string, start, end int64) (int64, bool, error) {
	res, err := luaLoad.Run(ctx, a.Rdb, []string{key}, start, end, segmentTTL).Result()
	if err != nil {
		return 0, false, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, false, errs.New("unexpected load script reply", "reply", res)
	}
	if arr[0].(int64) != 0 {
		return 0, false, nil // rejected, a newer segment is cached
	}
	return arr[1].(int64), true, nil
}

func (a *Allocator) issue(ctx context.Context, key string) (int64, bool, error) {
	res, err := luaIssue.Run(ctx, a.Rdb, []string{key}, 1).Result()
	if err != nil {
		return 0, false, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, false, errs.New("unexpected issue script reply", "reply", res)
	}
	if arr[0].(int64) != 0 {
		return 0, false, nil // no segment / exhausted
	}
	return arr[1].(int64), true, nil
}
