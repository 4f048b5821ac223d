package storage

import (
	"context"
	"sync"
	"time"

	"PPRelay/logger"
	"PPRelay/service/chat"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// presence key: im:presence:<user>
// Value: node id, TTL controls the online validity period
func presenceKey(user string) string { return "im:presence:" + user }

// 仅当 value 仍是本节点时删除，避免误删其它节点刚写入的在线状态
// KEYS[1] = presence key
// ARGV[1] = node id
// 返回：1 已删除；0 未删除
const luaCompareDel = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type presenceStore interface {
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	CompareDel(ctx context.Context, key, val string) (bool, error)
}

type redisStore struct {
	rdb        redis.Cmdable
	compareDel *redis.Script
}

func (s *redisStore) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, val, ttl).Err()
}

func (s *redisStore) CompareDel(ctx context.Context, key, val string) (bool, error) {
	n, err := s.compareDel.Run(ctx, s.rdb, []string{key}, val).Int()
	return n == 1, err
}

// Presence mirrors this node's registry bindings into Redis so other
// services can see who is online and where. It is best effort: failures are
// logged and never reach the router.
type Presence struct {
	store  presenceStore
	nodeID string
	ttl    time.Duration
	log    *zap.Logger

	mu    sync.Mutex
	users map[string]struct{} // users bound on this node
}

var _ chat.Observer = (*Presence)(nil)

func NewPresence(rdb redis.Cmdable, nodeID string, ttl time.Duration, log *zap.Logger) *Presence {
	return newPresence(&redisStore{rdb: rdb, compareDel: redis.NewScript(luaCompareDel)}, nodeID, ttl, log)
}

func newPresence(store presenceStore, nodeID string, ttl time.Duration, log *zap.Logger) *Presence {
	return &Presence{
		store:  store,
		nodeID: nodeID,
		ttl:    ttl,
		log:    logger.Or(log),
		users:  make(map[string]struct{}),
	}
}

// PresenceOnline sets the user as online on this node and renews the TTL
func (p *Presence) PresenceOnline(ctx context.Context, user string) error {
	return errors.Wrapf(p.store.Set(ctx, presenceKey(user), p.nodeID, p.ttl), "presence online %s", user)
}

// PresenceOffline deletes the key if this node still owns it
func (p *Presence) PresenceOffline(ctx context.Context, user string) (bool, error) {
	ok, err := p.store.CompareDel(ctx, presenceKey(user), p.nodeID)
	return ok, errors.Wrapf(err, "presence offline %s", user)
}

func (p *Presence) OnRegister(ctx context.Context, ev chat.SessionEvent) {
	p.mu.Lock()
	p.users[ev.UserId] = struct{}{}
	p.mu.Unlock()

	if err := p.PresenceOnline(ctx, ev.UserId); err != nil {
		p.log.Warn("[Presence] online failed", zap.String("user", ev.UserId), zap.Error(err))
	}
}

func (p *Presence) OnRemove(ctx context.Context, ev chat.SessionEvent) {
	p.mu.Lock()
	delete(p.users, ev.UserId)
	p.mu.Unlock()

	if _, err := p.PresenceOffline(ctx, ev.UserId); err != nil {
		p.log.Warn("[Presence] offline failed", zap.String("user", ev.UserId), zap.Error(err))
	}
}

// tracked returns the users this node currently reports as online.
func (p *Presence) tracked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.users))
	for u := range p.users {
		out = append(out, u)
	}
	return out
}

// Refresh rewrites every tracked user with a fresh TTL, so keys lost while
// Redis was unreachable come back on the next tick.
func (p *Presence) Refresh(ctx context.Context) {
	for _, u := range p.tracked() {
		if err := p.PresenceOnline(ctx, u); err != nil {
			p.log.Warn("[Presence] refresh failed", zap.String("user", u), zap.Error(err))
		}
	}
}

// Run refreshes at half the TTL until ctx ends.
func (p *Presence) Run(ctx context.Context) {
	if p.ttl <= 0 {
		return
	}
	t := time.NewTicker(p.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Refresh(ctx)
		}
	}
}
