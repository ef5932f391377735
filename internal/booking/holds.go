package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"impfportal/pkg/domain"
)

// HoldStore implements short-lived soft reservations: while a citizen is
// reviewing a slot, other sessions see it as held. A hold never counts
// against hard capacity; it only suppresses the slot from search results
// until it expires.
type HoldStore interface {
	// Acquire takes a hold on the slot for the dossier. Returns false when
	// another dossier already holds it.
	Acquire(ctx context.Context, slotID domain.SlotID, dossierID domain.DossierID, ttl time.Duration) (bool, error)
	// Release drops the hold if this dossier owns it.
	Release(ctx context.Context, slotID domain.SlotID, dossierID domain.DossierID) error
	// HeldBy returns the holding dossier, or false when no live hold exists.
	HeldBy(ctx context.Context, slotID domain.SlotID) (domain.DossierID, bool, error)
}

func holdKey(slotID domain.SlotID) string {
	return "slothold:" + slotID.String()
}

// RedisHoldStore implements holds with SET NX PX, so acquisition and expiry
// are both decided by Redis.
type RedisHoldStore struct {
	client *goredis.Client
}

func NewRedisHoldStore(client *goredis.Client) *RedisHoldStore {
	return &RedisHoldStore{client: client}
}

func (s *RedisHoldStore) Acquire(ctx context.Context, slotID domain.SlotID, dossierID domain.DossierID, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, holdKey(slotID), dossierID.String(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire slot hold: %w", err)
	}
	if ok {
		return true, nil
	}
	// Re-acquiring one's own hold refreshes it.
	current, err := s.client.Get(ctx, holdKey(slotID)).Result()
	if err != nil {
		return false, nil
	}
	if current == dossierID.String() {
		if err := s.client.Expire(ctx, holdKey(slotID), ttl).Err(); err != nil {
			return false, fmt.Errorf("refresh slot hold: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func (s *RedisHoldStore) Release(ctx context.Context, slotID domain.SlotID, dossierID domain.DossierID) error {
	// Delete only if owned; losing the race to expiry is fine.
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`
	if err := s.client.Eval(ctx, script, []string{holdKey(slotID)}, dossierID.String()).Err(); err != nil {
		return fmt.Errorf("release slot hold: %w", err)
	}
	return nil
}

func (s *RedisHoldStore) HeldBy(ctx context.Context, slotID domain.SlotID) (domain.DossierID, bool, error) {
	raw, err := s.client.Get(ctx, holdKey(slotID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return domain.DossierID{}, false, nil
		}
		return domain.DossierID{}, false, fmt.Errorf("read slot hold: %w", err)
	}
	dossierID, err := domain.ParseDossierID(raw)
	if err != nil {
		return domain.DossierID{}, false, fmt.Errorf("read slot hold: %w", err)
	}
	return dossierID, true, nil
}

// MemoryHoldStore is the in-process fallback when Redis is not configured.
type MemoryHoldStore struct {
	mu    sync.Mutex
	holds map[domain.SlotID]memoryHold
	now   func() time.Time
}

type memoryHold struct {
	dossierID domain.DossierID
	expiresAt time.Time
}

func NewMemoryHoldStore() *MemoryHoldStore {
	return &MemoryHoldStore{
		holds: make(map[domain.SlotID]memoryHold),
		now:   time.Now,
	}
}

func (s *MemoryHoldStore) Acquire(ctx context.Context, slotID domain.SlotID, dossierID domain.DossierID, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[slotID]
	if ok && s.now().Before(hold.expiresAt) && hold.dossierID != dossierID {
		return false, nil
	}
	s.holds[slotID] = memoryHold{dossierID: dossierID, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryHoldStore) Release(ctx context.Context, slotID domain.SlotID, dossierID domain.DossierID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hold, ok := s.holds[slotID]; ok && hold.dossierID == dossierID {
		delete(s.holds, slotID)
	}
	return nil
}

func (s *MemoryHoldStore) HeldBy(ctx context.Context, slotID domain.SlotID) (domain.DossierID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[slotID]
	if !ok || s.now().After(hold.expiresAt) {
		return domain.DossierID{}, false, nil
	}
	return hold.dossierID, true, nil
}
