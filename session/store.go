package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport error.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSnapshotNotFound is returned when the tenant has no stored session.
var ErrSnapshotNotFound = errors.New("session snapshot not found")

// ErrSnapshotCorrupt is returned when the stored blob cannot be decoded.
var ErrSnapshotCorrupt = errors.New("session snapshot corrupt")

// ErrSnapshotStale is returned by Save when a newer snapshot is already stored.
var ErrSnapshotStale = errors.New("session snapshot older than stored one")

const (
	saveStatusStored int64 = 1
	saveStatusStale  int64 = 2
)

// Writes are ordered by SavedAt (unix millis in ARGV[2]) so a slow writer never
// replaces the session a later renewal stored.
const saveSnapshotScript = `
local current = redis.call("HGET", KEYS[1], "saved_at")
if current and tonumber(current) > tonumber(ARGV[2]) then
  return 2
end
redis.call("HSET", KEYS[1], "blob", ARGV[1], "saved_at", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`

var saveSnapshotLua = redis.NewScript(saveSnapshotScript)

// Store persists session snapshots in Redis, one hash per tenant.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a Store. prefix namespaces every key.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  rdb,
		prefix: prefix,
	}
}

func (s *Store) key(tenantID string) string {
	return s.prefix + ":sess:" + normalizeTenantID(tenantID)
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

// Save stores snap under its tenant for ttl.
//
//	Performance: 1 EVALSHA.
func (s *Store) Save(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	if ttl <= 0 {
		return errors.New("snapshot ttl must be > 0")
	}
	if snap.Version == 0 {
		snap.Version = SnapshotVersion
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	status, err := saveSnapshotLua.Run(ctx, s.redis,
		[]string{s.key(snap.TenantID)},
		data, snap.SavedAt.UnixMilli(), ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if status == saveStatusStale {
		return ErrSnapshotStale
	}
	return nil
}

// Load returns the stored snapshot of tenantID.
//
//	Performance: 1 Redis HGET.
func (s *Store) Load(ctx context.Context, tenantID string) (*Snapshot, error) {
	data, err := s.redis.HGet(ctx, s.key(tenantID), "blob").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if snap.Version < 1 || snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, snap.Version)
	}
	return &snap, nil
}

// Delete removes the snapshot of tenantID. Deleting a missing snapshot is not an error.
//
//	Performance: 1 Redis DEL.
func (s *Store) Delete(ctx context.Context, tenantID string) error {
	if err := s.redis.Del(ctx, s.key(tenantID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// TTL reports the remaining lifetime of tenantID's snapshot, or 0 when none exists.
func (s *Store) TTL(ctx context.Context, tenantID string) (time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, s.key(tenantID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LogoutHook returns a hook that drops tenantID's snapshot when a session is
// forcibly ended. Errors are ignored; the snapshot also expires on its own.
func (s *Store) LogoutHook(tenantID string) *StoreLogout {
	return &StoreLogout{store: s, tenantID: tenantID}
}

// StoreLogout deletes one tenant's snapshot on forced logout.
type StoreLogout struct {
	store    *Store
	tenantID string
}

func (h *StoreLogout) ForceLogout(ctx context.Context, _ error) {
	_ = h.store.Delete(ctx, h.tenantID)
}
