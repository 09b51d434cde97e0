package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"booking-payment-service/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockHeld is returned by AcquireLock when another holder owns the lock.
var ErrLockHeld = errors.New("lock already held by another process")

// CacheService caches balances and bills and provides a distributed lock.
type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

func NewCacheService(addr, password string, db int, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		PoolSize:        50,
		MinIdleConns:    5,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", addr))
	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{client: client, logger: logger}
}

func (c *CacheService) Close() error {
	return c.client.Close()
}

func BalanceKey(userID int64) string {
	return fmt.Sprintf("balance:v1:%d", userID)
}

// BalanceVersionKey holds the per-user invalidation counter. It has no TTL.
func BalanceVersionKey(userID int64) string {
	return fmt.Sprintf("balance:v1:%d:version", userID)
}

func BillKey(transactionID int64) string {
	return fmt.Sprintf("bill:v1:%d", transactionID)
}

// GetBalance returns nil, nil on a cache miss.
func (c *CacheService) GetBalance(ctx context.Context, userID int64) (*domain.Balance, error) {
	var b domain.Balance
	ok, err := c.getJSON(ctx, BalanceKey(userID), &b)
	if err != nil || !ok {
		return nil, err
	}
	return &b, nil
}

// BalanceVersion returns the invalidation counter for userID. A read-through
// write must carry the version seen before the balance was read.
func (c *CacheService) BalanceVersion(ctx context.Context, userID int64) (int64, error) {
	v, err := c.client.Get(ctx, BalanceVersionKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache get %s: %w", BalanceVersionKey(userID), err)
	}
	return v, nil
}

var setIfVersionScript = redis.NewScript(`
local current = redis.call("get", KEYS[2])
if current == false then
	current = "0"
end
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("set", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("set", KEYS[1], ARGV[2])
end
return 1
`)

// SetBalanceIfVersion caches b only while the balance version still equals
// version. It reports false when an invalidation happened in between.
func (c *CacheService) SetBalanceIfVersion(ctx context.Context, b *domain.Balance, version int64, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("cache marshal balance: %w", err)
	}
	keys := []string{BalanceKey(b.UserID), BalanceVersionKey(b.UserID)}
	n, err := setIfVersionScript.Run(ctx, c.client, keys,
		strconv.FormatInt(version, 10), data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("cache set %s: %w", BalanceKey(b.UserID), err)
	}
	return n == 1, nil
}

// InvalidateBalance bumps the balance version and drops the cached entry in
// one MULTI, so a read that started earlier cannot write its value back.
func (c *CacheService) InvalidateBalance(ctx context.Context, userID int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, BalanceVersionKey(userID))
		pipe.Del(ctx, BalanceKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate balance %d: %w", userID, err)
	}
	return nil
}

// GetBill returns nil, nil on a cache miss.
func (c *CacheService) GetBill(ctx context.Context, transactionID int64) (*domain.Bill, error) {
	var b domain.Bill
	ok, err := c.getJSON(ctx, BillKey(transactionID), &b)
	if err != nil || !ok {
		return nil, err
	}
	return &b, nil
}

func (c *CacheService) SetBill(ctx context.Context, b *domain.Bill, ttl time.Duration) error {
	return c.setJSON(ctx, BillKey(b.Transaction.ID), b, ttl)
}

func (c *CacheService) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *CacheService) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Lock is a redis lock owned by the token that acquired it.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// AcquireLock takes lock:<resource> for ttl. It fails with ErrLockHeld when the
// lock is taken.
func (c *CacheService) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	key := "lock:" + resource
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	c.logger.Debug("lock acquired", zap.String("resource", resource), zap.Duration("ttl", ttl))
	return &Lock{client: c.client, key: key, token: token}, nil
}

// Release deletes the lock only if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s expired before release", l.key)
	}
	return nil
}

// TryLock acquires resource and hands back its release func.
func (c *CacheService) TryLock(ctx context.Context, resource string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := c.AcquireLock(ctx, resource, ttl)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
