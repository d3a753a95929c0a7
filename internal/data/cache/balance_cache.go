// Package cache holds the advisory balance cache. Cached values may lag the
// authoritative balance and must never be used to decide a mutation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/coin-ledger/internal/domain/ledger"
)

const balanceKeyPrefix = "coin:balance:"

// BalanceCache stores the last committed balance per account
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewBalanceCache instantiates the cache helper
func NewBalanceCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl, logger: logger}
}

func balanceKey(accountID uuid.UUID) string {
	return balanceKeyPrefix + accountID.String()
}

// Get returns the cached balance. ok is false on a miss.
func (c *BalanceCache) Get(ctx context.Context, accountID uuid.UUID) (balance int64, ok bool, err error) {
	if c == nil || c.client == nil {
		return 0, false, nil
	}
	balance, err = c.client.Get(ctx, balanceKey(accountID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache: get balance: %w", err)
	}
	return balance, true, nil
}

// Set stores a balance with the configured TTL
func (c *BalanceCache) Set(ctx context.Context, accountID uuid.UUID, balance int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, balanceKey(accountID), balance, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set balance: %w", err)
	}
	return nil
}

// Invalidate drops the cached balance of an account
func (c *BalanceCache) Invalidate(ctx context.Context, accountID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, balanceKey(accountID)).Err(); err != nil {
		return fmt.Errorf("cache: invalidate balance: %w", err)
	}
	return nil
}

// EntryCommitted refreshes the cached balance after a commit. A failed write
// drops the key so a stale value cannot outlive the TTL.
func (c *BalanceCache) EntryCommitted(ctx context.Context, entry *ledger.Entry) {
	if err := c.Set(ctx, entry.AccountID, entry.BalanceAfter); err != nil {
		c.logger.Warn("Failed to refresh cached balance",
			"account_id", entry.AccountID.String(),
			"error", err)
		if invErr := c.Invalidate(ctx, entry.AccountID); invErr != nil {
			c.logger.Warn("Failed to invalidate cached balance",
				"account_id", entry.AccountID.String(),
				"error", invErr)
		}
	}
}
