package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// QuotaStore reads quota policies and the per-day send count.
type QuotaStore interface {
	// GetQuotaPolicy returns ErrPolicyNotFound when the owner has no policy.
	GetQuotaPolicy(ctx context.Context, ownerID int64) (QuotaPolicy, error)
	CountSentOn(ctx context.Context, ownerID int64, day Date) (int, error)
}

// QuotaTracker computes how many sends an owner has left for a day.
// Nothing is cached: every call reads the store.
type QuotaTracker struct {
	store        QuotaStore
	defaultLimit int
}

// NewQuotaTracker creates a tracker. defaultLimit applies to owners without a policy.
func NewQuotaTracker(store QuotaStore, defaultLimit int) (*QuotaTracker, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if defaultLimit < 0 {
		defaultLimit = 0
	}
	return &QuotaTracker{store: store, defaultLimit: defaultLimit}, nil
}

// Limit returns the owner's daily ceiling.
func (q *QuotaTracker) Limit(ctx context.Context, ownerID int64) (int, error) {
	policy, err := q.store.GetQuotaPolicy(ctx, ownerID)
	if errors.Is(err, ErrPolicyNotFound) {
		return q.defaultLimit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get quota policy for owner %d: %w", ownerID, err)
	}
	return policy.DailyLimit, nil
}

// Remaining returns limit minus the sends already recorded on asOf's date.
// The result may be negative when the limit was lowered during the day.
func (q *QuotaTracker) Remaining(ctx context.Context, ownerID int64, asOf time.Time) (int, error) {
	limit, err := q.Limit(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	sent, err := q.store.CountSentOn(ctx, ownerID, DateOf(asOf))
	if err != nil {
		return 0, fmt.Errorf("count sends for owner %d: %w", ownerID, err)
	}
	return limit - sent, nil
}
