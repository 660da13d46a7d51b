package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"github.com/ashureev/causal-labs/internal/identity"
)

// ipCeilingFactor scales the per-owner limit into the per-address ceiling.
// The ceiling catches clients that rotate forged owner cookies.
const ipCeilingFactor = 5

// RateLimiter is a per-key token bucket.
type RateLimiter struct {
	bucket *limiter.TokenBucket
}

// NewRateLimiter allows limit requests per window for each key, with bursts
// of up to limit.
func NewRateLimiter(limit int, window time.Duration) (*RateLimiter, error) {
	bucket, err := limiter.NewTokenBucket(
		limiter.Config{
			Rate:     int64(limit),
			Duration: window,
			Burst:    int64(limit),
		},
		store.NewMemoryStore(window),
	)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}
	return &RateLimiter{bucket: bucket}, nil
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	return r.bucket.Allow(key)
}

// approvalLimits throttles run approvals. Owners that presented their
// cookie are limited per owner and share a looser per-address ceiling.
// Requests without a cookie get a fresh owner id each time, so they are
// limited per address at the owner rate.
type approvalLimits struct {
	owner *RateLimiter
	addr  *RateLimiter
}

func newApprovalLimits(limit int, window time.Duration) (*approvalLimits, error) {
	owner, err := NewRateLimiter(limit, window)
	if err != nil {
		return nil, err
	}
	addr, err := NewRateLimiter(limit*ipCeilingFactor, window)
	if err != nil {
		return nil, err
	}
	return &approvalLimits{owner: owner, addr: addr}, nil
}

// allow reports whether r may start a run, and the key it was charged to.
func (l *approvalLimits) allow(r *http.Request) (string, bool) {
	ip := identity.IPFromRequest(r)
	userID := identity.UserIDFromContext(r.Context())

	if userID == "" || !identity.FromCookie(r.Context()) {
		key := "ip:" + ip
		return key, l.owner.Allow(key)
	}

	key := "owner:" + userID
	if !l.addr.Allow("ip:" + ip) {
		return key, false
	}
	return key, l.owner.Allow(key)
}
