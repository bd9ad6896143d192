package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"order-service/internal/client"
	"order-service/internal/models"
	"order-service/internal/util"
)

const sessionPrefix = "signup_session:"

const (
	fieldPayload   = "payload"
	fieldOTPDigest = "otp_digest"
	fieldAttempts  = "attempts"
)

// SignupSessionCache stores signup verification sessions as expiring Redis
// hashes. One session occupies exactly one key; the TTL set at creation is
// the only expiry mechanism. All operations are bounded by the configured
// per-call timeout.
type SignupSessionCache struct {
	client    *client.RedisClient
	opTimeout time.Duration
}

func NewSignupSessionCache(c *client.RedisClient, opTimeout time.Duration) *SignupSessionCache {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &SignupSessionCache{client: c, opTimeout: opTimeout}
}

func (c *SignupSessionCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// SetSession writes the session hash and its TTL in one transactional
// pipeline, so the record can never exist without an expiry.
func (c *SignupSessionCache) SetSession(ctx context.Context, sessionID, payload, otpDigest string, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	key := sessionPrefix + sessionID
	fields := map[string]interface{}{
		fieldPayload:   payload,
		fieldOTPDigest: otpDigest,
		fieldAttempts:  0,
	}
	if err := c.client.HSetWithExpire(ctx, key, fields, ttl); err != nil {
		util.Error("Failed to store signup session", zap.Duration("ttl", ttl), zap.Error(err))
		return fmt.Errorf("failed to store signup session: %w", err)
	}
	util.Debug("Signup session stored", zap.Duration("ttl", ttl))
	return nil
}

// GetSession returns the stored session, or (nil, nil) when the key is
// absent. An expired session and one that never existed look identical
// here: an empty hash.
func (c *SignupSessionCache) GetSession(ctx context.Context, sessionID string) (*models.SignupSession, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	fields, err := c.client.HGetAll(ctx, sessionPrefix+sessionID)
	if err != nil {
		util.Error("Failed to read signup session", zap.Error(err))
		return nil, fmt.Errorf("failed to read signup session: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	attempts, err := strconv.ParseInt(fields[fieldAttempts], 10, 64)
	if err != nil {
		util.Error("Invalid attempt counter in session hash",
			zap.String("raw", fields[fieldAttempts]), zap.Error(err))
		return nil, fmt.Errorf("invalid attempt counter: %w", err)
	}

	return &models.SignupSession{
		Payload:   fields[fieldPayload],
		OTPDigest: fields[fieldOTPDigest],
		Attempts:  attempts,
	}, nil
}

// IncrementAttempts bumps the attempt counter with a single HINCRBY and
// returns the post-increment value. The increment happens server-side so
// concurrent failed verifications can never under-count.
//
// HINCRBY recreates an expired key, which would leave an orphan hash with
// no TTL. The TTL is checked after the increment; a key without one means
// the session expired mid-verify, so the orphan is removed and found=false
// is reported.
func (c *SignupSessionCache) IncrementAttempts(ctx context.Context, sessionID string) (count int64, found bool, err error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	key := sessionPrefix + sessionID
	count, err = c.client.HIncrBy(ctx, key, fieldAttempts, 1)
	if err != nil {
		util.Error("Failed to increment verification attempts", zap.Error(err))
		return 0, false, fmt.Errorf("failed to increment verification attempts: %w", err)
	}

	ttl, err := c.client.TTL(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("failed to check session ttl: %w", err)
	}
	if ttl < 0 {
		_ = c.client.Del(ctx, key)
		return 0, false, nil
	}

	util.Debug("Verification attempts incremented", zap.Int64("count", count))
	return count, true, nil
}

// DeleteSession removes the session key. Deleting an absent key is not an
// error; terminal transitions race against TTL expiry and both must win.
func (c *SignupSessionCache) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Del(ctx, sessionPrefix+sessionID); err != nil {
		util.Error("Failed to delete signup session", zap.Error(err))
		return fmt.Errorf("failed to delete signup session: %w", err)
	}
	return nil
}

// SessionTTL reports the remaining TTL, used to size the transport cookie.
func (c *SignupSessionCache) SessionTTL(ctx context.Context, sessionID string) (time.Duration, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ttl, err := c.client.TTL(ctx, sessionPrefix+sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to read session ttl: %w", err)
	}
	return ttl, nil
}
