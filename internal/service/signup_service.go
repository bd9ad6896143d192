package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"order-service/internal/config"
	"order-service/internal/encryption"
	"order-service/internal/hashing"
	"order-service/internal/mailer"
	"order-service/internal/models"
	"order-service/internal/otp"
	"order-service/internal/repository/scylla"
)

var (
	// ErrSessionNotFound covers both a session that never existed and one
	// whose TTL elapsed. Callers must not be able to tell them apart.
	ErrSessionNotFound  = errors.New("verification session not found")
	ErrInvalidOTP       = errors.New("invalid otp")
	ErrAttemptsExceeded = errors.New("too many failed attempts")
	ErrStoreUnavailable = errors.New("session store unavailable")
	ErrEmailInUse       = errors.New("email already in use")
	ErrPhoneInUse       = errors.New("phone number already in use")
)

// SessionStore is the expiring key-value contract the verification state
// machine runs on: per-key TTL, atomic field increment, atomic delete.
type SessionStore interface {
	SetSession(ctx context.Context, sessionID, payload, otpDigest string, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*models.SignupSession, error)
	IncrementAttempts(ctx context.Context, sessionID string) (count int64, found bool, err error)
	DeleteSession(ctx context.Context, sessionID string) error
	SessionTTL(ctx context.Context, sessionID string) (time.Duration, error)
}

// ActivityRecorder receives best-effort analytics events.
type ActivityRecorder interface {
	Record(ctx context.Context, event models.ActivityEvent)
}

// SignupService owns the signup verification state machine and account
// provisioning. A session is Pending from creation until it is consumed by
// a correct code, destroyed by attempt exhaustion, or expired by the store;
// all three terminal transitions remove the record.
type SignupService struct {
	store      SessionStore
	users      scylla.UserRepository
	hasher     *hashing.Hasher
	encryption *encryption.Manager
	mail       mailer.Mailer
	recorder   ActivityRecorder
	generator  *otp.Generator
	policy     config.OTPConfig
	logger     *zap.Logger
}

func NewSignupService(
	store SessionStore,
	users scylla.UserRepository,
	hasher *hashing.Hasher,
	enc *encryption.Manager,
	mail mailer.Mailer,
	recorder ActivityRecorder,
	policy config.OTPConfig,
	logger *zap.Logger,
) *SignupService {
	return &SignupService{
		store:      store,
		users:      users,
		hasher:     hasher,
		encryption: enc,
		mail:       mail,
		recorder:   recorder,
		generator:  otp.NewGenerator(policy.Length),
		policy:     policy,
		logger:     logger,
	}
}

// newSessionID returns 32 bytes from the system CSPRNG as URL-safe text,
// the session's sole proof of identity.
func newSessionID() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// BeginSignup validates that the identity is unclaimed, opens a fresh
// verification session and dispatches the code by mail. Repeating a signup
// while an earlier session is still pending simply opens another session;
// the old one ages out on its own TTL.
func (s *SignupService) BeginSignup(ctx context.Context, pending models.PendingUser) (sessionID string, ttl time.Duration, err error) {
	inUse, err := s.users.EmailInUse(ctx, pending.Email)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if inUse {
		return "", 0, ErrEmailInUse
	}
	inUse, err = s.users.PhoneInUse(ctx, pending.PhoneNumber)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if inUse {
		return "", 0, ErrPhoneInUse
	}

	code, digest, err := s.generator.Generate()
	if err != nil {
		return "", 0, err
	}

	sessionID, err = s.CreateSession(ctx, pending, digest, s.policy.SessionTTL)
	if err != nil {
		return "", 0, err
	}

	// Delivery is decoupled from session creation: a failed send leaves
	// the session valid and the caller free to start over.
	go func(to, code string) {
		if err := s.mail.SendOTP(to, code); err != nil {
			s.logger.Error("Failed to deliver OTP mail", zap.Error(err))
		}
	}(pending.Email, code)

	if s.recorder != nil {
		s.recorder.Record(ctx, models.ActivityEvent{EventType: models.EventSignupStarted})
	}

	return sessionID, s.policy.SessionTTL, nil
}

// CreateSession seals the pending payload and writes the session record
// under a fresh unguessable id with the given TTL. The write either lands
// whole (payload, digest, zeroed counter, expiry) or not at all.
func (s *SignupService) CreateSession(ctx context.Context, pending models.PendingUser, otpDigest string, ttl time.Duration) (string, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(pending)
	if err != nil {
		return "", fmt.Errorf("failed to encode pending user: %w", err)
	}
	sealed, err := s.encryption.EncryptPayload(ctx, raw)
	if err != nil {
		return "", err
	}

	if err := s.store.SetSession(ctx, sessionID, sealed, otpDigest, ttl); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sessionID, nil
}

// VerifyOTP runs one verification attempt against a pending session.
//
//	correct code            -> payload returned, session deleted
//	wrong code, cap not hit -> ErrInvalidOTP, counter incremented
//	wrong code, cap hit     -> ErrAttemptsExceeded, session deleted
//	absent or expired       -> ErrSessionNotFound
//
// The counter is incremented by the store in a single indivisible
// operation; concurrent wrong-code attempts each land their increment.
func (s *SignupService) VerifyOTP(ctx context.Context, sessionID, candidate string) (*models.PendingUser, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	if otp.VerifyDigest(candidate, sess.OTPDigest) {
		// Delete before handing the payload out; a session that cannot be
		// removed must not mint an account twice.
		if err := s.store.DeleteSession(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		raw, err := s.encryption.DecryptPayload(ctx, sess.Payload)
		if err != nil {
			return nil, err
		}
		var pending models.PendingUser
		if err := json.Unmarshal(raw, &pending); err != nil {
			return nil, fmt.Errorf("failed to decode pending user: %w", err)
		}
		return &pending, nil
	}

	count, found, err := s.store.IncrementAttempts(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		return nil, ErrSessionNotFound
	}

	if count >= int64(s.policy.MaxAttempts) {
		if err := s.store.DeleteSession(ctx, sessionID); err != nil {
			s.logger.Error("Failed to destroy exhausted session", zap.Error(err))
		}
		if s.recorder != nil {
			s.recorder.Record(ctx, models.ActivityEvent{EventType: models.EventSignupExhausted})
		}
		return nil, ErrAttemptsExceeded
	}

	remaining := int64(s.policy.MaxAttempts) - count
	return nil, fmt.Errorf("%w (%d attempts remaining)", ErrInvalidOTP, remaining)
}

// ResendOTP opens a fresh session for the payload of an existing one and
// retires the old session. A new code is generated; the old code and the
// old attempt count die with the old session.
func (s *SignupService) ResendOTP(ctx context.Context, sessionID string) (newSessionID string, ttl time.Duration, err error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if sess == nil {
		return "", 0, ErrSessionNotFound
	}

	raw, err := s.encryption.DecryptPayload(ctx, sess.Payload)
	if err != nil {
		return "", 0, err
	}
	var pending models.PendingUser
	if err := json.Unmarshal(raw, &pending); err != nil {
		return "", 0, fmt.Errorf("failed to decode pending user: %w", err)
	}

	code, digest, err := s.generator.Generate()
	if err != nil {
		return "", 0, err
	}
	newSessionID, err = s.CreateSession(ctx, pending, digest, s.policy.SessionTTL)
	if err != nil {
		return "", 0, err
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to retire superseded session", zap.Error(err))
	}

	go func(to, code string) {
		if err := s.mail.SendOTP(to, code); err != nil {
			s.logger.Error("Failed to deliver OTP mail", zap.Error(err))
		}
	}(pending.Email, code)

	return newSessionID, s.policy.SessionTTL, nil
}

// CompleteSignup verifies the code and provisions the account from the
// stored payload.
func (s *SignupService) CompleteSignup(ctx context.Context, sessionID, candidate string) (*models.User, error) {
	pending, err := s.VerifyOTP(ctx, sessionID, candidate)
	if err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.HashPassword(pending.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		UserID:       uuid.New().String(),
		Email:        pending.Email,
		PhoneNumber:  pending.PhoneNumber,
		PasswordHash: passwordHash,
		ReferralCode: pending.ReferralCode,
		IsAdmin:      pending.IsAdmin,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, scylla.ErrEmailTaken):
			return nil, ErrEmailInUse
		case errors.Is(err, scylla.ErrPhoneTaken):
			return nil, ErrPhoneInUse
		}
		return nil, fmt.Errorf("failed to provision account: %w", err)
	}

	if s.recorder != nil {
		s.recorder.Record(ctx, models.ActivityEvent{
			EventType: models.EventSignupVerified,
			UserID:    user.UserID,
		})
	}

	s.logger.Info("Signup completed", zap.String("user_id", user.UserID))
	return user, nil
}

// SessionTTL reports the remaining lifetime of a session for transport
// purposes (cookie Max-Age).
func (s *SignupService) SessionTTL(ctx context.Context, sessionID string) (time.Duration, error) {
	ttl, err := s.store.SessionTTL(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ttl, nil
}

// Authenticate checks basic credentials against a provisioned account.
func (s *SignupService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user == nil {
		return nil, nil
	}
	ok, err := s.hasher.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, nil
	}
	return user, nil
}
