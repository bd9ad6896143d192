package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"order-service/internal/config"
	"order-service/internal/encryption"
	"order-service/internal/hashing"
	"order-service/internal/models"
	"order-service/internal/otp"
	"order-service/internal/repository/scylla"
)

type storedSession struct {
	payload  string
	digest   string
	attempts int64
	ttl      time.Duration
}

// memStore implements SessionStore in memory with the same observable
// contract as the Redis-backed cache: absent and expired keys are
// indistinguishable, increments are atomic under the lock.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*storedSession
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*storedSession)}
}

func (s *memStore) SetSession(_ context.Context, sessionID, payload, otpDigest string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &storedSession{payload: payload, digest: otpDigest, ttl: ttl}
	return nil
}

func (s *memStore) GetSession(_ context.Context, sessionID string) (*models.SignupSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &models.SignupSession{Payload: sess.payload, OTPDigest: sess.digest, Attempts: sess.attempts}, nil
}

func (s *memStore) IncrementAttempts(_ context.Context, sessionID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, false, nil
	}
	sess.attempts++
	return sess.attempts, true, nil
}

func (s *memStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *memStore) SessionTTL(_ context.Context, sessionID string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess.ttl, nil
	}
	return -2 * time.Second, nil
}

func (s *memStore) expire(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

type memUsers struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	emails map[string]string
	phones map[int64]string
}

func newMemUsers() *memUsers {
	return &memUsers{
		byID:   make(map[string]*models.User),
		emails: make(map[string]string),
		phones: make(map[int64]string),
	}
}

func (u *memUsers) CreateUser(_ context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.emails[user.Email]; ok {
		return scylla.ErrEmailTaken
	}
	if _, ok := u.phones[user.PhoneNumber]; ok {
		return scylla.ErrPhoneTaken
	}
	u.byID[user.UserID] = user
	u.emails[user.Email] = user.UserID
	u.phones[user.PhoneNumber] = user.UserID
	return nil
}

func (u *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if id, ok := u.emails[email]; ok {
		return u.byID[id], nil
	}
	return nil, nil
}

func (u *memUsers) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.byID[userID], nil
}

func (u *memUsers) EmailInUse(_ context.Context, email string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.emails[email]
	return ok, nil
}

func (u *memUsers) PhoneInUse(_ context.Context, phone int64) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.phones[phone]
	return ok, nil
}

type chanMailer struct {
	sent chan string
}

func (m *chanMailer) SendOTP(_, code string) error {
	m.sent <- code
	return nil
}

type memRecorder struct {
	mu     sync.Mutex
	events []models.ActivityEvent
}

func (r *memRecorder) Record(_ context.Context, event models.ActivityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *memRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8 * 1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
		OTP: config.OTPConfig{
			Length:      6,
			SessionTTL:  10 * time.Minute,
			MaxAttempts: 5,
		},
	}
}

type signupFixture struct {
	service  *SignupService
	store    *memStore
	users    *memUsers
	mailer   *chanMailer
	recorder *memRecorder
}

func newSignupFixture(t *testing.T) *signupFixture {
	t.Helper()
	cfg := testConfig()
	f := &signupFixture{
		store:    newMemStore(),
		users:    newMemUsers(),
		mailer:   &chanMailer{sent: make(chan string, 8)},
		recorder: &memRecorder{},
	}
	f.service = NewSignupService(
		f.store,
		f.users,
		hashing.NewHasher(cfg),
		encryption.NewManager(cfg, nil),
		f.mailer,
		f.recorder,
		cfg.OTP,
		zap.NewNop(),
	)
	return f
}

func (f *signupFixture) waitForCode(t *testing.T) string {
	t.Helper()
	select {
	case code := <-f.mailer.sent:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("no otp mail delivered")
		return ""
	}
}

var samplePending = models.PendingUser{
	Email:       "ada@example.com",
	PhoneNumber: 2348012345678,
	Password:    "correct horse battery",
}

func TestBeginSignupDeliversCodeAndVerifies(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	sessionID, ttl, err := f.service.BeginSignup(ctx, samplePending)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, 10*time.Minute, ttl)

	code := f.waitForCode(t)
	require.Len(t, code, 6)

	pending, err := f.service.VerifyOTP(ctx, sessionID, code)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, samplePending.Email, pending.Email)
	assert.Equal(t, samplePending.PhoneNumber, pending.PhoneNumber)
	assert.Equal(t, samplePending.Password, pending.Password)

	// Consumption is terminal: the same session cannot verify twice.
	_, err = f.service.VerifyOTP(ctx, sessionID, code)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBeginSignupRejectsClaimedIdentity(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	require.NoError(t, f.users.CreateUser(ctx, &models.User{
		UserID:      "existing",
		Email:       samplePending.Email,
		PhoneNumber: 2348099999999,
	}))

	_, _, err := f.service.BeginSignup(ctx, samplePending)
	assert.ErrorIs(t, err, ErrEmailInUse)

	taken := samplePending
	taken.Email = "fresh@example.com"
	taken.PhoneNumber = 2348099999999
	_, _, err = f.service.BeginSignup(ctx, taken)
	assert.ErrorIs(t, err, ErrPhoneInUse)
}

func TestVerifyOTPWrongCodeExhaustsSession(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	sessionID, err := f.service.CreateSession(ctx, samplePending, otp.Digest("482913"), 10*time.Minute)
	require.NoError(t, err)

	for i := 1; i < 5; i++ {
		_, err := f.service.VerifyOTP(ctx, sessionID, "000000")
		require.ErrorIs(t, err, ErrInvalidOTP)
		assert.Contains(t, err.Error(), fmt.Sprintf("%d attempts remaining", 5-i))
	}

	_, err = f.service.VerifyOTP(ctx, sessionID, "000000")
	require.ErrorIs(t, err, ErrAttemptsExceeded)

	// Exhaustion destroyed the session, so even the correct code is too late.
	_, err = f.service.VerifyOTP(ctx, sessionID, "482913")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Contains(t, f.recorder.types(), models.EventSignupExhausted)
}

func TestVerifyOTPUnknownSession(t *testing.T) {
	f := newSignupFixture(t)

	_, err := f.service.VerifyOTP(context.Background(), "no-such-session", "123456")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestVerifyOTPExpiredSession(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	sessionID, err := f.service.CreateSession(ctx, samplePending, otp.Digest("482913"), time.Minute)
	require.NoError(t, err)

	f.store.expire(sessionID)

	_, err = f.service.VerifyOTP(ctx, sessionID, "482913")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestVerifyOTPConcurrentWrongAttempts(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	sessionID, err := f.service.CreateSession(ctx, samplePending, otp.Digest("482913"), 10*time.Minute)
	require.NoError(t, err)

	const attempts = 12
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.VerifyOTP(ctx, sessionID, "000000")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Every attempt fails, none slips through, and the burst still kills
	// the session.
	for err := range errs {
		require.Error(t, err)
		require.True(t,
			errors.Is(err, ErrInvalidOTP) ||
				errors.Is(err, ErrAttemptsExceeded) ||
				errors.Is(err, ErrSessionNotFound),
			"unexpected error: %v", err)
	}

	sess, err := f.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestCompleteSignupProvisionsAccount(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	sessionID, _, err := f.service.BeginSignup(ctx, samplePending)
	require.NoError(t, err)
	code := f.waitForCode(t)

	user, err := f.service.CompleteSignup(ctx, sessionID, code)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, samplePending.Email, user.Email)
	assert.NotEmpty(t, user.UserID)
	assert.NotEqual(t, samplePending.Password, user.PasswordHash)

	stored, err := f.users.GetUserByEmail(ctx, samplePending.Email)
	require.NoError(t, err)
	require.NotNil(t, stored)

	authed, err := f.service.Authenticate(ctx, samplePending.Email, samplePending.Password)
	require.NoError(t, err)
	require.NotNil(t, authed)
	assert.Equal(t, user.UserID, authed.UserID)

	authed, err = f.service.Authenticate(ctx, samplePending.Email, "wrong password")
	require.NoError(t, err)
	assert.Nil(t, authed)

	assert.Contains(t, f.recorder.types(), models.EventSignupStarted)
	assert.Contains(t, f.recorder.types(), models.EventSignupVerified)
}

func TestSessionPayloadStoredEncrypted(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	sessionID, err := f.service.CreateSession(ctx, samplePending, otp.Digest("482913"), time.Minute)
	require.NoError(t, err)

	sess, err := f.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.NotContains(t, sess.Payload, samplePending.Password)
	assert.NotContains(t, sess.Payload, samplePending.Email)
}
