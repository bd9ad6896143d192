package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"order-service/internal/config"
	"order-service/internal/encryption"
	"order-service/internal/hashing"
	"order-service/internal/models"
	"order-service/internal/repository/scylla"
	"order-service/internal/service"
)

// Keep the fakes honest: a drifted method set should fail here, not at
// service construction inside a test body.
var (
	_ service.SessionStore  = (*fakeStore)(nil)
	_ scylla.UserRepository = (*fakeUsers)(nil)
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.SignupSession
}

func (s *fakeStore) SetSession(_ context.Context, sessionID, payload, otpDigest string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &models.SignupSession{Payload: payload, OTPDigest: otpDigest}
	return nil
}

func (s *fakeStore) GetSession(_ context.Context, sessionID string) (*models.SignupSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		copied := *sess
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) IncrementAttempts(_ context.Context, sessionID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, false, nil
	}
	sess.Attempts++
	return sess.Attempts, true, nil
}

func (s *fakeStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *fakeStore) SessionTTL(_ context.Context, _ string) (time.Duration, error) {
	return 10 * time.Minute, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func (u *fakeUsers) CreateUser(_ context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users[user.Email] = user
	return nil
}

func (u *fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.users[email], nil
}

func (u *fakeUsers) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.UserID == userID {
			return user, nil
		}
	}
	return nil, nil
}

func (u *fakeUsers) EmailInUse(_ context.Context, email string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.users[email]
	return ok, nil
}

func (u *fakeUsers) PhoneInUse(_ context.Context, _ int64) (bool, error) {
	return false, nil
}

type captureMailer struct {
	codes chan string
}

func (m *captureMailer) SendOTP(_, code string) error {
	m.codes <- code
	return nil
}

func newTestRouter(t *testing.T) (chi.Router, *captureMailer) {
	t.Helper()
	cfg := &config.Config{
		Environment: "development",
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8 * 1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
		OTP: config.OTPConfig{Length: 6, SessionTTL: 10 * time.Minute, MaxAttempts: 5},
	}
	mail := &captureMailer{codes: make(chan string, 4)}
	signup := service.NewSignupService(
		&fakeStore{sessions: make(map[string]*models.SignupSession)},
		&fakeUsers{users: make(map[string]*models.User)},
		hashing.NewHasher(cfg),
		encryption.NewManager(cfg, nil),
		mail,
		nil,
		cfg.OTP,
		zap.NewNop(),
	)

	router := chi.NewRouter()
	h := NewSignupHandler(signup, false, zap.NewNop())
	router.Route("/api/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return router, mail
}

func postJSON(t *testing.T, router chi.Router, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func waitCode(t *testing.T, mail *captureMailer) string {
	t.Helper()
	select {
	case code := <-mail.codes:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("no otp delivered")
		return ""
	}
}

func TestSignupFlowOverHTTP(t *testing.T) {
	router, mail := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/signup", map[string]interface{}{
		"email":        "ada@example.com",
		"phone_number": 2348012345678,
		"password":     "correct horse battery",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, int((10 * time.Minute).Seconds()), cookie.MaxAge)
	code := waitCode(t, mail)

	// Wrong code burns an attempt.
	rec = postJSON(t, router, "/api/v1/signup/verify",
		map[string]string{"otp": "000000"}, []*http.Cookie{cookie})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Right code provisions the account and clears the cookie.
	rec = postJSON(t, router, "/api/v1/signup/verify",
		map[string]string{"otp": code}, []*http.Cookie{cookie})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ada@example.com", resp.Data.Email)
	assert.NotEmpty(t, resp.Data.ID)

	cleared := sessionCookie(t, rec)
	assert.Less(t, cleared.MaxAge, 0)

	// The consumed session is gone.
	rec = postJSON(t, router, "/api/v1/signup/verify",
		map[string]string{"otp": code}, []*http.Cookie{cookie})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignupVerifyWithoutCookie(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/signup/verify", map[string]string{"otp": "123456"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignupRejectsIncompleteRequest(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/signup", map[string]interface{}{
		"email": "ada@example.com",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupResendRotatesSession(t *testing.T) {
	router, mail := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/signup", map[string]interface{}{
		"email":        "ada@example.com",
		"phone_number": 2348012345678,
		"password":     "correct horse battery",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	oldCookie := sessionCookie(t, rec)
	waitCode(t, mail)

	rec = postJSON(t, router, "/api/v1/signup/resend", nil, []*http.Cookie{oldCookie})
	require.Equal(t, http.StatusOK, rec.Code)
	newCookie := sessionCookie(t, rec)
	assert.NotEqual(t, oldCookie.Value, newCookie.Value)
	newCode := waitCode(t, mail)

	// Old session is retired; only the fresh one verifies.
	rec = postJSON(t, router, "/api/v1/signup/verify",
		map[string]string{"otp": newCode}, []*http.Cookie{oldCookie})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, router, "/api/v1/signup/verify",
		map[string]string{"otp": newCode}, []*http.Cookie{newCookie})
	assert.Equal(t, http.StatusCreated, rec.Code)
}
