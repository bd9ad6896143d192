package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"order-service/internal/models"
	"order-service/internal/service"
	"order-service/internal/util"
)

// sessionCookieName is the transport for the signup session id. The cookie
// is the only place the id travels; it never appears in a response body.
const sessionCookieName = "signup_session_id"

// SignupHandler handles HTTP requests for the signup verification flow.
type SignupHandler struct {
	signup *service.SignupService
	logger *zap.Logger
	secure bool
}

func NewSignupHandler(signup *service.SignupService, secure bool, logger *zap.Logger) *SignupHandler {
	return &SignupHandler{signup: signup, logger: logger, secure: secure}
}

func (h *SignupHandler) RegisterRoutes(router chi.Router) {
	router.Route("/signup", func(r chi.Router) {
		r.Post("/", h.BeginSignup)
		r.Post("/resend", h.ResendOTP)
		r.Post("/verify", h.VerifySignup)
	})
}

type signupRequest struct {
	Email        string `json:"email"`
	PhoneNumber  int64  `json:"phone_number"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code,omitempty"`
}

type verifyRequest struct {
	OTP string `json:"otp"`
}

func (h *SignupHandler) setSessionCookie(w http.ResponseWriter, sessionID string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *SignupHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *SignupHandler) sessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", errors.New("no signup session")
	}
	return cookie.Value, nil
}

// BeginSignup starts the verification flow: it stores the pending account
// behind a fresh session and mails the code.
func (h *SignupHandler) BeginSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	req.Email = util.NormalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" || req.PhoneNumber <= 0 {
		respondWithError(w, http.StatusBadRequest,
			errors.New("email, phone_number and password are required"), "Invalid signup request")
		return
	}

	sessionID, ttl, err := h.signup.BeginSignup(ctx, models.PendingUser{
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		Password:     req.Password,
		ReferralCode: util.SanitizeInput(req.ReferralCode),
	})
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to start signup")
		return
	}

	h.setSessionCookie(w, sessionID, ttl)
	respondWithJSON(w, http.StatusCreated, successResponse(nil, "Verification code sent"))
	h.logger.Info("Signup started via HTTP",
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "BeginSignup"),
	)
}

// ResendOTP reissues the code under a fresh session for the same pending
// account.
func (h *SignupHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := h.sessionID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, service.ErrSessionNotFound, "No signup in progress")
		return
	}

	newSessionID, ttl, err := h.signup.ResendOTP(ctx, sessionID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to resend code")
		return
	}

	h.setSessionCookie(w, newSessionID, ttl)
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Verification code resent"))
}

// VerifySignup checks the submitted code and provisions the account on
// success. The session cookie dies with the session either way it ends.
func (h *SignupHandler) VerifySignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	sessionID, err := h.sessionID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, service.ErrSessionNotFound, "No signup in progress")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, errors.New("otp is required"), "Invalid verify request")
		return
	}

	user, err := h.signup.CompleteSignup(ctx, sessionID, req.OTP)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) || errors.Is(err, service.ErrAttemptsExceeded) {
			h.clearSessionCookie(w)
		}
		respondWithError(w, getStatusCode(err), err, "Verification failed")
		return
	}

	h.clearSessionCookie(w)
	respondWithJSON(w, http.StatusCreated, successResponse(user, "Account created"))
	h.logger.Info("Signup verified via HTTP",
		util.String("user_id", user.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "VerifySignup"),
	)
}
