package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/botdesk/botdesk/internal/api/middleware"
	"github.com/botdesk/botdesk/internal/api/response"
	"github.com/botdesk/botdesk/internal/api/validation"
	"github.com/botdesk/botdesk/internal/auth"
	"github.com/botdesk/botdesk/internal/metrics"
	"github.com/botdesk/botdesk/internal/oauth"
	"github.com/botdesk/botdesk/internal/user"
)

const stateCookie = "oauth_state"

// AccountService is the subset of auth.Service used by the handlers.
type AccountService interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*user.User, string, error)
	Login(ctx context.Context, email, password string) (*user.User, string, error)
	GoogleSignIn(ctx context.Context, id *oauth.Identity) (*user.User, string, error)
	SetPremium(ctx context.Context, actorID, targetID uuid.UUID, premium bool, source string) (*user.User, error)
}

// GoogleFlow is the Google code flow.
type GoogleFlow interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth.Identity, error)
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// AuthHandler handles sign-up, login and Google sign-in.
type AuthHandler struct {
	accounts AccountService
	google   GoogleFlow // nil when Google sign-in is not configured
	state    *oauth.StateSigner
}

// NewAuthHandler creates a new AuthHandler. google may be nil.
func NewAuthHandler(accounts AccountService, google GoogleFlow, state *oauth.StateSigner) *AuthHandler {
	return &AuthHandler{accounts: accounts, google: google, state: state}
}

// SignUp handles POST /auth/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req signUpRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}

	fieldErrors := validation.ValidateSignUp(validation.SignUpRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	u, tok, err := h.accounts.SignUp(r.Context(), auth.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	metrics.AuthAttempts.WithLabelValues("signup", authOutcome(err, user.ErrDuplicateEmail)).Inc()
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			response.Err(w, http.StatusConflict, "DUPLICATE_EMAIL", "Email is already registered", requestID)
			return
		}
		slog.Error("failed to sign up", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account", requestID)
		return
	}

	response.Success(w, http.StatusCreated, tokenResponse{Token: tok, User: newUserResponse(u)}, requestID)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req loginRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	if fieldErrors := validation.ValidateLogin(validation.LoginRequest{Email: req.Email, Password: req.Password}); len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	u, tok, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	metrics.AuthAttempts.WithLabelValues("password", authOutcome(err, auth.ErrInvalidCredentials)).Inc()
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			response.Err(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", requestID)
			return
		}
		slog.Error("failed to log in", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log in", requestID)
		return
	}

	response.Success(w, http.StatusOK, tokenResponse{Token: tok, User: newUserResponse(u)}, requestID)
}

// GoogleStart handles GET /auth/google by redirecting to the consent page.
func (h *AuthHandler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	if h.google == nil {
		response.Err(w, http.StatusNotFound, "NOT_FOUND", "Google sign-in is not enabled", requestID)
		return
	}

	state, err := h.state.MakeState()
	if err != nil {
		slog.Error("failed to create oauth state", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start Google sign-in", requestID)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.google.AuthURL(state), http.StatusFound)
}

// GoogleCallback handles GET /auth/google/callback.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	if h.google == nil {
		response.Err(w, http.StatusNotFound, "NOT_FOUND", "Google sign-in is not enabled", requestID)
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value != state || !h.state.VerifyState(state) {
		response.Err(w, http.StatusBadRequest, "INVALID_STATE", "OAuth state mismatch", requestID)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth/google", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		response.Err(w, http.StatusBadRequest, "MISSING_CODE", "Authorization code is required", requestID)
		return
	}

	identity, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("google", "rejected").Inc()
		if errors.Is(err, oauth.ErrEmailNotVerified) {
			response.Err(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Google email address is not verified", requestID)
			return
		}
		slog.Warn("google exchange failed", "error", err)
		response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Google sign-in failed", requestID)
		return
	}

	u, tok, err := h.accounts.GoogleSignIn(r.Context(), identity)
	metrics.AuthAttempts.WithLabelValues("google", authOutcome(err, user.ErrDuplicateGoogleID)).Inc()
	if err != nil {
		if errors.Is(err, user.ErrDuplicateGoogleID) {
			response.Err(w, http.StatusConflict, "DUPLICATE_GOOGLE_ACCOUNT", "Google account is linked to another user", requestID)
			return
		}
		slog.Error("google sign-in failed", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Google sign-in failed", requestID)
		return
	}

	response.Success(w, http.StatusOK, tokenResponse{Token: tok, User: newUserResponse(u)}, requestID)
}

// authOutcome labels an auth attempt. Errors matching rejected are the
// client's fault; anything else is a server error.
func authOutcome(err error, rejected ...error) string {
	if err == nil {
		return "success"
	}
	for _, target := range rejected {
		if errors.Is(err, target) {
			return "rejected"
		}
	}
	return "error"
}
