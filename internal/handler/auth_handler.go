package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"bookbay-storefront/internal/apiclient"
	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/middleware"
	"bookbay-storefront/internal/observability"
	"bookbay-storefront/internal/routeguard"
	"bookbay-storefront/internal/service"
	"bookbay-storefront/internal/sessioncookie"
)

// AuthHandler handles sign-in, sign-up and sign-out.
type AuthHandler struct {
	sessions *service.SessionService
	rules    routeguard.Rules
}

func NewAuthHandler(sessions *service.SessionService, rules routeguard.Rules) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		rules:    rules,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the JSON form of a sign-up. Multipart sign-ups carry
// the same fields plus an optional image.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// SessionResponse tells the client where the new session lands.
type SessionResponse struct {
	Success  bool            `json:"success"`
	Role     domain.Role     `json:"role"`
	Redirect string          `json:"redirect"`
	User     *domain.UserRef `json:"user,omitempty"`
}

// SetCookiesRequest is the body of the cookie endpoint.
type SetCookiesRequest struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.sessions.Login(r.Context(), w, apiclient.Credentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeAuthError(w, r, err, "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, h.sessionResponse(session))
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	reg, done, err := readRegistration(w, r)
	defer done()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.sessions.Register(r.Context(), w, reg)
	if err != nil {
		h.writeAuthError(w, r, err, "Registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, h.sessionResponse(session))
}

// Logout always clears the cookies. A record that could not be removed
// expires on its own.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws, _ := middleware.GetWorkspace(r.Context())
	if err := h.sessions.Logout(r.Context(), w, ws); err != nil {
		observability.FromContext(r.Context()).Warn("logout left a credential record behind",
			slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// SetCookies stores a token/role pair the client already holds.
func (h *AuthHandler) SetCookies(w http.ResponseWriter, r *http.Request) {
	var req SetCookiesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.sessions.SetCookies(w, req.Token, req.Role); err != nil {
		switch {
		case errors.Is(err, domain.ErrInconsistentSession):
			writeError(w, http.StatusBadRequest, "Token and role are required")
		case errors.Is(err, domain.ErrInvalidRole):
			writeError(w, http.StatusBadRequest, "Invalid role")
		case errors.Is(err, sessioncookie.ErrTokenExpired):
			writeError(w, http.StatusBadRequest, "Token has expired")
		default:
			writeError(w, http.StatusBadRequest, "Invalid session cookie")
		}
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *AuthHandler) sessionResponse(session domain.Session) SessionResponse {
	return SessionResponse{
		Success:  true,
		Role:     session.Role,
		Redirect: h.rules.Home(string(session.Role)),
		User:     session.User,
	}
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	log := observability.FromContext(r.Context())

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidRole):
		log.Warn("remote account has an unsupported role", slog.String("error", err.Error()))
		writeError(w, http.StatusForbidden, "Unsupported account role")
	case errors.Is(err, sessioncookie.ErrInvalidCookie), errors.Is(err, sessioncookie.ErrTokenExpired):
		log.Error("failed to write session cookie", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "Failed to establish session")
	default:
		status := apiclient.StatusOf(err)
		if status >= http.StatusInternalServerError {
			log.Error("sign-in failed", slog.String("error", err.Error()))
		}
		writeError(w, status, apiclient.Message(err, fallback))
	}
}

func readRegistration(w http.ResponseWriter, r *http.Request) (apiclient.Registration, func(), error) {
	if !isMultipart(r) {
		var req RegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			return apiclient.Registration{}, func() {}, err
		}
		return apiclient.Registration{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Role:     domain.Role(req.Role),
		}, func() {}, nil
	}

	image, done, err := parseMultipart(w, r)
	if err != nil {
		return apiclient.Registration{}, done, err
	}
	return apiclient.Registration{
		Name:     r.FormValue("name"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		Role:     domain.Role(r.FormValue("role")),
		Image:    image,
	}, done, nil
}
