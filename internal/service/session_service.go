package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"bookbay-storefront/internal/apiclient"
	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/observability"
	"bookbay-storefront/internal/storefront"
)

const minPasswordLen = 8

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	lowerRegex   = regexp.MustCompile(`[a-z]`)
	upperRegex   = regexp.MustCompile(`[A-Z]`)
	digitRegex   = regexp.MustCompile(`\d`)
	specialRegex = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// AuthAPI is the remote half of sign-in.
type AuthAPI interface {
	Login(ctx context.Context, creds apiclient.Credentials) (apiclient.AuthResult, error)
	Register(ctx context.Context, reg apiclient.Registration) (apiclient.AuthResult, error)
}

// Workspaces is the registry half of sign-in.
type Workspaces interface {
	Open(ctx context.Context, token string, user domain.UserRef) (*storefront.Workspace, error)
	Close(ctx context.Context, ws *storefront.Workspace) error
}

// Cookies writes and clears the session cookie pair.
type Cookies interface {
	SetSession(w http.ResponseWriter, token string, role domain.Role) error
	Clear(w http.ResponseWriter)
}

// SessionService signs visitors in and out. A session is either fully
// established (remote token, credential record, cookie pair) or not at all.
type SessionService struct {
	api        AuthAPI
	workspaces Workspaces
	cookies    Cookies
}

func NewSessionService(api AuthAPI, workspaces Workspaces, cookies Cookies) *SessionService {
	return &SessionService{
		api:        api,
		workspaces: workspaces,
		cookies:    cookies,
	}
}

func (s *SessionService) Login(ctx context.Context, w http.ResponseWriter, creds apiclient.Credentials) (domain.Session, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if !emailRegex.MatchString(creds.Email) || creds.Password == "" {
		return domain.Session{}, fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	}

	result, err := s.api.Login(ctx, creds)
	if err != nil {
		return domain.Session{}, err
	}
	return s.establish(ctx, w, result)
}

func (s *SessionService) Register(ctx context.Context, w http.ResponseWriter, reg apiclient.Registration) (domain.Session, error) {
	if err := validateRegistration(&reg); err != nil {
		return domain.Session{}, err
	}

	result, err := s.api.Register(ctx, reg)
	if err != nil {
		return domain.Session{}, err
	}
	return s.establish(ctx, w, result)
}

// Logout clears the cookies and closes the workspace, if any. The cookies
// are cleared even when the record cannot be removed.
func (s *SessionService) Logout(ctx context.Context, w http.ResponseWriter, ws *storefront.Workspace) error {
	s.cookies.Clear(w)
	if ws == nil {
		return nil
	}
	if err := s.workspaces.Close(ctx, ws); err != nil {
		observability.FromContext(ctx).Warn("failed to remove credential record on logout",
			slog.String("error", err.Error()),
			slog.String("session", ws.Key))
		return err
	}
	return nil
}

// SetCookies writes the cookie pair for a session established by the
// caller. The workspace is built from the cookie on the next request.
func (s *SessionService) SetCookies(w http.ResponseWriter, token, role string) error {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(role) == "" {
		return domain.ErrInconsistentSession
	}
	parsed, err := domain.ParseRole(role)
	if err != nil {
		return err
	}
	return s.cookies.SetSession(w, token, parsed)
}

func (s *SessionService) establish(ctx context.Context, w http.ResponseWriter, result apiclient.AuthResult) (domain.Session, error) {
	if result.Token == "" {
		return domain.Session{}, &apiclient.APIError{Status: http.StatusBadGateway, Message: "authentication response carried no token"}
	}

	ws, err := s.workspaces.Open(ctx, result.Token, result.User)
	if err != nil {
		return domain.Session{}, err
	}

	session := ws.Credential.Session()
	if err := s.cookies.SetSession(w, session.Token, session.Role); err != nil {
		if closeErr := s.workspaces.Close(ctx, ws); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		observability.FromContext(ctx).Error("session rolled back after cookie write failed",
			slog.String("error", err.Error()),
			slog.String("session", ws.Key))
		return domain.Session{}, err
	}

	observability.FromContext(ctx).Info("session established",
		slog.String("session", ws.Key),
		slog.String("role", string(session.Role)))
	return session, nil
}

func validateRegistration(reg *apiclient.Registration) error {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)

	if reg.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if !emailRegex.MatchString(reg.Email) || len(reg.Email) > 255 {
		return fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	if len(reg.Password) < minPasswordLen ||
		!lowerRegex.MatchString(reg.Password) ||
		!upperRegex.MatchString(reg.Password) ||
		!digitRegex.MatchString(reg.Password) ||
		!specialRegex.MatchString(reg.Password) {
		return fmt.Errorf("%w: password must be at least 8 characters with upper, lower, digit and special characters", domain.ErrInvalidInput)
	}
	role, err := domain.ParseRole(string(reg.Role))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	reg.Role = role
	return nil
}
