// Package apiclient calls the remote BookBay API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/observability"
)

const defaultTimeout = 10 * time.Second

// Upload is an optional file attached to a multipart request.
type Upload struct {
	Filename string
	Content  io.Reader
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up payload.
type Registration struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
	Image    *Upload
}

// AuthResult is the `{token, data}` body returned by login and register.
type AuthResult struct {
	Token string         `json:"token"`
	User  domain.UserRef `json:"data"`
}

// Client calls the remote API over HTTP. It never retries: a retry is the
// caller's decision.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: defaultTimeout})
}

// NewClientWithHTTP creates a client using hc.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a token and user record.
func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return AuthResult{}, fmt.Errorf("encode login: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", "", bytes.NewReader(body))
	if err != nil {
		return AuthResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out AuthResult
	if err := c.do(req, "login", &out, false); err != nil {
		return AuthResult{}, err
	}
	return out, nil
}

// Register creates an account and returns its token and user record.
func (c *Client) Register(ctx context.Context, reg Registration) (AuthResult, error) {
	fields := map[string]string{
		"name":     reg.Name,
		"email":    reg.Email,
		"password": reg.Password,
		"role":     string(reg.Role),
	}
	req, err := c.newMultipart(ctx, http.MethodPost, "/auth/register", "", fields, reg.Image)
	if err != nil {
		return AuthResult{}, err
	}

	var out AuthResult
	if err := c.do(req, "register", &out, false); err != nil {
		return AuthResult{}, err
	}
	return out, nil
}

// ListBooks returns the catalog visible to the token.
func (c *Client) ListBooks(ctx context.Context, token string) ([]domain.Book, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/books", token, nil)
	if err != nil {
		return nil, err
	}

	var books []domain.Book
	if err := c.do(req, "books.list", &books, true); err != nil {
		return nil, err
	}
	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}

// GetBook returns one catalog entry.
func (c *Client) GetBook(ctx context.Context, token, id string) (domain.Book, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/books/"+url.PathEscape(id), token, nil)
	if err != nil {
		return domain.Book{}, err
	}

	var book domain.Book
	if err := c.do(req, "books.get", &book, true); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// AddBook creates a catalog entry.
func (c *Client) AddBook(ctx context.Context, token string, in domain.BookInput, image *Upload) (domain.Book, error) {
	req, err := c.newMultipart(ctx, http.MethodPost, "/books/add", token, bookFields(in), image)
	if err != nil {
		return domain.Book{}, err
	}

	var book domain.Book
	if err := c.do(req, "books.add", &book, true); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// EditBook patches a catalog entry and returns the updated entity.
func (c *Client) EditBook(ctx context.Context, token, id string, in domain.BookInput, image *Upload) (domain.Book, error) {
	req, err := c.newMultipart(ctx, http.MethodPatch, "/books/"+url.PathEscape(id), token, bookFields(in), image)
	if err != nil {
		return domain.Book{}, err
	}

	var book domain.Book
	if err := c.do(req, "books.edit", &book, true); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// DeleteBook removes a catalog entry. The remote API exposes deletion as a
// PATCH on the delete path.
func (c *Client) DeleteBook(ctx context.Context, token, id string) error {
	req, err := c.newRequest(ctx, http.MethodPatch, "/books/delete/"+url.PathEscape(id), token, nil)
	if err != nil {
		return err
	}
	return c.do(req, "books.delete", nil, false)
}

// ViewProfile returns the signed-in user's profile.
func (c *Client) ViewProfile(ctx context.Context, token string) (domain.UserRef, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/users/viewProfile", token, nil)
	if err != nil {
		return domain.UserRef{}, err
	}

	var user domain.UserRef
	if err := c.do(req, "users.view", &user, true); err != nil {
		return domain.UserRef{}, err
	}
	return user, nil
}

// EditProfile patches the signed-in user's profile.
func (c *Client) EditProfile(ctx context.Context, token string, in domain.ProfileInput, image *Upload) (domain.UserRef, error) {
	fields := map[string]string{}
	if in.Name != "" {
		fields["name"] = in.Name
	}
	if in.Email != "" {
		fields["email"] = in.Email
	}
	req, err := c.newMultipart(ctx, http.MethodPatch, "/users/editProfile", token, fields, image)
	if err != nil {
		return domain.UserRef{}, err
	}

	var user domain.UserRef
	if err := c.do(req, "users.edit", &user, true); err != nil {
		return domain.UserRef{}, err
	}
	return user, nil
}

// Ping checks that the API root answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodHead, "/", "", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	addAuthHeader(req, token)
	return req, nil
}

func (c *Client) newMultipart(ctx context.Context, method, path, token string, fields map[string]string, file *Upload) (*http.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if file != nil && file.Content != nil {
		part, err := writer.CreateFormFile("image", file.Filename)
		if err != nil {
			return nil, fmt.Errorf("create image part: %w", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, fmt.Errorf("copy image: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := c.newRequest(ctx, method, path, token, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

// envelope is the common response shape. Status and Success stay raw: some
// endpoints send booleans, others strings, and only a literal false counts as
// a failure flag.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Token   string          `json:"token"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Status  json.RawMessage `json:"status"`
	Success json.RawMessage `json:"success"`
}

func (e envelope) failed() bool {
	return isFalse(e.Status) || isFalse(e.Success)
}

func isFalse(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "false"
}

func (e envelope) message(fallback string) string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	default:
		return fallback
	}
}

// do sends req and decodes the body into out. When unwrap is set out receives
// the envelope's data member; otherwise the whole body.
func (c *Client) do(req *http.Request, endpoint string, out any, unwrap bool) error {
	start := time.Now()
	outcome := "ok"
	defer func() {
		observability.RemoteRequestDuration.WithLabelValues(endpoint, outcome).Observe(time.Since(start).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "transport"
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		outcome = "transport"
		return fmt.Errorf("%w: read %s: %v", ErrTransport, endpoint, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 {
		outcome = "remote_error"
		return &APIError{Status: resp.StatusCode, Message: env.message(http.StatusText(resp.StatusCode))}
	}
	if decodeErr != nil {
		if out == nil && len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		outcome = "transport"
		return fmt.Errorf("%w: decode %s: %v", ErrTransport, endpoint, decodeErr)
	}
	if env.failed() {
		outcome = "remote_error"
		return &APIError{Status: resp.StatusCode, Message: env.message("request failed")}
	}
	if out == nil {
		return nil
	}

	target := raw
	if unwrap {
		target = env.Data
		if len(target) == 0 {
			outcome = "transport"
			return fmt.Errorf("%w: %s response has no data", ErrTransport, endpoint)
		}
	}
	if err := json.Unmarshal(target, out); err != nil {
		outcome = "transport"
		return fmt.Errorf("%w: decode %s: %v", ErrTransport, endpoint, err)
	}
	return nil
}

func addAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func bookFields(in domain.BookInput) map[string]string {
	fields := map[string]string{}
	if in.Title != nil {
		fields["title"] = *in.Title
	}
	if in.Author != nil {
		fields["author"] = *in.Author
	}
	if in.Price != nil {
		fields["price"] = strconv.FormatFloat(*in.Price, 'f', -1, 64)
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.Category != nil {
		fields["category"] = string(*in.Category)
	}
	if in.Rating != nil {
		fields["rating"] = strconv.FormatFloat(*in.Rating, 'f', -1, 64)
	}
	if in.Stock != nil {
		fields["stock"] = strconv.Itoa(*in.Stock)
	}
	return fields
}
