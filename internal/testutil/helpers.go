package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// HTTP Test Helpers

// AssertStatusCode fails if the response status code doesn't match expected
func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSONError fails if the response doesn't contain an error field with the expected message
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMsg string) {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content type: got %q, want application/json", ct)
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode JSON error: %v. Body: %s", err, w.Body.String())
	}
	if body.Error != expectedMsg {
		t.Errorf("error: got %q, want %q", body.Error, expectedMsg)
	}
}

// AssertRedirect fails unless the response redirects to location
func AssertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code < 300 || w.Code >= 400 {
		t.Errorf("expected redirect to %q, got status %d. Body: %s", location, w.Code, w.Body.String())
		return
	}
	if got := w.Header().Get("Location"); got != location {
		t.Errorf("Location: got %q, want %q", got, location)
	}
}

// FindCookie returns the named cookie set on the response, or nil
func FindCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AssertCookie fails if the response doesn't set a cookie with the expected name and value
func AssertCookie(t *testing.T, w *httptest.ResponseRecorder, name, value string) *http.Cookie {
	t.Helper()
	c := FindCookie(w, name)
	if c == nil {
		t.Errorf("expected cookie %q not found", name)
		return nil
	}
	if c.Value != value {
		t.Errorf("cookie %q: got %q, want %q", name, c.Value, value)
	}
	return c
}

// AssertClearedCookie fails unless the response expires the named cookie
func AssertClearedCookie(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	c := FindCookie(w, name)
	if c == nil {
		t.Errorf("expected cookie %q to be cleared, but it was not set", name)
		return
	}
	if c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("cookie %q not cleared: value %q max-age %d", name, c.Value, c.MaxAge)
	}
}

// AssertNoCookie fails if the response sets a live cookie with the given name
func AssertNoCookie(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	if c := FindCookie(w, name); c != nil && c.Value != "" && c.MaxAge >= 0 {
		t.Errorf("unexpected cookie %q found with value %q", name, c.Value)
	}
}

// Request Helpers

// NewJSONRequest creates a new HTTP request with JSON body
func NewJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSession adds the token and role cookies to req. Empty values are skipped.
func WithSession(req *http.Request, token, role string) *http.Request {
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}
	if role != "" {
		req.AddCookie(&http.Cookie{Name: "role", Value: role})
	}
	return req
}

// DecodeJSON decodes JSON response body into the given struct
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}
