package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"bookbay-storefront/internal/apiclient"
	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/middleware"
	"bookbay-storefront/internal/observability"
	"bookbay-storefront/internal/storefront"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = 10 << 20
	imageField       = "image"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StateResponse is the body of page and action routes: the visitor's store
// state after the operation, plus the failure message if it failed.
type StateResponse struct {
	Error string           `json:"error,omitempty"`
	State storefront.State `json:"state"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeState answers with the workspace state. A failed operation answers
// with the status derived from err and the message the store recorded.
func writeState(w http.ResponseWriter, r *http.Request, ws *storefront.Workspace, okStatus int, err error, message func(storefront.State) string) {
	state := ws.State()
	if err == nil {
		writeJSON(w, okStatus, StateResponse{State: state})
		return
	}

	status := apiclient.StatusOf(err)
	if errors.Is(err, domain.ErrInvalidInput) {
		status = http.StatusBadRequest
	}
	observability.FromContext(r.Context()).Warn("store operation failed",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
		slog.Int("status", status))
	writeJSON(w, status, StateResponse{Error: message(state), State: state})
}

func catalogError(s storefront.State) string { return s.Catalog.Error }
func profileError(s storefront.State) string { return s.Profile.Error }

// workspaceOr401 returns the request's workspace, answering 401 when the
// session cookie did not resolve.
func workspaceOr401(w http.ResponseWriter, r *http.Request) (*storefront.Workspace, bool) {
	ws, ok := middleware.GetWorkspace(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}
	return ws, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidInput)
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart reads the form and returns the optional image upload. The
// returned close func must be called once the upload has been sent.
func parseMultipart(w http.ResponseWriter, r *http.Request) (*apiclient.Upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		return nil, func() {}, fmt.Errorf("%w: malformed multipart body", domain.ErrInvalidInput)
	}

	file, header, err := r.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, fmt.Errorf("%w: unreadable image", domain.ErrInvalidInput)
	}
	return &apiclient.Upload{Filename: header.Filename, Content: file}, func() { closeFile(file) }, nil
}

func closeFile(f multipart.File) {
	if err := f.Close(); err != nil {
		slog.Warn("failed to close upload", slog.String("error", err.Error()))
	}
}

// readBookInput reads a book payload from a JSON or multipart body.
func readBookInput(w http.ResponseWriter, r *http.Request) (domain.BookInput, *apiclient.Upload, func(), error) {
	var in domain.BookInput
	if !isMultipart(r) {
		if err := decodeJSON(r, &in); err != nil {
			return in, nil, func() {}, err
		}
		return in, nil, func() {}, in.Check()
	}

	image, done, err := parseMultipart(w, r)
	if err != nil {
		return in, nil, done, err
	}

	form := r.MultipartForm.Value
	in.Title = formString(form, "title")
	in.Author = formString(form, "author")
	in.Description = formString(form, "description")
	if c := formString(form, "category"); c != nil {
		category := domain.Category(*c)
		in.Category = &category
	}
	if in.Price, err = formFloat(form, "price"); err == nil {
		if in.Rating, err = formFloat(form, "rating"); err == nil {
			in.Stock, err = formInt(form, "stock")
		}
	}
	if err != nil {
		done()
		return in, nil, func() {}, err
	}
	if err := in.Check(); err != nil {
		done()
		return in, nil, func() {}, err
	}
	return in, image, done, nil
}

// readProfileInput reads a profile patch from a JSON or multipart body.
func readProfileInput(w http.ResponseWriter, r *http.Request) (domain.ProfileInput, *apiclient.Upload, func(), error) {
	var in domain.ProfileInput
	if !isMultipart(r) {
		return in, nil, func() {}, decodeJSON(r, &in)
	}

	image, done, err := parseMultipart(w, r)
	if err != nil {
		return in, nil, done, err
	}
	in.Name = strings.TrimSpace(r.FormValue("name"))
	in.Email = strings.TrimSpace(r.FormValue("email"))
	return in, image, done, nil
}

func formString(form map[string][]string, key string) *string {
	v, ok := form[key]
	if !ok || len(v) == 0 {
		return nil
	}
	s := strings.TrimSpace(v[0])
	return &s
}

func formFloat(form map[string][]string, key string) (*float64, error) {
	s := formString(form, key)
	if s == nil || *s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, key)
	}
	return &f, nil
}

func formInt(form map[string][]string, key string) (*int, error) {
	s := formString(form, key)
	if s == nil || *s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a whole number", domain.ErrInvalidInput, key)
	}
	return &n, nil
}
