package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// Enabled controls whether validation is active
	Enabled bool
	// Document is the OpenAPI document. DocumentPath is read instead when set.
	Document     []byte
	DocumentPath string
	// ValidateRequests enables request validation
	ValidateRequests bool
	// ValidateResponses enables response validation (impacts performance)
	ValidateResponses bool
}

// DefaultOpenAPIValidatorConfig validates requests against doc.
func DefaultOpenAPIValidatorConfig(doc []byte) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:           true,
		Document:          doc,
		ValidateRequests:  true,
		ValidateResponses: false, // Disabled by default for performance
	}
}

// LoadOpenAPI loads and validates the document described by config.
func LoadOpenAPI(config *OpenAPIValidatorConfig) (*openapi3.T, error) {
	loader := openapi3.NewLoader()

	var (
		doc *openapi3.T
		err error
	)
	if config.DocumentPath != "" {
		doc, err = loader.LoadFromFile(config.DocumentPath)
	} else {
		doc, err = loader.LoadFromData(config.Document)
	}
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}
	return doc, nil
}

// OpenAPIValidator validates JSON request bodies against the OpenAPI
// document. Requests for routes the document does not describe, and
// multipart uploads, pass through to the handlers.
func OpenAPIValidator(config *OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	noop := func(next http.Handler) http.Handler { return next }

	if config == nil || !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return noop
	}

	doc, err := LoadOpenAPI(config)
	if err != nil {
		slog.Error("failed to load OpenAPI document", slog.String("error", err.Error()))
		// Return no-op middleware on error to avoid breaking the app
		return noop
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		slog.Error("failed to create OpenAPI router", slog.String("error", err.Error()))
		return noop
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_requests", config.ValidateRequests),
		slog.Bool("validate_responses", config.ValidateResponses))

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isJSON(r) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if config.ValidateRequests {
				input := &openapi3filter.RequestValidationInput{
					Request:    r,
					PathParams: pathParams,
					Route:      route,
					Options:    options,
				}

				if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
					slog.Warn("request validation failed",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()))
					writeJSONError(w, http.StatusBadRequest, validationMessage(err))
					return
				}
			}

			if !config.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(recorder, r)
			validateResponse(r, route, pathParams, recorder, options)
		})
	}
}

func validateResponse(r *http.Request, route *routers.Route, pathParams map[string]string, rec *responseRecorder, options *openapi3filter.Options) {
	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
		},
		Status:  rec.statusCode,
		Header:  rec.Header(),
		Body:    io.NopCloser(bytes.NewReader(rec.body)),
		Options: options,
	}

	// The response is already sent; failures are only logged.
	if err := openapi3filter.ValidateResponse(r.Context(), input); err != nil {
		slog.Warn("response validation failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.statusCode),
			slog.String("error", err.Error()))
	}
}

// isJSON reports whether the request carries a JSON body.
func isJSON(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && (mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"))
}

// validationMessage keeps the first line of the filter error; the rest is a
// schema dump.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = msg[:i]
	}
	return "Request validation failed: " + msg
}

// responseRecorder wraps http.ResponseWriter to capture response data
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}
