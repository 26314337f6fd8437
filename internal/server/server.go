package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"locker/internal/assets"

	"github.com/go-playground/validator/v10"
)

// Error codes the HTTP layer adds to those of package assets.
const (
	CodeInvalidRequest = "invalid_request"
	CodeMissingFile    = "missing_file"
	CodeUnauthorized   = "unauthorized"
	CodeInternalError  = "internal_error"
)

const (
	maxFieldBytes    = 1024
	maxJSONBodyBytes = 64 * 1024
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Server is the HTTP front end of an asset store.
type Server struct {
	Config Config
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewServer checks cfg, fills defaults and returns a new Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("asset store must not be nil")
	}

	if cfg.PublicPrefix == "" {
		cfg.PublicPrefix = "/uploads"
	}
	cfg.PublicPrefix = "/" + strings.Trim(cfg.PublicPrefix, "/")
	if cfg.PublicPrefix == "/" || cfg.PublicPrefix == "/api" {
		return nil, fmt.Errorf("public prefix %q collides with other routes", cfg.PublicPrefix)
	}

	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = assets.MaxUploadBytes + assets.MiB
	}

	return &Server{Config: cfg}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeInternalError writes a generic 500 response.
func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, CodeInternalError, "We encountered an internal error. Please try again.")
}

// statusFor maps an asset error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, assets.ErrValidation), errors.Is(err, assets.ErrMissingEntity):
		return http.StatusBadRequest
	case errors.Is(err, assets.ErrPathTraversal):
		return http.StatusForbidden
	case errors.Is(err, assets.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeAssetError writes the client-facing form of err. Causes are logged
// but never sent, since they may contain filesystem paths.
func writeAssetError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *assets.Error
	if !errors.As(err, &ae) {
		slog.Error("Unhandled error", "path", r.URL.Path, "err", err)
		writeInternalError(w)
		return
	}

	status := statusFor(ae)
	if status >= http.StatusInternalServerError {
		slog.Error("Asset storage failure", "path", r.URL.Path, "code", ae.Code, "err", err)
	}
	writeError(w, status, ae.Code, ae.Message)
}

// decodeJSON reads a small JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Sprintf("%s is invalid (%s)", e.Field(), e.Tag())
	}
	return err.Error()
}
