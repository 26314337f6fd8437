package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"locker/internal/auth"
)

// ResponseWriterWrapper is a wrapper around the default http.ResponseWriter.
// It intercepts the WriteHeader call and saves the response status code.
type ResponseWriterWrapper struct {
	http.ResponseWriter
	WrittenResponseCode int
	BytesWritten        int64
}

// WriteHeader intercepts the status code and stores it, then calls the original WriteHeader.
func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write calls the underlying ResponseWriter's Write method.
func (w *ResponseWriterWrapper) Write(b []byte) (int, error) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.BytesWritten += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *ResponseWriterWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type LogEntry struct {
	IP         string
	User       string
	Method     string
	URL        string
	Proto      string
	DurationMS float64
	StatusCode int
	Bytes      int64
}

func (e LogEntry) UserAttr() slog.Attr {
	return slog.Group("user", "ip", e.IP, "name", e.User)
}

func (e LogEntry) Request() slog.Attr {
	return slog.Group("request",
		"proto", e.Proto,
		"method", e.Method,
		"url", e.URL,
		"duration_ms", e.DurationMS,
		"status_code", e.StatusCode,
		"bytes", e.Bytes,
	)
}

type userSlotKey struct{}

func withUserSlot(ctx context.Context, slot **auth.User) context.Context {
	return context.WithValue(ctx, userSlotKey{}, slot)
}

func setUserSlot(ctx context.Context, u *auth.User) {
	if slot, ok := ctx.Value(userSlotKey{}).(**auth.User); ok {
		*slot = u
	}
}

// LogRequest is middleware that logs incoming HTTP requests.
func (s *Server) LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		entry := LogEntry{
			IP:     r.RemoteAddr,
			Method: r.Method,
			URL:    r.URL.String(),
			Proto:  r.Proto,
		}

		writer := ResponseWriterWrapper{ResponseWriter: w}

		// Handlers record the authenticated user here so it can be logged.
		var user *auth.User
		r = r.WithContext(withUserSlot(r.Context(), &user))

		start := time.Now()
		next.ServeHTTP(&writer, r)
		elapsed := time.Since(start).Nanoseconds()

		entry.DurationMS = float64(elapsed) / float64(time.Millisecond)
		entry.StatusCode = writer.WrittenResponseCode
		entry.Bytes = writer.BytesWritten
		if user != nil {
			entry.User = user.Name
		}

		switch {
		case writer.WrittenResponseCode >= 500:
			slog.Error("Request", entry.UserAttr(), entry.Request())
		case writer.WrittenResponseCode >= 400:
			slog.Warn("Request", entry.UserAttr(), entry.Request())
		default:
			slog.Info("Request", entry.UserAttr(), entry.Request())
		}
	})
}

// RequireAuthentication guards a handler with the configured AuthEngine. It
// is a no-op when no engine is configured.
func (s *Server) RequireAuthentication(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Config.Authenticator == nil {
			next(w, r)
			return
		}

		ctx := r.Context()

		user, err := s.Config.Authenticator.AuthenticateRequest(ctx, r)
		if err != nil {
			slog.Warn("Authentication failed", "err", err)
		}
		if user == nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="locker"`)
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
			return
		}

		setUserSlot(ctx, user)
		next(w, r.WithContext(auth.WithUser(ctx, user)))
	}
}

func (s *Server) SlashFix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Replace all occurrences of "//" with "/" in the URL path
		r.URL.Path = strings.ReplaceAll(r.URL.Path, "//", "/")

		if r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "/")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					// we don't recover http.ErrAbortHandler so the response
					// to the client is aborted, this should not be logged
					panic(rvr)
				}

				slog.Error("Internal Error in HTTP handler", "error", rvr, "path", r.URL.Path)

				if r.Header.Get("Connection") != "Upgrade" {
					writeInternalError(w)
				}
			}
		}()

		next.ServeHTTP(w, r)
	})
}
