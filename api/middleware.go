package api

import (
	"crypto/subtle"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/errs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// authMiddleware admits requests carrying the shared admin token. Admitted
// requests act as identity.
type authMiddleware struct {
	responder Responder
	token     []byte
	identity  string
}

func newAuthMiddleware(token, identity string) authMiddleware {
	logger := log.With().Str("handlerName", "authMiddleware").Logger()
	if identity == "" {
		identity = database.DefaultActor
	}
	return authMiddleware{
		responder: NewResponder(logger),
		token:     []byte(token),
		identity:  identity,
	}
}

func (m authMiddleware) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented, ok := bearerToken(r)
		if !ok || len(m.token) == 0 || subtle.ConstantTimeCompare([]byte(presented), m.token) != 1 {
			m.responder.WriteError(w, errs.Unauthorized)
			return
		}

		ctx := database.ContextWithActor(r.Context(), m.identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type statusResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.status = statusCode
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(statusCode)
	}
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// LogInternalServerErrors recovers panics into a 500 and logs every 500 response.
func LogInternalServerErrors(next http.Handler) http.Handler {
	responder := NewResponder(log.With().Str("handlerName", "recoverer").Logger())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Error().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", err).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic")

				// Write 500 if nothing written yet
				if !srw.wroteHeader {
					responder.WriteError(srw, errs.NewInternalError("unexpected failure"))
				}
			}
		}()

		next.ServeHTTP(srw, r)

		if srw.status == http.StatusInternalServerError {
			log.Error().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("500 error response")
		}
	})
}

// HTTPLoggingMiddleware logs every request, at a level chosen from the status class.
func HTTPLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(srw, r)

		var logEvent *zerolog.Event
		switch {
		case srw.status >= 500:
			logEvent = log.Error()
		case srw.status >= 400:
			logEvent = log.Warn()
		default:
			logEvent = log.Info()
		}

		logEvent.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", srw.status).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP Request")
	})
}
