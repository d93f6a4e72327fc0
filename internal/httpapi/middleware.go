package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/americansport/gymgate/internal/gate/service"
)

func loggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Str("from", r.RemoteAddr).
				Str("request_id", middleware.GetReqID(r.Context())).
				Dur("dur", time.Since(start)).
				Msg("http request")
		})
	}
}

type identityKey struct{}

// callerFrom returns the identity the auth middleware attached to ctx.
func callerFrom(ctx context.Context) service.Identity {
	id, _ := ctx.Value(identityKey{}).(service.Identity)
	return id
}

// authenticate resolves the request's basic-auth credentials.  On failure
// it has already written the response.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (service.Identity, bool) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		unauthorized(w)
		return service.Identity{}, false
	}

	id, err := s.identities.ResolveIdentity(r.Context(), user, pass)
	switch {
	case errors.Is(err, service.ErrBadCredentials):
		unauthorized(w)
		return service.Identity{}, false
	case err != nil:
		s.logger.Error().Err(err).Msg("basic auth failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return service.Identity{}, false
	}
	return id, true
}

// adminOnly admits requests whose basic-auth credentials resolve to an
// admin account.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		if !id.Admin {
			writeError(w, http.StatusForbidden, "forbidden", "admin account required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

// selfOrAdmin admits admins, and members asking about their own memberID.
func (s *Server) selfOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		if !id.Admin && (!id.IsMember() || id.MemberID != chi.URLParam(r, "memberID")) {
			writeError(w, http.StatusForbidden, "forbidden", "members may only view their own session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="gymgate"`)
	writeError(w, http.StatusUnauthorized, "unauthorized", "credentials required")
}
