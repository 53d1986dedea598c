package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/npezzotti/ravenchat/internal/connect"
	"github.com/npezzotti/ravenchat/internal/database"
	"go.uber.org/zap"
)

const noStore = "no-store, no-cache, must-revalidate, private"

// recoverPanics turns a panicking handler into a 500 and closes the
// connection, since the response may be half written.
func (s *App) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}

			err, ok := v.(error)
			if !ok {
				err = fmt.Errorf("%v", v)
			}
			s.log.Error("handler panicked", zap.Error(err), zap.String("method", r.Method), zap.String("path", r.URL.Path))

			w.Header().Set("Connection", "close")
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
		}()

		next.ServeHTTP(w, r)
	})
}

// requireSession resolves the session cookie to a registered user and
// stores it on the request context for the wrapped handler.
func (s *App) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.sessionUser(r)
		switch {
		case errors.Is(err, errNoSession):
			s.unauthorized(w)
			return
		case errors.Is(err, connect.ErrNotFound):
			s.log.Info("session for unknown user", zap.Error(err))
			s.unauthorized(w)
			return
		case err != nil:
			s.writeError(w, r, err)
			return
		}

		w.Header().Set("Cache-Control", noStore)
		next(w, r.WithContext(WithRequester(r.Context(), user)))
	}
}

var errNoSession = errors.New("no valid session")

func (s *App) sessionUser(r *http.Request) (database.User, error) {
	cookie, err := r.Cookie(tokenCookieKey)
	if err != nil {
		return database.User{}, errNoSession
	}

	id, err := s.extractUserIdFromToken(cookie.Value)
	if err != nil {
		s.log.Info("rejected session token", zap.Error(err))
		return database.User{}, errNoSession
	}

	user, err := s.svc.GetUser(r.Context(), id)
	if err != nil {
		return database.User{}, fmt.Errorf("user %d: %w", id, err)
	}

	return user, nil
}

func (s *App) unauthorized(w http.ResponseWriter) {
	errResp := NewUnauthorizedError()
	s.writeJson(w, errResp.StatusCode, errResp)
}
