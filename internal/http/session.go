package http

import (
	"context"
	"errors"
	"net/http"

	"expensedash/internal/api"
	applog "expensedash/internal/log"
	"expensedash/internal/storage"
)

const sessionCookie = "session"

type ctxKey int

const sessionKey ctxKey = iota

func withSession(ctx context.Context, sess *storage.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// sessionFrom returns the session attached by requireSession, or nil.
func sessionFrom(ctx context.Context) *storage.Session {
	sess, _ := ctx.Value(sessionKey).(*storage.Session)
	return sess
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess *storage.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(sess.ExpiresAt.Sub(s.now()).Seconds()),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// lookupSession resolves the request cookie. Missing, unknown and expired
// sessions all yield storage.ErrSessionNotFound or ErrSessionExpired.
func (s *Server) lookupSession(r *http.Request) (*storage.Session, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil, storage.ErrSessionNotFound
	}
	sess, err := s.sessions.Get(r.Context(), c.Value)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		_ = s.sessions.Delete(r.Context(), sess.ID)
		return nil, storage.ErrSessionExpired
	}
	return sess, nil
}

// requireSession loads the session, renews it when past half its lifetime and
// refreshes the cached user when it is stale.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, err := s.lookupSession(r)
		if err != nil {
			if errors.Is(err, storage.ErrUnseal) {
				s.logger.WarnContext(ctx, "Discarding unreadable session", applog.FieldError, err)
				err = storage.ErrSessionNotFound
			}
			if !errors.Is(err, storage.ErrSessionNotFound) && !errors.Is(err, storage.ErrSessionExpired) {
				s.logger.ErrorContext(ctx, "Session lookup failed",
					applog.FieldErrorType, applog.ErrorTypeDatabase, applog.FieldError, err)
				http.Error(w, "Session store unavailable", http.StatusServiceUnavailable)
				return
			}
			s.clearSessionCookie(w)
			redirect(w, r, "/login")
			return
		}

		now := s.now()
		dirty := false
		if sess.NeedsRenewal(now, s.opts.SessionTTL) {
			sess.Renew(now, s.opts.SessionTTL)
			s.setSessionCookie(w, sess)
			dirty = true
		}
		if sess.NeedsUserRefresh(now, s.opts.UserRefreshInterval) {
			user, err := s.backend.Me(ctx, sess.Token)
			switch {
			case api.IsUnauthorized(err):
				s.unauthorized(w, r.WithContext(withSession(ctx, sess)))
				return
			case err != nil:
				s.logger.WarnContext(ctx, "User refresh failed, keeping cached user", applog.FieldError, err)
			default:
				sess.User = user
				sess.UserRefreshedAt = now.UTC()
				dirty = true
			}
		}
		if dirty {
			if err := s.sessions.Update(ctx, sess); err != nil {
				s.logger.WarnContext(ctx, "Session update failed", applog.FieldError, err)
			}
		}

		logger := applog.FromContext(ctx).With(applog.FieldUser, sess.User.Email)
		ctx = applog.NewContext(withSession(ctx, sess), logger)
		next(w, r.WithContext(ctx))
	}
}

// unauthorized runs the backend 401 flow: the session is dropped with
// everything cached for it and the browser is sent to /login.
func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sess := sessionFrom(ctx); sess != nil {
		s.forgetSession(ctx, sess.ID)
	}
	s.metrics.AuthRedirects.Add(1)
	s.logger.InfoContext(ctx, "Backend rejected token, signing out",
		applog.FieldErrorType, applog.ErrorTypeAuth)
	s.clearSessionCookie(w)
	redirect(w, r, "/login")
}

func (s *Server) forgetSession(ctx context.Context, id string) {
	if err := s.sessions.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		s.logger.WarnContext(ctx, "Session delete failed", applog.FieldError, err)
	}
	s.monthCache.DeletePrefix(id + "|")
	s.dismissed.Delete(id)
	s.flashes.Delete(id)
}

// backendFailed handles a failed backend call. On 401 it writes the redirect
// and returns ("", true); otherwise it returns the message to show.
func (s *Server) backendFailed(w http.ResponseWriter, r *http.Request, err error, fallback string) (string, bool) {
	if api.IsUnauthorized(err) {
		s.unauthorized(w, r)
		return "", true
	}
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Backend call failed",
		applog.FieldErrorType, applog.ErrorTypeUpstream, applog.FieldError, err)
	return api.Message(err, fallback), false
}

func (s *Server) setFlash(sessionID, msg string) {
	s.flashes.Set(sessionID, msg)
}

func (s *Server) popFlash(sessionID string) string {
	msg, ok := s.flashes.Get(sessionID)
	if ok {
		s.flashes.Delete(sessionID)
	}
	return msg
}
