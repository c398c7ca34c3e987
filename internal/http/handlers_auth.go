package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"expensedash/internal/amqp"
	"expensedash/internal/api"
	"expensedash/internal/core"
	applog "expensedash/internal/log"
	"expensedash/internal/storage"
)

type demoProfile struct {
	Index    int
	Name     string
	Email    string
	Password string
}

var demoProfiles = []demoProfile{
	{Index: 0, Name: "John Doe", Email: "john.doe@example.com", Password: "User@123"},
	{Index: 1, Name: "Jane Smith", Email: "jane.smith@example.com", Password: "User@123"},
}

const msgNoToken = "No token received from server. Check console for details."

type authView struct {
	Email    string
	Password string
	Error    string
	Errors   core.ValidationErrors
	Info     string
	Demos    []demoProfile
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	view := authView{Demos: demoProfiles}
	q := r.URL.Query()
	if q.Get("registered") == "1" {
		view.Info = "Account created! Please sign in."
	}
	if i, err := strconv.Atoi(q.Get("demo")); err == nil && i >= 0 && i < len(demoProfiles) {
		view.Email = demoProfiles[i].Email
		view.Password = demoProfiles[i].Password
	}
	s.renderPage(w, r, http.StatusOK, "login", pageData{Title: "Sign in", View: view})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentAuth)

	values, err := parseRequestForm(w, r)
	if err != nil {
		s.renderPage(w, r, http.StatusBadRequest, "login", pageData{Title: "Sign in", View: authView{Demos: demoProfiles, Error: "Invalid request"}})
		return
	}
	var form core.LoginForm
	if err := decodeForm(values, &form); err != nil {
		s.renderPage(w, r, http.StatusBadRequest, "login", pageData{Title: "Sign in", View: authView{Demos: demoProfiles, Error: "Invalid request"}})
		return
	}
	form.Email = strings.ToLower(form.Email)
	view := authView{Email: form.Email, Demos: demoProfiles}

	if err := core.ValidateForm(form); err != nil {
		view.Errors = fieldErrors(err)
		s.renderPage(w, r, http.StatusUnprocessableEntity, "login", pageData{Title: "Sign in", View: view})
		return
	}

	// A 401 here means bad credentials, so it is shown like any other error.
	res, err := s.backend.Login(ctx, form.Email, form.Password)
	if err != nil {
		logger.WarnContext(ctx, "Login failed", applog.FieldOperation, applog.OpLogin, applog.FieldError, err)
		view.Error = api.Message(err, "Login failed")
		s.renderPage(w, r, http.StatusUnauthorized, "login", pageData{Title: "Sign in", View: view})
		return
	}
	if res.AccessToken == "" {
		logger.ErrorContext(ctx, "Login response carried no access token", applog.FieldOperation, applog.OpLogin)
		view.Error = msgNoToken
		s.renderPage(w, r, http.StatusBadGateway, "login", pageData{Title: "Sign in", View: view})
		return
	}

	user := core.User{Email: form.Email}
	switch {
	case res.User != nil:
		user = *res.User
	default:
		if me, err := s.backend.Me(ctx, res.AccessToken); err == nil {
			user = me
		} else {
			logger.WarnContext(ctx, "Fetching user after login failed", applog.FieldError, err)
		}
	}
	if user.Email == "" {
		user.Email = form.Email
	}

	sess, err := storage.NewSession(res.AccessToken, user, s.now(), s.opts.SessionTTL)
	if err == nil {
		err = s.sessions.Create(ctx, sess)
	}
	if err != nil {
		applog.NewStructuredLogger(logger).LogError(ctx, "Creating session failed", err, applog.OpLogin,
			applog.LogFields{applog.FieldErrorType: applog.ErrorTypeDatabase})
		view.Error = "Login failed"
		s.renderPage(w, r, http.StatusServiceUnavailable, "login", pageData{Title: "Sign in", View: view})
		return
	}
	s.setSessionCookie(w, sess)
	logger.InfoContext(ctx, "User signed in", applog.FieldOperation, applog.OpLogin, applog.FieldUser, user.Email)
	s.publish(ctx, amqp.NewActivityMessage(amqp.ActivityUserLoggedIn, user.Email))

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, "register", pageData{Title: "Create account", View: authView{}})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentAuth)

	values, err := parseRequestForm(w, r)
	var form core.RegisterForm
	if err == nil {
		err = decodeForm(values, &form)
	}
	if err != nil {
		s.renderPage(w, r, http.StatusBadRequest, "register", pageData{Title: "Create account", View: authView{Error: "Invalid request"}})
		return
	}
	form.Email = strings.ToLower(form.Email)
	view := authView{Email: form.Email}

	if err := core.ValidateForm(form); err != nil {
		view.Errors = fieldErrors(err)
		s.renderPage(w, r, http.StatusUnprocessableEntity, "register", pageData{Title: "Create account", View: view})
		return
	}

	if _, err := s.backend.Register(ctx, form.Email, form.Password); err != nil {
		logger.WarnContext(ctx, "Registration failed", applog.FieldOperation, applog.OpCreate, applog.FieldError, err)
		view.Error = api.Message(err, "Registration failed")
		status := http.StatusBadGateway
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			status = http.StatusUnprocessableEntity
		}
		s.renderPage(w, r, status, "register", pageData{Title: "Create account", View: view})
		return
	}

	logger.InfoContext(ctx, "User registered", applog.FieldUser, form.Email)
	s.publish(ctx, amqp.NewActivityMessage(amqp.ActivityUserRegistered, form.Email))
	http.Redirect(w, r, "/login?registered=1", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		s.forgetSession(r.Context(), c.Value)
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "User signed out", applog.FieldOperation, applog.OpLogout)
	s.clearSessionCookie(w)
	redirect(w, r, "/login")
}
