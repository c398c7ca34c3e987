package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"expensedash/internal/amqp"
	"expensedash/internal/api"
	"expensedash/internal/core"
	"expensedash/internal/storage"
)

var testNow = time.Date(2025, time.January, 20, 10, 0, 0, 0, time.UTC)

// fakeBackend is an in-memory stand-in for the expense backend. Calls with a
// token other than the current one fail with 401.
type fakeBackend struct {
	mu sync.Mutex

	token    string
	password string
	user     core.User

	expenses      map[string]core.Expense
	nextID        int
	insights      []string
	overspending  map[string]decimal.Decimal
	notifications []core.Notification
	thresholds    core.Thresholds
	scheduler     core.SchedulerStatus
	lambda        core.LambdaStatus
	trigger       core.TriggerResult
	report        core.Report

	monthCalls int
	lastInput  core.ExpenseInput
	fail       map[string]error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		token:    "tok-1",
		password: "User@123",
		user:     core.User{ID: "u1", Email: "john.doe@example.com"},
		expenses: map[string]core.Expense{
			"e1": {ExpenseID: "e1", Category: "Food", Amount: decimal.RequireFromString("12.50"), Description: "Lunch", Timestamp: "2025-01-15T12:30:00"},
		},
		nextID:       1,
		insights:     []string{"Food is your top category"},
		overspending: map[string]decimal.Decimal{},
		notifications: []core.Notification{
			{ID: "n1", Severity: "danger", Title: "Food budget exceeded", Message: "You spent more than planned"},
			{ID: "n2", Severity: "critical", Title: "Weekly digest", Message: "Three new expenses"},
		},
		thresholds: core.Thresholds{"Food": decimal.NewFromInt(300)},
		scheduler: core.SchedulerStatus{
			Running:  true,
			Schedule: core.Schedule{Day: 1, Hour: 6, Minute: 0, NextRun: "2025-02-01T06:00:00"},
			Jobs:     []core.Job{{ID: "j1", Name: "monthly_report", NextRun: "2025-02-01T06:00:00"}},
		},
		lambda:  core.LambdaStatus{FunctionName: "report-generator", Status: "Active", Runtime: "python3.11", LastModified: "2025-01-10T08:00:00"},
		trigger: core.TriggerResult{Success: true, StatusCode: 200, Result: []byte(`"report queued"`)},
		report: core.Report{
			TotalSpent:   decimal.NewFromInt(120),
			PDFReportURL: "https://reports.example.com/2025-01.pdf",
			CSVReportURL: "https://reports.example.com/2025-01.csv",
		},
		fail: map[string]error{},
	}
}

func unauthorizedErr() error {
	return &api.Error{StatusCode: http.StatusUnauthorized, Detail: "Could not validate credentials"}
}

// check returns the configured failure for op, or a 401 for a stale token.
func (f *fakeBackend) check(op, token string) error {
	if err := f.fail[op]; err != nil {
		return err
	}
	if token != f.token {
		return unauthorizedErr()
	}
	return nil
}

func (f *fakeBackend) setFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakeBackend) Register(_ context.Context, email, _ string) (core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["Register"]; err != nil {
		return core.User{}, err
	}
	if email == f.user.Email {
		return core.User{}, &api.Error{StatusCode: http.StatusBadRequest, Detail: "Email already registered"}
	}
	return core.User{Email: email}, nil
}

func (f *fakeBackend) Login(_ context.Context, email, password string) (api.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["Login"]; err != nil {
		return api.LoginResult{}, err
	}
	if email != f.user.Email || password != f.password {
		return api.LoginResult{}, &api.Error{StatusCode: http.StatusUnauthorized, Detail: "Incorrect email or password"}
	}
	return api.LoginResult{AccessToken: f.token, TokenType: "bearer"}, nil
}

func (f *fakeBackend) Me(_ context.Context, token string) (core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("Me", token); err != nil {
		return core.User{}, err
	}
	return f.user, nil
}

func (f *fakeBackend) CreateExpense(_ context.Context, token string, in core.ExpenseInput) (core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("CreateExpense", token); err != nil {
		return core.Expense{}, err
	}
	f.nextID++
	e := expenseFrom("e"+strconv.Itoa(f.nextID), in)
	f.expenses[e.Key()] = e
	f.lastInput = in
	return e, nil
}

func (f *fakeBackend) MonthExpenses(_ context.Context, token string, m core.Month) (core.MonthData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monthCalls++
	if err := f.check("MonthExpenses", token); err != nil {
		return core.MonthData{}, err
	}
	data := core.MonthData{Summary: core.Summary{
		CategoryTotals:         map[string]decimal.Decimal{},
		OverspendingCategories: f.overspending,
		SuggestedBudgets:       map[string]decimal.Decimal{},
	}}
	for _, e := range f.expenses {
		if !m.Contains(e.Time()) {
			continue
		}
		data.Expenses = append(data.Expenses, e)
		data.Summary.MonthlyTotal = data.Summary.MonthlyTotal.Add(e.Amount)
		data.Summary.CategoryTotals[e.Category] = data.Summary.CategoryTotals[e.Category].Add(e.Amount)
	}
	if len(data.Expenses) > 0 {
		for _, text := range f.insights {
			data.Summary.Insights = append(data.Summary.Insights, []byte(strconv.Quote(text)))
		}
	}
	return data, nil
}

func (f *fakeBackend) UpdateExpense(_ context.Context, token, id string, in core.ExpenseInput) (core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("UpdateExpense", token); err != nil {
		return core.Expense{}, err
	}
	if _, ok := f.expenses[id]; !ok {
		return core.Expense{}, &api.Error{StatusCode: http.StatusNotFound, Detail: "Expense not found"}
	}
	e := expenseFrom(id, in)
	f.expenses[id] = e
	f.lastInput = in
	return e, nil
}

func (f *fakeBackend) DeleteExpense(_ context.Context, token, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DeleteExpense", token); err != nil {
		return err
	}
	delete(f.expenses, id)
	return nil
}

func (f *fakeBackend) MonthlyReport(_ context.Context, token string, _ core.Month) (core.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("MonthlyReport", token); err != nil {
		return core.Report{}, err
	}
	return f.report, nil
}

func (f *fakeBackend) TriggerLambda(_ context.Context, token string) (core.TriggerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("TriggerLambda", token); err != nil {
		return core.TriggerResult{}, err
	}
	return f.trigger, nil
}

func (f *fakeBackend) LambdaStatus(_ context.Context, token string) (core.LambdaStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("LambdaStatus", token); err != nil {
		return core.LambdaStatus{}, err
	}
	return f.lambda, nil
}

func (f *fakeBackend) Notifications(_ context.Context, token string, _ core.Month) (core.NotificationList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("Notifications", token); err != nil {
		return core.NotificationList{}, err
	}
	list := make([]core.Notification, len(f.notifications))
	copy(list, f.notifications)
	return core.NotificationList{Count: len(list), Notifications: list}, nil
}

func (f *fakeBackend) SchedulerStatus(_ context.Context, token string) (core.SchedulerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("SchedulerStatus", token); err != nil {
		return core.SchedulerStatus{}, err
	}
	return f.scheduler, nil
}

func (f *fakeBackend) StartScheduler(_ context.Context, token string) (core.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("StartScheduler", token); err != nil {
		return core.ActionResult{}, err
	}
	f.scheduler.Running = true
	return core.ActionResult{}, nil
}

func (f *fakeBackend) StopScheduler(_ context.Context, token string) (core.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("StopScheduler", token); err != nil {
		return core.ActionResult{}, err
	}
	f.scheduler.Running = false
	return core.ActionResult{Message: "Scheduler paused"}, nil
}

func (f *fakeBackend) UpdateSchedule(_ context.Context, token string, s core.Schedule) (core.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("UpdateSchedule", token); err != nil {
		return core.ActionResult{}, err
	}
	f.scheduler.Schedule = s
	return core.ActionResult{}, nil
}

func (f *fakeBackend) Thresholds(_ context.Context, token string) (core.Thresholds, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("Thresholds", token); err != nil {
		return nil, err
	}
	return f.thresholds, nil
}

func (f *fakeBackend) UpdateThresholds(_ context.Context, token string, th core.Thresholds) (core.Thresholds, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("UpdateThresholds", token); err != nil {
		return nil, err
	}
	f.thresholds = th
	return th, nil
}

func expenseFrom(id string, in core.ExpenseInput) core.Expense {
	return core.Expense{
		ExpenseID:   core.ID(id),
		Category:    in.Category,
		Amount:      decimal.NewFromFloat(in.Amount),
		Description: in.Description,
		Timestamp:   in.Timestamp,
	}
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ActivityMessage
	err  error
}

func (p *fakePublisher) PublishActivity(_ context.Context, msg *amqp.ActivityMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) types() []amqp.ActivityType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.ActivityType, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Type)
	}
	return out
}

type testEnv struct {
	srv     *Server
	store   *storage.MemoryStore
	pub     *fakePublisher
	backend *fakeBackend
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	fb := newFakeBackend()
	env := newTestEnvWith(t, fb, mutate...)
	env.backend = fb
	return env
}

func newTestEnvWith(t *testing.T, backend Backend, mutate ...func(*Options)) *testEnv {
	t.Helper()
	opts := Options{Addr: ":0", SessionTTL: 24 * time.Hour, MonthCacheTTL: time.Minute, RateLimitPerMinute: 100}
	for _, fn := range mutate {
		fn(&opts)
	}
	store := storage.NewMemoryStore().WithClock(func() time.Time { return testNow })
	pub := &fakePublisher{}
	srv, err := NewServer(opts, Deps{Backend: backend, Sessions: store, Publisher: pub})
	require.NoError(t, err)
	srv.now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, pub: pub}
}

// signIn stores a session for the fake backend's user and returns its cookie.
func (e *testEnv) signIn(t *testing.T, token string) (*http.Cookie, *storage.Session) {
	t.Helper()
	sess, err := storage.NewSession(token, core.User{Email: "john.doe@example.com"}, testNow, 24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, e.store.Create(context.Background(), sess))
	return &http.Cookie{Name: sessionCookie, Value: sess.ID}, sess
}

type reqOpt func(*http.Request)

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func asHTMX() reqOpt {
	return func(r *http.Request) { r.Header.Set("HX-Request", "true") }
}

func (e *testEnv) do(method, target string, form url.Values, opts ...reqOpt) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	e.srv.publishing.Wait()
	return rec
}

func sessionCookieFrom(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	return nil
}
