package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensedash/internal/core"
)

const testToken = "tok-1"

// backend is a canned expense API mounted under /api.
type backend struct {
	mu         sync.Mutex
	bodies     map[string]string
	rejectMe   bool
	noSchedule bool
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{bodies: map[string]string{}}
	srv := httptest.NewServer(http.StripPrefix("/api", http.HandlerFunc(b.serve)))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *backend) body(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[key]
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.bodies[r.Method+" "+r.URL.Path] = string(raw)
	rejectMe, noSchedule := b.rejectMe, b.noSchedule
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/auth/login" {
		form, _ := url.ParseQuery(string(raw))
		if form.Get("username") == "john.doe@example.com" && form.Get("password") == "User@123" {
			_, _ = io.WriteString(w, `{"access_token":"tok-1","token_type":"bearer"}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Incorrect email or password"}`)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+testToken || (rejectMe && r.URL.Path == "/auth/me") {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Could not validate credentials"}`)
		return
	}

	switch r.Method + " " + r.URL.Path {
	case "GET /auth/me":
		_, _ = io.WriteString(w, `{"id":7,"email":"john.doe@example.com"}`)
	case "GET /expenses/monthly/2025-01":
		_, _ = io.WriteString(w, `{
			"expenses":[
				{"expense_id":"e1","category":"Food","amount":12.5,"description":"Lunch","timestamp":"2025-01-15T12:30:00"},
				{"expense_id":"e2","category":"Travel","amount":40,"description":"Train","timestamp":"2025-01-18T08:00:00"}
			],
			"summary":{
				"monthly_total":52.5,
				"category_totals":{"Food":12.5,"Travel":40},
				"overspending_categories":{"Food":50},
				"suggested_budgets":{},
				"insights":["Travel is your top category"]
			}}`)
	case "GET /reports/monthly/2025-01":
		_, _ = io.WriteString(w, `{"total_spent":120,"pdf_report_url":"https://reports.example.com/r.pdf","csv_report_url":"","spending_spikes":[]}`)
	case "POST /lambda/trigger":
		_, _ = io.WriteString(w, `{"success":false,"error":"Function timed out","status_code":500}`)
	case "GET /lambda/status":
		_, _ = io.WriteString(w, `{"function_name":"report-generator","status":"Active","runtime":"python3.12","last_modified":"2025-01-10"}`)
	case "GET /settings/scheduler":
		if noSchedule {
			_, _ = io.WriteString(w, `{"running":false,"jobs":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"running":true,"schedule":{"day":1,"hour":6,"minute":0},"jobs":[{"id":"monthly_report","name":"Monthly report","next_run":"2025-02-01T06:00:00Z"}]}`)
	case "PUT /settings/scheduler/schedule":
		_, _ = io.WriteString(w, `{"message":"Schedule updated"}`)
	case "GET /settings/thresholds":
		_, _ = io.WriteString(w, `{"thresholds":{"Food":300,"Rent":900}}`)
	case "PUT /settings/thresholds":
		_, _ = w.Write(raw)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type cliEnv struct {
	backend   *backend
	baseURL   string
	tokenPath string
}

func newCLIEnv(t *testing.T, signedIn bool) *cliEnv {
	t.Helper()
	b, srv := newBackend(t)
	env := &cliEnv{
		backend:   b,
		baseURL:   srv.URL + "/api",
		tokenPath: filepath.Join(t.TempDir(), "expensedash", "token"),
	}
	if signedIn {
		require.NoError(t, tokenFile{path: env.tokenPath}.Save(testToken))
	}
	return env
}

func (e *cliEnv) run(stdin string, args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	full := append([]string{"-api", e.baseURL, "-token-file", e.tokenPath}, args...)
	err := run(full, strings.NewReader(stdin), stdout, stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_MissingCommand(t *testing.T) {
	env := newCLIEnv(t, false)
	_, stderr, err := env.run("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing command")
	assert.Contains(t, stderr, "Usage: expensectl")
}

func TestRun_UnknownCommand(t *testing.T) {
	env := newCLIEnv(t, true)
	_, _, err := env.run("", "budgets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "budgets"`)
}

func TestRun_LoginStoresToken(t *testing.T) {
	env := newCLIEnv(t, false)

	stdout, _, err := env.run("User@123\n", "login", "-email", "John.Doe@example.com")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Password: ")
	assert.Contains(t, stdout, "Signed in as john.doe@example.com")

	b, err := os.ReadFile(env.tokenPath)
	require.NoError(t, err)
	assert.Equal(t, "tok-1\n", string(b))

	info, err := os.Stat(env.tokenPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRun_LoginBadCredentials(t *testing.T) {
	env := newCLIEnv(t, false)

	_, _, err := env.run("", "login", "-email", "john.doe@example.com", "-password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Incorrect email or password", err.Error())

	_, statErr := os.Stat(env.tokenPath)
	assert.True(t, os.IsNotExist(statErr), "no token should be stored")
}

func TestRun_LoginValidation(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantErr string
	}{
		{name: "missing email", args: []string{"login"}, wantErr: "missing required flags: email"},
		{name: "empty password", stdin: "   \n", args: []string{"login", "-email", "a@b.co"}, wantErr: "password cannot be empty"},
		{name: "no input", args: []string{"login", "-email", "a@b.co"}, wantErr: "failed to read password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t, false)
			_, _, err := env.run(tt.stdin, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_RequiresSignIn(t *testing.T) {
	env := newCLIEnv(t, false)
	_, _, err := env.run("", "me")
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestRun_Me(t *testing.T) {
	env := newCLIEnv(t, true)
	stdout, _, err := env.run("", "me")
	require.NoError(t, err)
	assert.Contains(t, stdout, "john.doe@example.com")
	assert.Regexp(t, `ID\s+7`, stdout)
}

func TestRun_ExpiredSessionRemovesToken(t *testing.T) {
	env := newCLIEnv(t, true)
	env.backend.rejectMe = true

	_, _, err := env.run("", "me")
	require.Error(t, err)
	assert.Equal(t, "session expired, run `expensectl login`", err.Error())

	_, statErr := os.Stat(env.tokenPath)
	assert.True(t, os.IsNotExist(statErr), "token should be deleted")
}

func TestRun_Logout(t *testing.T) {
	env := newCLIEnv(t, true)
	stdout, _, err := env.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed out")

	_, statErr := os.Stat(env.tokenPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_Expenses(t *testing.T) {
	env := newCLIEnv(t, true)

	stdout, _, err := env.run("", "expenses", "-month", "2025-01")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Expenses · January 2025")
	assert.Contains(t, stdout, "Lunch")
	assert.Contains(t, stdout, "€12.50")
	assert.Contains(t, stdout, "€52.50")
	assert.Contains(t, stdout, "Over budget: Food €50.00")
	assert.Contains(t, stdout, "Travel is your top category")

	// Newest first.
	assert.Less(t, strings.Index(stdout, "Train"), strings.Index(stdout, "Lunch"))
}

func TestRun_ExpensesInvalidMonth(t *testing.T) {
	env := newCLIEnv(t, true)
	_, _, err := env.run("", "expenses", "-month", "2025-13")
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
}

func TestRun_Report(t *testing.T) {
	env := newCLIEnv(t, true)
	stdout, _, err := env.run("", "report", "-month", "2025-01")
	require.NoError(t, err)
	assert.Contains(t, stdout, "€120.00")
	assert.Contains(t, stdout, "https://reports.example.com/r.pdf")
	assert.NotContains(t, stdout, "CSV")
	assert.Contains(t, stdout, "No spikes detected")
}

func TestRun_Lambda(t *testing.T) {
	env := newCLIEnv(t, true)

	stdout, _, err := env.run("", "lambda", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "report-generator")
	assert.Contains(t, stdout, "Active")
	assert.NotContains(t, stdout, "Scheduler")

	stdout, _, err = env.run("", "lambda", "trigger")
	require.Error(t, err)
	assert.Contains(t, stdout, "Lambda invocation failed")
	assert.Contains(t, stdout, "Function timed out")
	assert.Contains(t, stdout, "500")

	_, _, err = env.run("", "lambda")
	require.Error(t, err)
}

func TestRun_SchedulerStatus(t *testing.T) {
	env := newCLIEnv(t, true)
	stdout, _, err := env.run("", "scheduler", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Running")
	assert.Contains(t, stdout, "Day 1 at 06:00 UTC")
	assert.Contains(t, stdout, "Upcoming #3")
	assert.Contains(t, stdout, "Monthly report")
}

func TestRun_SchedulerStatusWithoutSchedule(t *testing.T) {
	env := newCLIEnv(t, true)
	env.backend.noSchedule = true

	stdout, _, err := env.run("", "scheduler", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Stopped")
	assert.NotContains(t, stdout, "Day 1 at 06:00 UTC")
	assert.NotContains(t, stdout, "Upcoming")
}

func TestRun_SchedulerSet(t *testing.T) {
	env := newCLIEnv(t, true)

	stdout, _, err := env.run("", "scheduler", "set", "-day", "15", "-hour", "7", "-minute", "30")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Schedule updated")
	assert.JSONEq(t, `{"day":15,"hour":7,"minute":30}`, env.backend.body("PUT /settings/scheduler/schedule"))
}

func TestRun_SchedulerSetRejectsOutOfRange(t *testing.T) {
	env := newCLIEnv(t, true)

	_, _, err := env.run("", "scheduler", "set", "-day", "40")
	assert.ErrorIs(t, err, core.ErrInvalidSchedule)
	assert.Empty(t, env.backend.body("PUT /settings/scheduler/schedule"))
}

func TestRun_Thresholds(t *testing.T) {
	env := newCLIEnv(t, true)

	stdout, _, err := env.run("", "thresholds")
	require.NoError(t, err)
	assert.Contains(t, stdout, "€300.00")
	assert.Contains(t, stdout, "not set")

	stdout, _, err = env.run("", "thresholds", "set", "Travel=150", "Rent=")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Thresholds updated")
	assert.Contains(t, stdout, "€150.00")

	var sent struct {
		Thresholds map[string]float64 `json:"thresholds"`
	}
	require.NoError(t, json.Unmarshal([]byte(env.backend.body("PUT /settings/thresholds")), &sent))
	assert.Equal(t, map[string]float64{"Food": 300, "Travel": 150}, sent.Thresholds)
}

func TestMergeThresholds(t *testing.T) {
	current := core.Thresholds{"Food": decimal.NewFromInt(300)}

	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr string
	}{
		{name: "add", pairs: []string{"Rent=900"}, want: map[string]string{"Food": "300", "Rent": "900"}},
		{name: "clear", pairs: []string{"Food="}, want: map[string]string{}},
		{name: "zero kept", pairs: []string{"Food=0"}, want: map[string]string{"Food": "0"}},
		{name: "no pairs", wantErr: "usage"},
		{name: "missing equals", pairs: []string{"Food"}, wantErr: "want Category=amount"},
		{name: "unknown category", pairs: []string{"Pets=10"}, wantErr: `unknown category "Pets"`},
		{name: "negative", pairs: []string{"Food=-5"}, wantErr: "Food threshold must be a positive amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mergeThresholds(current, tt.pairs)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			flat := map[string]string{}
			for k, v := range got {
				flat[k] = v.String()
			}
			assert.Equal(t, tt.want, flat)
			assert.True(t, current["Food"].Equal(decimal.NewFromInt(300)), "input must not be modified")
		})
	}
}
