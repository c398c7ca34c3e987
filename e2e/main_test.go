//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"expensedash/internal/api"
	apphttp "expensedash/internal/http"
	"expensedash/internal/storage"
)

var appURL string

func TestMain(m *testing.M) {
	os.Exit(runTestMain(m))
}

// runTestMain serves the dashboard in-process against an in-memory backend.
func runTestMain(m *testing.M) int {
	backend := httptest.NewServer(newFakeAPI().routes())
	defer backend.Close()

	srv, err := apphttp.NewServer(apphttp.Options{
		SessionTTL:         time.Hour,
		MonthCacheTTL:      time.Second,
		RateLimitPerMinute: 1000,
	}, apphttp.Deps{
		Backend:  api.New(backend.URL+"/api", 5*time.Second),
		Sessions: storage.NewMemoryStore(),
	})
	if err != nil {
		fmt.Printf("Failed to build app: %v\n", err)
		return 1
	}
	app := httptest.NewServer(srv.Handler)
	defer app.Close()
	appURL = app.URL

	return m.Run()
}

const (
	demoEmail    = "john.doe@example.com"
	demoPassword = "User@123"
	demoToken    = "e2e-token"
)

type fakeExpense struct {
	ExpenseID   string  `json:"expense_id"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Timestamp   string  `json:"timestamp"`
}

// fakeAPI is just enough of the expense backend for browser flows.
type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	expenses map[string]fakeExpense
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{expenses: map[string]fakeExpense{}}
}

func (f *fakeAPI) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", f.login)
	mux.HandleFunc("GET /api/auth/me", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "email": demoEmail})
	}))
	mux.HandleFunc("POST /api/expenses/", f.authed(f.create))
	mux.HandleFunc("GET /api/expenses/monthly/{month}", f.authed(f.month))
	mux.HandleFunc("DELETE /api/expenses/{id}", f.authed(f.delete))
	mux.HandleFunc("GET /api/notifications/{month}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"count": 0, "notifications": []any{}})
	}))
	return mux
}

func (f *fakeAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+demoToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		next(w, r)
	}
}

func (f *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.PostForm.Get("username") != demoEmail || r.PostForm.Get("password") != demoPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": demoToken, "token_type": "bearer"})
}

func (f *fakeAPI) create(w http.ResponseWriter, r *http.Request) {
	var e fakeExpense
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "Invalid body"})
		return
	}
	f.mu.Lock()
	f.nextID++
	e.ExpenseID = "exp-" + strconv.Itoa(f.nextID)
	f.expenses[e.ExpenseID] = e
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, e)
}

func (f *fakeAPI) month(w http.ResponseWriter, r *http.Request) {
	month := r.PathValue("month")
	f.mu.Lock()
	defer f.mu.Unlock()

	list := []fakeExpense{}
	totals := map[string]float64{}
	var total float64
	for _, e := range f.expenses {
		if !strings.HasPrefix(e.Timestamp, month) {
			continue
		}
		list = append(list, e)
		totals[e.Category] += e.Amount
		total += e.Amount
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expenses": list,
		"summary": map[string]any{
			"monthly_total":           total,
			"category_totals":         totals,
			"overspending_categories": map[string]float64{},
			"suggested_budgets":       map[string]float64{},
			"insights":                []string{},
		},
	})
}

func (f *fakeAPI) delete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := f.expenses[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Expense not found"})
		return
	}
	delete(f.expenses, id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
