package http

import (
	"context"
	"net/http"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"expensedash/internal/core"
	applog "expensedash/internal/log"
	"expensedash/internal/storage"
)

const msgFetchExpenses = "Unable to fetch expenses"

type (
	dashboardView struct {
		Month   core.Month
		Prev    core.Month
		Next    core.Month
		Summary summaryView
		Table   tableView
		Badge   badgeView
	}

	summaryView struct {
		Month             core.Month
		Total             decimal.Decimal
		CategoriesTracked int
		OverspendingCount int
		SuggestedCount    int
		Chart             core.PieChart
		Overspending      []core.CategoryAmount
		Insights          []string
		Error             string
	}

	tableView struct {
		Month    core.Month
		Expenses []core.Expense
		Error    string
	}

	badgeView struct {
		Month core.Month
		Count int
	}
)

func monthCacheKey(sessionID string, m core.Month) string {
	return sessionID + "|" + m.String()
}

// monthData returns the month payload, served from the per-session cache
// while it is fresh.
func (s *Server) monthData(ctx context.Context, sess *storage.Session, m core.Month) (core.MonthData, error) {
	key := monthCacheKey(sess.ID, m)
	if data, ok := s.monthCache.Get(key); ok {
		s.metrics.CacheHits.Add(1)
		return data, nil
	}
	s.metrics.CacheMisses.Add(1)

	data, err := s.backend.MonthExpenses(ctx, sess.Token, m)
	if err != nil {
		return core.MonthData{}, err
	}
	s.monthCache.Set(key, data)
	return data, nil
}

// invalidateMonths drops every cached month of the session. An edit can move
// an expense between months, so the whole session is cleared.
func (s *Server) invalidateMonths(sessionID string) {
	if n := s.monthCache.DeletePrefix(sessionID + "|"); n > 0 {
		s.logger.Debug("Month cache invalidated", "entries", n)
	}
}

func newSummaryView(m core.Month, data core.MonthData) summaryView {
	sum := data.Summary
	return summaryView{
		Month:             m,
		Total:             sum.MonthlyTotal,
		CategoriesTracked: sum.CategoriesTracked(),
		OverspendingCount: len(sum.OverspendingCategories),
		SuggestedCount:    len(sum.SuggestedBudgets),
		Chart:             core.NewPieChart(sum.CategoryTotals),
		Overspending:      core.SortedAmounts(sum.OverspendingCategories),
		Insights:          sum.InsightTexts(),
	}
}

func newTableView(m core.Month, data core.MonthData) tableView {
	expenses := make([]core.Expense, len(data.Expenses))
	copy(expenses, data.Expenses)
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].Time().After(expenses[j].Time())
	})
	return tableView{Month: m, Expenses: expenses}
}

// loadDashboard fetches the month and the notification count concurrently.
// Only the month fetch can fail the view.
func (s *Server) loadDashboard(ctx context.Context, sess *storage.Session, m core.Month) (dashboardView, error) {
	view := dashboardView{Month: m, Prev: m.Prev(), Next: m.Next(), Badge: badgeView{Month: m}}

	var data core.MonthData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, err = s.monthData(gctx, sess, m)
		return err
	})
	g.Go(func() error {
		list, err := s.visibleNotifications(gctx, sess, m)
		if err != nil {
			applog.FromContext(ctx).WithComponent(applog.ComponentDashboard).WarnContext(ctx, "Notification count unavailable",
				applog.FieldMonth, m.String(), applog.FieldErrorType, applog.ErrorTypeUpstream, applog.FieldError, err)
			return nil
		}
		view.Badge.Count = len(list)
		return nil
	})
	if err := g.Wait(); err != nil {
		view.Summary = summaryView{Month: m}
		view.Table = tableView{Month: m}
		return view, err
	}

	view.Summary = newSummaryView(m, data)
	view.Table = newTableView(m, data)
	return view, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	m := monthParam(r, s.now())

	view, err := s.loadDashboard(r.Context(), sess, m)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgFetchExpenses)
		if handled {
			return
		}
		view.Summary.Error = msg
		view.Table.Error = msg
	}
	s.renderPage(w, r, http.StatusOK, "dashboard", pageData{Title: "Dashboard", Active: "dashboard", View: view})
}

// handleDashboardPartial renders the month content for HTMX navigation.
func (s *Server) handleDashboardPartial(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	m := monthParam(r, s.now())

	view, err := s.loadDashboard(r.Context(), sess, m)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgFetchExpenses)
		if handled {
			return
		}
		view.Summary.Error = msg
		view.Table.Error = msg
	}
	s.partial(r, "dashboard_content", view).Write(w)
}

func (s *Server) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	m := monthParam(r, s.now())

	data, err := s.monthData(r.Context(), sess, m)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgFetchExpenses)
		if handled {
			return
		}
		s.partial(r, "summary", summaryView{Month: m, Error: msg}).Write(w)
		return
	}
	s.partial(r, "summary", newSummaryView(m, data)).Write(w)
}

func (s *Server) handleExpenseTable(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	m := monthParam(r, s.now())
	if b := s.expenseTable(w, r, sess, m, ""); b != nil {
		b.Write(w)
	}
}

// expenseTable renders the table fragment with an optional notice. It returns
// nil when the 401 flow has already answered the request.
func (s *Server) expenseTable(w http.ResponseWriter, r *http.Request, sess *storage.Session, m core.Month, notice string) *HTMXResponseBuilder {
	data, err := s.monthData(r.Context(), sess, m)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgFetchExpenses)
		if handled {
			return nil
		}
		return s.partial(r, "expense_table", tableView{Month: m, Error: msg})
	}
	view := newTableView(m, data)
	view.Error = notice
	return s.partial(r, "expense_table", view)
}
