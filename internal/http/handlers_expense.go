package http

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"expensedash/internal/amqp"
	"expensedash/internal/core"
	applog "expensedash/internal/log"
)

const (
	msgSaveExpense   = "Unable to save expense"
	msgUpdateExpense = "Failed to update expense"
	msgDeleteExpense = "Failed to delete expense"
)

type (
	expenseFormView struct {
		Form       core.ExpenseForm
		Categories []string
		Errors     core.ValidationErrors
		Error      string
	}

	expenseRowView struct {
		Month   core.Month
		Expense core.Expense
	}

	expenseEditView struct {
		Month      core.Month
		ID         string
		Form       core.ExpenseForm
		Categories []string
		Errors     core.ValidationErrors
		Error      string
	}
)

func expenseFormFrom(e core.Expense) core.ExpenseForm {
	return core.ExpenseForm{
		Category:    e.Category,
		Amount:      e.Amount.StringFixed(2),
		Description: e.Description,
		Timestamp:   e.InputTimestamp(),
	}
}

func (s *Server) handleNewExpense(w http.ResponseWriter, r *http.Request) {
	view := expenseFormView{
		Form:       core.ExpenseForm{Category: core.Categories[0], Timestamp: s.now().UTC().Format(core.InputLayout)},
		Categories: core.Categories,
	}
	s.renderPage(w, r, http.StatusOK, "expense_new", pageData{Title: "Add Expense", Active: "expenses", View: view})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)
	page := pageData{Title: "Add Expense", Active: "expenses"}

	values, err := parseRequestForm(w, r)
	var form core.ExpenseForm
	if err == nil {
		err = decodeForm(values, &form)
	}
	if err != nil {
		page.View = expenseFormView{Form: form, Categories: core.Categories, Error: "Invalid request"}
		s.renderPage(w, r, http.StatusBadRequest, "expense_new", page)
		return
	}

	in, month, err := form.ToInput()
	if err != nil {
		logRejectedForm(r, err)
		page.View = expenseFormView{Form: form, Categories: core.Categories, Errors: fieldErrors(err)}
		s.renderPage(w, r, http.StatusUnprocessableEntity, "expense_new", page)
		return
	}

	created, err := s.backend.CreateExpense(ctx, sess.Token, in)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgSaveExpense)
		if handled {
			return
		}
		page.View = expenseFormView{Form: form, Categories: core.Categories, Error: msg}
		s.renderPage(w, r, http.StatusBadGateway, "expense_new", page)
		return
	}

	s.invalidateMonths(sess.ID)
	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogExpenseChange(ctx, applog.OpCreate, created.Key(), in.Category, decimal.NewFromFloat(in.Amount).StringFixed(2), month.String())
	s.publish(ctx, expenseActivity(ctx, amqp.ActivityExpenseCreated, created.Key(), month, in))

	s.setFlash(sess.ID, "Expense saved!")
	redirect(w, r, "/dashboard?month="+url.QueryEscape(month.String()))
}

// findExpense looks an expense up in its month, which is how the row and
// edit fragments get their data: the backend has no single-expense read.
func (s *Server) findExpense(w http.ResponseWriter, r *http.Request) (core.Month, core.Expense, bool) {
	sess := sessionFrom(r.Context())
	m := monthParam(r, s.now())
	id := r.PathValue("id")

	data, err := s.monthData(r.Context(), sess, m)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgFetchExpenses)
		if !handled {
			ErrorResponse(http.StatusOK, msg).Write(w)
		}
		return m, core.Expense{}, false
	}
	for _, e := range data.Expenses {
		if e.Key() == id {
			return m, e, true
		}
	}
	NotFoundError("Expense not found. It may have been deleted.").Write(w)
	return m, core.Expense{}, false
}

// handleExpenseRow renders the read-only row; the edit form's cancel uses it.
func (s *Server) handleExpenseRow(w http.ResponseWriter, r *http.Request) {
	m, e, ok := s.findExpense(w, r)
	if !ok {
		return
	}
	s.partial(r, "expense_row", expenseRowView{Month: m, Expense: e}).Write(w)
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	m, e, ok := s.findExpense(w, r)
	if !ok {
		return
	}
	s.partial(r, "expense_edit_row", expenseEditView{
		Month:      m,
		ID:         e.Key(),
		Form:       expenseFormFrom(e),
		Categories: core.Categories,
	}).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)
	m := monthParam(r, s.now())
	id := r.PathValue("id")
	view := expenseEditView{Month: m, ID: id, Categories: core.Categories}

	values, err := parseRequestForm(w, r)
	if err == nil {
		err = decodeForm(values, &view.Form)
	}
	if err != nil {
		view.Error = "Invalid request"
		s.partial(r, "expense_edit_row", view).Status(http.StatusUnprocessableEntity).Write(w)
		return
	}

	in, newMonth, err := view.Form.ToInput()
	if err != nil {
		logRejectedForm(r, err)
		view.Errors = fieldErrors(err)
		s.partial(r, "expense_edit_row", view).Status(http.StatusUnprocessableEntity).Write(w)
		return
	}

	updated, err := s.backend.UpdateExpense(ctx, sess.Token, id, in)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgUpdateExpense)
		if handled {
			return
		}
		view.Error = msg
		s.partial(r, "expense_edit_row", view).Write(w)
		return
	}

	s.invalidateMonths(sess.ID)
	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogExpenseChange(ctx, applog.OpUpdate, id, in.Category, decimal.NewFromFloat(in.Amount).StringFixed(2), newMonth.String())
	s.publish(ctx, expenseActivity(ctx, amqp.ActivityExpenseUpdated, id, newMonth, in))

	// An expense moved to another month leaves this table.
	if newMonth != m {
		NewHTMXResponse().TriggerExpenseChanged(m).TriggerSuccessNotification("Expense moved to " + newMonth.Label()).Write(w)
		return
	}
	if updated.Category == "" {
		updated = core.Expense{
			Category:    in.Category,
			Amount:      decimal.NewFromFloat(in.Amount),
			Description: in.Description,
			Timestamp:   in.Timestamp,
		}
	}
	if updated.Key() == "" {
		updated.ExpenseID = core.ID(id)
	}
	s.partial(r, "expense_row", expenseRowView{Month: m, Expense: updated}).
		TriggerExpenseChanged(m).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)
	m := monthParam(r, s.now())
	id := r.PathValue("id")

	if err := s.backend.DeleteExpense(ctx, sess.Token, id); err != nil {
		msg, handled := s.backendFailed(w, r, err, msgDeleteExpense)
		if handled {
			return
		}
		if b := s.expenseTable(w, r, sess, m, msg); b != nil {
			b.Write(w)
		}
		return
	}

	s.invalidateMonths(sess.ID)
	applog.NewStructuredLogger(applog.FromContext(ctx)).LogExpenseChange(ctx, applog.OpDelete, id, "", "", m.String())
	msg := activity(ctx, amqp.ActivityExpenseDeleted)
	msg.Month = m.String()
	msg.ExpenseID = id
	s.publish(ctx, msg)

	if b := s.expenseTable(w, r, sess, m, ""); b != nil {
		b.TriggerExpenseChanged(m).Write(w)
	}
}

func expenseActivity(ctx context.Context, typ amqp.ActivityType, id string, m core.Month, in core.ExpenseInput) *amqp.ActivityMessage {
	msg := activity(ctx, typ)
	msg.Month = m.String()
	msg.ExpenseID = id
	return msg.
		WithDetail("category", in.Category).
		WithDetail("amount", decimal.NewFromFloat(in.Amount).StringFixed(2)).
		WithDetail("description", in.Description).
		WithDetail("timestamp", in.Timestamp)
}

func logRejectedForm(r *http.Request, err error) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentExpense).DebugContext(r.Context(), "Expense form rejected",
		applog.FieldPath, r.URL.Path, applog.FieldErrorType, applog.ErrorTypeValidation, applog.FieldError, err)
}
