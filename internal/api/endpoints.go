package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"expensedash/internal/core"
)

// LoginResult is the token answer of POST /auth/login.
type LoginResult struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        *core.User `json:"user,omitempty"`
}

// Credentials is the register payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password string) (core.User, error) {
	var user core.User
	err := c.doJSON(ctx, http.MethodPost, "/auth/register", "", Credentials{Email: email, Password: password}, &user)
	return user, err
}

// Login exchanges credentials for a bearer token. The backend takes an OAuth2
// password form, so the email goes in the username field.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        formBody(url.Values{"username": {email}, "password": {password}}),
		contentType: "application/x-www-form-urlencoded",
	}, &res)
	return res, err
}

// Me returns the user owning token.
func (c *Client) Me(ctx context.Context, token string) (core.User, error) {
	var user core.User
	err := c.doJSON(ctx, http.MethodGet, "/auth/me", token, nil, &user)
	return user, err
}

func (c *Client) CreateExpense(ctx context.Context, token string, in core.ExpenseInput) (core.Expense, error) {
	var e core.Expense
	err := c.doJSON(ctx, http.MethodPost, "/expenses/", token, in, &e)
	return e, err
}

// MonthExpenses returns the expenses and backend summary for one month.
func (c *Client) MonthExpenses(ctx context.Context, token string, m core.Month) (core.MonthData, error) {
	var data core.MonthData
	err := c.doJSON(ctx, http.MethodGet, "/expenses/monthly/"+m.String(), token, nil, &data)
	return data, err
}

func (c *Client) UpdateExpense(ctx context.Context, token, id string, in core.ExpenseInput) (core.Expense, error) {
	var e core.Expense
	err := c.doJSON(ctx, http.MethodPut, "/expenses/"+url.PathEscape(id), token, in, &e)
	return e, err
}

func (c *Client) DeleteExpense(ctx context.Context, token, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/expenses/"+url.PathEscape(id), token, nil, nil)
}

func (c *Client) MonthlyReport(ctx context.Context, token string, m core.Month) (core.Report, error) {
	var r core.Report
	err := c.doJSON(ctx, http.MethodGet, "/reports/monthly/"+m.String(), token, nil, &r)
	return r, err
}

// TriggerLambda runs the report-generation function once.
func (c *Client) TriggerLambda(ctx context.Context, token string) (core.TriggerResult, error) {
	var r core.TriggerResult
	err := c.doJSON(ctx, http.MethodPost, "/lambda/trigger", token, nil, &r)
	return r, err
}

func (c *Client) LambdaStatus(ctx context.Context, token string) (core.LambdaStatus, error) {
	var s core.LambdaStatus
	err := c.doJSON(ctx, http.MethodGet, "/lambda/status", token, nil, &s)
	return s, err
}

func (c *Client) Notifications(ctx context.Context, token string, m core.Month) (core.NotificationList, error) {
	var n core.NotificationList
	err := c.doJSON(ctx, http.MethodGet, "/notifications/"+m.String(), token, nil, &n)
	if err == nil && n.Count < len(n.Notifications) {
		n.Count = len(n.Notifications)
	}
	return n, err
}

func (c *Client) SchedulerStatus(ctx context.Context, token string) (core.SchedulerStatus, error) {
	var s core.SchedulerStatus
	err := c.doJSON(ctx, http.MethodGet, "/settings/scheduler", token, nil, &s)
	return s, err
}

func (c *Client) StartScheduler(ctx context.Context, token string) (core.ActionResult, error) {
	var r core.ActionResult
	err := c.doJSON(ctx, http.MethodPost, "/settings/scheduler/start", token, nil, &r)
	return r, err
}

func (c *Client) StopScheduler(ctx context.Context, token string) (core.ActionResult, error) {
	var r core.ActionResult
	err := c.doJSON(ctx, http.MethodPost, "/settings/scheduler/stop", token, nil, &r)
	return r, err
}

type schedulePayload struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// UpdateSchedule changes the day-of-month and UTC time of the report job.
func (c *Client) UpdateSchedule(ctx context.Context, token string, s core.Schedule) (core.ActionResult, error) {
	if err := s.Validate(); err != nil {
		return core.ActionResult{}, err
	}
	var r core.ActionResult
	err := c.doJSON(ctx, http.MethodPut, "/settings/scheduler/schedule", token,
		schedulePayload{Day: s.Day, Hour: s.Hour, Minute: s.Minute}, &r)
	return r, err
}

// Thresholds returns the per-category budget limits. The backend answers
// either {"thresholds": {...}} or the bare map.
func (c *Client) Thresholds(ctx context.Context, token string) (core.Thresholds, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/settings/thresholds", token, nil, &raw); err != nil {
		return nil, err
	}
	return decodeThresholds(raw)
}

// UpdateThresholds replaces the per-category budget limits.
func (c *Client) UpdateThresholds(ctx context.Context, token string, th core.Thresholds) (core.Thresholds, error) {
	wire := make(map[string]float64, len(th))
	for k, v := range th {
		wire[k] = v.InexactFloat64()
	}
	var raw json.RawMessage
	err := c.doJSON(ctx, http.MethodPut, "/settings/thresholds", token,
		map[string]any{"thresholds": wire}, &raw)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return th, nil
	}
	return decodeThresholds(raw)
}

func decodeThresholds(raw json.RawMessage) (core.Thresholds, error) {
	out := core.Thresholds{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}
	if inner, ok := envelope["thresholds"]; ok {
		var m map[string]decimal.Decimal
		if err := json.Unmarshal(inner, &m); err != nil {
			return nil, fmt.Errorf("decode thresholds: %w", err)
		}
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}

	for k, v := range envelope {
		var d decimal.Decimal
		if err := json.Unmarshal(v, &d); err != nil {
			// Ignore non-numeric siblings such as a "message" field.
			continue
		}
		out[k] = d
	}
	return out, nil
}
