package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Categories offered when adding an expense.
var Categories = []string{"Food", "Travel", "Rent", "Shopping", "Utilities", "Health", "Entertainment", "Misc"}

var (
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidSchedule  = errors.New("invalid schedule")
)

// ID is an identifier the backend may send as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type (
	// User is the account as reported by the backend.
	User struct {
		ID              ID     `json:"id,omitempty"`
		Email           string `json:"email"`
		ProfileImageURL string `json:"profile_image_url,omitempty"`
	}

	// Expense is one recorded transaction.
	Expense struct {
		ExpenseID   ID              `json:"expense_id,omitempty"`
		AltID       ID              `json:"id,omitempty"`
		Category    string          `json:"category"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Timestamp   string          `json:"timestamp"`
	}

	// ExpenseInput is the body of create and update calls.
	ExpenseInput struct {
		Category    string  `json:"category"`
		Amount      float64 `json:"amount"`
		Description string  `json:"description"`
		Timestamp   string  `json:"timestamp"`
	}

	// Summary is the backend's aggregation for one month.
	Summary struct {
		MonthlyTotal           decimal.Decimal            `json:"monthly_total"`
		CategoryTotals         map[string]decimal.Decimal `json:"category_totals"`
		OverspendingCategories map[string]decimal.Decimal `json:"overspending_categories"`
		SuggestedBudgets       map[string]decimal.Decimal `json:"suggested_budgets"`
		Insights               []json.RawMessage          `json:"insights"`
	}

	// MonthData is the response of the monthly expenses call.
	MonthData struct {
		Expenses []Expense `json:"expenses"`
		Summary  Summary   `json:"summary"`
	}

	// CategoryAmount is one row of a category map, ready for display.
	CategoryAmount struct {
		Category string
		Amount   decimal.Decimal
	}

	Spike struct {
		ExpenseID ID              `json:"expense_id"`
		Category  string          `json:"category"`
		Amount    decimal.Decimal `json:"amount"`
		Timestamp string          `json:"timestamp"`
	}

	Report struct {
		TotalSpent     decimal.Decimal `json:"total_spent"`
		PDFReportURL   string          `json:"pdf_report_url"`
		CSVReportURL   string          `json:"csv_report_url"`
		SpendingSpikes []Spike         `json:"spending_spikes"`
	}

	Notification struct {
		ID       ID     `json:"id"`
		Severity string `json:"severity"`
		Title    string `json:"title"`
		Message  string `json:"message"`
	}

	NotificationList struct {
		Count         int            `json:"count"`
		Notifications []Notification `json:"notifications"`
	}

	// LambdaStatus describes the remote report-generation function.
	LambdaStatus struct {
		FunctionName string `json:"function_name"`
		Status       string `json:"status"`
		Runtime      string `json:"runtime"`
		LastModified string `json:"last_modified"`
		Scheduler    *struct {
			Running bool   `json:"running"`
			NextRun string `json:"next_run"`
		} `json:"scheduler,omitempty"`
	}

	TriggerResult struct {
		Success    bool            `json:"success"`
		Result     json.RawMessage `json:"result,omitempty"`
		Error      string          `json:"error,omitempty"`
		StatusCode int             `json:"status_code,omitempty"`
	}

	// Schedule is the day-of-month and UTC time the report job runs at.
	Schedule struct {
		Day     int    `json:"day"`
		Hour    int    `json:"hour"`
		Minute  int    `json:"minute"`
		NextRun string `json:"next_run,omitempty"`
	}

	Job struct {
		ID      ID     `json:"id"`
		Name    string `json:"name"`
		NextRun string `json:"next_run"`
	}

	SchedulerStatus struct {
		Running  bool     `json:"running"`
		Schedule Schedule `json:"schedule"`
		Jobs     []Job    `json:"jobs"`
	}

	// ActionResult is what scheduler start/stop/update calls answer with.
	ActionResult struct {
		Message string          `json:"message"`
		Status  json.RawMessage `json:"status,omitempty"`
	}

	// Thresholds maps a category to its monthly budget limit.
	Thresholds map[string]decimal.Decimal
)

// DefaultSchedule is shown until the backend reports one.
var DefaultSchedule = Schedule{Day: 1, Hour: 6, Minute: 0}

// Key returns whichever identifier the backend filled in.
func (e Expense) Key() string {
	if e.ExpenseID != "" {
		return e.ExpenseID.String()
	}
	return e.AltID.String()
}

// Time parses the expense timestamp; the zero time is returned when it cannot be parsed.
func (e Expense) Time() time.Time {
	t, _ := ParseTimestamp(e.Timestamp)
	return t
}

// InputTimestamp returns the timestamp in datetime-local form for edit forms.
func (e Expense) InputTimestamp() string {
	return InputTimestamp(e.Timestamp)
}

// CategoriesTracked is the number of insights, as shown on the stat card.
func (s Summary) CategoriesTracked() int {
	return len(s.Insights)
}

// InsightTexts returns the human readable insights. Plain strings are used as-is,
// objects contribute their "message" or "text" field.
func (s Summary) InsightTexts() []string {
	var out []string
	for _, raw := range s.Insights {
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			if str = strings.TrimSpace(str); str != "" {
				out = append(out, str)
			}
			continue
		}
		var obj struct {
			Message string `json:"message"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil {
			switch {
			case obj.Message != "":
				out = append(out, obj.Message)
			case obj.Text != "":
				out = append(out, obj.Text)
			}
		}
	}
	return out
}

// SortedAmounts flattens a category map ordered by category name.
func SortedAmounts(m map[string]decimal.Decimal) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(m))
	for k, v := range m {
		out = append(out, CategoryAmount{Category: k, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Severities the notification center knows how to style.
const (
	SeverityDanger  = "danger"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
	SeveritySuccess = "success"
)

// NormalizeSeverity maps unknown severities to info.
func NormalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityDanger:
		return SeverityDanger
	case SeverityWarning:
		return SeverityWarning
	case SeveritySuccess:
		return SeveritySuccess
	default:
		return SeverityInfo
	}
}

// Key returns a stable identifier for dismissal; notifications without an id
// fall back to their title.
func (n Notification) Key() string {
	if n.ID != "" {
		return n.ID.String()
	}
	return n.Title
}

// ResultText renders the trigger result as a string: JSON strings are unquoted,
// anything else is shown compacted.
func (r TriggerResult) ResultText() string {
	if len(r.Result) == 0 || bytes.Equal(r.Result, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, r.Result); err != nil {
		return string(r.Result)
	}
	return buf.String()
}

// Validate checks the schedule ranges the backend accepts.
func (s Schedule) Validate() error {
	switch {
	case s.Day < 1 || s.Day > 31:
		return fmt.Errorf("%w: day must be between 1 and 31", ErrInvalidSchedule)
	case s.Hour < 0 || s.Hour > 23:
		return fmt.Errorf("%w: hour must be between 0 and 23", ErrInvalidSchedule)
	case s.Minute < 0 || s.Minute > 59:
		return fmt.Errorf("%w: minute must be between 0 and 59", ErrInvalidSchedule)
	}
	return nil
}

// Describe renders the schedule as "Day 1 at 06:00 UTC".
func (s Schedule) Describe() string {
	return "Day " + strconv.Itoa(s.Day) + " at " + pad2(s.Hour) + ":" + pad2(s.Minute) + " UTC"
}

// IsZero reports whether the backend sent no schedule at all.
func (s Schedule) IsZero() bool {
	return s.Day == 0 && s.Hour == 0 && s.Minute == 0
}

func pad2(n int) string {
	if n >= 0 && n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
