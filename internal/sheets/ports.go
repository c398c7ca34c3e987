// Package sheets archives activity events to a spreadsheet.
package sheets

import (
	"context"
	"sort"
	"strings"
	"time"
)

// ActivityHeader is the first row of the activity tab.
var ActivityHeader = []any{"Timestamp", "Event ID", "Type", "User", "Month", "Expense ID", "Details"}

// ActivityRow is one archived event.
type ActivityRow struct {
	Timestamp time.Time
	EventID   string
	Type      string
	UserEmail string
	Month     string
	ExpenseID string
	Details   map[string]string
}

// Values renders the row in ActivityHeader column order. Details are
// flattened as "k=v" pairs sorted by key.
func (r ActivityRow) Values() []any {
	return []any{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.EventID,
		r.Type,
		r.UserEmail,
		r.Month,
		r.ExpenseID,
		FormatDetails(r.Details),
	}
}

func FormatDetails(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+details[k])
	}
	return strings.Join(parts, "; ")
}

// ActivityWriter appends rows to the archive.
type ActivityWriter interface {
	AppendActivity(ctx context.Context, row ActivityRow) (rowRef string, err error)
}
