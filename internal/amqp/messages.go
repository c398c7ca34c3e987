package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActivityType names a user mutation worth archiving.
type ActivityType string

const (
	ActivityUserRegistered    ActivityType = "user.registered"
	ActivityUserLoggedIn      ActivityType = "user.logged_in"
	ActivityExpenseCreated    ActivityType = "expense.created"
	ActivityExpenseUpdated    ActivityType = "expense.updated"
	ActivityExpenseDeleted    ActivityType = "expense.deleted"
	ActivityReportTriggered   ActivityType = "report.triggered"
	ActivitySchedulerStarted  ActivityType = "scheduler.started"
	ActivitySchedulerStopped  ActivityType = "scheduler.stopped"
	ActivitySchedulerUpdated  ActivityType = "scheduler.updated"
	ActivityThresholdsUpdated ActivityType = "thresholds.updated"
)

var knownActivities = map[ActivityType]bool{
	ActivityUserRegistered:    true,
	ActivityUserLoggedIn:      true,
	ActivityExpenseCreated:    true,
	ActivityExpenseUpdated:    true,
	ActivityExpenseDeleted:    true,
	ActivityReportTriggered:   true,
	ActivitySchedulerStarted:  true,
	ActivitySchedulerStopped:  true,
	ActivitySchedulerUpdated:  true,
	ActivityThresholdsUpdated: true,
}

func (t ActivityType) IsValid() bool { return knownActivities[t] }

// ActivityMessage is the body published for every activity event.
type ActivityMessage struct {
	ID        string            `json:"id"`
	Type      ActivityType      `json:"type"`
	UserEmail string            `json:"user_email"`
	Month     string            `json:"month,omitempty"`
	ExpenseID string            `json:"expense_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewActivityMessage stamps a new event with a random ID and the current time.
func NewActivityMessage(typ ActivityType, userEmail string) *ActivityMessage {
	return &ActivityMessage{
		ID:        uuid.NewString(),
		Type:      typ,
		UserEmail: userEmail,
		Timestamp: time.Now().UTC(),
	}
}

// WithDetail adds one key/value to Details and returns m for chaining.
func (m *ActivityMessage) WithDetail(key, value string) *ActivityMessage {
	if m.Details == nil {
		m.Details = make(map[string]string)
	}
	m.Details[key] = value
	return m
}

func (m *ActivityMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ActivityMessageFromJSON decodes and checks a delivery body.
func ActivityMessageFromJSON(data []byte) (*ActivityMessage, error) {
	var msg ActivityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("activity message without id")
	}
	if !msg.Type.IsValid() {
		return nil, fmt.Errorf("unknown activity type %q", msg.Type)
	}
	return &msg, nil
}
