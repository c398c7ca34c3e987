package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateForm_Login(t *testing.T) {
	tests := []struct {
		name   string
		form   LoginForm
		fields map[string]string
	}{
		{"valid", LoginForm{Email: "john.doe@example.com", Password: "User@123"}, nil},
		{"missing both", LoginForm{}, map[string]string{
			"email":    "Email is required",
			"password": "Password is required",
		}},
		{"bad email", LoginForm{Email: "john", Password: "x"}, map[string]string{
			"email": "Enter a valid email address",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateForm(tt.form)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var ve ValidationErrors
			require.True(t, errors.As(err, &ve), "expected ValidationErrors, got %v", err)
			assert.Equal(t, ValidationErrors(tt.fields), ve)
		})
	}
}

func TestValidateForm_RegisterPasswordLength(t *testing.T) {
	err := ValidateForm(RegisterForm{Email: "a@b.co", Password: "123"})
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Password must be at least 6 characters", ve["password"])
}

func TestValidationErrors_ErrorIsSorted(t *testing.T) {
	ve := ValidationErrors{"password": "b", "email": "a"}
	assert.Equal(t, "a; b", ve.Error())
}

func TestExpenseForm_ToInput(t *testing.T) {
	in, month, err := ExpenseForm{
		Category:    " Food ",
		Amount:      "12,345",
		Description: "  Lunch ",
		Timestamp:   "2025-03-04T12:30",
	}.ToInput()
	require.NoError(t, err)

	assert.Equal(t, "Food", in.Category)
	assert.InDelta(t, 12.35, in.Amount, 1e-9)
	assert.Equal(t, "Lunch", in.Description)
	assert.Equal(t, "2025-03-04T12:30:00", in.Timestamp)
	assert.Equal(t, "2025-03", month.String())
}

func TestExpenseForm_ToInputCollectsErrors(t *testing.T) {
	_, _, err := ExpenseForm{Category: "Gadgets", Amount: "-3", Timestamp: "soon"}.ToInput()

	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve, 3)
	assert.Contains(t, ve["category"], "Choose one of")
	assert.Equal(t, "Amount must be a positive number with at most two decimals", ve["amount"])
	assert.Equal(t, "Date and time is invalid", ve["timestamp"])
}

func TestExpenseForm_RequiredWinsOverParse(t *testing.T) {
	_, _, err := ExpenseForm{Category: "Food"}.ToInput()

	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Amount is required", ve["amount"])
	assert.Equal(t, "Date and time is required", ve["timestamp"])
}

func TestScheduleForm_ToSchedule(t *testing.T) {
	s, err := ScheduleForm{Day: 28, Hour: 0, Minute: 59}.ToSchedule()
	require.NoError(t, err)
	assert.Equal(t, Schedule{Day: 28, Hour: 0, Minute: 59}, s)

	_, err = ScheduleForm{Day: 0, Hour: 24, Minute: 0}.ToSchedule()
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Day must be at least 1", ve["day"])
	assert.Equal(t, "Hour must be at most 23", ve["hour"])
}

func TestParseThresholdForm(t *testing.T) {
	values := map[string]string{
		ThresholdField("Food"):   "250",
		ThresholdField("Rent"):   "0",
		ThresholdField("Travel"): "",
	}
	th, err := ParseThresholdForm(func(k string) string { return values[k] })
	require.NoError(t, err)

	assert.Len(t, th, 2)
	assert.Equal(t, "250", th["Food"].String())
	assert.True(t, th["Rent"].IsZero())
	_, hasTravel := th["Travel"]
	assert.False(t, hasTravel)
}

func TestParseThresholdForm_Invalid(t *testing.T) {
	_, err := ParseThresholdForm(func(k string) string {
		if k == ThresholdField("Health") {
			return "lots"
		}
		return ""
	})
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Health threshold must be a positive amount", ve["threshold_Health"])
}

func TestIsCategory(t *testing.T) {
	assert.True(t, IsCategory("Utilities"))
	assert.False(t, IsCategory("utilities"))
}
