package core

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Forms posted by the dashboard. The `form` tag names the input and is used as
// the key in ValidationErrors.
type (
	LoginForm struct {
		Email    string `form:"email" validate:"required,email"`
		Password string `form:"password" validate:"required"`
	}

	RegisterForm struct {
		Email    string `form:"email" validate:"required,email,max=254"`
		Password string `form:"password" validate:"required,min=6,max=128"`
	}

	ExpenseForm struct {
		Category    string `form:"category" validate:"required,category"`
		Amount      string `form:"amount" validate:"required"`
		Description string `form:"description" validate:"max=255"`
		Timestamp   string `form:"timestamp" validate:"required"`
	}

	ScheduleForm struct {
		Day    int `form:"day" validate:"min=1,max=31"`
		Hour   int `form:"hour" validate:"min=0,max=23"`
		Minute int `form:"minute" validate:"min=0,max=59"`
	}
)

// ValidationErrors maps a form field to a user-facing message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, v[k])
	}
	return strings.Join(parts, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			if name := f.Tag.Get("form"); name != "" {
				return name
			}
			return f.Name
		})
		_ = validate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			return IsCategory(fl.Field().String())
		})
	})
	return validate
}

// IsCategory reports whether c is one of Categories.
func IsCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// ValidateForm runs struct validation and converts failures to ValidationErrors.
func ValidateForm(form any) error {
	err := formValidator().Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := ValidationErrors{}
	for _, fe := range fieldErrs {
		if _, seen := out[fe.Field()]; !seen {
			out[fe.Field()] = messageFor(fe)
		}
	}
	return out
}

var fieldLabels = map[string]string{
	"email":       "Email",
	"password":    "Password",
	"category":    "Category",
	"amount":      "Amount",
	"description": "Description",
	"timestamp":   "Date and time",
	"day":         "Day",
	"hour":        "Hour",
	"minute":      "Minute",
}

func messageFor(fe validator.FieldError) string {
	label := fieldLabels[fe.Field()]
	if label == "" {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Enter a valid email address"
	case "category":
		return "Choose one of: " + strings.Join(Categories, ", ")
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", label, fe.Param())
	default:
		return label + " is invalid"
	}
}

// ToInput validates the form and builds the backend payload. The returned
// month is the one the expense falls in, used to navigate after saving.
func (f ExpenseForm) ToInput() (ExpenseInput, Month, error) {
	f.Category = strings.TrimSpace(f.Category)
	f.Description = strings.TrimSpace(f.Description)

	errs := ValidationErrors{}
	if err := ValidateForm(f); err != nil {
		var ve ValidationErrors
		if !errors.As(err, &ve) {
			return ExpenseInput{}, Month{}, err
		}
		errs = ve
	}

	var amount decimal.Decimal
	if _, failed := errs["amount"]; !failed {
		a, err := ParseAmount(f.Amount)
		if err != nil {
			errs["amount"] = "Amount must be a positive number with at most two decimals"
		}
		amount = a
	}

	var (
		wire string
		when Month
	)
	if _, failed := errs["timestamp"]; !failed {
		w, t, err := WireTimestamp(f.Timestamp)
		if err != nil {
			errs["timestamp"] = "Date and time is invalid"
		}
		wire, when = w, MonthOf(t)
	}

	if len(errs) > 0 {
		return ExpenseInput{}, Month{}, errs
	}
	return ExpenseInput{
		Category:    f.Category,
		Amount:      amount.InexactFloat64(),
		Description: f.Description,
		Timestamp:   wire,
	}, when, nil
}

// ToSchedule validates the form and returns the backend schedule.
func (f ScheduleForm) ToSchedule() (Schedule, error) {
	if err := ValidateForm(f); err != nil {
		return Schedule{}, err
	}
	return Schedule{Day: f.Day, Hour: f.Hour, Minute: f.Minute}, nil
}

// ParseThresholdForm reads one input per category ("threshold_<Category>").
// Empty inputs are left out of the result.
func ParseThresholdForm(get func(string) string) (Thresholds, error) {
	out := Thresholds{}
	errs := ValidationErrors{}
	for _, c := range Categories {
		key := ThresholdField(c)
		d, ok, err := ParseThreshold(get(key))
		if err != nil {
			errs[key] = c + " threshold must be a positive amount"
			continue
		}
		if ok {
			out[c] = d
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// ThresholdField is the form input name holding a category's threshold.
func ThresholdField(category string) string {
	return "threshold_" + category
}
