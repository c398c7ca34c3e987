// This file implements the helpers that turn request data into the core form
// types.

package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"expensedash/internal/core"
)

var errNotStructPointer = errors.New("decode form: destination must be a pointer to a struct")

// decodeForm copies form values into dst using its `form` tags. String fields
// are sanitized; int fields that do not parse are reported as
// core.ValidationErrors keyed by the tag.
func decodeForm(values url.Values, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return errNotStructPointer
	}
	rv = rv.Elem()
	rt := rv.Type()

	errs := core.ValidationErrors{}
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		name := field.Tag.Get("form")
		if name == "" || !field.IsExported() {
			continue
		}
		raw := sanitizeInput(values.Get(name))

		switch field.Type.Kind() {
		case reflect.String:
			rv.Field(i).SetString(raw)
		case reflect.Int:
			if raw == "" {
				errs[name] = fmt.Sprintf("%s is required", fieldLabel(name))
				continue
			}
			n, err := strconv.Atoi(raw)
			if err != nil {
				errs[name] = fmt.Sprintf("%s must be a whole number", fieldLabel(name))
				continue
			}
			rv.Field(i).SetInt(int64(n))
		default:
			return fmt.Errorf("decode form: unsupported field %s of kind %s", field.Name, field.Type.Kind())
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func fieldLabel(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// parseRequestForm parses the body of POST and PUT requests. htmx sends PUT
// bodies form-encoded, which http.Request.ParseForm already handles.
func parseRequestForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	return r.PostForm, nil
}

// monthParam reads ?month=YYYY-MM, falling back to the month containing now.
func monthParam(r *http.Request, now time.Time) core.Month {
	return core.ParseMonthOr(r.URL.Query().Get("month"), now)
}

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// fieldErrors unwraps validation failures for templates; any other error
// yields nil.
func fieldErrors(err error) core.ValidationErrors {
	var ve core.ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}
