package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expensedash/internal/core"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		BodyString("test").
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "test" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "test")
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger should not be set without triggers")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerExpenseChanged(core.Month{Year: 2025, Month: time.March}).
		TriggerNotificationsChanged().
		TriggerSuccessNotification("Expense saved!").
		Write(w)

	var got map[string]json.RawMessage
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &got); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	for _, name := range []string{EventExpenseChanged, EventNotificationsChanged, EventShowNotification} {
		if _, ok := got[name]; !ok {
			t.Errorf("HX-Trigger missing %q", name)
		}
	}
	if string(got[EventExpenseChanged]) != `{"month":"2025-03"}` {
		t.Errorf("expense:changed payload = %s", got[EventExpenseChanged])
	}
	if !strings.Contains(string(got[EventShowNotification]), `"type":"success"`) {
		t.Errorf("notification payload = %s", got[EventShowNotification])
	}
}

func TestHTMXResponseBuilder_Redirect(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().Redirect("/login").Write(w)

	if w.Header().Get("HX-Redirect") != "/login" {
		t.Errorf("HX-Redirect = %q", w.Header().Get("HX-Redirect"))
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestErrorResponse_EscapesMessage(t *testing.T) {
	tests := []struct {
		name    string
		builder *HTMXResponseBuilder
		code    int
	}{
		{"error", ErrorResponse(http.StatusBadGateway, `<b>"detail"</b>`), http.StatusBadGateway},
		{"internal", InternalServerError("<script>"), http.StatusInternalServerError},
		{"not found", NotFoundError("<i>gone</i>"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
			body := w.Body.String()
			if strings.Contains(body, "<script>") || strings.Contains(body, "<b>") || strings.Contains(body, "<i>") {
				t.Errorf("message not escaped: %s", body)
			}
			if !strings.Contains(body, `class="alert alert-danger"`) {
				t.Errorf("missing alert markup: %s", body)
			}
			if w.Header().Get("Content-Type") != "text/html; charset=utf-8" {
				t.Errorf("content type = %q", w.Header().Get("Content-Type"))
			}
		})
	}
}
