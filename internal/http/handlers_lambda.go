package http

import (
	"net/http"
	"strconv"

	"expensedash/internal/amqp"
	"expensedash/internal/core"
)

const (
	msgLambdaStatus  = "Unable to fetch Lambda status"
	msgLambdaTrigger = "Failed to trigger Lambda function"
)

type (
	lambdaView struct {
		Status core.LambdaStatus
		Error  string
	}

	triggerView struct {
		Result core.TriggerResult
		Error  string
	}
)

func (s *Server) handleLambdaPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var view lambdaView

	status, err := s.backend.LambdaStatus(r.Context(), sess.Token)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgLambdaStatus)
		if handled {
			return
		}
		view.Error = msg
	} else {
		view.Status = status
	}
	s.renderPage(w, r, http.StatusOK, "lambda", pageData{Title: "Lambda", Active: "lambda", View: view})
}

func (s *Server) handleLambdaTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)

	res, err := s.backend.TriggerLambda(ctx, sess.Token)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgLambdaTrigger)
		if handled {
			return
		}
		s.partial(r, "lambda_result", triggerView{Error: msg}).Write(w)
		return
	}

	if res.Success {
		msg := activity(ctx, amqp.ActivityReportTriggered)
		if res.StatusCode != 0 {
			msg.WithDetail("status_code", strconv.Itoa(res.StatusCode))
		}
		s.publish(ctx, msg)
	}
	s.partial(r, "lambda_result", triggerView{Result: res}).Write(w)
}
