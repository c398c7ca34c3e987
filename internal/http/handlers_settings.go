package http

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"expensedash/internal/amqp"
	"expensedash/internal/core"
	applog "expensedash/internal/log"
	"expensedash/internal/storage"
)

const (
	msgSchedulerStatus  = "Unable to fetch scheduler status"
	msgSchedulerStart   = "Failed to start scheduler"
	msgSchedulerStop    = "Failed to stop scheduler"
	msgScheduleUpdate   = "Failed to update schedule"
	msgThresholdsFetch  = "Unable to fetch thresholds"
	msgThresholdsUpdate = "Failed to update thresholds"

	previewRuns = 3
)

type (
	schedulerView struct {
		// HasStatus and HasSchedule are false when the backend did not
		// answer or sent no schedule; those rows are left out.
		HasStatus   bool
		HasSchedule bool
		Status      core.SchedulerStatus
		Schedule    core.Schedule
		NextRuns    []time.Time
		Form        core.ScheduleForm
		Errors      core.ValidationErrors
		Message     string
		Error       string
	}

	thresholdsView struct {
		Categories []string
		Values     map[string]string
		Errors     core.ValidationErrors
		Message    string
		Error      string
	}

	settingsView struct {
		Scheduler  schedulerView
		Thresholds thresholdsView
	}
)

// newSchedulerView builds the card. The form falls back to DefaultSchedule
// when there is no schedule to edit.
func newSchedulerView(status core.SchedulerStatus, fetched bool, now time.Time) schedulerView {
	view := schedulerView{
		HasStatus: fetched,
		Status:    status,
		Form:      core.ScheduleForm{Day: core.DefaultSchedule.Day, Hour: core.DefaultSchedule.Hour, Minute: core.DefaultSchedule.Minute},
	}
	sched := status.Schedule
	if !fetched || sched.IsZero() {
		return view
	}
	view.HasSchedule = true
	view.Schedule = sched
	view.Form = core.ScheduleForm{Day: sched.Day, Hour: sched.Hour, Minute: sched.Minute}
	if runs, err := sched.NextRuns(now, previewRuns); err == nil {
		view.NextRuns = runs
	}
	return view
}

func newThresholdsView(th core.Thresholds) thresholdsView {
	values := make(map[string]string, len(core.Categories))
	for _, c := range core.Categories {
		if d, ok := th[c]; ok {
			values[c] = d.StringFixed(2)
		}
	}
	return thresholdsView{Categories: core.Categories, Values: values}
}

func (s *Server) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)

	var (
		status           core.SchedulerStatus
		thresholds       core.Thresholds
		statusErr, thErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		status, statusErr = s.backend.SchedulerStatus(gctx, sess.Token)
		return nil
	})
	g.Go(func() error {
		thresholds, thErr = s.backend.Thresholds(gctx, sess.Token)
		return nil
	})
	_ = g.Wait()

	view := settingsView{
		Scheduler:  newSchedulerView(status, statusErr == nil, s.now()),
		Thresholds: newThresholdsView(thresholds),
	}
	if statusErr != nil {
		msg, handled := s.backendFailed(w, r, statusErr, msgSchedulerStatus)
		if handled {
			return
		}
		view.Scheduler.Error = msg
	}
	if thErr != nil {
		msg, handled := s.backendFailed(w, r, thErr, msgThresholdsFetch)
		if handled {
			return
		}
		view.Thresholds.Error = msg
	}
	s.renderPage(w, r, http.StatusOK, "settings", pageData{Title: "Settings", Active: "settings", View: view})
}

// schedulerCard re-reads the scheduler after an action and renders the card
// with the action's outcome.
func (s *Server) schedulerCard(w http.ResponseWriter, r *http.Request, sess *storage.Session, message, failure string) {
	status, err := s.backend.SchedulerStatus(r.Context(), sess.Token)
	view := newSchedulerView(status, err == nil, s.now())
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgSchedulerStatus)
		if handled {
			return
		}
		if failure == "" {
			failure = msg
		}
	}
	view.Message = message
	view.Error = failure
	s.partial(r, "scheduler_card", view).Write(w)
}

type schedulerAction func(ctx context.Context, token string) (core.ActionResult, error)

func (s *Server) runSchedulerAction(w http.ResponseWriter, r *http.Request, action schedulerAction, typ amqp.ActivityType, success, fallback string) {
	ctx := r.Context()
	sess := sessionFrom(ctx)

	res, err := action(ctx, sess.Token)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, fallback)
		if handled {
			return
		}
		s.schedulerCard(w, r, sess, "", msg)
		return
	}
	s.publish(ctx, activity(ctx, typ))

	message := res.Message
	if message == "" {
		message = success
	}
	applog.FromContext(ctx).WithComponent(applog.ComponentSettings).InfoContext(ctx, "Scheduler action", "activity", string(typ))
	s.schedulerCard(w, r, sess, message, "")
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	s.runSchedulerAction(w, r, s.backend.StartScheduler, amqp.ActivitySchedulerStarted, "Scheduler started successfully", msgSchedulerStart)
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	s.runSchedulerAction(w, r, s.backend.StopScheduler, amqp.ActivitySchedulerStopped, "Scheduler stopped successfully", msgSchedulerStop)
}

func (s *Server) handleScheduleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)

	var form core.ScheduleForm
	values, err := parseRequestForm(w, r)
	if err == nil {
		err = decodeForm(values, &form)
	}
	var sched core.Schedule
	if err == nil {
		sched, err = form.ToSchedule()
	}
	if err != nil {
		status, statusErr := s.backend.SchedulerStatus(ctx, sess.Token)
		view := newSchedulerView(status, statusErr == nil, s.now())
		view.Form = form
		view.Errors = fieldErrors(err)
		if view.Errors == nil {
			view.Error = "Invalid request"
		}
		s.partial(r, "scheduler_card", view).Status(http.StatusUnprocessableEntity).Write(w)
		return
	}

	res, err := s.backend.UpdateSchedule(ctx, sess.Token, sched)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgScheduleUpdate)
		if handled {
			return
		}
		s.schedulerCard(w, r, sess, "", msg)
		return
	}

	s.publish(ctx, activity(ctx, amqp.ActivitySchedulerUpdated).
		WithDetail("schedule", sched.Describe()).
		WithDetail("cron", sched.CronSpec()))

	message := res.Message
	if message == "" {
		message = "Schedule updated successfully"
	}
	s.schedulerCard(w, r, sess, message, "")
}

func (s *Server) handleThresholdsUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)

	values, err := parseRequestForm(w, r)
	if err != nil {
		view := newThresholdsView(nil)
		view.Error = "Invalid request"
		s.partial(r, "thresholds_card", view).Status(http.StatusBadRequest).Write(w)
		return
	}

	th, err := core.ParseThresholdForm(func(key string) string { return sanitizeInput(values.Get(key)) })
	if err != nil {
		view := newThresholdsView(nil)
		for _, c := range core.Categories {
			view.Values[c] = sanitizeInput(values.Get(core.ThresholdField(c)))
		}
		view.Errors = fieldErrors(err)
		s.partial(r, "thresholds_card", view).Status(http.StatusUnprocessableEntity).Write(w)
		return
	}

	saved, err := s.backend.UpdateThresholds(ctx, sess.Token, th)
	if err != nil {
		msg, handled := s.backendFailed(w, r, err, msgThresholdsUpdate)
		if handled {
			return
		}
		view := newThresholdsView(th)
		view.Error = msg
		s.partial(r, "thresholds_card", view).Write(w)
		return
	}
	if len(saved) == 0 {
		saved = th
	}

	msg := activity(ctx, amqp.ActivityThresholdsUpdated)
	for c, d := range th {
		msg.WithDetail(c, d.StringFixed(2))
	}
	s.publish(ctx, msg)

	view := newThresholdsView(saved)
	view.Message = "Thresholds updated successfully"
	s.partial(r, "thresholds_card", view).TriggerSuccessNotification(view.Message).Write(w)
}
