package http

import (
	"context"
	"maps"
	"net/http"

	"expensedash/internal/core"
	applog "expensedash/internal/log"
	"expensedash/internal/storage"
)

type notificationsView struct {
	Month         core.Month
	Notifications []core.Notification
}

// visibleNotifications returns the month's notifications minus the ones the
// session dismissed.
func (s *Server) visibleNotifications(ctx context.Context, sess *storage.Session, m core.Month) ([]core.Notification, error) {
	list, err := s.backend.Notifications(ctx, sess.Token, m)
	if err != nil {
		return nil, err
	}
	dismissed, _ := s.dismissed.Get(sess.ID)
	out := make([]core.Notification, 0, len(list.Notifications))
	for _, n := range list.Notifications {
		if dismissed[n.Key()] {
			continue
		}
		n.Severity = core.NormalizeSeverity(n.Severity)
		out = append(out, n)
	}
	return out, nil
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	m := monthParam(r, s.now())

	list, err := s.visibleNotifications(r.Context(), sess, m)
	if err != nil {
		if _, handled := s.backendFailed(w, r, err, ""); handled {
			return
		}
		list = nil
	}
	s.partial(r, "notification_list", notificationsView{Month: m, Notifications: list}).Write(w)
}

func (s *Server) handleNotificationCount(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	m := monthParam(r, s.now())

	view := badgeView{Month: m}
	list, err := s.visibleNotifications(r.Context(), sess, m)
	if err != nil {
		if _, handled := s.backendFailed(w, r, err, ""); handled {
			return
		}
	} else {
		view.Count = len(list)
	}
	s.partial(r, "notification_badge", view).Write(w)
}

// handleDismissNotification hides one notification for the rest of the
// session and returns the refreshed list.
func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	id := r.PathValue("id")

	dismissed, _ := s.dismissed.Get(sess.ID)
	next := make(map[string]bool, len(dismissed)+1)
	maps.Copy(next, dismissed)
	next[id] = true
	s.dismissed.Set(sess.ID, next)
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Notification dismissed", "notification_id", id)

	m := monthParam(r, s.now())
	list, err := s.visibleNotifications(r.Context(), sess, m)
	if err != nil {
		if _, handled := s.backendFailed(w, r, err, ""); handled {
			return
		}
		list = nil
	}
	s.partial(r, "notification_list", notificationsView{Month: m, Notifications: list}).
		TriggerNotificationsChanged().
		Write(w)
}
