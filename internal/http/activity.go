package http

import (
	"context"
	"time"

	"expensedash/internal/amqp"
	applog "expensedash/internal/log"
)

const publishTimeout = 10 * time.Second

// publish sends an activity event in the background. Failures are logged and
// counted; they never reach the user.
func (s *Server) publish(ctx context.Context, msg *amqp.ActivityMessage) {
	if s.publisher == nil || msg == nil {
		return
	}
	logger := applog.FromContext(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)

	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		defer cancel()
		if err := s.publisher.PublishActivity(ctx, msg); err != nil {
			s.metrics.PublishFailures.Add(1)
			logger.WarnContext(ctx, "Activity publish failed",
				applog.FieldEventType, string(msg.Type),
				applog.FieldEventID, msg.ID,
				applog.FieldOperation, applog.OpPublish,
				applog.FieldError, err)
		}
	}()
}

// activity builds a message for the signed-in user.
func activity(ctx context.Context, typ amqp.ActivityType) *amqp.ActivityMessage {
	email := ""
	if sess := sessionFrom(ctx); sess != nil {
		email = sess.User.Email
	}
	return amqp.NewActivityMessage(typ, email)
}
