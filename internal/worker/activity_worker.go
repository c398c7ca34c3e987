// Package worker archives activity events consumed from the queue.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"expensedash/internal/amqp"
	applog "expensedash/internal/log"
	"expensedash/internal/sheets"
)

// Consumer is the queue side the worker reads from.
type Consumer interface {
	ConsumeActivity(ctx context.Context, handler amqp.ActivityHandler) error
}

// ActivityWorker copies every activity event into the archive.
type ActivityWorker struct {
	writer sheets.ActivityWriter
	logger *applog.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

func NewActivityWorker(writer sheets.ActivityWriter, logger *applog.Logger) *ActivityWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &ActivityWorker{writer: writer, logger: logger.WithComponent(applog.ComponentWorker)}
}

// HandleActivity appends msg to the archive. An error makes the consumer
// requeue the delivery.
func (w *ActivityWorker) HandleActivity(ctx context.Context, msg *amqp.ActivityMessage) error {
	row := ToRow(msg)
	ref, err := w.writer.AppendActivity(ctx, row)
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("archive activity %s: %w", msg.ID, err)
	}
	w.processed.Add(1)

	w.logger.InfoContext(ctx, "Archived activity",
		applog.FieldOperation, applog.OpAppend,
		applog.FieldEventID, msg.ID,
		applog.FieldEventType, msg.Type,
		applog.FieldUser, msg.UserEmail,
		"row", ref)
	return nil
}

// Run consumes until ctx is cancelled.
func (w *ActivityWorker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.Info("Activity worker started")
	err := consumer.ConsumeActivity(ctx, w.HandleActivity)
	w.logger.Info("Activity worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load())
	return err
}

// Stats returns how many events were archived and how many failed.
func (w *ActivityWorker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

// ToRow maps a queue message onto an archive row.
func ToRow(msg *amqp.ActivityMessage) sheets.ActivityRow {
	return sheets.ActivityRow{
		Timestamp: msg.Timestamp,
		EventID:   msg.ID,
		Type:      string(msg.Type),
		UserEmail: msg.UserEmail,
		Month:     msg.Month,
		ExpenseID: msg.ExpenseID,
		Details:   msg.Details,
	}
}
