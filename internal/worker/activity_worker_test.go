package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensedash/internal/amqp"
	"expensedash/internal/sheets"
	"expensedash/internal/sheets/memory"
)

type failingWriter struct{ err error }

func (f failingWriter) AppendActivity(context.Context, sheets.ActivityRow) (string, error) {
	return "", f.err
}

// fakeConsumer delivers a fixed list of messages and records handler results.
type fakeConsumer struct {
	msgs    []*amqp.ActivityMessage
	results []error
}

func (f *fakeConsumer) ConsumeActivity(ctx context.Context, h amqp.ActivityHandler) error {
	for _, m := range f.msgs {
		f.results = append(f.results, h(ctx, m))
	}
	return nil
}

func TestActivityWorker_HandleActivity(t *testing.T) {
	store := memory.New()
	w := NewActivityWorker(store, nil)

	msg := amqp.NewActivityMessage(amqp.ActivityExpenseCreated, "john.doe@example.com")
	msg.Month = "2025-03"
	msg.ExpenseID = "17"
	msg.WithDetail("category", "Food")

	require.NoError(t, w.HandleActivity(context.Background(), msg))

	rows := store.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, msg.ID, rows[0].EventID)
	assert.Equal(t, "expense.created", rows[0].Type)
	assert.Equal(t, "2025-03", rows[0].Month)
	assert.Equal(t, "Food", rows[0].Details["category"])

	processed, failed := w.Stats()
	assert.EqualValues(t, 1, processed)
	assert.EqualValues(t, 0, failed)
}

func TestActivityWorker_WriterFailureIsReturned(t *testing.T) {
	w := NewActivityWorker(failingWriter{err: errors.New("quota")}, nil)

	err := w.HandleActivity(context.Background(), amqp.NewActivityMessage(amqp.ActivityUserLoggedIn, "a@b.co"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")

	_, failed := w.Stats()
	assert.EqualValues(t, 1, failed)
}

func TestActivityWorker_Run(t *testing.T) {
	store := memory.New()
	w := NewActivityWorker(store, nil)
	consumer := &fakeConsumer{msgs: []*amqp.ActivityMessage{
		amqp.NewActivityMessage(amqp.ActivitySchedulerStarted, "a@b.co"),
		amqp.NewActivityMessage(amqp.ActivitySchedulerStopped, "a@b.co"),
	}}

	require.NoError(t, w.Run(context.Background(), consumer))
	assert.Equal(t, []error{nil, nil}, consumer.results)
	assert.Len(t, store.Rows(), 2)
}
