package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendazap/dispatcher/pkg/queue"
)

type handlerTestPayload struct {
	Message string `json:"message"`
}

func TestNewTaskHandler(t *testing.T) {
	t.Parallel()

	t.Run("name matches enqueued task name", func(t *testing.T) {
		t.Parallel()

		handler := queue.NewTaskHandler(func(context.Context, handlerTestPayload) error { return nil })
		assert.Equal(t, "queue_test.handlerTestPayload", handler.Name())

		pointer := queue.NewTaskHandler(func(context.Context, *handlerTestPayload) error { return nil })
		assert.Equal(t, "queue_test.handlerTestPayload", pointer.Name())
	})

	t.Run("decodes payload", func(t *testing.T) {
		t.Parallel()

		var got handlerTestPayload
		handler := queue.NewTaskHandler(func(_ context.Context, p handlerTestPayload) error {
			got = p
			return nil
		})

		raw, err := json.Marshal(handlerTestPayload{Message: "ping"})
		require.NoError(t, err)
		require.NoError(t, handler.Handle(context.Background(), raw))
		assert.Equal(t, "ping", got.Message)
	})

	t.Run("bad payload is permanent", func(t *testing.T) {
		t.Parallel()

		handler := queue.NewTaskHandler(func(context.Context, handlerTestPayload) error { return nil })
		err := handler.Handle(context.Background(), json.RawMessage(`{"message":`))
		require.Error(t, err)
		assert.True(t, queue.IsPermanent(err))
	})

	t.Run("handler error passes through", func(t *testing.T) {
		t.Parallel()

		want := errors.New("unavailable")
		handler := queue.NewTaskHandler(func(context.Context, handlerTestPayload) error { return want })
		err := handler.Handle(context.Background(), json.RawMessage(`{}`))
		assert.ErrorIs(t, err, want)
		assert.False(t, queue.IsPermanent(err))
	})
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	assert.NoError(t, queue.Permanent(nil))

	base := errors.New("rejected")
	err := fmt.Errorf("send: %w", queue.Permanent(base))
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "send: rejected", err.Error())
	assert.False(t, queue.IsPermanent(base))
}
