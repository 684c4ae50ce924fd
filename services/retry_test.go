package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/services"
	"go.uber.org/zap"
)

func TestBackoff(t *testing.T) {
	p := services.RetryPolicy{MaxAttempts: 5, BaseDelay: 30 * time.Second}

	assert.Equal(t, 30*time.Second, p.Backoff(0))
	assert.Equal(t, time.Minute, p.Backoff(1))
	assert.Equal(t, 4*time.Minute, p.Backoff(3))
	assert.Equal(t, 900*time.Second, p.Backoff(5))
	assert.Equal(t, 900*time.Second, p.Backoff(64))
}

func TestScheduleEnqueuesWithBackoff(t *testing.T) {
	queue := &fakeQueue{}
	s := services.NewRetryScheduler(queue, services.RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Second}, nil, zap.NewNop())

	require.NoError(t, s.Schedule(context.Background(), "stripe", "evt_1", 2))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, models.RetryJob{Provider: "stripe", ProviderEventID: "evt_1", Attempt: 2}, queue.jobs[0].job)
	assert.Equal(t, 40*time.Second, queue.jobs[0].delay)
}

func TestScheduleExhausted(t *testing.T) {
	queue := &fakeQueue{}
	effects := &fakeEffects{}
	s := services.NewRetryScheduler(queue, services.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}, effects, zap.NewNop())

	err := s.Schedule(context.Background(), "stripe", "evt_1", 3)
	assert.ErrorIs(t, err, services.ErrRetryExhausted)
	assert.Empty(t, queue.jobs)
	assert.Equal(t, []string{services.MetricRetryExhausted}, effects.metrics)
}

func TestScheduleWithoutQueue(t *testing.T) {
	s := services.NewRetryScheduler(nil, services.DefaultRetryPolicy(), nil, zap.NewNop())
	assert.NoError(t, s.Schedule(context.Background(), "stripe", "evt_1", 1))
}

func TestScheduleQueueError(t *testing.T) {
	queue := &fakeQueue{err: errors.New("sqs down")}
	s := services.NewRetryScheduler(queue, services.DefaultRetryPolicy(), nil, zap.NewNop())
	assert.Error(t, s.Schedule(context.Background(), "stripe", "evt_1", 1))
}
