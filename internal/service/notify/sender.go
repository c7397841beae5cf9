package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nkiryanov/payouts/internal/logger"
)

const (
	TypeWithdrawalNotification = "notification:withdrawal"

	// Queue notification tasks are enqueued to and served from
	Queue = "notifications"
)

const (
	defaultMaxRetry = 5
	taskRetention   = 24 * time.Hour
)

// LogSender only writes notification to the log
type LogSender struct {
	Logger logger.Logger
}

func (s LogSender) Send(_ context.Context, n Notification) error {
	s.Logger.Info("Notification",
		"event", n.Event,
		"user_id", n.UserID,
		"request_id", n.RequestID,
		"amount", n.Amount.StringFixed(2),
		"method", n.Method,
		"recipients", len(n.Recipients),
	)
	return nil
}

func NewTask(n Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWithdrawalNotification, data), nil
}

// AsynqSender enqueues notifications to redis backed queue processed by the notifier worker
type AsynqSender struct {
	client *asynq.Client
	queue  string
}

func NewAsynqSender(redisAddr string) *AsynqSender {
	return &AsynqSender{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		queue:  Queue,
	}
}

func (s *AsynqSender) Send(ctx context.Context, n Notification) error {
	task, err := NewTask(n)
	if err != nil {
		return fmt.Errorf("error while encoding notification task. Err: %w", err)
	}

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.MaxRetry(defaultMaxRetry),
		asynq.Retention(taskRetention),
		asynq.TaskID(fmt.Sprintf("%s:%s:%d", n.Event, n.RequestID, n.OccurredAt.UnixNano())),
	)
	if err != nil {
		return fmt.Errorf("error while enqueueing notification task. Err: %w", err)
	}

	return nil
}

func (s *AsynqSender) Close() error {
	return s.client.Close()
}
