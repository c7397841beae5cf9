package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Worker consumes notification tasks and delivers them with the sender
type Worker struct {
	Deliver Sender
}

func (w *Worker) HandleWithdrawalNotification(ctx context.Context, t *asynq.Task) error {
	var n Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if n.Event == "" || len(n.Recipients) == 0 {
		return fmt.Errorf("notification without event or recipients: %w", asynq.SkipRetry)
	}

	return w.Deliver.Send(ctx, n)
}

func (w *Worker) ServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeWithdrawalNotification, w.HandleWithdrawalNotification)
	return mux
}
