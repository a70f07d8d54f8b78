package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypePromoUsageIncrement retries promo usage bookkeeping that failed during
// finalize. The sale already stands; only the counter is behind.
const TypePromoUsageIncrement = "promo:usage_increment"

// PromoUsagePayload identifies the redemption to record.
type PromoUsagePayload struct {
	Code        string `json:"code"`
	OrderNumber string `json:"orderNumber"`
}

// UsageIncrementer is the single backend call the worker needs.
type UsageIncrementer interface {
	IncrementPromoUsage(ctx context.Context, code string) error
}

// Scheduler enqueues usage-increment retries onto asynq.
type Scheduler struct {
	Client *asynq.Client
}

// ScheduleUsageIncrement queues a retry task. The order number keys the task
// so a re-run of the same sale does not double-count.
func (s Scheduler) ScheduleUsageIncrement(ctx context.Context, code, orderNumber string) error {
	if s.Client == nil {
		return errors.New("tasks: asynq client not configured")
	}
	payload, err := json.Marshal(PromoUsagePayload{Code: code, OrderNumber: orderNumber})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypePromoUsageIncrement, payload)
	opts := []asynq.Option{
		asynq.MaxRetry(10),
		asynq.Timeout(30 * time.Second),
	}
	if orderNumber != "" {
		opts = append(opts, asynq.TaskID(fmt.Sprintf("%s:%s:%s", TypePromoUsageIncrement, code, orderNumber)))
	}
	_, err = s.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// PromoUsageHandler processes queued usage increments against the backend.
type PromoUsageHandler struct {
	Backend UsageIncrementer
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h PromoUsageHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload PromoUsagePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Malformed payloads never succeed; drop instead of retrying.
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Code == "" {
		return fmt.Errorf("empty promo code: %w", asynq.SkipRetry)
	}
	if h.Backend == nil {
		return errors.New("tasks: backend not configured")
	}
	if err := h.Backend.IncrementPromoUsage(ctx, payload.Code); err != nil {
		h.Logger.Warn().Err(err).Str("code", payload.Code).Str("order", payload.OrderNumber).Msg("promo usage increment retry failed")
		return err
	}
	h.Logger.Info().Str("code", payload.Code).Str("order", payload.OrderNumber).Msg("promo usage recorded")
	return nil
}
