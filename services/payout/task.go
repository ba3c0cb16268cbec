package payout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Processor hands a payout to the payment rail. Settlement is reported back
// later through Complete or Fail.
type Processor interface {
	Handoff(ctx context.Context, p *PayoutRequest) error
}

// LogProcessor only records the hand-off.
type LogProcessor struct {
	Logger *zap.Logger
}

func (l LogProcessor) Handoff(_ context.Context, p *PayoutRequest) error {
	log := l.Logger
	if log == nil {
		log = zap.L()
	}
	log.Info("payout handed to payment processor",
		zap.String("payout_id", p.PayoutID),
		zap.String("reference", p.Reference),
		zap.String("method", string(p.Method)),
		zap.Int64("amount", p.Amount),
		zap.String("currency", p.Currency),
	)
	return nil
}

type Dispatcher struct {
	service   *Service
	processor Processor
}

func NewDispatcher(service *Service, processor Processor) *Dispatcher {
	return &Dispatcher{service: service, processor: processor}
}

// HandleDispatchTask is the asynq handler for payout:dispatch. Payouts that
// left PROCESSING since the task was queued are ignored. A rejected hand-off
// fails the payout so it can be retried.
func (d *Dispatcher) HandleDispatchTask(ctx context.Context, t *asynq.Task) error {
	var payload DispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	log := d.service.logger.With(
		zap.String("task_type", t.Type()),
		zap.String("payout_id", payload.PayoutID),
		zap.Int("attempt", payload.Attempt),
	)

	p, err := d.service.GetPayout(ctx, payload.PayoutID)
	if err != nil {
		log.Error("failed to load payout", zap.Error(err))
		return err
	}
	if p.Status != StatusProcessing {
		log.Info("payout no longer processing, skipping dispatch", zap.String("status", string(p.Status)))
		return nil
	}

	if err := d.processor.Handoff(ctx, p); err != nil {
		log.Warn("payment processor rejected payout", zap.Error(err))
		if _, ferr := d.service.Fail(ctx, p.PayoutID, err.Error()); ferr != nil {
			return ferr
		}
		return nil
	}
	return nil
}
