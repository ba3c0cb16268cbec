package milestone

import (
	"context"
	"encoding/json"
	"fmt"

	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/task"
	"partner-incentives/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Publisher hands milestone events to the worker instead of evaluating them
// inline.
type Publisher struct {
	enqueuer task.Enqueuer
}

func NewPublisher(enqueuer task.Enqueuer) *Publisher {
	return &Publisher{enqueuer: enqueuer}
}

// Publish queues ev as a milestone:evaluate task. Events sharing a proof
// event id collapse into one task while it is still queued.
func (p *Publisher) Publish(ctx context.Context, ev MilestoneEvent) (*asynq.TaskInfo, error) {
	var opts []asynq.Option
	opts = append(opts, asynq.Queue(taskname.QueueCritical), asynq.MaxRetry(5))
	if ev.ProofEventID != "" {
		opts = append(opts, asynq.TaskID(ev.CaseID+":"+ev.Trigger+":"+ev.ProofEventID))
	}

	t, err := task.NewJSONTask(taskname.MilestoneEvaluate, ev, opts...)
	if err != nil {
		return nil, err
	}
	return p.enqueuer.Enqueue(ctx, t)
}

// HandleEvaluateTask is the asynq handler for milestone:evaluate.
func (s *Service) HandleEvaluateTask(ctx context.Context, t *asynq.Task) error {
	var ev MilestoneEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	log := s.logger.With(
		zap.String("task_type", t.Type()),
		zap.String("case_id", ev.CaseID),
		zap.String("trigger", ev.Trigger),
	)
	log.Info("start milestone evaluation task")

	// A retry re-runs every rule, so the task path always dedupes. Events
	// without a proof id are keyed by the task id, which is stable across
	// redeliveries.
	if ev.ProofEventID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			ev.ProofEventID = "task:" + id
		}
	}

	res, err := s.evaluate(ctx, ev, true)
	if err != nil {
		if errutil.StatusOf(err) == errutil.StatusValidationFailed {
			log.Error("dropping malformed milestone", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	log.Info("milestone evaluation task done",
		zap.Bool("evaluated", res.Evaluated),
		zap.Int("awards_issued", len(res.AwardsIssued)),
		zap.Int("skipped", len(res.Skipped)),
	)
	return nil
}
