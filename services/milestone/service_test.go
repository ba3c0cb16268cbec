package milestone

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"partner-incentives/pkg/config"
	"partner-incentives/pkg/featureflags"
	"partner-incentives/pkg/taskname"
	"partner-incentives/services/award"
	"partner-incentives/services/campaign"
	"partner-incentives/services/recipient"
	"partner-incentives/services/rule"
	"partner-incentives/services/testutil"
	"partner-incentives/services/trigger"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db         *gorm.DB
	campaigns  *campaign.Service
	rules      *rule.Service
	awards     *award.Service
	recipients *recipient.Service
	milestone  *Service
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()

	var models []any
	models = append(models, campaign.Models()...)
	models = append(models, rule.Models()...)
	models = append(models, award.Models()...)
	models = append(models, recipient.Models()...)
	gdb := testutil.NewTestDB(t, models...)
	node := testutil.NewNode(t)

	campaigns := campaign.NewService(campaign.ServiceParams{DB: gdb, Node: node})
	evaluator, err := rule.NewEvaluator()
	require.NoError(t, err)
	rules := rule.NewService(rule.ServiceParams{
		Repository: rule.NewRepository(gdb),
		Campaigns:  campaigns,
		Evaluator:  evaluator,
		Node:       node,
	})
	awards := award.NewService(award.ServiceParams{DB: gdb, Node: node})
	recipients := recipient.NewService(recipient.ServiceParams{DB: gdb, Node: node})

	return &fixture{
		db:         gdb,
		campaigns:  campaigns,
		rules:      rules,
		awards:     awards,
		recipients: recipients,
		milestone: NewService(ServiceParams{
			DB:       gdb,
			Rules:    rules,
			Ledger:   awards,
			Resolver: recipients,
			Config:   cfg,
		}),
	}
}

func intPtr(v int) *int { return &v }

func (f *fixture) newCampaign(t *testing.T, budget int64, mutate func(*campaign.CreateCampaignInput)) *campaign.Campaign {
	t.Helper()
	ctx := context.Background()

	in := campaign.CreateCampaignInput{
		DeveloperID: "dev-1",
		ProjectID:   "proj-1",
		Name:        "Milestone Rewards",
		BudgetTotal: budget,
		Currency:    "MYR",
	}
	if mutate != nil {
		mutate(&in)
	}
	c, err := f.campaigns.CreateCampaign(ctx, in)
	require.NoError(t, err)
	c, err = f.campaigns.ActivateCampaign(ctx, c.CampaignID)
	require.NoError(t, err)
	return c
}

func (f *fixture) newRule(t *testing.T, campaignID string, mutate func(*rule.CreateRuleInput)) *rule.Rule {
	t.Helper()

	in := rule.CreateRuleInput{
		CampaignID:    campaignID,
		Name:          "SPA signed bonus",
		Trigger:       "SPA_SIGNED",
		RecipientType: recipient.TypeReferrer,
		RewardAmount:  200,
	}
	if mutate != nil {
		mutate(&in)
	}
	r, err := f.rules.CreateRule(context.Background(), in)
	require.NoError(t, err)
	return r
}

func (f *fixture) evaluate(t *testing.T, caseID, trig string) *EvaluationResult {
	t.Helper()
	res, err := f.milestone.EvaluateMilestone(context.Background(), MilestoneEvent{CaseID: caseID, Trigger: trig})
	require.NoError(t, err)
	return res
}

func (f *fixture) remaining(t *testing.T, campaignID string) int64 {
	t.Helper()
	c, err := f.campaigns.GetCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	return c.BudgetRemaining
}

func TestRecipientCapStopsSecondAward(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.newCampaign(t, 1000, nil)
	r := f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) {
		in.MaxAwardsPerRecipient = intPtr(1)
	})

	res := f.evaluate(t, "case-1", "SPA_SIGNED")
	require.True(t, res.Evaluated)
	require.Equal(t, []string{r.RuleID}, res.TriggeredRules)
	require.Len(t, res.AwardsIssued, 1)

	a := res.AwardsIssued[0]
	require.Equal(t, award.StatusPending, a.Status)
	require.Equal(t, recipient.DerivedID("case-1", recipient.TypeReferrer), a.RecipientID)
	require.Equal(t, int64(1000), f.remaining(t, c.CampaignID), "issuing never touches the budget")

	_, err := f.awards.Verify(ctx, a.AwardID, "ops-1")
	require.NoError(t, err)
	_, err = f.awards.Approve(ctx, a.AwardID, "finance-1")
	require.NoError(t, err)
	require.Equal(t, int64(800), f.remaining(t, c.CampaignID))

	res = f.evaluate(t, "case-1", "SPA_SIGNED")
	require.True(t, res.Evaluated)
	require.Empty(t, res.AwardsIssued)
	require.Empty(t, res.TriggeredRules)
	require.Equal(t, []Skip{{RuleID: r.RuleID, Reason: SkipRecipientCapReached}}, res.Skipped)
	require.Equal(t, int64(800), f.remaining(t, c.CampaignID))
}

func TestForbiddenTriggerBlocksEvaluation(t *testing.T) {
	f := newFixture(t, nil)
	c := f.newCampaign(t, 1000, nil)

	// a rule stored before the trigger was forbidden
	require.NoError(t, f.db.Create(&rule.Rule{
		RuleID:        "legacy-1",
		CampaignID:    c.CampaignID,
		Name:          "legacy",
		Trigger:       "LOAN_APPROVED",
		RecipientType: recipient.TypeBuyer,
		RewardType:    rule.RewardCash,
		RewardAmount:  100,
		IsActive:      true,
	}).Error)

	for _, forbidden := range trigger.Forbidden() {
		for _, form := range []string{string(forbidden), strings.ToLower(string(forbidden))} {
			res := f.evaluate(t, "case-1", form)
			require.False(t, res.Evaluated, form)
			require.NotNil(t, res.Blocked, form)
			require.True(t, res.Blocked.ForbiddenTrigger, form)
			require.Empty(t, res.AwardsIssued, form)
		}
	}

	awards, _, err := f.awards.ListAwards(context.Background(), award.ListAwardsInput{CampaignID: c.CampaignID})
	require.NoError(t, err)
	require.Empty(t, awards)
}

func TestNoMatchingRules(t *testing.T) {
	f := newFixture(t, nil)

	res := f.evaluate(t, "case-1", "consent_granted")
	require.True(t, res.Evaluated)
	require.Empty(t, res.TriggeredRules)
	require.Empty(t, res.AwardsIssued)
	require.Nil(t, res.Blocked)
}

func TestEvaluateRequiresCase(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.milestone.EvaluateMilestone(context.Background(), MilestoneEvent{Trigger: "SPA_SIGNED"})
	require.Error(t, err)
}

func TestCampaignGuardsSkipRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	paused := f.newCampaign(t, 1000, nil)
	pausedRule := f.newRule(t, paused.CampaignID, nil)
	_, err := f.campaigns.PauseCampaign(ctx, paused.CampaignID)
	require.NoError(t, err)

	poor := f.newCampaign(t, 100, nil)
	poorRule := f.newRule(t, poor.CampaignID, nil)

	funded := f.newCampaign(t, 1000, nil)
	fundedRule := f.newRule(t, funded.CampaignID, nil)

	res := f.evaluate(t, "case-1", "SPA_SIGNED")
	require.True(t, res.Evaluated)
	require.Equal(t, []string{fundedRule.RuleID}, res.TriggeredRules)
	require.ElementsMatch(t, []Skip{
		{RuleID: pausedRule.RuleID, Reason: SkipCampaignNotActive},
		{RuleID: poorRule.RuleID, Reason: SkipInsufficientBudget},
	}, res.Skipped)
}

func TestCaseCapIsMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.newCampaign(t, 10000, nil)
	r := f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) {
		in.Trigger = "DOCUMENT_UPLOADED"
		in.RecipientType = recipient.TypeBuyer
		in.MaxAwardsPerCase = intPtr(2)
	})

	issued := 0
	for i := 0; i < 5; i++ {
		issued += len(f.evaluate(t, "case-1", "DOCUMENT_UPLOADED").AwardsIssued)
	}
	require.Equal(t, 2, issued)

	awards, _, err := f.awards.ListAwards(ctx, award.ListAwardsInput{RuleID: r.RuleID})
	require.NoError(t, err)
	require.Len(t, awards, 2)

	_, err = f.awards.Reject(ctx, awards[0].AwardID, "ops-1", "duplicate upload")
	require.NoError(t, err)

	res := f.evaluate(t, "case-1", "DOCUMENT_UPLOADED")
	require.Len(t, res.AwardsIssued, 1, "a rejected award frees its slot")

	res = f.evaluate(t, "case-2", "DOCUMENT_UPLOADED")
	require.Len(t, res.AwardsIssued, 1, "caps are per case")
}

func TestCampaignCapsApplyWhenRuleHasNone(t *testing.T) {
	f := newFixture(t, nil)
	c := f.newCampaign(t, 1000, func(in *campaign.CreateCampaignInput) {
		in.MaxAwardsPerCase = intPtr(1)
	})
	f.newRule(t, c.CampaignID, nil)

	require.Len(t, f.evaluate(t, "case-1", "SPA_SIGNED").AwardsIssued, 1)
	res := f.evaluate(t, "case-1", "SPA_SIGNED")
	require.Empty(t, res.AwardsIssued)
	require.Equal(t, SkipCaseCapReached, res.Skipped[0].Reason)
}

func TestTotalCap(t *testing.T) {
	f := newFixture(t, nil)
	c := f.newCampaign(t, 1000, nil)
	f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) {
		in.MaxTotalAwards = intPtr(2)
	})

	for _, caseID := range []string{"case-1", "case-2"} {
		require.Len(t, f.evaluate(t, caseID, "SPA_SIGNED").AwardsIssued, 1)
	}
	res := f.evaluate(t, "case-3", "SPA_SIGNED")
	require.Empty(t, res.AwardsIssued)
	require.Equal(t, SkipTotalCapReached, res.Skipped[0].Reason)
}

func TestConditionFiltersRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.newCampaign(t, 1000, nil)
	r := f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) {
		in.Trigger = "DOCUMENTS_COMPLETED"
		in.RecipientType = recipient.TypeBuyer
		in.Conditions = "metadata.pages >= 3"
	})

	res, err := f.milestone.EvaluateMilestone(ctx, MilestoneEvent{
		CaseID:   "case-1",
		Trigger:  "documents_completed",
		Metadata: map[string]any{"pages": 2},
	})
	require.NoError(t, err)
	require.Equal(t, []Skip{{RuleID: r.RuleID, Reason: SkipConditionNotMet}}, res.Skipped)

	res, err = f.milestone.EvaluateMilestone(ctx, MilestoneEvent{CaseID: "case-1", Trigger: "DOCUMENTS_COMPLETED"})
	require.NoError(t, err)
	require.Equal(t, []Skip{{RuleID: r.RuleID, Reason: SkipConditionError}}, res.Skipped)

	res, err = f.milestone.EvaluateMilestone(ctx, MilestoneEvent{
		CaseID:   "case-1",
		Trigger:  "DOCUMENTS_COMPLETED",
		Metadata: map[string]any{"pages": 5},
	})
	require.NoError(t, err)
	require.Len(t, res.AwardsIssued, 1)
}

func TestAssignedRecipientIsCredited(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.newCampaign(t, 1000, nil)
	f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) {
		in.Trigger = "LAWYER_ASSIGNED"
		in.RecipientType = recipient.TypeLawyer
	})

	l, err := f.recipients.RegisterLawyer(ctx, recipient.RegisterLawyerInput{Name: "Aminah", BarNumber: "bc/a/123"})
	require.NoError(t, err)

	_, err = f.recipients.AssignRecipient(ctx, recipient.AssignRecipientInput{
		CaseID:        "case-9",
		RecipientType: recipient.TypeLawyer,
		RecipientID:   l.LawyerID,
	})
	require.NoError(t, err)

	res := f.evaluate(t, "case-9", "LAWYER_ASSIGNED")
	require.Len(t, res.AwardsIssued, 1)
	require.Equal(t, l.LawyerID, res.AwardsIssued[0].RecipientID)
}

func TestProofEventReplay(t *testing.T) {
	ctx := context.Background()
	ev := MilestoneEvent{CaseID: "case-1", Trigger: "DOCUMENT_UPLOADED", ProofEventID: "evt-7"}

	t.Run("replays issue again by default", func(t *testing.T) {
		f := newFixture(t, nil)
		c := f.newCampaign(t, 1000, nil)
		f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) { in.Trigger = ev.Trigger })

		for i := 0; i < 2; i++ {
			res, err := f.milestone.EvaluateMilestone(ctx, ev)
			require.NoError(t, err)
			require.Len(t, res.AwardsIssued, 1)
		}
	})

	t.Run("dedupe skips a seen proof event", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Incentive.DedupeProofEvents = true
		f := newFixture(t, cfg)
		c := f.newCampaign(t, 1000, nil)
		f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) { in.Trigger = ev.Trigger })

		res, err := f.milestone.EvaluateMilestone(ctx, ev)
		require.NoError(t, err)
		require.Len(t, res.AwardsIssued, 1)

		res, err = f.milestone.EvaluateMilestone(ctx, ev)
		require.NoError(t, err)
		require.Empty(t, res.AwardsIssued)
		require.Equal(t, SkipDuplicateProofEvent, res.Skipped[0].Reason)
	})

	t.Run("remote flag overrides config", func(t *testing.T) {
		f := newFixture(t, nil)
		f.milestone.flags = staticFlags{featureflags.DedupeProofEvents: true}
		c := f.newCampaign(t, 1000, nil)
		f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) { in.Trigger = ev.Trigger })

		_, err := f.milestone.EvaluateMilestone(ctx, ev)
		require.NoError(t, err)
		res, err := f.milestone.EvaluateMilestone(ctx, ev)
		require.NoError(t, err)
		require.Empty(t, res.AwardsIssued)
	})
}

type staticFlags map[string]bool

func (f staticFlags) Enabled(_ context.Context, name string, fallback bool) bool {
	if on, ok := f[name]; ok {
		return on
	}
	return fallback
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, t)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: taskname.QueueCritical, Type: t.Type()}, nil
}

func TestPublishAndHandleTask(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.newCampaign(t, 1000, nil)
	f.newRule(t, c.CampaignID, nil)

	q := &fakeEnqueuer{}
	info, err := NewPublisher(q).Publish(ctx, MilestoneEvent{CaseID: "case-1", Trigger: "SPA_SIGNED", ProofEventID: "evt-1"})
	require.NoError(t, err)
	require.Equal(t, "task-1", info.ID)
	require.Len(t, q.tasks, 1)
	require.Equal(t, taskname.MilestoneEvaluate, q.tasks[0].Type())

	require.NoError(t, f.milestone.HandleEvaluateTask(ctx, q.tasks[0]))

	awards, _, err := f.awards.ListAwards(ctx, award.ListAwardsInput{CaseID: "case-1"})
	require.NoError(t, err)
	require.Len(t, awards, 1)
	require.Equal(t, "evt-1", awards[0].ProofEventID)
}

func TestHandleTaskRejectsBadPayload(t *testing.T) {
	f := newFixture(t, nil)

	err := f.milestone.HandleEvaluateTask(context.Background(), asynq.NewTask(taskname.MilestoneEvaluate, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	err = f.milestone.HandleEvaluateTask(context.Background(), asynq.NewTask(taskname.MilestoneEvaluate, []byte(`{"trigger":"SPA_SIGNED"}`)))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

// flakyLedger fails the first Issue for one rule, like a storage outage in the
// middle of an evaluation.
type flakyLedger struct {
	*award.Service
	failRule string
	failed   bool
}

func (l *flakyLedger) Issue(ctx context.Context, tx *gorm.DB, in award.IssueInput) (*award.Award, error) {
	if in.Rule.RuleID == l.failRule && !l.failed {
		l.failed = true
		return nil, errors.New("storage down")
	}
	return l.Service.Issue(ctx, tx, in)
}

func TestTaskRetryAfterPartialFailureIssuesOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.newCampaign(t, 1000, nil)
	f.newRule(t, c.CampaignID, nil)
	f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) { in.Name = "SPA signed lawyer bonus" })

	active, err := f.rules.ListActiveByTrigger(ctx, trigger.SPASigned)
	require.NoError(t, err)
	require.Len(t, active, 2)

	f.milestone.ledger = &flakyLedger{Service: f.awards, failRule: active[1].RuleID}

	q := &fakeEnqueuer{}
	_, err = NewPublisher(q).Publish(ctx, MilestoneEvent{CaseID: "case-1", Trigger: "SPA_SIGNED", ProofEventID: "evt-9"})
	require.NoError(t, err)

	require.Error(t, f.milestone.HandleEvaluateTask(ctx, q.tasks[0]))
	require.NoError(t, f.milestone.HandleEvaluateTask(ctx, q.tasks[0]))

	for _, r := range active {
		awards, _, err := f.awards.ListAwards(ctx, award.ListAwardsInput{RuleID: r.RuleID})
		require.NoError(t, err)
		require.Len(t, awards, 1, r.RuleID)
	}
	require.Equal(t, int64(1000), f.remaining(t, c.CampaignID))
}

func TestParallelEvaluationsRespectCaseCap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.newCampaign(t, 10000, nil)
	r := f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) {
		in.MaxAwardsPerCase = intPtr(1)
	})
	capped := f.newRule(t, c.CampaignID, func(in *rule.CreateRuleInput) {
		in.Name = "SPA signed, first three cases"
		in.RecipientType = recipient.TypeBuyer
		in.MaxTotalAwards = intPtr(3)
	})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caseID := "case-1"
			if i%2 == 1 {
				caseID = "case-" + strconv.Itoa(100+i)
			}
			_, errs[i] = f.milestone.EvaluateMilestone(ctx, MilestoneEvent{CaseID: caseID, Trigger: "SPA_SIGNED"})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	perCase, _, err := f.awards.ListAwards(ctx, award.ListAwardsInput{RuleID: r.RuleID, CaseID: "case-1"})
	require.NoError(t, err)
	require.Len(t, perCase, 1)

	total, _, err := f.awards.ListAwards(ctx, award.ListAwardsInput{RuleID: capped.RuleID})
	require.NoError(t, err)
	require.Len(t, total, 3)
}
