package payout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"partner-incentives/pkg/db"
	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/events"
	"partner-incentives/pkg/taskname"
	"partner-incentives/services/award"
	"partner-incentives/services/campaign"
	"partner-incentives/services/recipient"
	"partner-incentives/services/rule"
	"partner-incentives/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, t)
	return &asynq.TaskInfo{ID: "task", Type: t.Type()}, nil
}

type recordingPublisher struct {
	keys []string
}

func (r *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	r.keys = append(r.keys, routingKey)
	return nil
}

type fixture struct {
	db         *gorm.DB
	campaigns  *campaign.Service
	awards     *award.Service
	recipients *recipient.Service
	payouts    *Service
	queue      *fakeEnqueuer
	events     *recordingPublisher
	campaign   *campaign.Campaign
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	var models []any
	models = append(models, campaign.Models()...)
	models = append(models, award.Models()...)
	models = append(models, recipient.Models()...)
	models = append(models, Models()...)
	gdb := testutil.NewTestDB(t, models...)
	node := testutil.NewNode(t)

	campaigns := campaign.NewService(campaign.ServiceParams{DB: gdb, Node: node})
	pub := &recordingPublisher{}
	awards := award.NewService(award.ServiceParams{DB: gdb, Node: node, Events: pub})
	recipients := recipient.NewService(recipient.ServiceParams{DB: gdb, Node: node})
	queue := &fakeEnqueuer{}

	c, err := campaigns.CreateCampaign(ctx, campaign.CreateCampaignInput{
		DeveloperID: "dev-1",
		ProjectID:   "proj-1",
		Name:        "Payouts",
		BudgetTotal: 5000,
		Currency:    "MYR",
	})
	require.NoError(t, err)
	c, err = campaigns.ActivateCampaign(ctx, c.CampaignID)
	require.NoError(t, err)

	payouts := NewService(ServiceParams{
		DB:       gdb,
		Node:     node,
		Awards:   awards,
		Registry: recipients,
		Enqueuer: queue,
		Events:   pub,
	})
	awards.UseSettlements(payouts)

	return &fixture{
		db:         gdb,
		campaigns:  campaigns,
		awards:     awards,
		recipients: recipients,
		payouts:    payouts,
		queue:      queue,
		events:     pub,
		campaign:   c,
	}
}

func (f *fixture) referrer(t *testing.T) *recipient.Referrer {
	t.Helper()
	ctx := context.Background()

	r, err := f.recipients.RegisterReferrer(ctx, recipient.RegisterReferrerInput{
		Name:  "Aisyah",
		Phone: "0123456789",
		BankAccount: recipient.BankAccount{
			BankName:          "Maybank",
			BankAccountNumber: "114477889900",
			BankAccountHolder: "Aisyah Binti Ahmad",
		},
	})
	require.NoError(t, err)
	r, err = f.recipients.VerifyReferrer(ctx, r.ReferrerID, "ops-1")
	require.NoError(t, err)
	return r
}

// approvedAward issues, verifies and approves an award for recipientID.
func (f *fixture) approvedAward(t *testing.T, rt recipient.Type, recipientID string) *award.Award {
	t.Helper()
	ctx := context.Background()

	var a *award.Award
	require.NoError(t, db.Transact(ctx, f.db, func(tx *gorm.DB) error {
		var err error
		a, err = f.awards.Issue(ctx, tx, award.IssueInput{
			Rule: &rule.Rule{
				RuleID:        "rule-1",
				Trigger:       "SPA_SIGNED",
				RecipientType: rt,
				RewardType:    rule.RewardCash,
				RewardAmount:  250,
			},
			Campaign:    f.campaign,
			CaseID:      "case-1",
			RecipientID: recipientID,
		})
		return err
	}))

	_, err := f.awards.Verify(ctx, a.AwardID, "ops-1")
	require.NoError(t, err)
	a, err = f.awards.Approve(ctx, a.AwardID, "finance-1")
	require.NoError(t, err)
	return a
}

func (f *fixture) requested(t *testing.T) (*PayoutRequest, *award.Award) {
	t.Helper()
	r := f.referrer(t)
	a := f.approvedAward(t, recipient.TypeReferrer, r.ReferrerID)

	p, err := f.payouts.RequestPayout(context.Background(), RequestPayoutInput{AwardID: a.AwardID, RequestedBy: "ops-1"})
	require.NoError(t, err)
	return p, a
}

func TestRequestPayoutUsesRegisteredAccount(t *testing.T) {
	f := newFixture(t)

	p, a := f.requested(t)
	require.Equal(t, StatusPending, p.Status)
	require.Equal(t, a.RewardAmount, p.Amount)
	require.Equal(t, "MYR", p.Currency)
	require.Equal(t, MethodBankTransfer, p.Method)
	require.Equal(t, "114477889900", p.BankAccountNumber)
	require.NotEmpty(t, p.Reference)
	require.Equal(t, 3, p.MaxRetries)
}

func TestRequestPayoutOncePerAward(t *testing.T) {
	f := newFixture(t)
	_, a := f.requested(t)

	_, err := f.payouts.RequestPayout(context.Background(), RequestPayoutInput{AwardID: a.AwardID, RequestedBy: "ops-2"})
	require.Equal(t, errutil.ReasonDuplicatePayout, errutil.ReasonOf(err))
}

func TestRequestPayoutNeedsApprovedAward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.referrer(t)

	var pending *award.Award
	require.NoError(t, db.Transact(ctx, f.db, func(tx *gorm.DB) error {
		var err error
		pending, err = f.awards.Issue(ctx, tx, award.IssueInput{
			Rule:        &rule.Rule{RuleID: "rule-1", RecipientType: recipient.TypeReferrer, RewardType: rule.RewardCash, RewardAmount: 100},
			Campaign:    f.campaign,
			CaseID:      "case-2",
			RecipientID: r.ReferrerID,
		})
		return err
	}))

	_, err := f.payouts.RequestPayout(ctx, RequestPayoutInput{AwardID: pending.AwardID, RequestedBy: "ops-1"})
	require.Equal(t, errutil.ReasonInvalidStatus, errutil.ReasonOf(err))
}

func TestRequestPayoutBlockedRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.referrer(t)
	a := f.approvedAward(t, recipient.TypeReferrer, r.ReferrerID)

	_, err := f.recipients.SuspendReferrer(ctx, r.ReferrerID, "under review")
	require.NoError(t, err)

	_, err = f.payouts.RequestPayout(ctx, RequestPayoutInput{AwardID: a.AwardID, RequestedBy: "ops-1"})
	require.Equal(t, errutil.ReasonRecipientBlocked, errutil.ReasonOf(err))
}

func TestBankMismatchFlagsReferrer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.referrer(t)
	a := f.approvedAward(t, recipient.TypeReferrer, r.ReferrerID)

	_, err := f.payouts.RequestPayout(ctx, RequestPayoutInput{
		AwardID:     a.AwardID,
		RequestedBy: "ops-1",
		BankAccount: recipient.BankAccount{
			BankName:          "CIMB",
			BankAccountNumber: "8000111222",
			BankAccountHolder: "Someone Else",
		},
	})
	require.Equal(t, errutil.ReasonBankMismatch, errutil.ReasonOf(err))

	flags, err := f.recipients.ListFlags(ctx, r.ReferrerID, true)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	require.Equal(t, recipient.FlagBankMismatch, flags[0].Type)

	payouts, _, err := f.payouts.ListPayouts(ctx, ListPayoutsInput{AwardID: a.AwardID})
	require.NoError(t, err)
	require.Empty(t, payouts)
}

func TestBuyerPayoutNeedsDestination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.approvedAward(t, recipient.TypeBuyer, recipient.DerivedID("case-1", recipient.TypeBuyer))

	_, err := f.payouts.RequestPayout(ctx, RequestPayoutInput{AwardID: a.AwardID, RequestedBy: "ops-1"})
	require.Equal(t, errutil.ReasonValidation, errutil.ReasonOf(err))

	p, err := f.payouts.RequestPayout(ctx, RequestPayoutInput{
		AwardID:     a.AwardID,
		Method:      MethodBankTransfer,
		RequestedBy: "ops-1",
		BankAccount: recipient.BankAccount{BankName: "Maybank", BankAccountNumber: "5140 1234 5678", BankAccountHolder: "Buyer One"},
	})
	require.NoError(t, err)
	require.Equal(t, MethodBankTransfer, p.Method)
	require.Equal(t, "514012345678", p.BankAccountNumber)
	require.Empty(t, p.WalletID)
}

func TestEWalletPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.approvedAward(t, recipient.TypeBuyer, recipient.DerivedID("case-1", recipient.TypeBuyer))

	_, err := f.payouts.RequestPayout(ctx, RequestPayoutInput{
		AwardID:     a.AwardID,
		Method:      "e_wallet",
		RequestedBy: "ops-1",
		BankAccount: recipient.BankAccount{BankAccountNumber: "60123456789", BankAccountHolder: "Buyer One"},
	})
	require.Equal(t, errutil.ReasonValidation, errutil.ReasonOf(err), "bank fields do not satisfy an e-wallet payout")

	p, err := f.payouts.RequestPayout(ctx, RequestPayoutInput{
		AwardID:     a.AwardID,
		Method:      "e_wallet",
		RequestedBy: "ops-1",
		Wallet:      Wallet{WalletProvider: "touch n go", WalletID: "+60 12-345 6789"},
	})
	require.NoError(t, err)
	require.Equal(t, MethodEWallet, p.Method)
	require.Equal(t, "TOUCH N GO", p.WalletProvider)
	require.Equal(t, "+6012-3456789", p.WalletID)
	require.Empty(t, p.BankAccountNumber)

	got, err := f.payouts.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	require.Equal(t, p.Wallet, got.Wallet)
}

func TestFourEyesApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.requested(t)

	_, err := f.payouts.Approve(ctx, p.PayoutID, "OPS-1 ")
	require.Equal(t, errutil.ReasonFourEyes, errutil.ReasonOf(err))

	got, err := f.payouts.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)

	approved, err := f.payouts.Approve(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, "finance-2", approved.ApprovedBy)
}

func TestRejectReasonLength(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.requested(t)

	_, err := f.payouts.Reject(ctx, p.PayoutID, "finance-2", "  too short ")
	require.Equal(t, errutil.ReasonReasonTooShort, errutil.ReasonOf(err))

	rejected, err := f.payouts.Reject(ctx, p.PayoutID, "finance-2", "account frozen by bank")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	_, err = f.payouts.Approve(ctx, p.PayoutID, "finance-2")
	require.Equal(t, errutil.ReasonInvalidStatus, errutil.ReasonOf(err))
}

func TestProcessAndCompleteMarksAwardPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, a := f.requested(t)

	_, err := f.payouts.Process(ctx, p.PayoutID, "finance-2")
	require.Equal(t, errutil.ReasonInvalidStatus, errutil.ReasonOf(err), "pending payouts are not processed")

	_, err = f.payouts.Approve(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)

	processing, err := f.payouts.Process(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, processing.Status)
	require.Len(t, f.queue.tasks, 1)
	require.Equal(t, taskname.PayoutDispatch, f.queue.tasks[0].Type())

	var payload DispatchPayload
	require.NoError(t, json.Unmarshal(f.queue.tasks[0].Payload(), &payload))
	require.Equal(t, p.PayoutID, payload.PayoutID)

	done, err := f.payouts.Complete(ctx, p.PayoutID, CompleteInput{ExternalReference: "BANK-REF-9"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.Equal(t, "BANK-REF-9", done.ExternalReference)

	paid, err := f.awards.GetAward(ctx, a.AwardID)
	require.NoError(t, err)
	require.Equal(t, award.StatusPaid, paid.Status)
	require.Equal(t, "BANK-REF-9", paid.PayoutReference)
	require.Equal(t, string(MethodBankTransfer), paid.PayoutMethod)

	require.Equal(t, []string{
		events.AwardVerified,
		events.AwardApproved,
		events.PayoutRequested,
		events.PayoutApproved,
		events.PayoutProcessing,
		events.PayoutCompleted,
		events.AwardPaid,
	}, f.events.keys)
}

func TestCompleteRollsBackWhenAwardNotPayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, a := f.requested(t)

	_, err := f.payouts.Approve(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)
	_, err = f.payouts.Process(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)

	_, err = f.awards.Reject(ctx, a.AwardID, "finance-3", "fraud confirmed")
	require.NoError(t, err)

	_, err = f.payouts.Complete(ctx, p.PayoutID, CompleteInput{})
	require.Equal(t, errutil.ReasonInvalidStatus, errutil.ReasonOf(err))

	got, err := f.payouts.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, got.Status)
}

func TestProcessFailsWhenQueueDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.requested(t)

	_, err := f.payouts.Approve(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)

	f.queue.err = errors.New("redis down")
	_, err = f.payouts.Process(ctx, p.PayoutID, "finance-2")
	require.Equal(t, errutil.StatusServiceUnavailable, errutil.StatusOf(err))

	got, err := f.payouts.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
}

func TestRetryBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.requested(t)

	_, err := f.payouts.Approve(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)
	_, err = f.payouts.Process(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err = f.payouts.Fail(ctx, p.PayoutID, "rail timeout")
		require.NoError(t, err)

		retried, err := f.payouts.Retry(ctx, p.PayoutID, "finance-2")
		require.NoError(t, err)
		require.Equal(t, StatusProcessing, retried.Status)
		require.Equal(t, i, retried.RetryCount)
	}

	_, err = f.payouts.Fail(ctx, p.PayoutID, "rail timeout")
	require.NoError(t, err)
	_, err = f.payouts.Retry(ctx, p.PayoutID, "finance-2")
	require.Equal(t, errutil.ReasonRetryExhausted, errutil.ReasonOf(err))

	got, err := f.payouts.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Len(t, f.queue.tasks, 4)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.requested(t)

	cancelled, err := f.payouts.Cancel(ctx, p.PayoutID, "ops-1")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.payouts.Cancel(ctx, p.PayoutID, "ops-1")
	require.Equal(t, errutil.ReasonInvalidStatus, errutil.ReasonOf(err))
}

type failingProcessor struct{}

func (failingProcessor) Handoff(context.Context, *PayoutRequest) error {
	return errors.New("account closed")
}

func TestDispatchTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.requested(t)

	_, err := f.payouts.Approve(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)
	_, err = f.payouts.Process(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)

	ok := NewDispatcher(f.payouts, LogProcessor{})
	require.NoError(t, ok.HandleDispatchTask(ctx, f.queue.tasks[0]))
	got, err := f.payouts.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, got.Status)

	bad := NewDispatcher(f.payouts, failingProcessor{})
	require.NoError(t, bad.HandleDispatchTask(ctx, f.queue.tasks[0]))
	got, err = f.payouts.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "account closed", got.FailureReason)

	require.NoError(t, bad.HandleDispatchTask(ctx, f.queue.tasks[0]), "stale task is ignored")

	err = ok.HandleDispatchTask(ctx, asynq.NewTask(taskname.PayoutDispatch, []byte("nope")))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestRejectAwardCancelsOpenPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, a := f.requested(t)

	_, err := f.payouts.Approve(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)

	_, err = f.awards.Reject(ctx, a.AwardID, "finance-1", "sale reversed")
	require.NoError(t, err)

	got, err := f.payouts.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.Equal(t, "finance-1", got.CancelledBy)

	c, err := f.campaigns.GetCampaign(ctx, f.campaign.CampaignID)
	require.NoError(t, err)
	require.Equal(t, c.BudgetTotal, c.BudgetRemaining)

	_, err = f.payouts.Process(ctx, p.PayoutID, "finance-2")
	require.Equal(t, errutil.ReasonInvalidStatus, errutil.ReasonOf(err))
}

func TestRejectAwardBlockedWhilePayoutProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, a := f.requested(t)

	_, err := f.payouts.Approve(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)
	_, err = f.payouts.Process(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)

	_, err = f.awards.Reject(ctx, a.AwardID, "finance-1", "sale reversed")
	require.Equal(t, errutil.ReasonInvalidStatus, errutil.ReasonOf(err))

	got, err := f.awards.GetAward(ctx, a.AwardID)
	require.NoError(t, err)
	require.Equal(t, award.StatusApproved, got.Status)

	c, err := f.campaigns.GetCampaign(ctx, f.campaign.CampaignID)
	require.NoError(t, err)
	require.Equal(t, c.BudgetTotal-a.RewardAmount, c.BudgetRemaining)

	done, err := f.payouts.Complete(ctx, p.PayoutID, CompleteInput{ExternalReference: "BANK-1"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
}

func TestRetryRefusedAfterAwardRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, a := f.requested(t)

	_, err := f.payouts.Approve(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)
	_, err = f.payouts.Process(ctx, p.PayoutID, "finance-2")
	require.NoError(t, err)
	_, err = f.payouts.Fail(ctx, p.PayoutID, "account closed")
	require.NoError(t, err)

	_, err = f.awards.Reject(ctx, a.AwardID, "finance-1", "recipient account closed")
	require.NoError(t, err)

	_, err = f.payouts.Retry(ctx, p.PayoutID, "finance-2")
	require.Equal(t, errutil.ReasonInvalidStatus, errutil.ReasonOf(err))

	got, err := f.payouts.GetPayout(ctx, p.PayoutID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
}
