package rule

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"partner-incentives/pkg/db/pagination"
	"partner-incentives/pkg/errutil"
	"partner-incentives/services/campaign"
	"partner-incentives/services/recipient"
	"partner-incentives/services/testutil"
	"partner-incentives/services/trigger"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *campaign.Campaign) {
	t.Helper()

	db := testutil.NewTestDB(t, append(campaign.Models(), Models()...)...)
	node := testutil.NewNode(t)
	campaigns := campaign.NewService(campaign.ServiceParams{DB: db, Node: node})

	c, err := campaigns.CreateCampaign(context.Background(), campaign.CreateCampaignInput{
		DeveloperID: "dev-1",
		ProjectID:   "proj-1",
		Name:        "Referral Push",
		BudgetTotal: 1000,
		Currency:    "MYR",
	})
	require.NoError(t, err)

	evaluator, err := NewEvaluator()
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		Repository: NewRepository(db),
		Campaigns:  campaigns,
		Evaluator:  evaluator,
		Node:       node,
	})
	return svc, c
}

func validInput(campaignID string) CreateRuleInput {
	return CreateRuleInput{
		CampaignID:    campaignID,
		Name:          "Docs uploaded",
		Trigger:       "documents_completed",
		RecipientType: "buyer",
		RewardAmount:  200,
	}
}

func TestCreateAndGetRule(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRule(ctx, validInput(c.CampaignID))
	require.NoError(t, err)
	require.Equal(t, trigger.Trigger("DOCUMENTS_COMPLETED"), r.Trigger)
	require.Equal(t, recipient.TypeBuyer, r.RecipientType)
	require.Equal(t, RewardCash, r.RewardType)
	require.True(t, r.IsActive)

	got, err := svc.GetRule(ctx, r.RuleID)
	require.NoError(t, err)
	require.Equal(t, r.RuleID, got.RuleID)
}

func TestCreateRuleGuardOrder(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	in := validInput("missing-campaign")
	in.Trigger = "loan_approved"
	_, err := svc.CreateRule(ctx, in)
	require.Equal(t, errutil.ReasonForbiddenTrigger, errutil.ReasonOf(err), "forbidden beats a missing campaign")

	in.Trigger = "ORDER_CREATED"
	_, err = svc.CreateRule(ctx, in)
	require.Equal(t, errutil.ReasonInvalidTrigger, errutil.ReasonOf(err), "unlisted beats a missing campaign")

	in.Trigger = "SPA_SIGNED"
	_, err = svc.CreateRule(ctx, in)
	require.Equal(t, errutil.ReasonCampaignNotFound, errutil.ReasonOf(err))

	in.CampaignID = c.CampaignID
	in.RewardAmount = 0
	_, err = svc.CreateRule(ctx, in)
	require.Equal(t, errutil.ReasonValidation, errutil.ReasonOf(err))
}

func TestForbiddenTriggersNeverCreateRules(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	for _, f := range trigger.Forbidden() {
		for _, form := range []string{string(f), strings.ToLower(string(f)), " " + string(f) + " "} {
			in := validInput(c.CampaignID)
			in.Trigger = form
			_, err := svc.CreateRule(ctx, in)
			require.Equal(t, errutil.ReasonForbiddenTrigger, errutil.ReasonOf(err), form)
		}
	}

	rules, _, err := svc.ListRules(ctx, ListRulesInput{IncludeInactive: true})
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestCreateRuleRejectsBadCondition(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	in := validInput(c.CampaignID)
	in.Conditions = "metadata.pages >"
	_, err := svc.CreateRule(ctx, in)
	require.Equal(t, errutil.ReasonValidation, errutil.ReasonOf(err))

	in.Conditions = "case_id + 'x'"
	_, err = svc.CreateRule(ctx, in)
	require.Equal(t, errutil.ReasonValidation, errutil.ReasonOf(err))

	in.Conditions = "metadata.pages >= 3"
	_, err = svc.CreateRule(ctx, in)
	require.NoError(t, err)
}

func TestDeactivateRule(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRule(ctx, validInput(c.CampaignID))
	require.NoError(t, err)

	off, err := svc.DeactivateRule(ctx, r.RuleID, "ops-1")
	require.NoError(t, err)
	require.False(t, off.IsActive)
	require.NotNil(t, off.DeactivatedAt)

	_, err = svc.DeactivateRule(ctx, r.RuleID, "ops-1")
	require.Equal(t, errutil.ReasonInvalidStatus, errutil.ReasonOf(err))

	active, err := svc.ListActiveByTrigger(ctx, "documents_completed")
	require.NoError(t, err)
	require.Empty(t, active)

	stored, err := svc.GetRule(ctx, r.RuleID)
	require.NoError(t, err)
	require.False(t, stored.IsActive)
}

func TestListRulesPagination(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		in := validInput(c.CampaignID)
		in.Name = "rule" + strconv.Itoa(i)
		_, err := svc.CreateRule(ctx, in)
		require.NoError(t, err)
	}

	rules, page, err := svc.ListRules(ctx, ListRulesInput{
		CampaignID: c.CampaignID,
		Pagination: pagination.Pagination{Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.True(t, page.HasMore)

	rest, page, err := svc.ListRules(ctx, ListRulesInput{
		CampaignID: c.CampaignID,
		Pagination: pagination.Pagination{Limit: 2, Cursor: page.NextCursor},
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.False(t, page.HasMore)
}

func TestMatches(t *testing.T) {
	svc, _ := newTestService(t)

	r := &Rule{RecipientType: recipient.TypeBuyer}
	ok, err := svc.Matches(r, Facts{})
	require.NoError(t, err)
	require.True(t, ok)

	r.Conditions = "metadata.pages >= 3 && recipient_type == 'BUYER'"
	ok, err = svc.Matches(r, Facts{Metadata: map[string]any{"pages": 4}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Matches(r, Facts{Metadata: map[string]any{"pages": 2}})
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.Matches(r, Facts{})
	require.Error(t, err, "missing key is an evaluation error")
}

func TestProgramCacheCompilesOnce(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Match(&Rule{Conditions: "trigger == 'SPA_SIGNED'"}, Facts{Trigger: "SPA_SIGNED"})
		}()
	}
	wg.Wait()

	require.Equal(t, 1, e.cache.Len())
}
