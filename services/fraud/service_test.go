package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"partner-incentives/pkg/errutil"
	"partner-incentives/services/recipient"
	"partner-incentives/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeCounter struct {
	counts map[string]int
	err    error
}

func (f *fakeCounter) Consume(_ context.Context, scope, subject string, _ time.Duration) (int, time.Duration, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[scope+":"+subject]++
	return f.counts[scope+":"+subject], time.Minute, nil
}

type fixture struct {
	db        *gorm.DB
	recipient *recipient.Service
	fraud     *Service
	counter   *fakeCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	models := append(recipient.Models(), Models()...)
	db := testutil.NewTestDB(t, models...)
	node := testutil.NewNode(t)

	reg := recipient.NewService(recipient.ServiceParams{DB: db, Node: node})
	counter := &fakeCounter{}
	svc := NewService(ServiceParams{DB: db, Node: node, Registry: reg, Counter: counter})
	svc.rapidLimit = 3

	return &fixture{db: db, recipient: reg, fraud: svc, counter: counter}
}

func (f *fixture) activeReferrer(t *testing.T, phone string) *recipient.Referrer {
	t.Helper()
	ctx := context.Background()

	r, err := f.recipient.RegisterReferrer(ctx, recipient.RegisterReferrerInput{Name: "Referrer", Phone: phone})
	require.NoError(t, err)
	r, err = f.recipient.VerifyReferrer(ctx, r.ReferrerID, "ops-1")
	require.NoError(t, err)
	return r
}

func TestValidateReferral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.activeReferrer(t, "0123456789")

	res, err := f.fraud.ValidateReferral(ctx, ReferralCheck{
		ReferrerPhone: "0123456789",
		BuyerPhone:    "0198765432",
		ReferralCode:  r.ReferralCode,
	})
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Nil(t, res.FraudFlag)
	require.Equal(t, r.ReferrerID, res.ReferrerID)

	got, err := f.recipient.GetReferrer(ctx, r.ReferrerID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.TotalReferrals)

	attempts, err := f.fraud.ListAttempts(ctx, r.ReferrerID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, "60198765432", attempts[0].BuyerPhone)
}

func TestSelfReferralSymmetry(t *testing.T) {
	buyerForms := []string{"+60123456789", "0123456789", "012-345 6789"}

	for _, registered := range buyerForms {
		for _, buyer := range buyerForms {
			t.Run(registered+"_vs_"+buyer, func(t *testing.T) {
				f := newFixture(t)
				ctx := context.Background()
				r := f.activeReferrer(t, registered)

				res, err := f.fraud.ValidateReferral(ctx, ReferralCheck{
					BuyerPhone:   buyer,
					ReferralCode: r.ReferralCode,
				})
				require.NoError(t, err)
				require.False(t, res.Valid)
				require.NotNil(t, res.FraudFlag)
				require.Equal(t, recipient.FlagSelfReferral, res.FraudFlag.Type)

				got, err := f.recipient.GetReferrer(ctx, r.ReferrerID)
				require.NoError(t, err)
				require.Equal(t, recipient.ReferrerBlocked, got.Status)
				require.Equal(t, 40, got.RiskScore)
				require.Zero(t, got.TotalReferrals)
			})
		}
	}
}

func TestSelfReferralAgainstClaimedPhone(t *testing.T) {
	f := newFixture(t)
	r := f.activeReferrer(t, "0111111111")

	res, err := f.fraud.ValidateReferral(context.Background(), ReferralCheck{
		ReferrerPhone: "+60 12-345 6789",
		BuyerPhone:    "0123456789",
		ReferralCode:  r.ReferralCode,
	})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, recipient.FlagSelfReferral, res.FraudFlag.Type)
}

func TestReferrerStateRejectsWithoutFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.fraud.ValidateReferral(ctx, ReferralCheck{BuyerPhone: "0198765432", ReferralCode: "NOPE"})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, "referral code not found", res.Reason)

	r := f.activeReferrer(t, "0123456789")
	_, err = f.recipient.SuspendReferrer(ctx, r.ReferrerID, "review")
	require.NoError(t, err)

	res, err = f.fraud.ValidateReferral(ctx, ReferralCheck{BuyerPhone: "0198765432", ReferralCode: r.ReferralCode})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, "referrer is suspended", res.Reason)
	require.Nil(t, res.FraudFlag)

	flags, err := f.recipient.ListFlags(ctx, r.ReferrerID, false)
	require.NoError(t, err)
	require.Empty(t, flags)
}

func TestDuplicateReferral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.activeReferrer(t, "0123456789")
	second := f.activeReferrer(t, "0133333333")

	res, err := f.fraud.ValidateReferral(ctx, ReferralCheck{BuyerPhone: "0198765432", ReferralCode: first.ReferralCode})
	require.NoError(t, err)
	require.True(t, res.Valid)

	res, err = f.fraud.ValidateReferral(ctx, ReferralCheck{BuyerPhone: "+60198765432", ReferralCode: second.ReferralCode})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, recipient.FlagDuplicateReferral, res.FraudFlag.Type)

	got, err := f.recipient.GetReferrer(ctx, second.ReferrerID)
	require.NoError(t, err)
	require.Equal(t, recipient.ReferrerActive, got.Status)
	require.Equal(t, 15, got.RiskScore)
}

func TestRapidReferralsFlagButStayValid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.activeReferrer(t, "0123456789")

	buyers := []string{"0170000001", "0170000002", "0170000003", "0170000004"}
	var last *ReferralResult
	for _, b := range buyers {
		res, err := f.fraud.ValidateReferral(ctx, ReferralCheck{BuyerPhone: b, ReferralCode: r.ReferralCode})
		require.NoError(t, err)
		last = res
	}
	require.True(t, last.Valid)
	require.NotNil(t, last.FraudFlag)
	require.Equal(t, recipient.FlagRapidReferrals, last.FraudFlag.Type)

	got, err := f.recipient.GetReferrer(ctx, r.ReferrerID)
	require.NoError(t, err)
	require.Equal(t, int64(4), got.TotalReferrals)
	require.Equal(t, 25, got.RiskScore)
}

func TestCounterOutageFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.counter.err = errors.New("redis down")
	r := f.activeReferrer(t, "0123456789")

	res, err := f.fraud.ValidateReferral(context.Background(), ReferralCheck{BuyerPhone: "0170000001", ReferralCode: r.ReferralCode})
	require.NoError(t, err)
	require.True(t, res.Valid)
}

func TestReferralViaLinkCountsConversion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.activeReferrer(t, "0123456789")

	link, err := f.recipient.CreateReferralLink(ctx, recipient.CreateLinkInput{ReferrerID: r.ReferrerID})
	require.NoError(t, err)

	res, err := f.fraud.ValidateReferral(ctx, ReferralCheck{BuyerPhone: "0170000001", ReferralCode: link.Code})
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, link.LinkID, res.LinkID)

	links, err := f.recipient.ListLinks(ctx, r.ReferrerID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, int64(1), links[0].ConversionCount)
}

func TestValidateReferralRequiresInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.fraud.ValidateReferral(context.Background(), ReferralCheck{})
	require.Equal(t, errutil.ReasonValidation, errutil.ReasonOf(err))
}

func TestPendingReferrerIsScreened(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending, err := f.recipient.RegisterReferrer(ctx, recipient.RegisterReferrerInput{Name: "P", Phone: "0100000000"})
	require.NoError(t, err)
	require.Equal(t, recipient.ReferrerPending, pending.Status)

	res, err := f.fraud.ValidateReferral(ctx, ReferralCheck{BuyerPhone: "0198765432", ReferralCode: pending.ReferralCode})
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Nil(t, res.FraudFlag)
}

func TestSelfReferralByPendingReferrerBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.recipient.RegisterReferrer(ctx, recipient.RegisterReferrerInput{Name: "New", Phone: "+60123456789"})
	require.NoError(t, err)
	require.Equal(t, recipient.ReferrerPending, r.Status)

	res, err := f.fraud.ValidateReferral(ctx, ReferralCheck{
		ReferrerPhone: "012-345 6789",
		BuyerPhone:    "0123456789",
		ReferralCode:  r.ReferralCode,
	})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.NotNil(t, res.FraudFlag)
	require.Equal(t, recipient.FlagSelfReferral, res.FraudFlag.Type)

	got, err := f.recipient.GetReferrer(ctx, r.ReferrerID)
	require.NoError(t, err)
	require.Equal(t, recipient.ReferrerBlocked, got.Status)
	require.Equal(t, 40, got.RiskScore)

	flags, err := f.recipient.ListFlags(ctx, r.ReferrerID, false)
	require.NoError(t, err)
	require.Len(t, flags, 1)
}
