package payout

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"partner-incentives/pkg/config"
	"partner-incentives/pkg/db"
	"partner-incentives/pkg/db/option"
	"partner-incentives/pkg/db/pagination"
	"partner-incentives/pkg/errutil"
	"partner-incentives/pkg/events"
	"partner-incentives/pkg/logger"
	"partner-incentives/pkg/repository"
	"partner-incentives/pkg/sequence"
	"partner-incentives/pkg/task"
	"partner-incentives/pkg/taskname"
	"partner-incentives/services/award"
	"partner-incentives/services/recipient"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxRetries      = 3
	defaultReasonMinLength = 10
)

var accountNumberPattern = regexp.MustCompile(`^[0-9]{6,20}$`)

// Awards is the part of the award ledger a payout reads and settles.
type Awards interface {
	GetAward(ctx context.Context, awardID string) (*award.Award, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, awardID string, in award.MarkPaidInput) (*award.Award, error)
	Announce(ctx context.Context, a *award.Award)
}

// Registry checks that a recipient may be paid and records bank mismatches.
type Registry interface {
	Destination(ctx context.Context, t recipient.Type, recipientID string) (*recipient.BankAccount, error)
	RaiseFlag(ctx context.Context, referrerID string, t recipient.FlagType, details string) (*recipient.FraudFlag, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	seq      sequence.Generator
	awards   Awards
	registry Registry
	enqueuer task.Enqueuer
	events   events.Publisher
	logger   *zap.Logger
	now      func() time.Time

	payout repository.Repository[PayoutRequest]

	maxRetries      int
	reasonMinLength int
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Awards   Awards
	Registry Registry
	Seq      sequence.Generator `optional:"true"`
	Enqueuer task.Enqueuer      `optional:"true"`
	Events   events.Publisher   `optional:"true"`
	Config   *config.Config     `optional:"true"`
	Logger   *zap.Logger        `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	seq := p.Seq
	if seq == nil {
		seq = sequence.Fallback{}
	}

	s := &Service{
		db:              p.DB,
		node:            p.Node,
		seq:             seq,
		awards:          p.Awards,
		registry:        p.Registry,
		enqueuer:        p.Enqueuer,
		events:          p.Events,
		logger:          log.Named("payout"),
		now:             func() time.Time { return time.Now().UTC() },
		payout:          repository.ProvideStore[PayoutRequest](p.DB),
		maxRetries:      defaultMaxRetries,
		reasonMinLength: defaultReasonMinLength,
	}
	if p.Config != nil {
		if p.Config.Incentive.PayoutMaxRetries > 0 {
			s.maxRetries = p.Config.Incentive.PayoutMaxRetries
		}
		if p.Config.Incentive.RejectionReasonMinLength > 0 {
			s.reasonMinLength = p.Config.Incentive.RejectionReasonMinLength
		}
	}
	return s
}

func notFound() error {
	return errutil.NotFound("payout request not found", nil)
}

type RequestPayoutInput struct {
	AwardID string `json:"award_id"`
	Method  Method `json:"method"`
	recipient.BankAccount
	Wallet
	RequestedBy string `json:"-"`
}

// RequestPayout opens the single payout request an APPROVED award may have.
// Bank transfers to a registered referrer or lawyer must match the account on
// file; a referrer whose account holder differs is flagged before the request
// fails. E-wallet payouts need a provider and a wallet id.
func (s *Service) RequestPayout(ctx context.Context, in RequestPayoutInput) (*PayoutRequest, error) {
	if in.Method == "" {
		in.Method = MethodBankTransfer
	}
	in.Method = Method(strings.ToUpper(string(in.Method)))
	if strings.TrimSpace(in.RequestedBy) == "" {
		return nil, errutil.ValidationFailed("requester identity is required", nil)
	}

	a, err := s.awards.GetAward(ctx, in.AwardID)
	if err != nil {
		return nil, err
	}
	if a.Status != award.StatusApproved {
		return nil, errutil.UnprocessableEntity("only APPROVED awards can be paid out, award is "+string(a.Status), nil,
			errutil.WithReason(errutil.ReasonInvalidStatus))
	}

	bank, wallet, err := s.destination(ctx, a, in)
	if err != nil {
		return nil, err
	}

	ref, err := s.seq.NextPayoutReference(ctx)
	if err != nil {
		logger.Ctx(ctx, s.logger).Error("failed to allocate payout reference", zap.Error(err))
		return nil, err
	}

	p := &PayoutRequest{
		PayoutID:      s.node.Generate().String(),
		AwardID:       a.AwardID,
		CampaignID:    a.CampaignID,
		RecipientID:   a.RecipientID,
		RecipientType: a.RecipientType,
		Amount:        a.RewardAmount,
		Currency:      a.Currency,
		Reference:     ref,
		Method:        in.Method,
		BankAccount:   bank,
		Wallet:        wallet,
		Status:        StatusPending,
		RequestedBy:   in.RequestedBy,
		MaxRetries:    s.maxRetries,
	}

	err = db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		repo := s.payout.WithTrx(tx)
		existing, err := repo.FindOne(ctx, &PayoutRequest{AwardID: a.AwardID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if existing != nil {
			return duplicate(a.AwardID)
		}
		return repo.Create(ctx, p)
	})
	if errutil.StatusOf(err) == errutil.StatusConflict {
		return nil, duplicate(a.AwardID)
	}
	if err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues(string(StatusPending)).Inc()
	events.Emit(ctx, s.events, logger.Ctx(ctx, s.logger), events.PayoutRequested, p)
	logger.Ctx(ctx, s.logger).Info("payout requested",
		zap.String("payout_id", p.PayoutID),
		zap.String("award_id", p.AwardID),
		zap.String("reference", p.Reference),
		zap.Int64("amount", p.Amount),
	)
	return p, nil
}

func duplicate(awardID string) error {
	return errutil.Conflict("award "+awardID+" already has a payout request", nil,
		errutil.WithReason(errutil.ReasonDuplicatePayout))
}

func (s *Service) destination(ctx context.Context, a *award.Award, in RequestPayoutInput) (recipient.BankAccount, Wallet, error) {
	if !in.Method.Valid() {
		return recipient.BankAccount{}, Wallet{}, errutil.ValidationFailed("invalid payout method", nil,
			errutil.WithDetails(errutil.Detail{Field: "method", Message: "must be BANK_TRANSFER or E_WALLET"}))
	}

	onFile, err := s.registry.Destination(ctx, a.RecipientType, a.RecipientID)
	if err != nil {
		return recipient.BankAccount{}, Wallet{}, err
	}

	if in.Method == MethodEWallet {
		w := Wallet{
			WalletProvider: strings.ToUpper(strings.TrimSpace(in.WalletProvider)),
			WalletID:       strings.ReplaceAll(strings.TrimSpace(in.WalletID), " ", ""),
		}
		var details []errutil.Detail
		if w.WalletProvider == "" {
			details = append(details, errutil.Detail{Field: "wallet_provider", Message: "is required for e-wallet payouts"})
		}
		if w.WalletID == "" {
			details = append(details, errutil.Detail{Field: "wallet_id", Message: "is required for e-wallet payouts"})
		}
		if len(details) > 0 {
			return recipient.BankAccount{}, Wallet{}, errutil.ValidationFailed("invalid payout destination", nil, errutil.WithDetails(details...))
		}
		return recipient.BankAccount{}, w, nil
	}

	dest := in.BankAccount
	if dest.BankAccountNumber == "" && dest.BankAccountHolder == "" {
		dest = *onFile
	}
	dest.BankAccountNumber = strings.ReplaceAll(strings.TrimSpace(dest.BankAccountNumber), " ", "")
	dest.BankAccountHolder = strings.TrimSpace(dest.BankAccountHolder)
	dest.BankName = strings.TrimSpace(dest.BankName)

	var details []errutil.Detail
	if !accountNumberPattern.MatchString(dest.BankAccountNumber) {
		details = append(details, errutil.Detail{Field: "bank_account_number", Message: "must be 6 to 20 digits"})
	}
	if dest.BankAccountHolder == "" {
		details = append(details, errutil.Detail{Field: "bank_account_holder", Message: "is required"})
	}
	if dest.BankName == "" {
		details = append(details, errutil.Detail{Field: "bank_name", Message: "is required for bank transfers"})
	}
	if len(details) > 0 {
		return recipient.BankAccount{}, Wallet{}, errutil.ValidationFailed("invalid payout destination", nil, errutil.WithDetails(details...))
	}

	if onFile.BankAccountHolder != "" && !strings.EqualFold(onFile.BankAccountHolder, dest.BankAccountHolder) {
		if a.RecipientType == recipient.TypeReferrer {
			// RaiseFlag commits on its own; the request still fails below.
			if _, err := s.registry.RaiseFlag(ctx, a.RecipientID, recipient.FlagBankMismatch,
				"payout holder "+dest.BankAccountHolder+" differs from "+onFile.BankAccountHolder); err != nil {
				logger.Ctx(ctx, s.logger).Error("failed to raise bank mismatch flag", zap.Error(err))
				return recipient.BankAccount{}, Wallet{}, err
			}
		}
		logger.Ctx(ctx, s.logger).Warn("payout destination mismatch",
			zap.String("award_id", a.AwardID),
			zap.String("recipient_id", a.RecipientID),
		)
		return recipient.BankAccount{}, Wallet{}, errutil.UnprocessableEntity("account holder does not match the registered account", nil,
			errutil.WithReason(errutil.ReasonBankMismatch))
	}
	return dest, Wallet{}, nil
}

// Approve applies the four-eyes rule: the approver must not be the requester.
func (s *Service) Approve(ctx context.Context, payoutID, approver string) (*PayoutRequest, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, errutil.ValidationFailed("approver identity is required", nil)
	}
	return s.transition(ctx, payoutID, StatusApproved, func(_ *gorm.DB, p *PayoutRequest, now time.Time) (map[string]any, error) {
		if strings.EqualFold(strings.TrimSpace(p.RequestedBy), strings.TrimSpace(approver)) {
			return nil, errutil.Forbidden("payout must be approved by someone other than its requester", nil,
				errutil.WithReason(errutil.ReasonFourEyes))
		}
		return map[string]any{"approved_by": approver, "approved_at": now}, nil
	})
}

func (s *Service) Reject(ctx context.Context, payoutID, actor, reason string) (*PayoutRequest, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < s.reasonMinLength {
		return nil, errutil.ValidationFailed("rejection reason is too short", nil,
			errutil.WithReason(errutil.ReasonReasonTooShort),
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "must be at least " + strconv.Itoa(s.reasonMinLength) + " characters"}))
	}
	return s.transition(ctx, payoutID, StatusRejected, func(_ *gorm.DB, _ *PayoutRequest, now time.Time) (map[string]any, error) {
		return map[string]any{"rejected_by": actor, "rejected_at": now, "rejection_reason": reason}, nil
	})
}

// Process hands an approved payout to the payment processor via the
// payout:dispatch task. The task is enqueued before the status commits.
func (s *Service) Process(ctx context.Context, payoutID, actor string) (*PayoutRequest, error) {
	return s.transition(ctx, payoutID, StatusProcessing, func(_ *gorm.DB, p *PayoutRequest, now time.Time) (map[string]any, error) {
		if err := s.dispatch(ctx, p, p.RetryCount); err != nil {
			return nil, err
		}
		return map[string]any{"processed_by": actor, "processed_at": now}, nil
	})
}

type CompleteInput struct {
	ExternalReference string `json:"external_reference"`
}

// Complete settles a processing payout and marks its award PAID in the same
// transaction.
func (s *Service) Complete(ctx context.Context, payoutID string, in CompleteInput) (*PayoutRequest, error) {
	var paid *award.Award
	out, err := s.transition(ctx, payoutID, StatusCompleted, func(tx *gorm.DB, p *PayoutRequest, now time.Time) (map[string]any, error) {
		ref := strings.TrimSpace(in.ExternalReference)
		if ref == "" {
			ref = p.Reference
		}
		a, err := s.awards.MarkPaidTx(ctx, tx, p.AwardID, award.MarkPaidInput{
			PayoutReference: ref,
			PayoutMethod:    string(p.Method),
		})
		if err != nil {
			return nil, err
		}
		paid = a
		return map[string]any{"completed_at": now, "external_reference": ref}, nil
	})
	if err != nil {
		return nil, err
	}
	s.awards.Announce(ctx, paid)
	return out, nil
}

func (s *Service) Fail(ctx context.Context, payoutID, reason string) (*PayoutRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errutil.ValidationFailed("failure reason is required", nil)
	}
	return s.transition(ctx, payoutID, StatusFailed, func(_ *gorm.DB, _ *PayoutRequest, now time.Time) (map[string]any, error) {
		return map[string]any{"failed_at": now, "failure_reason": reason}, nil
	})
}

// Retry sends a failed payout back to processing until its retry budget is
// spent. After that the payout stays FAILED for manual handling.
func (s *Service) Retry(ctx context.Context, payoutID, actor string) (*PayoutRequest, error) {
	return s.transition(ctx, payoutID, StatusProcessing, func(tx *gorm.DB, p *PayoutRequest, now time.Time) (map[string]any, error) {
		if p.RetryCount >= p.MaxRetries {
			return nil, errutil.UnprocessableEntity("payout retries exhausted, manual intervention required", nil,
				errutil.WithReason(errutil.ReasonRetryExhausted))
		}
		var a award.Award
		if err := tx.WithContext(ctx).Select("status").Where("award_id = ?", p.AwardID).Take(&a).Error; err != nil {
			return nil, err
		}
		if a.Status != award.StatusApproved {
			return nil, errutil.UnprocessableEntity("award is "+string(a.Status)+", payout can no longer be retried", nil,
				errutil.WithReason(errutil.ReasonInvalidStatus))
		}
		if err := s.dispatch(ctx, p, p.RetryCount+1); err != nil {
			return nil, err
		}
		return map[string]any{
			"retry_count":    gorm.Expr("retry_count + 1"),
			"processed_by":   actor,
			"processed_at":   now,
			"failure_reason": "",
		}, nil
	})
}

// ReleaseForReject runs inside an award rejection. A payout that has not been
// handed off is cancelled with the award; a PROCESSING one blocks it.
func (s *Service) ReleaseForReject(ctx context.Context, tx *gorm.DB, awardID, actor string) error {
	p, err := s.payout.WithTrx(tx).FindOne(ctx, &PayoutRequest{AwardID: awardID}, option.WithLockingUpdate())
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}

	switch p.Status {
	case StatusProcessing:
		return errutil.UnprocessableEntity("award has a payout in progress, complete or fail it first", nil,
			errutil.WithReason(errutil.ReasonInvalidStatus))
	case StatusPending, StatusApproved:
		now := s.now()
		res := tx.WithContext(ctx).Model(&PayoutRequest{}).
			Where("payout_id = ? AND status = ?", p.PayoutID, p.Status).
			Updates(map[string]any{
				"status":       StatusCancelled,
				"cancelled_by": actor,
				"cancelled_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Aborted("payout changed concurrently", nil)
		}
		logger.Ctx(ctx, s.logger).Info("payout cancelled with its award",
			zap.String("payout_id", p.PayoutID),
			zap.String("award_id", awardID),
			zap.String("from", string(p.Status)),
		)
	}
	return nil
}

func (s *Service) Cancel(ctx context.Context, payoutID, actor string) (*PayoutRequest, error) {
	return s.transition(ctx, payoutID, StatusCancelled, func(_ *gorm.DB, _ *PayoutRequest, now time.Time) (map[string]any, error) {
		return map[string]any{"cancelled_by": actor, "cancelled_at": now}, nil
	})
}

func (s *Service) dispatch(ctx context.Context, p *PayoutRequest, attempt int) error {
	if s.enqueuer == nil {
		logger.Ctx(ctx, s.logger).Warn("no task queue configured, payout left for manual dispatch",
			zap.String("payout_id", p.PayoutID))
		return nil
	}
	t, err := task.NewJSONTask(taskname.PayoutDispatch, DispatchPayload{PayoutID: p.PayoutID, Attempt: attempt},
		asynq.Queue(taskname.QueueCritical),
		asynq.TaskID(p.PayoutID+":"+strconv.Itoa(attempt)),
	)
	if err != nil {
		return err
	}
	if _, err := s.enqueuer.Enqueue(ctx, t); err != nil {
		logger.Ctx(ctx, s.logger).Error("failed to enqueue payout dispatch", zap.String("payout_id", p.PayoutID), zap.Error(err))
		return errutil.ServiceUnavailable("payout queue unavailable", err)
	}
	return nil
}

var routingKeys = map[Status]string{
	StatusApproved:   events.PayoutApproved,
	StatusRejected:   events.PayoutRejected,
	StatusProcessing: events.PayoutProcessing,
	StatusCompleted:  events.PayoutCompleted,
	StatusFailed:     events.PayoutFailed,
	StatusCancelled:  events.PayoutCancelled,
}

type mutateFunc func(tx *gorm.DB, p *PayoutRequest, now time.Time) (map[string]any, error)

// transition locks the payout, checks the move and writes it only if the
// status is still the one that was read.
func (s *Service) transition(ctx context.Context, payoutID string, to Status, fn mutateFunc) (*PayoutRequest, error) {
	if payoutID == "" {
		return nil, notFound()
	}

	var (
		out  *PayoutRequest
		from Status
	)
	err := db.Transact(ctx, s.db, func(tx *gorm.DB) error {
		repo := s.payout.WithTrx(tx)
		p, err := repo.FindOne(ctx, &PayoutRequest{PayoutID: payoutID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if p == nil {
			return notFound()
		}
		if !CanTransition(p.Status, to) {
			return errutil.UnprocessableEntity("payout cannot move from "+string(p.Status)+" to "+string(to), nil,
				errutil.WithReason(errutil.ReasonInvalidStatus))
		}
		from = p.Status

		now := s.now()
		changes, err := fn(tx, p, now)
		if err != nil {
			return err
		}
		changes["status"] = to
		changes["updated_at"] = now

		res := tx.WithContext(ctx).Model(&PayoutRequest{}).
			Where("payout_id = ? AND status = ?", p.PayoutID, p.Status).
			Updates(changes)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Aborted("payout changed concurrently", nil)
		}

		out, err = repo.FindOne(ctx, &PayoutRequest{PayoutID: payoutID})
		return err
	})
	if err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues(string(to)).Inc()
	events.Emit(ctx, s.events, logger.Ctx(ctx, s.logger), routingKeys[to], out)
	logger.Ctx(ctx, s.logger).Info("payout status changed",
		zap.String("payout_id", payoutID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return out, nil
}

func (s *Service) GetPayout(ctx context.Context, payoutID string) (*PayoutRequest, error) {
	if payoutID == "" {
		return nil, notFound()
	}
	p, err := s.payout.FindOne(ctx, &PayoutRequest{PayoutID: payoutID})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound()
	}
	return p, nil
}

type ListPayoutsInput struct {
	Status      Status `form:"status"`
	AwardID     string `form:"award_id"`
	RecipientID string `form:"recipient_id"`
	CampaignID  string `form:"campaign_id"`
	pagination.Pagination
}

func (s *Service) ListPayouts(ctx context.Context, in ListPayoutsInput) ([]*PayoutRequest, *pagination.PageInfo, error) {
	rows, err := s.payout.Find(ctx, &PayoutRequest{
		Status:      in.Status,
		AwardID:     in.AwardID,
		RecipientID: in.RecipientID,
		CampaignID:  in.CampaignID,
	}, option.ApplyPagination(in.Pagination, "payout_id"))
	if err != nil {
		return nil, nil, err
	}
	rows, info := pagination.Page(rows, in.Size(), func(p *PayoutRequest) pagination.Cursor {
		return pagination.NewCursor(p.CreatedAt, p.PayoutID)
	})
	return rows, info, nil
}
