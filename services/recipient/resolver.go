package recipient

import (
	"context"
	"strings"

	"partner-incentives/pkg/db"
	"partner-incentives/pkg/errutil"

	"gorm.io/gorm/clause"
)

// Resolver maps a (case, recipient type) pair to the recipient that should be
// credited for an award.
type Resolver interface {
	Resolve(ctx context.Context, caseID string, t Type) (string, error)
}

// DerivedID is the deterministic recipient identity used when nobody has been
// assigned to the case.
func DerivedID(caseID string, t Type) string {
	return caseID + ":" + string(t)
}

// Resolve returns the assigned recipient for the case, or the derived identity.
func (s *Service) Resolve(ctx context.Context, caseID string, t Type) (string, error) {
	if !t.Valid() {
		return "", errutil.ValidationFailed("unknown recipient type "+string(t), nil)
	}
	a, err := s.assignment.FindOne(ctx, &CaseAssignment{CaseID: caseID, RecipientType: t})
	if err != nil {
		return "", err
	}
	if a != nil && a.RecipientID != "" {
		return a.RecipientID, nil
	}
	return DerivedID(caseID, t), nil
}

type AssignRecipientInput struct {
	CaseID        string `json:"case_id"`
	RecipientType Type   `json:"recipient_type"`
	RecipientID   string `json:"recipient_id"`
	AssignedBy    string `json:"-"`
}

// AssignRecipient pins a registered referrer or lawyer (or a buyer identity)
// to a case. Reassigning overwrites the previous recipient of that type.
func (s *Service) AssignRecipient(ctx context.Context, in AssignRecipientInput) (*CaseAssignment, error) {
	in.RecipientType = Type(strings.ToUpper(string(in.RecipientType)))
	var details []errutil.Detail
	if strings.TrimSpace(in.CaseID) == "" {
		details = append(details, errutil.Detail{Field: "case_id", Message: "is required"})
	}
	if !in.RecipientType.Valid() {
		details = append(details, errutil.Detail{Field: "recipient_type", Message: "must be BUYER, REFERRER or LAWYER"})
	}
	if strings.TrimSpace(in.RecipientID) == "" {
		details = append(details, errutil.Detail{Field: "recipient_id", Message: "is required"})
	}
	if len(details) > 0 {
		return nil, errutil.ValidationFailed("invalid assignment", nil, errutil.WithDetails(details...))
	}

	switch in.RecipientType {
	case TypeReferrer:
		r, err := s.GetReferrer(ctx, in.RecipientID)
		if err != nil {
			return nil, err
		}
		if r.Status == ReferrerBlocked {
			return nil, errutil.UnprocessableEntity("referrer is blocked", nil, errutil.WithReason(errutil.ReasonRecipientBlocked))
		}
	case TypeLawyer:
		if _, err := s.GetLawyer(ctx, in.RecipientID); err != nil {
			return nil, err
		}
	}

	a := &CaseAssignment{
		CaseID:        in.CaseID,
		RecipientType: in.RecipientType,
		RecipientID:   in.RecipientID,
		AssignedBy:    in.AssignedBy,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "case_id"}, {Name: "recipient_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"recipient_id", "assigned_by", "updated_at"}),
	}).Create(a).Error
	if err != nil {
		return nil, db.Classify(err)
	}
	return a, nil
}

func (s *Service) ListAssignments(ctx context.Context, caseID string) ([]*CaseAssignment, error) {
	if caseID == "" {
		return nil, nil
	}
	return s.assignment.Find(ctx, &CaseAssignment{CaseID: caseID})
}

var _ Resolver = (*Service)(nil)
