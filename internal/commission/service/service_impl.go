package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payora/internal/actorcontext"
	auditdomain "github.com/smallbiznis/payora/internal/audit/domain"
	"github.com/smallbiznis/payora/internal/audit/masking"
	"github.com/smallbiznis/payora/internal/clock"
	"github.com/smallbiznis/payora/internal/commission/domain"
	"github.com/smallbiznis/payora/internal/commissionrule/calc"
	ruledomain "github.com/smallbiznis/payora/internal/commissionrule/domain"
	"github.com/smallbiznis/payora/internal/config"
	obsmetrics "github.com/smallbiznis/payora/internal/observability/metrics"
	"github.com/smallbiznis/payora/internal/orgcontext"
	"github.com/smallbiznis/payora/internal/publicid"
	"github.com/smallbiznis/payora/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Rules    ruledomain.Repository
	Audit    auditdomain.Service
	PublicID *publicid.Generator
	Payout   *config.PayoutConfigHolder
	Clock    clock.Clock
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	rules    ruledomain.Repository
	audit    auditdomain.Service
	publicID *publicid.Generator
	payout   *config.PayoutConfigHolder
	clock    clock.Clock
	metrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("commission.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		rules:    p.Rules,
		audit:    p.Audit,
		publicID: p.PublicID,
		payout:   p.Payout,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Commission, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Commission{}, domain.ErrInvalidOrganization
	}

	employeeID, err := snowflake.ParseString(strings.TrimSpace(req.EmployeeID))
	if err != nil || employeeID == 0 {
		return domain.Commission{}, domain.ErrInvalidEmployee
	}

	now := s.clock.Now()
	payout := s.payout.Get()

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = payout.DefaultCurrency
	}

	commission := domain.Commission{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		EmployeeID:         employeeID,
		OwnerID:            s.resolveOwner(ctx, employeeID),
		ShipmentID:         normalizePointer(req.ShipmentID),
		QuoteID:            normalizePointer(req.QuoteID),
		InvoiceID:          normalizePointer(req.InvoiceID),
		RelatedShipmentIDs: datatypes.NewJSONSlice(req.RelatedShipmentIDs),
		RelatedQuoteIDs:    datatypes.NewJSONSlice(req.RelatedQuoteIDs),
		Currency:           currency,
		Description:        strings.TrimSpace(req.Description),
		Notes:              strings.TrimSpace(req.Notes),
		Status:             domain.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if strings.TrimSpace(req.RuleID) != "" {
		if err := s.applyRule(ctx, &commission, req.RuleID, req.Revenue, req.Cost); err != nil {
			return domain.Commission{}, err
		}
	} else {
		if err := applyDirectAmounts(&commission, req); err != nil {
			return domain.Commission{}, err
		}
	}

	if verr := validatePayload(&commission, payout); verr != nil {
		return domain.Commission{}, verr
	}

	pubID, err := s.publicID.Generate(publicid.KindCommission)
	if err != nil {
		return domain.Commission{}, err
	}
	commission.PublicID = pubID
	commission.Period = now.Year()

	// Sequence allocation and insert share one transaction so the unique
	// code index catches concurrent creates racing on the same period.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := s.repo.NextSequence(ctx, tx, orgID, commission.Period)
		if err != nil {
			return err
		}
		commission.Sequence = seq
		commission.Code = fmt.Sprintf("%s-%d-%04d", payout.SequencePrefix, commission.Period, seq)
		return s.repo.Insert(ctx, tx, &commission)
	})
	if err != nil {
		return domain.Commission{}, err
	}

	s.log.Info("commission created",
		zap.String("commission_id", commission.ID.String()),
		zap.String("code", commission.Code),
		zap.Float64("total_amount", commission.TotalAmount),
	)
	s.metrics.RecordCommissionTransition(ctx, string(domain.StatusPending))
	s.auditLog(ctx, auditdomain.ActionCommissionCreated, &commission, map[string]any{
		"code":         commission.Code,
		"status":       string(commission.Status),
		"total_amount": commission.TotalAmount,
		"currency":     commission.Currency,
	})
	return commission, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Commission, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Commission{}, domain.ErrInvalidOrganization
	}

	commissionID, err := s.parseID(id)
	if err != nil {
		return domain.Commission{}, err
	}

	commission, err := s.repo.FindByID(ctx, s.db, orgID, commissionID)
	if err != nil {
		return domain.Commission{}, err
	}
	// Soft-deleted records are hidden from default lookups.
	if commission == nil || commission.Deleted() {
		return domain.Commission{}, domain.ErrNotFound
	}
	return *commission, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidOrganization
	}

	status := domain.Status(strings.TrimSpace(req.Status))
	if status != "" && !status.Known() {
		return domain.ListResponse{}, &domain.ValidationError{Errors: []string{"unknown status " + string(status)}}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, orgID, domain.ListFilter{
		Period:         req.Period,
		Status:         status,
		EmployeeID:     strings.TrimSpace(req.EmployeeID),
		IncludeDeleted: req.IncludeDeleted,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(c *domain.Commission) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        c.ID.String(),
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	commissions := make([]domain.Commission, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		commissions = append(commissions, *item)
	}

	resp := domain.ListResponse{Commissions: commissions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (domain.Commission, error) {
	updated, err := s.mutate(ctx, req.ID, func(commission *domain.Commission, now time.Time) error {
		if req.BaseAmount != nil {
			commission.BaseAmount = roundMoney(*req.BaseAmount)
		}
		if req.CommissionPercentage != nil {
			commission.CommissionPercentage = *req.CommissionPercentage
		}
		if req.TotalAmount != nil {
			commission.TotalAmount = roundMoney(*req.TotalAmount)
		}
		if req.Description != nil {
			commission.Description = strings.TrimSpace(*req.Description)
		}
		if req.Notes != nil {
			commission.Notes = strings.TrimSpace(*req.Notes)
		}
		return validatePayload(commission, s.payout.Get())
	})
	if err != nil {
		return domain.Commission{}, err
	}

	s.auditLog(ctx, auditdomain.ActionCommissionUpdated, &updated, map[string]any{
		"code":         updated.Code,
		"total_amount": updated.TotalAmount,
	})
	return updated, nil
}

func (s *Service) Approve(ctx context.Context, req domain.ApproveRequest) (domain.Commission, error) {
	updated, err := s.mutate(ctx, req.ID, func(commission *domain.Commission, now time.Time) error {
		if err := transition(commission, domain.StatusApproved); err != nil {
			return err
		}
		subject := s.subject(ctx)
		commission.ApprovedBy = &subject
		commission.ApprovedAt = &now
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			commission.ApprovalNotes = &notes
		}
		return nil
	})
	if err != nil {
		return domain.Commission{}, err
	}

	s.metrics.RecordCommissionTransition(ctx, string(domain.StatusApproved))
	s.auditLog(ctx, auditdomain.ActionCommissionApproved, &updated, map[string]any{
		"code": updated.Code,
	})
	return updated, nil
}

func (s *Service) Pay(ctx context.Context, req domain.PayRequest) (domain.Commission, error) {
	reference := strings.TrimSpace(req.PaymentReference)
	if reference == "" {
		return domain.Commission{}, domain.ErrPaymentReferenceRequired
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		return domain.Commission{}, domain.ErrPaymentMethodRequired
	}

	updated, err := s.mutate(ctx, req.ID, func(commission *domain.Commission, now time.Time) error {
		if err := transition(commission, domain.StatusPaid); err != nil {
			return err
		}
		subject := s.subject(ctx)
		commission.PaidBy = &subject
		commission.PaidAt = &now
		commission.PaymentReference = &reference
		commission.PaymentMethod = &method
		return nil
	})
	if err != nil {
		return domain.Commission{}, err
	}

	s.metrics.RecordCommissionTransition(ctx, string(domain.StatusPaid))
	s.auditLog(ctx, auditdomain.ActionCommissionPaid, &updated, map[string]any{
		"code":              updated.Code,
		"payment_reference": masking.MaskSecret(reference),
		"payment_method":    method,
		"total_amount":      updated.TotalAmount,
	})
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, req domain.CancelRequest) (domain.Commission, error) {
	updated, err := s.mutate(ctx, req.ID, func(commission *domain.Commission, now time.Time) error {
		if err := transition(commission, domain.StatusCancelled); err != nil {
			return err
		}
		subject := s.subject(ctx)
		commission.CancelledBy = &subject
		commission.CancelledAt = &now
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			commission.CancelReason = &reason
		}
		return nil
	})
	if err != nil {
		return domain.Commission{}, err
	}

	s.metrics.RecordCommissionTransition(ctx, string(domain.StatusCancelled))
	s.auditLog(ctx, auditdomain.ActionCommissionCancelled, &updated, map[string]any{
		"code": updated.Code,
	})
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	updated, err := s.mutate(ctx, id, func(commission *domain.Commission, now time.Time) error {
		subject := s.subject(ctx)
		commission.DeletedBy = &subject
		commission.DeletedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	s.auditLog(ctx, auditdomain.ActionCommissionDeleted, &updated, map[string]any{
		"code": updated.Code,
	})
	return nil
}

func (s *Service) Restore(ctx context.Context, id string) (domain.Commission, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Commission{}, domain.ErrInvalidOrganization
	}

	commissionID, err := s.parseID(id)
	if err != nil {
		return domain.Commission{}, err
	}

	var updated domain.Commission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		commission, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, commissionID)
		if err != nil {
			return err
		}
		if commission == nil {
			return domain.ErrNotFound
		}
		if !commission.Deleted() {
			return domain.ErrNotDeleted
		}

		// Restoration is reserved for the record's owner or an admin.
		actor, _ := actorcontext.ActorFromContext(ctx)
		if !actor.IsAdmin() && actor.ID != commission.OwnerID.String() {
			return domain.ErrForbidden
		}

		commission.DeletedBy = nil
		commission.DeletedAt = nil
		commission.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, commission); err != nil {
			return err
		}
		updated = *commission
		return nil
	})
	if err != nil {
		return domain.Commission{}, err
	}

	s.auditLog(ctx, auditdomain.ActionCommissionRestored, &updated, map[string]any{
		"code": updated.Code,
	})
	return updated, nil
}

func (s *Service) Recalculate(ctx context.Context, id string, revenue float64, cost *float64) (domain.Commission, error) {
	updated, err := s.mutate(ctx, id, func(commission *domain.Commission, now time.Time) error {
		if commission.Status != domain.StatusPending {
			return domain.ErrNotPending
		}
		if commission.RuleID == nil {
			return &domain.ValidationError{Errors: []string{"commission has no rule to recalculate from"}}
		}
		if err := s.applyRule(ctx, commission, commission.RuleID.String(), &revenue, cost); err != nil {
			return err
		}
		return validatePayload(commission, s.payout.Get())
	})
	if err != nil {
		return domain.Commission{}, err
	}

	s.auditLog(ctx, auditdomain.ActionCommissionRecomputed, &updated, map[string]any{
		"code":         updated.Code,
		"total_amount": updated.TotalAmount,
	})
	return updated, nil
}

// mutate runs a read-modify-write cycle under a row lock so concurrent
// transitions on the same record serialize instead of both succeeding.
func (s *Service) mutate(ctx context.Context, id string, fn func(*domain.Commission, time.Time) error) (domain.Commission, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Commission{}, domain.ErrInvalidOrganization
	}

	commissionID, err := s.parseID(id)
	if err != nil {
		return domain.Commission{}, err
	}

	var updated domain.Commission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		commission, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, commissionID)
		if err != nil {
			return err
		}
		if commission == nil {
			return domain.ErrNotFound
		}
		if commission.Deleted() {
			return domain.ErrDeleted
		}

		now := s.clock.Now()
		if err := fn(commission, now); err != nil {
			return err
		}
		commission.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, commission); err != nil {
			return err
		}
		updated = *commission
		return nil
	})
	if err != nil {
		return domain.Commission{}, err
	}
	return updated, nil
}

// applyRule evaluates the linked rule and freezes the outcome on the record.
func (s *Service) applyRule(ctx context.Context, commission *domain.Commission, ruleID string, revenue, cost *float64) error {
	id, err := snowflake.ParseString(strings.TrimSpace(ruleID))
	if err != nil || id == 0 {
		return domain.ErrRuleNotFound
	}

	rule, err := s.rules.FindByID(ctx, s.db, commission.OrgID, id)
	if err != nil {
		return err
	}
	if rule == nil {
		return domain.ErrRuleNotFound
	}
	if !rule.Active {
		return domain.ErrRuleInactive
	}
	if revenue == nil {
		return &domain.ValidationError{Errors: []string{"revenue is required when a rule is set"}}
	}

	started := time.Now()
	result, err := calc.Apply(*rule, calc.Input{Revenue: *revenue, Cost: cost})
	if err != nil {
		return &domain.ValidationError{Errors: []string{err.Error()}}
	}
	s.metrics.RecordRuleEvaluation(ctx, string(rule.RuleType), result.Gated, time.Since(started))

	commission.RuleID = &id
	commission.BaseAmount = result.BaseAmount
	commission.Margin = result.Margin
	commission.MarginPercentage = result.MarginPercentage
	commission.CommissionPercentage = result.CommissionRate
	commission.TotalAmount = result.CommissionAmount
	if commission.Currency == "" {
		commission.Currency = rule.Currency
	}

	breakdown := map[string]any{
		"rule_id":   id.String(),
		"rule_type": string(rule.RuleType),
		"revenue":   *revenue,
	}
	if cost != nil {
		breakdown["cost"] = *cost
	}
	if result.Margin != nil {
		breakdown["margin"] = *result.Margin
	}
	if result.MarginPercentage != nil {
		breakdown["margin_percentage"] = *result.MarginPercentage
	}
	breakdown["commission_rate"] = result.CommissionRate
	breakdown["commission_amount"] = result.CommissionAmount
	if result.AppliedTier != nil {
		breakdown["applied_tier"] = result.AppliedTier.Position
	}
	if result.Gated {
		breakdown["gated"] = true
		breakdown["gate_reason"] = result.GateReason
	}
	commission.Breakdown = datatypes.JSONMap(breakdown)
	return nil
}

func applyDirectAmounts(commission *domain.Commission, req domain.CreateRequest) error {
	errs := []string{}
	if req.BaseAmount == nil {
		errs = append(errs, "base_amount is required without a rule")
	}
	if req.TotalAmount == nil {
		errs = append(errs, "total_amount is required without a rule")
	}
	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}

	commission.BaseAmount = roundMoney(*req.BaseAmount)
	commission.Margin = req.Margin
	commission.MarginPercentage = req.MarginPercentage
	if req.CommissionPercentage != nil {
		commission.CommissionPercentage = *req.CommissionPercentage
	}
	commission.TotalAmount = roundMoney(*req.TotalAmount)
	return nil
}

func validatePayload(commission *domain.Commission, payout config.PayoutConfig) error {
	errs := []string{}
	if commission.BaseAmount < 0 {
		errs = append(errs, "base_amount must not be negative")
	}
	if commission.TotalAmount < 0 {
		errs = append(errs, "total_amount must not be negative")
	}
	if commission.TotalAmount > payout.MaxCommission {
		errs = append(errs, fmt.Sprintf("total_amount exceeds the configured maximum of %.2f", payout.MaxCommission))
	}
	if commission.CommissionPercentage < 0 || commission.CommissionPercentage > payout.MaxPercentage {
		errs = append(errs, fmt.Sprintf("commission_percentage must be between 0 and %.0f", payout.MaxPercentage))
	}
	if len(commission.Currency) != 3 {
		errs = append(errs, "currency must be a 3-letter code")
	}
	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

func transition(commission *domain.Commission, next domain.Status) error {
	if !commission.Status.CanTransitionTo(next) {
		return &domain.InvalidTransitionError{From: commission.Status, To: next}
	}
	commission.Status = next
	return nil
}

// resolveOwner attributes the record to the acting user; system-issued
// creates fall back to the employee as owner.
func (s *Service) resolveOwner(ctx context.Context, employeeID snowflake.ID) snowflake.ID {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return employeeID
	}
	ownerID, err := snowflake.ParseString(actor.ID)
	if err != nil || ownerID == 0 {
		return employeeID
	}
	return ownerID
}

func (s *Service) subject(ctx context.Context) string {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return "system"
	}
	return actor.Subject()
}

func (s *Service) auditLog(ctx context.Context, action string, commission *domain.Commission, metadata map[string]any) {
	targetID := commission.PublicID
	if err := s.audit.AuditLog(ctx, &commission.OrgID, "", nil, action, "commission", &targetID, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func roundMoney(raw float64) float64 {
	return math.Round(raw*100) / 100
}
