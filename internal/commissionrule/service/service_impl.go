package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payora/internal/audit/domain"
	"github.com/smallbiznis/payora/internal/clock"
	"github.com/smallbiznis/payora/internal/commissionrule/calc"
	"github.com/smallbiznis/payora/internal/commissionrule/domain"
	"github.com/smallbiznis/payora/internal/config"
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
	Audit    auditdomain.Service
	PublicID *publicid.Generator
	Payout   *config.PayoutConfigHolder
	Clock    clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	audit    auditdomain.Service
	publicID *publicid.Generator
	payout   *config.PayoutConfigHolder
	clock    clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("commissionrule.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		audit:    p.Audit,
		publicID: p.PublicID,
		payout:   p.Payout,
		clock:    p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRuleRequest) (domain.CommissionRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.CommissionRule{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.CommissionRule{}, &domain.ValidationError{Errors: []string{"name is required"}}
	}

	ruleType := domain.RuleType(strings.TrimSpace(req.RuleType))
	// Zero is a legal rate, so absence must be rejected explicitly: a
	// fixed_amount rule with no rate would otherwise pay out nothing.
	if ruleType.Known() && ruleType != domain.RuleTypeTiered && req.Rate == nil {
		return domain.CommissionRule{}, &domain.ValidationError{Errors: []string{"rate is required"}}
	}
	rate := 0.0
	if req.Rate != nil {
		rate = *req.Rate
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.payout.Get().DefaultCurrency
	}

	now := s.clock.Now()
	rule := domain.CommissionRule{
		ID:                  s.genID.Generate(),
		OrgID:               orgID,
		Name:                name,
		RuleType:            ruleType,
		Rate:                rate,
		MinMarginPercentage: req.MinMarginPercentage,
		MinOrderValue:       req.MinOrderValue,
		MinCommissionAmount: req.MinCommissionAmount,
		Currency:            currency,
		Active:              true,
		Metadata:            datatypes.JSONMap(req.Metadata),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	rule.Tiers = buildTiers(s.genID, orgID, rule.ID, req.Tiers, now)

	// Validate sorts tiers in place so they persist in evaluation order.
	if result := calc.Validate(&rule); !result.Valid {
		return domain.CommissionRule{}, &domain.ValidationError{Errors: result.Errors}
	}

	publicID, err := s.publicID.Generate(publicid.KindRule)
	if err != nil {
		return domain.CommissionRule{}, err
	}
	rule.PublicID = publicID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &rule); err != nil {
			return err
		}
		return s.repo.InsertTiers(ctx, tx, rule.Tiers)
	})
	if err != nil {
		return domain.CommissionRule{}, err
	}

	s.log.Info("commission rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("rule_type", string(rule.RuleType)),
	)
	s.auditLog(ctx, auditdomain.ActionRuleCreated, &rule, map[string]any{
		"name":      rule.Name,
		"rule_type": string(rule.RuleType),
		"rate":      rule.Rate,
	})
	return rule, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.CommissionRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.CommissionRule{}, domain.ErrInvalidOrganization
	}

	ruleID, err := s.parseID(id)
	if err != nil {
		return domain.CommissionRule{}, err
	}

	rule, err := s.repo.FindByID(ctx, s.db, orgID, ruleID)
	if err != nil {
		return domain.CommissionRule{}, err
	}
	if rule == nil {
		return domain.CommissionRule{}, domain.ErrNotFound
	}
	return *rule, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRuleRequest) (domain.ListRuleResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListRuleResponse{}, domain.ErrInvalidOrganization
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, orgID, domain.ListFilter{
		RuleType: domain.RuleType(strings.TrimSpace(req.RuleType)),
		Active:   req.Active,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListRuleResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(rule *domain.CommissionRule) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        rule.ID.String(),
			CreatedAt: rule.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	rules := make([]domain.CommissionRule, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rules = append(rules, *item)
	}

	resp := domain.ListRuleResponse{Rules: rules}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Update rewrites a rule in place. Rules already referenced by commissions
// are frozen: edits would silently change history that may already be paid
// out, so callers must deactivate and create a replacement instead.
func (s *Service) Update(ctx context.Context, req domain.UpdateRuleRequest) (domain.CommissionRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.CommissionRule{}, domain.ErrInvalidOrganization
	}

	ruleID, err := s.parseID(req.ID)
	if err != nil {
		return domain.CommissionRule{}, err
	}

	var updated domain.CommissionRule
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rule, err := s.repo.FindByID(ctx, tx, orgID, ruleID)
		if err != nil {
			return err
		}
		if rule == nil {
			return domain.ErrNotFound
		}
		if !rule.Active {
			return domain.ErrRuleInactive
		}

		refs, err := s.repo.CountReferences(ctx, tx, orgID, ruleID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return domain.ErrRuleReferenced
		}

		now := s.clock.Now()
		if req.Name != nil {
			rule.Name = strings.TrimSpace(*req.Name)
		}
		if req.Rate != nil {
			rule.Rate = *req.Rate
		}
		if req.MinMarginPercentage != nil {
			rule.MinMarginPercentage = req.MinMarginPercentage
		}
		if req.MinOrderValue != nil {
			rule.MinOrderValue = req.MinOrderValue
		}
		if req.MinCommissionAmount != nil {
			rule.MinCommissionAmount = req.MinCommissionAmount
		}
		if req.Tiers != nil {
			rule.Tiers = buildTiers(s.genID, orgID, rule.ID, req.Tiers, now)
		}
		rule.UpdatedAt = now

		if result := calc.Validate(rule); !result.Valid {
			return &domain.ValidationError{Errors: result.Errors}
		}

		if err := s.repo.Update(ctx, tx, rule); err != nil {
			return err
		}
		if req.Tiers != nil {
			if err := s.repo.DeleteTiers(ctx, tx, orgID, rule.ID); err != nil {
				return err
			}
			if err := s.repo.InsertTiers(ctx, tx, rule.Tiers); err != nil {
				return err
			}
		}

		updated = *rule
		return nil
	})
	if err != nil {
		return domain.CommissionRule{}, err
	}
	s.auditLog(ctx, auditdomain.ActionRuleUpdated, &updated, map[string]any{
		"name": updated.Name,
		"rate": updated.Rate,
	})
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (domain.CommissionRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.CommissionRule{}, domain.ErrInvalidOrganization
	}

	ruleID, err := s.parseID(id)
	if err != nil {
		return domain.CommissionRule{}, err
	}

	var updated domain.CommissionRule
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rule, err := s.repo.FindByID(ctx, tx, orgID, ruleID)
		if err != nil {
			return err
		}
		if rule == nil {
			return domain.ErrNotFound
		}

		rule.Active = false
		rule.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, rule); err != nil {
			return err
		}

		updated = *rule
		return nil
	})
	if err != nil {
		return domain.CommissionRule{}, err
	}
	s.auditLog(ctx, auditdomain.ActionRuleDeactivated, &updated, nil)
	return updated, nil
}

func buildTiers(genID *snowflake.Node, orgID, ruleID snowflake.ID, inputs []domain.TierInput, now time.Time) []domain.CommissionTier {
	tiers := make([]domain.CommissionTier, 0, len(inputs))
	for i, input := range inputs {
		tiers = append(tiers, domain.CommissionTier{
			ID:          genID.Generate(),
			OrgID:       orgID,
			RuleID:      ruleID,
			Position:    i,
			MinAmount:   input.MinAmount,
			MaxAmount:   input.MaxAmount,
			Rate:        input.Rate,
			Description: strings.TrimSpace(input.Description),
			CreatedAt:   now,
		})
	}
	return tiers
}

func (s *Service) auditLog(ctx context.Context, action string, rule *domain.CommissionRule, metadata map[string]any) {
	targetID := rule.PublicID
	if err := s.audit.AuditLog(ctx, &rule.OrgID, "", nil, action, "commission_rule", &targetID, metadata); err != nil {
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
