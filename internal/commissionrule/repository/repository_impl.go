package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payora/internal/commissionrule/domain"
	"github.com/smallbiznis/payora/pkg/db/option"
	"github.com/smallbiznis/payora/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *domain.CommissionRule) error {
	return db.WithContext(ctx).Omit("Tiers").Create(rule).Error
}

func (r *repo) InsertTiers(ctx context.Context, db *gorm.DB, tiers []domain.CommissionTier) error {
	if len(tiers) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&tiers).Error
}

func (r *repo) DeleteTiers(ctx context.Context, db *gorm.DB, orgID, ruleID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("org_id = ? AND rule_id = ?", orgID, ruleID).
		Delete(&domain.CommissionTier{}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.CommissionRule, error) {
	var rule domain.CommissionRule
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM commission_rules WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}

	err = db.WithContext(ctx).
		Where("org_id = ? AND rule_id = ?", orgID, id).
		Order("position asc").
		Find(&rule.Tiers).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]*domain.CommissionRule, error) {
	var rules []*domain.CommissionRule
	stmt := db.WithContext(ctx).
		Model(&domain.CommissionRule{}).
		Where("org_id = ?", orgID)
	if filter.RuleType != "" {
		stmt = stmt.Where("rule_type = ?", filter.RuleType)
	}
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, rule *domain.CommissionRule) error {
	return db.WithContext(ctx).Exec(
		`UPDATE commission_rules
		 SET name = ?, rate = ?, min_margin_percentage = ?, min_order_value = ?,
		     min_commission_amount = ?, active = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		rule.Name,
		rule.Rate,
		rule.MinMarginPercentage,
		rule.MinOrderValue,
		rule.MinCommissionAmount,
		rule.Active,
		rule.UpdatedAt,
		rule.OrgID,
		rule.ID,
	).Error
}

func (r *repo) CountReferences(ctx context.Context, db *gorm.DB, orgID, ruleID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM commissions WHERE org_id = ? AND rule_id = ?`,
		orgID,
		ruleID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
