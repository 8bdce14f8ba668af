package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payora/internal/commission/domain"
	"github.com/smallbiznis/payora/pkg/db/option"
	"github.com/smallbiznis/payora/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, commission *domain.Commission) error {
	return db.WithContext(ctx).Create(commission).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Commission, error) {
	var commission domain.Commission
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM commissions WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&commission).Error
	if err != nil {
		return nil, err
	}
	if commission.ID == 0 {
		return nil, nil
	}
	return &commission, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Commission, error) {
	var commission domain.Commission
	stmt := db.WithContext(ctx).Model(&domain.Commission{})
	// sqlite serializes writers on its own and rejects FOR UPDATE.
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := stmt.
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&commission).Error
	if err != nil {
		return nil, err
	}
	if commission.ID == 0 {
		return nil, nil
	}
	return &commission, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Commission, error) {
	var commissions []*domain.Commission
	stmt := db.WithContext(ctx).
		Model(&domain.Commission{}).
		Where("org_id = ?", orgID)
	if !filter.IncludeDeleted {
		stmt = stmt.Where("deleted_at IS NULL")
	}
	if filter.Period != 0 {
		stmt = stmt.Where("period = ?", filter.Period)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.EmployeeID != "" {
		stmt = stmt.Where("employee_id = ?", filter.EmployeeID)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, commission *domain.Commission) error {
	// Save the whole row: transitions touch disjoint stamp columns and the
	// caller already holds the row lock.
	return db.WithContext(ctx).
		Model(&domain.Commission{}).
		Where("org_id = ? AND id = ?", commission.OrgID, commission.ID).
		Select("*").
		Omit("id", "org_id", "created_at").
		Updates(commission).Error
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, orgID snowflake.ID, period int) (int, error) {
	var max int
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(sequence), 0) FROM commissions WHERE org_id = ? AND period = ?`,
		orgID,
		period,
	).Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
