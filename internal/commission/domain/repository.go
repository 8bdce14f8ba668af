package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payora/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Period         int
	Status         Status
	EmployeeID     string
	IncludeDeleted bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, commission *Commission) error
	// FindByID returns the record regardless of soft-delete status; callers
	// decide whether a deleted record is acceptable.
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Commission, error)
	// FindByIDForUpdate takes a row lock so state transitions serialize.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Commission, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Commission, error)
	Update(ctx context.Context, db *gorm.DB, commission *Commission) error
	// NextSequence returns the next period-scoped sequence number, counting
	// soft-deleted rows so codes are never reused.
	NextSequence(ctx context.Context, db *gorm.DB, orgID snowflake.ID, period int) (int, error)
}
