package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/payora/pkg/db/pagination"
)

// ValidationError carries the full list of structural problems so callers
// can fix their input in one round trip. It never partially applies.
type ValidationError struct {
	Errors []string `json:"errors"`
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

type TierInput struct {
	MinAmount   float64  `json:"min_amount"`
	MaxAmount   *float64 `json:"max_amount"`
	Rate        float64  `json:"rate"`
	Description string   `json:"description"`
}

type CreateRuleRequest struct {
	Name     string `json:"name"`
	RuleType string `json:"rule_type"`
	// Rate is a pointer so an omitted rate is distinguishable from an
	// explicit zero; non-tiered types must send one.
	Rate                *float64       `json:"rate"`
	Tiers               []TierInput    `json:"tiers"`
	MinMarginPercentage *float64       `json:"min_margin_percentage"`
	MinOrderValue       *float64       `json:"min_order_value"`
	MinCommissionAmount *float64       `json:"min_commission_amount"`
	Currency            string         `json:"currency"`
	Metadata            map[string]any `json:"metadata"`
}

type UpdateRuleRequest struct {
	ID                  string      `json:"id"`
	Name                *string     `json:"name"`
	Rate                *float64    `json:"rate"`
	Tiers               []TierInput `json:"tiers"`
	MinMarginPercentage *float64    `json:"min_margin_percentage"`
	MinOrderValue       *float64    `json:"min_order_value"`
	MinCommissionAmount *float64    `json:"min_commission_amount"`
}

type ListRuleRequest struct {
	pagination.Pagination
	RuleType string `form:"rule_type"`
	Active   *bool  `form:"active"`
}

type ListRuleResponse struct {
	pagination.PageInfo
	Rules []CommissionRule `json:"rules"`
}

type Service interface {
	Create(ctx context.Context, req CreateRuleRequest) (CommissionRule, error)
	Get(ctx context.Context, id string) (CommissionRule, error)
	List(ctx context.Context, req ListRuleRequest) (ListRuleResponse, error)
	// Update rejects rules already referenced by commissions; such rules can
	// only be deactivated and re-created so paid history stays stable.
	Update(ctx context.Context, req UpdateRuleRequest) (CommissionRule, error)
	Deactivate(ctx context.Context, id string) (CommissionRule, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrNotFound            = errors.New("not_found")
	ErrRuleReferenced      = errors.New("rule_referenced")
	ErrRuleInactive        = errors.New("rule_inactive")
)
