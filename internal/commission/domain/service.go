package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/payora/pkg/db/pagination"
)

// ValidationError carries every problem with the financial payload at once.
type ValidationError struct {
	Errors []string `json:"errors"`
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// InvalidTransitionError reports a transition the state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + string(e.From) + " to " + string(e.To)
}

type CreateRequest struct {
	EmployeeID string `json:"employee_id"`

	// When RuleID is set the amounts are computed by the rule evaluator from
	// Revenue/Cost; otherwise BaseAmount, CommissionPercentage and
	// TotalAmount must be supplied directly.
	RuleID  string   `json:"rule_id"`
	Revenue *float64 `json:"revenue"`
	Cost    *float64 `json:"cost"`

	BaseAmount           *float64 `json:"base_amount"`
	Margin               *float64 `json:"margin"`
	MarginPercentage     *float64 `json:"margin_percentage"`
	CommissionPercentage *float64 `json:"commission_percentage"`
	TotalAmount          *float64 `json:"total_amount"`
	Currency             string   `json:"currency"`

	ShipmentID         *string  `json:"shipment_id"`
	QuoteID            *string  `json:"quote_id"`
	InvoiceID          *string  `json:"invoice_id"`
	RelatedShipmentIDs []string `json:"related_shipment_ids"`
	RelatedQuoteIDs    []string `json:"related_quote_ids"`

	Description string `json:"description"`
	Notes       string `json:"notes"`
}

type UpdateRequest struct {
	ID                   string   `json:"id"`
	BaseAmount           *float64 `json:"base_amount"`
	CommissionPercentage *float64 `json:"commission_percentage"`
	TotalAmount          *float64 `json:"total_amount"`
	Description          *string  `json:"description"`
	Notes                *string  `json:"notes"`
}

type ApproveRequest struct {
	ID    string `json:"id"`
	Notes string `json:"notes"`
}

type PayRequest struct {
	ID               string `json:"id"`
	PaymentReference string `json:"payment_reference"`
	PaymentMethod    string `json:"payment_method"`
}

type CancelRequest struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type ListRequest struct {
	pagination.Pagination
	Period     int    `form:"period"`
	Status     string `form:"status"`
	EmployeeID string `form:"employee_id"`
	// IncludeDeleted widens the listing to soft-deleted records; default
	// listings exclude them.
	IncludeDeleted bool `form:"include_deleted"`
}

type ListResponse struct {
	pagination.PageInfo
	Commissions []Commission `json:"commissions"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Commission, error)
	Get(ctx context.Context, id string) (Commission, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, req UpdateRequest) (Commission, error)
	Approve(ctx context.Context, req ApproveRequest) (Commission, error)
	Pay(ctx context.Context, req PayRequest) (Commission, error)
	Cancel(ctx context.Context, req CancelRequest) (Commission, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) (Commission, error)
	// Recalculate re-runs the linked rule against fresh figures. Only legal
	// while the record is still pending.
	Recalculate(ctx context.Context, id string, revenue float64, cost *float64) (Commission, error)
}

var (
	ErrInvalidOrganization      = errors.New("invalid_organization")
	ErrInvalidID                = errors.New("invalid_id")
	ErrInvalidEmployee          = errors.New("invalid_employee")
	ErrNotFound                 = errors.New("not_found")
	ErrNotPending               = errors.New("commission_not_pending")
	ErrRuleNotFound             = errors.New("rule_not_found")
	ErrRuleInactive             = errors.New("rule_inactive")
	ErrForbidden                = errors.New("forbidden")
	ErrDeleted                  = errors.New("commission_deleted")
	ErrNotDeleted               = errors.New("commission_not_deleted")
	ErrPaymentReferenceRequired = errors.New("payment_reference_required")
	ErrPaymentMethodRequired    = errors.New("payment_method_required")
)
