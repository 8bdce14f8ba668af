// Package domain contains persistence models for commission records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status represents commission lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// transitions is the authoritative state machine. paid and cancelled are
// terminal; anything not listed here is rejected.
var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusPaid, StatusCancelled},
	StatusPaid:      {},
	StatusCancelled: {},
}

// Known reports whether s is one of the defined lifecycle states.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Commission is a computed record of money owed to one employee for one
// transaction, tracked through approval and payment. Every transition stamps
// actor and time on the record itself.
type Commission struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID    snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	PublicID string       `json:"public_id" gorm:"type:text;not null;uniqueIndex"`

	// Code is the human-readable sequence code, unique within its period
	// (e.g. COMM-2026-0042).
	Code     string `json:"code" gorm:"type:text;not null;uniqueIndex:ux_commission_code"`
	Period   int    `json:"period" gorm:"not null;index"`
	Sequence int    `json:"sequence" gorm:"not null"`

	// EmployeeID is who earns the commission; OwnerID is who created the
	// record and owns it for access control. They are often different.
	EmployeeID snowflake.ID  `json:"employee_id" gorm:"not null;index"`
	OwnerID    snowflake.ID  `json:"owner_id" gorm:"not null;index"`
	RuleID     *snowflake.ID `json:"rule_id,omitempty" gorm:"index"`

	ShipmentID *string `json:"shipment_id,omitempty" gorm:"type:text"`
	QuoteID    *string `json:"quote_id,omitempty" gorm:"type:text"`
	InvoiceID  *string `json:"invoice_id,omitempty" gorm:"type:text"`

	// Aggregated commissions may span multiple shipments or quotes.
	RelatedShipmentIDs datatypes.JSONSlice[string] `json:"related_shipment_ids,omitempty" gorm:"type:jsonb"`
	RelatedQuoteIDs    datatypes.JSONSlice[string] `json:"related_quote_ids,omitempty" gorm:"type:jsonb"`

	BaseAmount           float64  `json:"base_amount" gorm:"type:numeric;not null"`
	Margin               *float64 `json:"margin,omitempty" gorm:"type:numeric"`
	MarginPercentage     *float64 `json:"margin_percentage,omitempty" gorm:"type:numeric"`
	CommissionPercentage float64  `json:"commission_percentage" gorm:"type:numeric;not null;default:0"`
	TotalAmount          float64  `json:"total_amount" gorm:"type:numeric;not null"`
	Currency             string   `json:"currency" gorm:"type:char(3);not null"`

	// Breakdown freezes how the amount was derived at calculation time, so
	// later rule edits never change what the approver saw.
	Breakdown   datatypes.JSONMap `json:"breakdown,omitempty" gorm:"type:jsonb"`
	Description string            `json:"description,omitempty" gorm:"type:text"`
	Notes       string            `json:"notes,omitempty" gorm:"type:text"`

	Status Status `json:"status" gorm:"type:text;not null;default:'pending';index"`

	ApprovedBy    *string    `json:"approved_by,omitempty" gorm:"type:text"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty" gorm:""`
	ApprovalNotes *string    `json:"approval_notes,omitempty" gorm:"type:text"`

	PaidBy           *string    `json:"paid_by,omitempty" gorm:"type:text"`
	PaidAt           *time.Time `json:"paid_at,omitempty" gorm:""`
	PaymentReference *string    `json:"payment_reference,omitempty" gorm:"type:text"`
	PaymentMethod    *string    `json:"payment_method,omitempty" gorm:"type:text"`

	CancelledBy  *string    `json:"cancelled_by,omitempty" gorm:"type:text"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty" gorm:""`
	CancelReason *string    `json:"cancel_reason,omitempty" gorm:"type:text"`

	// Soft deletion is orthogonal to status and reversible via Restore.
	DeletedBy *string    `json:"deleted_by,omitempty" gorm:"type:text"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Commission) TableName() string { return "commissions" }

// Deleted reports whether the record is currently soft-deleted.
func (c *Commission) Deleted() bool { return c.DeletedAt != nil }
