package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payora/internal/actorcontext"
	auditdomain "github.com/smallbiznis/payora/internal/audit/domain"
	"github.com/smallbiznis/payora/internal/clock"
	"github.com/smallbiznis/payora/internal/commission/domain"
	"github.com/smallbiznis/payora/internal/commission/repository"
	ruledomain "github.com/smallbiznis/payora/internal/commissionrule/domain"
	rulerepository "github.com/smallbiznis/payora/internal/commissionrule/repository"
	"github.com/smallbiznis/payora/internal/config"
	"github.com/smallbiznis/payora/internal/orgcontext"
	"github.com/smallbiznis/payora/internal/publicid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockAuditSvc struct {
	mock.Mock
}

func (m *mockAuditSvc) AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(ctx, orgID, actorType, actorID, action, targetType, targetID, metadata)
	return args.Error(0)
}

func (m *mockAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

type lifecycleFixture struct {
	svc     *Service
	db      *gorm.DB
	node    *snowflake.Node
	clk     *clock.FakeClock
	audit   *mockAuditSvc
	orgID   snowflake.ID
	ownerID snowflake.ID
	ctx     context.Context
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	// Tables created by hand so the schema matches the production migrations.
	db.Exec(`CREATE TABLE IF NOT EXISTS commissions (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		public_id TEXT NOT NULL,
		code TEXT NOT NULL,
		period INTEGER NOT NULL,
		sequence INTEGER NOT NULL,
		employee_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		rule_id BIGINT,
		shipment_id TEXT,
		quote_id TEXT,
		invoice_id TEXT,
		related_shipment_ids TEXT,
		related_quote_ids TEXT,
		base_amount NUMERIC NOT NULL,
		margin NUMERIC,
		margin_percentage NUMERIC,
		commission_percentage NUMERIC NOT NULL DEFAULT 0,
		total_amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		breakdown TEXT,
		description TEXT,
		notes TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		approved_by TEXT,
		approved_at TIMESTAMP,
		approval_notes TEXT,
		paid_by TEXT,
		paid_at TIMESTAMP,
		payment_reference TEXT,
		payment_method TEXT,
		cancelled_by TEXT,
		cancelled_at TIMESTAMP,
		cancel_reason TEXT,
		deleted_by TEXT,
		deleted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_commission_code ON commissions(code)`)
	db.Exec(`CREATE TABLE IF NOT EXISTS commission_rules (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		public_id TEXT NOT NULL,
		name TEXT NOT NULL,
		rule_type TEXT NOT NULL,
		rate NUMERIC NOT NULL DEFAULT 0,
		min_margin_percentage NUMERIC,
		min_order_value NUMERIC,
		min_commission_amount NUMERIC,
		currency TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	db.Exec(`CREATE TABLE IF NOT EXISTS commission_tiers (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		rule_id BIGINT NOT NULL,
		position INTEGER NOT NULL,
		min_amount NUMERIC NOT NULL,
		max_amount NUMERIC,
		rate NUMERIC NOT NULL,
		description TEXT,
		created_at TIMESTAMP NOT NULL
	)`)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	mockAudit := new(mockAuditSvc)
	mockAudit.On("AuditLog", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	orgID := node.Generate()
	ownerID := node.Generate()

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		Rules:    rulerepository.Provide(),
		Audit:    mockAudit,
		PublicID: publicid.NewGenerator(),
		Payout:   config.NewStaticPayoutConfigHolder(config.DefaultPayoutConfig()),
		Clock:    clk,
	}).(*Service)

	ctx := orgcontext.WithOrgID(context.Background(), orgID)
	ctx = actorcontext.WithActor(ctx, actorcontext.Actor{Type: "user", ID: ownerID.String(), Role: "member"})

	return &lifecycleFixture{
		svc:     svc,
		db:      db,
		node:    node,
		clk:     clk,
		audit:   mockAudit,
		orgID:   orgID,
		ownerID: ownerID,
		ctx:     ctx,
	}
}

// insertRule seeds a rule row directly; the schema requires timestamps.
func (f *lifecycleFixture) insertRule(t *testing.T, rule *ruledomain.CommissionRule) {
	t.Helper()
	rule.CreatedAt = f.clk.Now()
	rule.UpdatedAt = f.clk.Now()
	require.NoError(t, f.db.Create(rule).Error)
}

func (f *lifecycleFixture) createPending(t *testing.T) domain.Commission {
	t.Helper()
	commission, err := f.svc.Create(f.ctx, domain.CreateRequest{
		EmployeeID:           f.node.Generate().String(),
		BaseAmount:           floatPtr(400),
		CommissionPercentage: floatPtr(10),
		TotalAmount:          floatPtr(40),
		Description:          "Q1 shipment",
	})
	require.NoError(t, err)
	return commission
}

func TestCommissionLifecycle(t *testing.T) {
	f := newLifecycleFixture(t)

	commission := f.createPending(t)
	assert.Equal(t, domain.StatusPending, commission.Status)
	assert.Equal(t, 2026, commission.Period)
	assert.Equal(t, 1, commission.Sequence)
	assert.Equal(t, "COMM-2026-0001", commission.Code)
	assert.Equal(t, f.ownerID, commission.OwnerID)
	assert.Equal(t, "USD", commission.Currency)

	approved, err := f.svc.Approve(f.ctx, domain.ApproveRequest{
		ID:    commission.ID.String(),
		Notes: "looks right",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "user:"+f.ownerID.String(), *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, f.clk.Now(), approved.ApprovedAt.UTC())
	require.NotNil(t, approved.ApprovalNotes)
	assert.Equal(t, "looks right", *approved.ApprovalNotes)

	f.clk.Advance(time.Hour)

	paid, err := f.svc.Pay(f.ctx, domain.PayRequest{
		ID:               commission.ID.String(),
		PaymentReference: "wire_20260314_001",
		PaymentMethod:    "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.True(t, paid.PaidAt.After(*approved.ApprovedAt))
	require.NotNil(t, paid.PaymentReference)
	assert.Equal(t, "wire_20260314_001", *paid.PaymentReference)

	// paid is terminal
	_, err = f.svc.Approve(f.ctx, domain.ApproveRequest{ID: commission.ID.String()})
	var transitionErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, domain.StatusPaid, transitionErr.From)
	assert.Equal(t, domain.StatusApproved, transitionErr.To)

	_, err = f.svc.Cancel(f.ctx, domain.CancelRequest{ID: commission.ID.String(), Reason: "oops"})
	assert.ErrorAs(t, err, &transitionErr)
}

func TestPayFromPendingFails(t *testing.T) {
	f := newLifecycleFixture(t)
	commission := f.createPending(t)

	_, err := f.svc.Pay(f.ctx, domain.PayRequest{
		ID:               commission.ID.String(),
		PaymentReference: "wire_001",
		PaymentMethod:    "bank_transfer",
	})
	var transitionErr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, domain.StatusPending, transitionErr.From)
	assert.Equal(t, domain.StatusPaid, transitionErr.To)
}

func TestPayRequiresReferenceAndMethod(t *testing.T) {
	f := newLifecycleFixture(t)
	commission := f.createPending(t)
	_, err := f.svc.Approve(f.ctx, domain.ApproveRequest{ID: commission.ID.String()})
	require.NoError(t, err)

	_, err = f.svc.Pay(f.ctx, domain.PayRequest{ID: commission.ID.String(), PaymentMethod: "cash"})
	assert.ErrorIs(t, err, domain.ErrPaymentReferenceRequired)

	_, err = f.svc.Pay(f.ctx, domain.PayRequest{ID: commission.ID.String(), PaymentReference: "ref"})
	assert.ErrorIs(t, err, domain.ErrPaymentMethodRequired)
}

func TestCancelFromPendingAndApproved(t *testing.T) {
	f := newLifecycleFixture(t)

	first := f.createPending(t)
	cancelled, err := f.svc.Cancel(f.ctx, domain.CancelRequest{ID: first.ID.String(), Reason: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "duplicate", *cancelled.CancelReason)

	second := f.createPending(t)
	_, err = f.svc.Approve(f.ctx, domain.ApproveRequest{ID: second.ID.String()})
	require.NoError(t, err)
	_, err = f.svc.Cancel(f.ctx, domain.CancelRequest{ID: second.ID.String()})
	require.NoError(t, err)
}

func TestSequencePerPeriod(t *testing.T) {
	f := newLifecycleFixture(t)

	first := f.createPending(t)
	second := f.createPending(t)
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, 2, second.Sequence)
	assert.Equal(t, "COMM-2026-0002", second.Code)

	// A new period restarts the sequence.
	f.clk.Set(time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC))
	third := f.createPending(t)
	assert.Equal(t, 1, third.Sequence)
	assert.Equal(t, "COMM-2027-0001", third.Code)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	f := newLifecycleFixture(t)
	commission := f.createPending(t)

	require.NoError(t, f.svc.Delete(f.ctx, commission.ID.String()))

	// Hidden from default lookups and listings.
	_, err := f.svc.Get(f.ctx, commission.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	listed, err := f.svc.List(f.ctx, domain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, listed.Commissions)

	withDeleted, err := f.svc.List(f.ctx, domain.ListRequest{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, withDeleted.Commissions, 1)

	// Transitions on a deleted record are rejected.
	_, err = f.svc.Approve(f.ctx, domain.ApproveRequest{ID: commission.ID.String()})
	assert.ErrorIs(t, err, domain.ErrDeleted)

	// A stranger cannot restore.
	strangerCtx := orgcontext.WithOrgID(context.Background(), f.orgID)
	strangerCtx = actorcontext.WithActor(strangerCtx, actorcontext.Actor{Type: "user", ID: f.node.Generate().String(), Role: "member"})
	_, err = f.svc.Restore(strangerCtx, commission.ID.String())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// An admin can.
	adminCtx := orgcontext.WithOrgID(context.Background(), f.orgID)
	adminCtx = actorcontext.WithActor(adminCtx, actorcontext.Actor{Type: "user", ID: f.node.Generate().String(), Role: "admin"})
	restored, err := f.svc.Restore(adminCtx, commission.ID.String())
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)
	assert.Nil(t, restored.DeletedBy)

	// Restoring a live record fails.
	_, err = f.svc.Restore(f.ctx, commission.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotDeleted)

	// Back in default listings.
	fetched, err := f.svc.Get(f.ctx, commission.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, fetched.Status)
}

func TestRestoreByOwner(t *testing.T) {
	f := newLifecycleFixture(t)
	commission := f.createPending(t)
	require.NoError(t, f.svc.Delete(f.ctx, commission.ID.String()))

	restored, err := f.svc.Restore(f.ctx, commission.ID.String())
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)
}

func TestCreateFromRule(t *testing.T) {
	f := newLifecycleFixture(t)

	rule := ruledomain.CommissionRule{
		ID:       f.node.Generate(),
		OrgID:    f.orgID,
		PublicID: "rule_test",
		Name:     "standard margin",
		RuleType: ruledomain.RuleTypeMarginPercentage,
		Rate:     10,
		Currency: "USD",
		Active:   true,
	}
	f.insertRule(t, &rule)

	commission, err := f.svc.Create(f.ctx, domain.CreateRequest{
		EmployeeID: f.node.Generate().String(),
		RuleID:     rule.ID.String(),
		Revenue:    floatPtr(1000),
		Cost:       floatPtr(600),
	})
	require.NoError(t, err)

	assert.Equal(t, 400.0, commission.BaseAmount)
	require.NotNil(t, commission.Margin)
	assert.Equal(t, 400.0, *commission.Margin)
	assert.Equal(t, 10.0, commission.CommissionPercentage)
	assert.Equal(t, 40.0, commission.TotalAmount)
	require.NotNil(t, commission.RuleID)
	assert.Equal(t, rule.ID, *commission.RuleID)
	assert.Equal(t, rule.ID.String(), commission.Breakdown["rule_id"])
	assert.Equal(t, "margin_percentage", commission.Breakdown["rule_type"])
}

func TestCreateFromInactiveRuleFails(t *testing.T) {
	f := newLifecycleFixture(t)

	rule := ruledomain.CommissionRule{
		ID:       f.node.Generate(),
		OrgID:    f.orgID,
		PublicID: "rule_inactive",
		Name:     "retired",
		RuleType: ruledomain.RuleTypeRevenuePercentage,
		Rate:     5,
		Currency: "USD",
		Active:   false,
	}
	f.insertRule(t, &rule)

	_, err := f.svc.Create(f.ctx, domain.CreateRequest{
		EmployeeID: f.node.Generate().String(),
		RuleID:     rule.ID.String(),
		Revenue:    floatPtr(1000),
	})
	assert.ErrorIs(t, err, domain.ErrRuleInactive)
}

func TestCreateValidation(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.svc.Create(f.ctx, domain.CreateRequest{
		EmployeeID: f.node.Generate().String(),
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "base_amount is required without a rule")
	assert.Contains(t, verr.Errors, "total_amount is required without a rule")

	_, err = f.svc.Create(f.ctx, domain.CreateRequest{
		EmployeeID:  f.node.Generate().String(),
		BaseAmount:  floatPtr(100),
		TotalAmount: floatPtr(2_000_000),
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors[0], "exceeds the configured maximum")

	_, err = f.svc.Create(f.ctx, domain.CreateRequest{EmployeeID: "not-a-number"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmployee)
}

func TestUpdateRevalidates(t *testing.T) {
	f := newLifecycleFixture(t)
	commission := f.createPending(t)

	updated, err := f.svc.Update(f.ctx, domain.UpdateRequest{
		ID:          commission.ID.String(),
		TotalAmount: floatPtr(55.555),
		Notes:       stringPtr("adjusted after review"),
	})
	require.NoError(t, err)
	assert.Equal(t, 55.56, updated.TotalAmount)
	assert.Equal(t, "adjusted after review", updated.Notes)

	_, err = f.svc.Update(f.ctx, domain.UpdateRequest{
		ID:          commission.ID.String(),
		TotalAmount: floatPtr(-5),
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, f.svc.Delete(f.ctx, commission.ID.String()))
	_, err = f.svc.Update(f.ctx, domain.UpdateRequest{
		ID:    commission.ID.String(),
		Notes: stringPtr("too late"),
	})
	assert.ErrorIs(t, err, domain.ErrDeleted)
}

func TestRecalculateOnlyWhilePending(t *testing.T) {
	f := newLifecycleFixture(t)

	rule := ruledomain.CommissionRule{
		ID:       f.node.Generate(),
		OrgID:    f.orgID,
		PublicID: "rule_recalc",
		Name:     "standard margin",
		RuleType: ruledomain.RuleTypeMarginPercentage,
		Rate:     10,
		Currency: "USD",
		Active:   true,
	}
	f.insertRule(t, &rule)

	commission, err := f.svc.Create(f.ctx, domain.CreateRequest{
		EmployeeID: f.node.Generate().String(),
		RuleID:     rule.ID.String(),
		Revenue:    floatPtr(1000),
		Cost:       floatPtr(600),
	})
	require.NoError(t, err)

	recalced, err := f.svc.Recalculate(f.ctx, commission.ID.String(), 2000, floatPtr(1200))
	require.NoError(t, err)
	assert.Equal(t, 80.0, recalced.TotalAmount)

	_, err = f.svc.Approve(f.ctx, domain.ApproveRequest{ID: commission.ID.String()})
	require.NoError(t, err)

	_, err = f.svc.Recalculate(f.ctx, commission.ID.String(), 3000, floatPtr(1800))
	assert.ErrorIs(t, err, domain.ErrNotPending)
}

func TestGetUnknownID(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.svc.Get(f.ctx, f.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Get(f.ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = f.svc.Get(context.Background(), f.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func floatPtr(v float64) *float64 { return &v }
func stringPtr(v string) *string  { return &v }
