package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/payora/internal/audit/domain"
	"github.com/smallbiznis/payora/internal/clock"
	"github.com/smallbiznis/payora/internal/commissionrule/domain"
	"github.com/smallbiznis/payora/internal/commissionrule/repository"
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

type ruleFixture struct {
	svc   *Service
	db    *gorm.DB
	node  *snowflake.Node
	clk   *clock.FakeClock
	audit *mockAuditSvc
	orgID snowflake.ID
	ctx   context.Context
}

func newRuleFixture(t *testing.T) *ruleFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	// Tables created by hand so the schema matches the production migrations.
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
	db.Exec(`CREATE TABLE IF NOT EXISTS commissions (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		rule_id BIGINT,
		status TEXT NOT NULL DEFAULT 'pending'
	)`)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	mockAudit := new(mockAuditSvc)
	mockAudit.On("AuditLog", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	orgID := node.Generate()

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		Audit:    mockAudit,
		PublicID: publicid.NewGenerator(),
		Payout:   config.NewStaticPayoutConfigHolder(config.DefaultPayoutConfig()),
		Clock:    clk,
	}).(*Service)

	return &ruleFixture{
		svc:   svc,
		db:    db,
		node:  node,
		clk:   clk,
		audit: mockAudit,
		orgID: orgID,
		ctx:   orgcontext.WithOrgID(context.Background(), orgID),
	}
}

func (f *ruleFixture) createMarginRule(t *testing.T, rate float64) domain.CommissionRule {
	t.Helper()
	rule, err := f.svc.Create(f.ctx, domain.CreateRuleRequest{
		Name:     "Standard margin",
		RuleType: string(domain.RuleTypeMarginPercentage),
		Rate:     floatPtr(rate),
	})
	require.NoError(t, err)
	return rule
}

func TestCreateRuleDefaults(t *testing.T) {
	f := newRuleFixture(t)

	rule := f.createMarginRule(t, 10)
	assert.Equal(t, "USD", rule.Currency)
	assert.True(t, rule.Active)
	assert.NotEmpty(t, rule.PublicID)
	assert.Equal(t, f.orgID, rule.OrgID)

	got, err := f.svc.Get(f.ctx, rule.ID.String())
	require.NoError(t, err)
	assert.Equal(t, rule.Name, got.Name)
}

func TestCreateRuleValidation(t *testing.T) {
	f := newRuleFixture(t)

	_, err := f.svc.Create(f.ctx, domain.CreateRuleRequest{
		RuleType: string(domain.RuleTypeMarginPercentage),
		Rate:     floatPtr(10),
	})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = f.svc.Create(f.ctx, domain.CreateRuleRequest{
		Name:     "Negative",
		RuleType: string(domain.RuleTypeMarginPercentage),
		Rate:     floatPtr(-5),
	})
	require.ErrorAs(t, err, &vErr)

	_, err = f.svc.Create(f.ctx, domain.CreateRuleRequest{
		Name:     "Unknown type",
		RuleType: "lunar",
		Rate:     floatPtr(5),
	})
	require.ErrorAs(t, err, &vErr)
}

func TestCreateRuleRequiresRate(t *testing.T) {
	f := newRuleFixture(t)

	// An omitted rate must not slip through as a silent zero payout.
	_, err := f.svc.Create(f.ctx, domain.CreateRuleRequest{
		Name:     "No rate",
		RuleType: string(domain.RuleTypeFixedAmount),
	})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Errors, "rate is required")

	// An explicit zero is legal.
	rule, err := f.svc.Create(f.ctx, domain.CreateRuleRequest{
		Name:     "Zero rate",
		RuleType: string(domain.RuleTypeFixedAmount),
		Rate:     floatPtr(0),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, rule.Rate)

	// Tiered rules carry rates on the tiers, not the rule.
	tiered, err := f.svc.Create(f.ctx, domain.CreateRuleRequest{
		Name:     "Tiered without rate",
		RuleType: string(domain.RuleTypeTiered),
		Tiers: []domain.TierInput{
			{MinAmount: 0, MaxAmount: nil, Rate: 5},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RuleTypeTiered, tiered.RuleType)
}

func TestCreateTieredRuleSortsTiers(t *testing.T) {
	f := newRuleFixture(t)

	rule, err := f.svc.Create(f.ctx, domain.CreateRuleRequest{
		Name:     "Volume ladder",
		RuleType: string(domain.RuleTypeTiered),
		Tiers: []domain.TierInput{
			{MinAmount: 1000, MaxAmount: nil, Rate: 12},
			{MinAmount: 0, MaxAmount: floatPtr(999), Rate: 8},
		},
	})
	require.NoError(t, err)
	require.Len(t, rule.Tiers, 2)
	assert.Equal(t, float64(0), rule.Tiers[0].MinAmount)
	assert.Equal(t, float64(1000), rule.Tiers[1].MinAmount)

	got, err := f.svc.Get(f.ctx, rule.ID.String())
	require.NoError(t, err)
	require.Len(t, got.Tiers, 2)
	assert.Equal(t, float64(8), got.Tiers[0].Rate)
}

func TestCreateTieredRuleRejectsOverlap(t *testing.T) {
	f := newRuleFixture(t)

	_, err := f.svc.Create(f.ctx, domain.CreateRuleRequest{
		Name:     "Overlapping",
		RuleType: string(domain.RuleTypeTiered),
		Tiers: []domain.TierInput{
			{MinAmount: 0, MaxAmount: floatPtr(500), Rate: 5},
			{MinAmount: 400, MaxAmount: nil, Rate: 10},
		},
	})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestUpdateRule(t *testing.T) {
	f := newRuleFixture(t)
	rule := f.createMarginRule(t, 10)

	newName := "Premium margin"
	updated, err := f.svc.Update(f.ctx, domain.UpdateRuleRequest{
		ID:   rule.ID.String(),
		Name: &newName,
		Rate: floatPtr(12.5),
	})
	require.NoError(t, err)
	assert.Equal(t, "Premium margin", updated.Name)
	assert.Equal(t, 12.5, updated.Rate)

	got, err := f.svc.Get(f.ctx, rule.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 12.5, got.Rate)
}

func TestUpdateReferencedRuleFails(t *testing.T) {
	f := newRuleFixture(t)
	rule := f.createMarginRule(t, 10)

	// A commission now points at the rule; edits would rewrite history.
	require.NoError(t, f.db.Exec(
		`INSERT INTO commissions (id, org_id, rule_id, status) VALUES (?, ?, ?, 'pending')`,
		f.node.Generate(), f.orgID, rule.ID,
	).Error)

	_, err := f.svc.Update(f.ctx, domain.UpdateRuleRequest{
		ID:   rule.ID.String(),
		Rate: floatPtr(20),
	})
	require.ErrorIs(t, err, domain.ErrRuleReferenced)

	// Deactivation stays legal for frozen rules.
	deactivated, err := f.svc.Deactivate(f.ctx, rule.ID.String())
	require.NoError(t, err)
	assert.False(t, deactivated.Active)
}

func TestUpdateInactiveRuleFails(t *testing.T) {
	f := newRuleFixture(t)
	rule := f.createMarginRule(t, 10)

	_, err := f.svc.Deactivate(f.ctx, rule.ID.String())
	require.NoError(t, err)

	_, err = f.svc.Update(f.ctx, domain.UpdateRuleRequest{
		ID:   rule.ID.String(),
		Rate: floatPtr(15),
	})
	require.ErrorIs(t, err, domain.ErrRuleInactive)
}

func TestListRulesFiltersActive(t *testing.T) {
	f := newRuleFixture(t)
	active := f.createMarginRule(t, 10)
	retired := f.createMarginRule(t, 5)

	_, err := f.svc.Deactivate(f.ctx, retired.ID.String())
	require.NoError(t, err)

	onlyActive := true
	resp, err := f.svc.List(f.ctx, domain.ListRuleRequest{Active: &onlyActive})
	require.NoError(t, err)
	require.Len(t, resp.Rules, 1)
	assert.Equal(t, active.ID, resp.Rules[0].ID)

	all, err := f.svc.List(f.ctx, domain.ListRuleRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Rules, 2)
}

func TestGetUnknownRule(t *testing.T) {
	f := newRuleFixture(t)

	_, err := f.svc.Get(f.ctx, f.node.Generate().String())
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Get(f.ctx, "not-a-snowflake")
	require.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestRuleRequiresOrgContext(t *testing.T) {
	f := newRuleFixture(t)

	_, err := f.svc.Create(context.Background(), domain.CreateRuleRequest{
		Name:     "No tenant",
		RuleType: string(domain.RuleTypeMarginPercentage),
		Rate:     floatPtr(10),
	})
	require.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func floatPtr(v float64) *float64 { return &v }
