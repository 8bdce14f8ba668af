package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payora/internal/commissionrule/calc"
	ruledomain "github.com/smallbiznis/payora/internal/commissionrule/domain"
	"github.com/smallbiznis/payora/pkg/db/pagination"
)

type ruleTierInput struct {
	MinAmount   float64  `json:"min_amount"`
	MaxAmount   *float64 `json:"max_amount"`
	Rate        float64  `json:"rate"`
	Description string   `json:"description"`
}

type createCommissionRuleRequest struct {
	Name                string          `json:"name"`
	RuleType            string          `json:"rule_type"`
	Rate                *float64        `json:"rate"`
	Tiers               []ruleTierInput `json:"tiers"`
	MinMarginPercentage *float64        `json:"min_margin_percentage"`
	MinOrderValue       *float64        `json:"min_order_value"`
	MinCommissionAmount *float64        `json:"min_commission_amount"`
	Currency            string          `json:"currency"`
	Metadata            map[string]any  `json:"metadata"`
}

func (s *Server) CreateCommissionRule(c *gin.Context) {
	var req createCommissionRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Create(c.Request.Context(), ruledomain.CreateRuleRequest{
		Name:                strings.TrimSpace(req.Name),
		RuleType:            strings.TrimSpace(req.RuleType),
		Rate:                req.Rate,
		Tiers:               toTierInputs(req.Tiers),
		MinMarginPercentage: req.MinMarginPercentage,
		MinOrderValue:       req.MinOrderValue,
		MinCommissionAmount: req.MinCommissionAmount,
		Currency:            strings.TrimSpace(req.Currency),
		Metadata:            req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type listCommissionRulesQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	RuleType  string `form:"rule_type"`
	Active    string `form:"active"`
}

func (s *Server) ListCommissionRules(c *gin.Context) {
	var query listCommissionRulesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	resp, err := s.ruleSvc.List(c.Request.Context(), ruledomain.ListRuleRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		RuleType: strings.TrimSpace(query.RuleType),
		Active:   active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Rules, "page_info": resp.PageInfo})
}

func (s *Server) GetCommissionRule(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.ruleSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateCommissionRuleRequest struct {
	Name                *string         `json:"name"`
	Rate                *float64        `json:"rate"`
	Tiers               []ruleTierInput `json:"tiers"`
	MinMarginPercentage *float64        `json:"min_margin_percentage"`
	MinOrderValue       *float64        `json:"min_order_value"`
	MinCommissionAmount *float64        `json:"min_commission_amount"`
}

func (s *Server) UpdateCommissionRule(c *gin.Context) {
	var req updateCommissionRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Update(c.Request.Context(), ruledomain.UpdateRuleRequest{
		ID:                  strings.TrimSpace(c.Param("id")),
		Name:                req.Name,
		Rate:                req.Rate,
		Tiers:               toTierInputs(req.Tiers),
		MinMarginPercentage: req.MinMarginPercentage,
		MinOrderValue:       req.MinOrderValue,
		MinCommissionAmount: req.MinCommissionAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateCommissionRule(c *gin.Context) {
	resp, err := s.ruleSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type previewCommissionRuleRequest struct {
	Revenue *float64 `json:"revenue"`
	Cost    *float64 `json:"cost"`
}

// PreviewCommissionRule runs the rule against hypothetical figures without
// persisting anything. Inactive rules can still be previewed.
func (s *Server) PreviewCommissionRule(c *gin.Context) {
	var req previewCommissionRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Revenue == nil {
		AbortWithError(c, newValidationError("revenue", "revenue_required", "revenue is required"))
		return
	}

	rule, err := s.ruleSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := calc.Apply(rule, calc.Input{Revenue: *req.Revenue, Cost: req.Cost})
	if err != nil {
		AbortWithError(c, newValidationError("revenue", "invalid_input", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func toTierInputs(tiers []ruleTierInput) []ruledomain.TierInput {
	if len(tiers) == 0 {
		return nil
	}
	out := make([]ruledomain.TierInput, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, ruledomain.TierInput{
			MinAmount:   tier.MinAmount,
			MaxAmount:   tier.MaxAmount,
			Rate:        tier.Rate,
			Description: strings.TrimSpace(tier.Description),
		})
	}
	return out
}
