package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	commissiondomain "github.com/smallbiznis/payora/internal/commission/domain"
	"github.com/smallbiznis/payora/pkg/db/pagination"
)

type createCommissionRequest struct {
	EmployeeID string `json:"employee_id"`

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

func (s *Server) CreateCommission(c *gin.Context) {
	var req createCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.Create(c.Request.Context(), commissiondomain.CreateRequest{
		EmployeeID:           strings.TrimSpace(req.EmployeeID),
		RuleID:               strings.TrimSpace(req.RuleID),
		Revenue:              req.Revenue,
		Cost:                 req.Cost,
		BaseAmount:           req.BaseAmount,
		Margin:               req.Margin,
		MarginPercentage:     req.MarginPercentage,
		CommissionPercentage: req.CommissionPercentage,
		TotalAmount:          req.TotalAmount,
		Currency:             strings.TrimSpace(req.Currency),
		ShipmentID:           req.ShipmentID,
		QuoteID:              req.QuoteID,
		InvoiceID:            req.InvoiceID,
		RelatedShipmentIDs:   req.RelatedShipmentIDs,
		RelatedQuoteIDs:      req.RelatedQuoteIDs,
		Description:          strings.TrimSpace(req.Description),
		Notes:                strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type listCommissionsQuery struct {
	PageToken      string `form:"page_token"`
	PageSize       int    `form:"page_size"`
	Period         string `form:"period"`
	Status         string `form:"status"`
	EmployeeID     string `form:"employee_id"`
	IncludeDeleted string `form:"include_deleted"`
}

func (s *Server) ListCommissions(c *gin.Context) {
	var query listCommissionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	period, err := parseOptionalInt64(query.Period)
	if err != nil {
		AbortWithError(c, newValidationError("period", "invalid_period", "invalid period"))
		return
	}
	employeeID, err := parseOptionalSnowflakeID(query.EmployeeID)
	if err != nil {
		AbortWithError(c, newValidationError("employee_id", "invalid_employee", "invalid employee_id"))
		return
	}
	includeDeleted, err := parseOptionalBool(query.IncludeDeleted)
	if err != nil {
		AbortWithError(c, newValidationError("include_deleted", "invalid_include_deleted", "invalid include_deleted"))
		return
	}

	req := commissiondomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Status: strings.TrimSpace(query.Status),
	}
	if period != nil {
		req.Period = int(*period)
	}
	if employeeID != nil {
		req.EmployeeID = employeeID.String()
	}
	if includeDeleted != nil {
		req.IncludeDeleted = *includeDeleted
	}

	resp, err := s.commissionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Commissions, "page_info": resp.PageInfo})
}

func (s *Server) GetCommission(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.commissionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateCommissionRequest struct {
	BaseAmount           *float64 `json:"base_amount"`
	CommissionPercentage *float64 `json:"commission_percentage"`
	TotalAmount          *float64 `json:"total_amount"`
	Description          *string  `json:"description"`
	Notes                *string  `json:"notes"`
}

func (s *Server) UpdateCommission(c *gin.Context) {
	var req updateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.Update(c.Request.Context(), commissiondomain.UpdateRequest{
		ID:                   strings.TrimSpace(c.Param("id")),
		BaseAmount:           req.BaseAmount,
		CommissionPercentage: req.CommissionPercentage,
		TotalAmount:          req.TotalAmount,
		Description:          req.Description,
		Notes:                req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type approveCommissionRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) ApproveCommission(c *gin.Context) {
	var req approveCommissionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.Approve(c.Request.Context(), commissiondomain.ApproveRequest{
		ID:    strings.TrimSpace(c.Param("id")),
		Notes: strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type payCommissionRequest struct {
	PaymentReference string `json:"payment_reference"`
	PaymentMethod    string `json:"payment_method"`
}

func (s *Server) PayCommission(c *gin.Context) {
	var req payCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.Pay(c.Request.Context(), commissiondomain.PayRequest{
		ID:               strings.TrimSpace(c.Param("id")),
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		PaymentMethod:    strings.TrimSpace(req.PaymentMethod),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type cancelCommissionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelCommission(c *gin.Context) {
	var req cancelCommissionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.Cancel(c.Request.Context(), commissiondomain.CancelRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCommission(c *gin.Context) {
	if err := s.commissionSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) RestoreCommission(c *gin.Context) {
	resp, err := s.commissionSvc.Restore(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type recalculateCommissionRequest struct {
	Revenue *float64 `json:"revenue"`
	Cost    *float64 `json:"cost"`
}

func (s *Server) RecalculateCommission(c *gin.Context) {
	var req recalculateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Revenue == nil {
		AbortWithError(c, newValidationError("revenue", "revenue_required", "revenue is required"))
		return
	}

	resp, err := s.commissionSvc.Recalculate(c.Request.Context(), strings.TrimSpace(c.Param("id")), *req.Revenue, req.Cost)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
