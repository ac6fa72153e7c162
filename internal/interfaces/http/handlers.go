package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// RegisterCompanyRequest is the body of POST /api/companies
type RegisterCompanyRequest struct {
	CompanyName string `json:"company_name" binding:"required"`
	Country     string `json:"country"`
	Currency    string `json:"currency"`
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required"`
	LarkOpenID  string `json:"lark_open_id"`
}

// RegisterCompanyResponse returns the new company and its admin
type RegisterCompanyResponse struct {
	Company *entity.Company `json:"company"`
	Admin   *entity.User    `json:"admin"`
}

// CreateUserRequest is the body of POST /api/users
type CreateUserRequest struct {
	Name              string `json:"name" binding:"required"`
	Email             string `json:"email" binding:"required"`
	Role              string `json:"role"`
	ManagerID         *int64 `json:"manager_id"`
	IsManagerApprover bool   `json:"is_manager_approver"`
	LarkOpenID        string `json:"lark_open_id"`
}

// SetApproversRequest is the body of PUT /api/company/approvers
type SetApproversRequest struct {
	ApproverIDs []int64 `json:"approver_ids"`
}

// SetApprovalRuleRequest is the body of PUT /api/company/approval-rule
type SetApprovalRuleRequest struct {
	RuleType            string `json:"rule_type" binding:"required"`
	PercentageThreshold *int   `json:"percentage_threshold"`
	SpecificApproverID  *int64 `json:"specific_approver_id"`
}

// SubmitExpenseRequest is the body of POST /api/expenses
type SubmitExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ExpenseDate string          `json:"expense_date"`
}

// DecideRequest is the body of POST /api/approvals/:id/decide
type DecideRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

// ListRequest carries paging query parameters
type ListRequest struct {
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
	Status string `form:"status"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// RegisterCompany handles POST /api/companies
func (h *Handlers) RegisterCompany(c *gin.Context) {
	var req RegisterCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "company_name, name and email are required")
		return
	}

	company, admin, err := h.services.Directory.RegisterCompany(c.Request.Context(), service.RegisterCompanyRequest{
		CompanyName: req.CompanyName,
		Country:     req.Country,
		Currency:    req.Currency,
		AdminName:   req.Name,
		AdminEmail:  req.Email,
		LarkOpenID:  req.LarkOpenID,
	})
	if err != nil {
		h.fail(c, err, "Failed to register company")
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: RegisterCompanyResponse{Company: company, Admin: admin}})
}

// CreateUser handles POST /api/users
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name and email are required")
		return
	}

	user, err := h.services.Directory.CreateUser(c.Request.Context(), actorFrom(c), service.CreateUserRequest{
		Name:              req.Name,
		Email:             req.Email,
		Role:              req.Role,
		ManagerID:         req.ManagerID,
		IsManagerApprover: req.IsManagerApprover,
		LarkOpenID:        req.LarkOpenID,
	})
	if err != nil {
		h.fail(c, err, "Failed to create user")
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: user})
}

// ListUsers handles GET /api/users
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.services.Directory.ListUsers(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err, "Failed to list users")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: users})
}

// SetApprovers handles PUT /api/company/approvers
func (h *Handlers) SetApprovers(c *gin.Context) {
	var req SetApproversRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "approver_ids must be a list of user ids")
		return
	}

	actor := actorFrom(c)
	steps, err := h.services.Config.SetApproverSequence(c.Request.Context(), actor, actor.CompanyID, req.ApproverIDs)
	if err != nil {
		h.fail(c, err, "Failed to set approvers", "company_id", actor.CompanyID)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// GetApprovers handles GET /api/company/approvers
func (h *Handlers) GetApprovers(c *gin.Context) {
	actor := actorFrom(c)
	steps, err := h.services.Config.GetApproverSequence(c.Request.Context(), actor, actor.CompanyID)
	if err != nil {
		h.fail(c, err, "Failed to get approvers", "company_id", actor.CompanyID)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// SetApprovalRule handles PUT /api/company/approval-rule
func (h *Handlers) SetApprovalRule(c *gin.Context) {
	var req SetApprovalRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "rule_type is required")
		return
	}

	threshold := entity.DefaultPercentageThreshold
	if req.PercentageThreshold != nil {
		threshold = *req.PercentageThreshold
	}

	actor := actorFrom(c)
	rule, err := h.services.Config.SetApprovalRule(c.Request.Context(), actor, actor.CompanyID,
		entity.RuleKind(req.RuleType), threshold, req.SpecificApproverID)
	if err != nil {
		h.fail(c, err, "Failed to set approval rule", "company_id", actor.CompanyID)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: rule})
}

// GetApprovalRule handles GET /api/company/approval-rule
func (h *Handlers) GetApprovalRule(c *gin.Context) {
	actor := actorFrom(c)
	rule, err := h.services.Config.GetApprovalRule(c.Request.Context(), actor, actor.CompanyID)
	if err != nil {
		h.fail(c, err, "Failed to get approval rule", "company_id", actor.CompanyID)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: rule})
}

// SubmitExpense handles POST /api/expenses
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req SubmitExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid expense body")
		return
	}

	var expenseDate *time.Time
	if req.ExpenseDate != "" {
		d, err := time.Parse("2006-01-02", req.ExpenseDate)
		if err != nil {
			badRequest(c, "expense_date must be YYYY-MM-DD")
			return
		}
		expenseDate = &d
	}

	actor := actorFrom(c)
	result, err := h.services.Engine.SubmitExpense(c.Request.Context(), service.SubmitExpenseRequest{
		SubmitterID: actor.UserID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		ExpenseDate: expenseDate,
	})
	if err != nil {
		h.fail(c, err, "Failed to submit expense", "user_id", actor.UserID)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// ListMyExpenses handles GET /api/expenses/mine
func (h *Handlers) ListMyExpenses(c *gin.Context) {
	req, ok := bindList(c)
	if !ok {
		return
	}
	expenses, err := h.services.Expenses.ListMine(c.Request.Context(), actorFrom(c), req.Limit, req.Offset)
	if err != nil {
		h.fail(c, err, "Failed to list expenses")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: expenses})
}

// ListCompanyExpenses handles GET /api/expenses
func (h *Handlers) ListCompanyExpenses(c *gin.Context) {
	req, ok := bindList(c)
	if !ok {
		return
	}
	expenses, err := h.services.Expenses.ListCompany(c.Request.Context(), actorFrom(c), req.Status, req.Limit, req.Offset)
	if err != nil {
		h.fail(c, err, "Failed to list company expenses")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: expenses})
}

// GetExpense handles GET /api/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	detail, err := h.services.Expenses.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err, "Failed to get expense", "expense_id", id)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// GetExpenseAudit handles GET /api/expenses/:id/audit
func (h *Handlers) GetExpenseAudit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entries, err := h.services.Audit.ListExpenseLog(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err, "Failed to get expense history", "expense_id", id)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// EvaluateExpense handles POST /api/expenses/:id/evaluate
func (h *Handlers) EvaluateExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	// scope check: the expense must be visible to the caller
	if _, err := h.services.Expenses.Get(c.Request.Context(), actorFrom(c), id); err != nil {
		h.fail(c, err, "Failed to get expense", "expense_id", id)
		return
	}

	status, err := h.services.Engine.Evaluate(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Failed to evaluate expense", "expense_id", id)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"final_status": status}})
}

// ExportExpenses handles GET /api/expenses/export
func (h *Handlers) ExportExpenses(c *gin.Context) {
	actor := actorFrom(c)

	var buf bytes.Buffer
	if err := h.services.Expenses.Export(c.Request.Context(), actor, &buf); err != nil {
		h.fail(c, err, "Failed to export expenses", "company_id", actor.CompanyID)
		return
	}

	exporter := h.services.Exporter
	filename := fmt.Sprintf("expenses-%d-%s%s", actor.CompanyID, time.Now().UTC().Format("20060102"), exporter.FileExtension())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, exporter.ContentType(), buf.Bytes())
}

// PendingApprovals handles GET /api/approvals/pending
func (h *Handlers) PendingApprovals(c *gin.Context) {
	inbox, err := h.services.Expenses.PendingApprovals(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err, "Failed to list pending approvals")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inbox})
}

// Decide handles POST /api/approvals/:id/decide
func (h *Handlers) Decide(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid decision body")
		return
	}

	actor := actorFrom(c)
	result, err := h.services.Engine.Decide(c.Request.Context(), service.DecideRequest{
		ApprovalID: id,
		ApproverID: actor.UserID,
		Action:     req.Action,
		Comment:    req.Comment,
	})
	if err != nil {
		h.fail(c, err, "Failed to decide approval", "approval_id", id, "user_id", actor.UserID)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// ListAuditLogs handles GET /api/audit/logs
func (h *Handlers) ListAuditLogs(c *gin.Context) {
	req, ok := bindList(c)
	if !ok {
		return
	}
	entries, err := h.services.Audit.ListCompanyLog(c.Request.Context(), actorFrom(c), req.Limit, req.Offset)
	if err != nil {
		h.fail(c, err, "Failed to list audit logs")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

func pathID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

func bindList(c *gin.Context) (ListRequest, bool) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return req, false
	}
	if req.Limit <= 0 || req.Limit > maxPageSize {
		req.Limit = defaultPageSize
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return req, true
}
