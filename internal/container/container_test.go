package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/report"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "expenses.db")
	cfg.Auth.JWTSecret = "container-test-secret-0123456789"
	cfg.Auth.TokenTTL = time.Hour
	return cfg
}

func startContainer(t *testing.T) *Container {
	t.Helper()
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		if !c.closed.Load() {
			_ = c.Close()
		}
	})
	return c
}

func call(t *testing.T, c *Container, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	c.Server().Router().ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func tokenFor(t *testing.T, c *Container, u *entity.User) string {
	t.Helper()
	token, err := c.Tokens().Issue(u)
	require.NoError(t, err)
	return token
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: "auth.jwt_secret is required"},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: "at least 16"},
		{name: "missing db path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "lark enabled without creds", mutate: func(c *Config) { c.Lark.Enabled = true }, wantErr: "lark.app_id"},
		{name: "lark disabled without creds", mutate: func(c *Config) { c.Lark.Enabled = false }},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewContainer_RejectsInvalidConfig(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c := startContainer(t)
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start must fail")

	health := c.Health()
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.Equal(t, "disabled", health.Components["lark"].Message)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_ApprovalFlowEndToEnd(t *testing.T) {
	c := startContainer(t)

	code, env := call(t, c, http.MethodPost, "/api/companies", "", map[string]string{
		"company_name": "Acme",
		"currency":     "EUR",
		"name":         "Ada Admin",
		"email":        "ada@acme.test",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var registered struct {
		Company entity.Company `json:"company"`
		Admin   entity.User    `json:"admin"`
	}
	decode(t, env, &registered)
	assert.Equal(t, "EUR", registered.Company.Currency)
	adminToken := tokenFor(t, c, &registered.Admin)

	createUser := func(name, email string, role entity.Role) entity.User {
		code, env := call(t, c, http.MethodPost, "/api/users", adminToken, map[string]interface{}{
			"name":  name,
			"email": email,
			"role":  role,
		})
		require.Equal(t, http.StatusCreated, code, env.Error)
		var u entity.User
		decode(t, env, &u)
		return u
	}
	manager := createUser("Max Manager", "max@acme.test", entity.RoleManager)
	employee := createUser("Eve Employee", "eve@acme.test", entity.RoleEmployee)

	code, env = call(t, c, http.MethodPut, "/api/company/approvers", adminToken, map[string]interface{}{
		"approver_ids": []int64{manager.ID, registered.Admin.ID},
	})
	require.Equal(t, http.StatusOK, code, env.Error)

	// default rule is unanimous
	employeeToken := tokenFor(t, c, &employee)
	code, env = call(t, c, http.MethodPost, "/api/expenses", employeeToken, map[string]interface{}{
		"amount":       "120.50",
		"category":     "travel",
		"description":  "train to Lyon",
		"expense_date": "2026-10-01",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var submitted service.SubmitResult
	decode(t, env, &submitted)
	require.Len(t, submitted.Approvals, 2)
	assert.Equal(t, entity.ExpenseStatusPending, submitted.Expense.Status)
	assert.Equal(t, "EUR", submitted.Expense.Currency)
	assert.Equal(t, entity.ApprovalStatusPending, submitted.Approvals[0].Status)
	assert.Equal(t, entity.ApprovalStatusWaiting, submitted.Approvals[1].Status)

	// the employee cannot see the company list
	code, _ = call(t, c, http.MethodGet, "/api/expenses", employeeToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	managerToken := tokenFor(t, c, &manager)
	code, env = call(t, c, http.MethodGet, "/api/approvals/pending", managerToken, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var inbox []service.PendingApproval
	decode(t, env, &inbox)
	require.Len(t, inbox, 1)
	assert.Equal(t, submitted.Expense.ID, inbox[0].ExpenseID)

	// the admin's row is not active yet
	code, _ = call(t, c, http.MethodPost, fmt.Sprintf("/api/approvals/%d/decide", submitted.Approvals[1].ID), adminToken,
		map[string]string{"action": entity.ActionApprove})
	assert.Equal(t, http.StatusConflict, code)

	code, env = call(t, c, http.MethodPost, fmt.Sprintf("/api/approvals/%d/decide", inbox[0].ApprovalID), managerToken,
		map[string]string{"action": entity.ActionApprove, "comment": "ok"})
	require.Equal(t, http.StatusOK, code, env.Error)
	var decision service.DecisionResult
	decode(t, env, &decision)
	assert.Equal(t, entity.ExpenseStatusPending, decision.FinalStatus)

	code, env = call(t, c, http.MethodPost, fmt.Sprintf("/api/approvals/%d/decide", submitted.Approvals[1].ID), adminToken,
		map[string]string{"action": entity.ActionApprove})
	require.Equal(t, http.StatusOK, code, env.Error)
	decode(t, env, &decision)
	assert.Equal(t, entity.ExpenseStatusApproved, decision.FinalStatus)

	code, env = call(t, c, http.MethodGet, fmt.Sprintf("/api/expenses/%d", submitted.Expense.ID), employeeToken, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var detail service.ExpenseDetail
	decode(t, env, &detail)
	assert.Equal(t, entity.ExpenseStatusApproved, detail.Expense.Status)
	assert.NotNil(t, detail.Expense.FinalizedAt)

	code, env = call(t, c, http.MethodGet, fmt.Sprintf("/api/expenses/%d/audit", submitted.Expense.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var trail []entity.AuditEntry
	decode(t, env, &trail)
	actions := make([]string, 0, len(trail))
	for _, entry := range trail {
		actions = append(actions, entry.Action)
	}
	assert.Contains(t, actions, entity.AuditActionExpenseSubmitted)
	assert.Contains(t, actions, entity.AuditActionExpenseFinalized)

	req := httptest.NewRequest(http.MethodGet, "/api/expenses/export", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	c.Server().Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	book, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(report.SheetExpenses)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "header plus one expense")
}

func TestContainer_StateSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)

	first, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))

	code, env := call(t, first, http.MethodPost, "/api/companies", "", map[string]string{
		"company_name": "Persisted",
		"name":         "Pat",
		"email":        "pat@persisted.test",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	require.NoError(t, first.Close())

	second, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, second.Start(context.Background()))
	defer second.Close()

	company, err := second.Repositories().Companies.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, company)
	assert.Equal(t, "Persisted", company.Name)
	assert.Equal(t, entity.DefaultCurrency, company.Currency)
}
