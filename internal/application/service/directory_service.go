package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// RegisterCompanyRequest creates a company together with its first admin
type RegisterCompanyRequest struct {
	CompanyName string
	Country     string
	Currency    string
	AdminName   string
	AdminEmail  string
	LarkOpenID  string
}

// CreateUserRequest adds a user to the actor's company
type CreateUserRequest struct {
	Name              string
	Email             string
	Role              string
	ManagerID         *int64
	IsManagerApprover bool
	LarkOpenID        string
}

// DirectoryService manages companies and their users
type DirectoryService interface {
	RegisterCompany(ctx context.Context, req RegisterCompanyRequest) (*entity.Company, *entity.User, error)
	CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*entity.User, error)
	ListUsers(ctx context.Context, actor Actor) ([]*entity.User, error)
	GetUser(ctx context.Context, id int64) (*entity.User, error)
}

type directoryServiceImpl struct {
	companies port.CompanyRepository
	users     port.UserRepository
	rules     port.ApprovalRuleRepository
	audit     auditTrail
	txManager port.TransactionManager
	logger    Logger
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(
	companies port.CompanyRepository,
	users port.UserRepository,
	rules port.ApprovalRuleRepository,
	audit port.AuditRepository,
	txManager port.TransactionManager,
	logger Logger,
) DirectoryService {
	return &directoryServiceImpl{
		companies: companies,
		users:     users,
		rules:     rules,
		audit:     auditTrail{repo: audit},
		txManager: txManager,
		logger:    logger,
	}
}

// RegisterCompany creates the company, its admin and the default unanimous rule atomically
func (s *directoryServiceImpl) RegisterCompany(ctx context.Context, req RegisterCompanyRequest) (*entity.Company, *entity.User, error) {
	name := utils.SanitizeString(req.CompanyName)
	adminName := utils.SanitizeString(req.AdminName)
	email := strings.ToLower(strings.TrimSpace(req.AdminEmail))
	if name == "" || adminName == "" || email == "" {
		return nil, nil, fmt.Errorf("%w: company_name, name, email", ErrMissingFields)
	}
	if err := utils.ValidateEmail(email); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMissingFields, err)
	}

	currency := entity.DefaultCurrency
	if req.Currency != "" {
		c, err := utils.NormalizeCurrency(req.Currency)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMissingFields, err)
		}
		currency = c
	}

	company := &entity.Company{Name: name, Country: utils.SanitizeString(req.Country), Currency: currency}
	admin := &entity.User{
		Name:       adminName,
		Email:      email,
		Role:       entity.RoleAdmin,
		LarkOpenID: strings.TrimSpace(req.LarkOpenID),
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ensureEmailFree(txCtx, email); err != nil {
			return err
		}
		if err := s.companies.Create(txCtx, company); err != nil {
			return fmt.Errorf("create company: %w", err)
		}
		admin.CompanyID = company.ID
		if err := s.users.Create(txCtx, admin); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		if err := s.rules.Upsert(txCtx, entity.DefaultApprovalRule(company.ID)); err != nil {
			return fmt.Errorf("create default rule: %w", err)
		}
		return s.audit.append(txCtx, auditRecord{
			companyID: company.ID,
			actorID:   admin.ID,
			action:    entity.AuditActionCompanyRegistered,
			details:   map[string]interface{}{"name": company.Name, "currency": company.Currency},
		})
	})
	if err != nil {
		s.logger.Error("Failed to register company", "error", err, "name", name)
		return nil, nil, err
	}

	s.logger.Info("Company registered", "company_id", company.ID, "admin_id", admin.ID)
	return company, admin, nil
}

// CreateUser adds a user to the actor's company. Only a superadmin may create another superadmin.
func (s *directoryServiceImpl) CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*entity.User, error) {
	if err := actor.Require(entity.CapManageUsers); err != nil {
		return nil, err
	}

	name := utils.SanitizeString(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name, email", ErrMissingFields)
	}
	if err := utils.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingFields, err)
	}

	roleName := req.Role
	if roleName == "" {
		roleName = string(entity.RoleEmployee)
	}
	role, err := entity.ParseRole(roleName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingFields, err)
	}
	if role == entity.RoleSuperAdmin && actor.Role != entity.RoleSuperAdmin {
		return nil, fmt.Errorf("%w: cannot create superadmin", ErrForbidden)
	}

	user := &entity.User{
		CompanyID:         actor.CompanyID,
		Name:              name,
		Email:             email,
		Role:              role,
		ManagerID:         req.ManagerID,
		IsManagerApprover: req.IsManagerApprover,
		LarkOpenID:        strings.TrimSpace(req.LarkOpenID),
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ensureEmailFree(txCtx, email); err != nil {
			return err
		}
		if req.ManagerID != nil {
			manager, err := s.users.GetByID(txCtx, *req.ManagerID)
			if err != nil {
				return fmt.Errorf("get manager: %w", err)
			}
			if manager == nil || manager.CompanyID != actor.CompanyID {
				return fmt.Errorf("%w: manager %d", ErrInvalidApprover, *req.ManagerID)
			}
		}
		if err := s.users.Create(txCtx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return s.audit.append(txCtx, auditRecord{
			companyID: actor.CompanyID,
			actorID:   actor.UserID,
			action:    entity.AuditActionUserCreated,
			details: map[string]interface{}{
				"user_id":             user.ID,
				"role":                string(user.Role),
				"is_manager_approver": user.IsManagerApprover,
			},
		})
	})
	if err != nil {
		s.logger.Error("Failed to create user", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}

	s.logger.Info("User created", "user_id", user.ID, "company_id", user.CompanyID, "role", user.Role)
	return user, nil
}

// ListUsers returns the users of the actor's company
func (s *directoryServiceImpl) ListUsers(ctx context.Context, actor Actor) ([]*entity.User, error) {
	if err := actor.Require(entity.CapManageUsers); err != nil {
		return nil, err
	}
	users, err := s.users.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetUser returns ErrNotFound for an unknown id
func (s *directoryServiceImpl) GetUser(ctx context.Context, id int64) (*entity.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return user, nil
}

func (s *directoryServiceImpl) ensureEmailFree(ctx context.Context, email string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
	}
	return nil
}
