package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const userColumns = `id, company_id, name, email, role, manager_id, is_manager_approver, lark_open_id, created_at`

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlite.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// Create inserts a user and sets its ID
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO users (company_id, name, email, role, manager_id, is_manager_approver, lark_open_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.CompanyID,
		user.Name,
		user.Email,
		string(user.Role),
		nullInt64(user.ManagerID),
		user.IsManagerApprover,
		nullString(user.LarkOpenID),
		user.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create user",
			zap.Int64("company_id", user.CompanyID),
			zap.String("email", user.Email),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	return nil
}

// GetByID returns nil when the user does not exist
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	user, err := scanUser(r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail returns nil when no user has the email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	user, err := scanUser(r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// ListByCompany returns the company's users ordered by id
func (r *UserRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users WHERE company_id = ? ORDER BY id`, companyID)
}

// ListByIDs returns the users of companyID among ids
func (r *UserRepository) ListByIDs(ctx context.Context, companyID int64, ids []int64) ([]*entity.User, error) {
	if len(ids) == 0 {
		return []*entity.User{}, nil
	}

	args := append([]interface{}{companyID}, int64Args(ids)...)
	return r.query(ctx,
		`SELECT `+userColumns+` FROM users WHERE company_id = ? AND id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		args...)
}

func (r *UserRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.User, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*entity.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*entity.User, error) {
	var u entity.User
	var role string
	var managerID sql.NullInt64
	var larkOpenID sql.NullString

	if err := row.Scan(
		&u.ID,
		&u.CompanyID,
		&u.Name,
		&u.Email,
		&role,
		&managerID,
		&u.IsManagerApprover,
		&larkOpenID,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}

	u.Role = entity.Role(role)
	u.ManagerID = int64Ptr(managerID)
	u.LarkOpenID = larkOpenID.String
	return &u, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
