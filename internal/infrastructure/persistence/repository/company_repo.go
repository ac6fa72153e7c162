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

// CompanyRepository implements port.CompanyRepository
type CompanyRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *sqlite.DB, logger *zap.Logger) *CompanyRepository {
	return &CompanyRepository{db: db, logger: logger}
}

// Create inserts a company and sets its ID
func (r *CompanyRepository) Create(ctx context.Context, company *entity.Company) error {
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`INSERT INTO companies (name, country, currency, created_at) VALUES (?, ?, ?, ?)`,
		company.Name, nullString(company.Country), company.Currency, company.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create company", zap.String("name", company.Name), zap.Error(err))
		return fmt.Errorf("failed to create company: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	company.ID = id
	return nil
}

// GetByID returns nil when the company does not exist
func (r *CompanyRepository) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	var c entity.Company
	var country sql.NullString

	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, name, country, currency, created_at FROM companies WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &country, &c.Currency, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get company", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	c.Country = country.String
	return &c, nil
}

var _ port.CompanyRepository = (*CompanyRepository)(nil)
