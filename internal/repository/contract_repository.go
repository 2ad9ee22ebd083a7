package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
)

// ContractRepository reads contract periods synced from the agency's
// contract system. This API never writes them.
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository constructs the repository.
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// ListActiveForStudents returns active contract windows for the given
// students.
func (r *ContractRepository) ListActiveForStudents(ctx context.Context, studentIDs []string) ([]models.ContractPeriod, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, student_id, tutor_id, start_date, end_date, active
FROM contract_periods WHERE active = TRUE AND student_id IN (?)`, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("build contract query: %w", err)
	}
	query = r.db.Rebind(query)
	var periods []models.ContractPeriod
	if err := r.db.SelectContext(ctx, &periods, query, args...); err != nil {
		return nil, fmt.Errorf("list contract periods: %w", err)
	}
	return periods, nil
}
