package reports

import (
	"database/sql"
	"fmt"

	"github.com/reportgate/reportgate/pkg/errs"
	"github.com/reportgate/reportgate/pkg/storage/postgres"
)

const stepColumns = `id, step_number, name, created_at, updated_at`

func scanStep(row interface{ Scan(...any) error }) (*Step, error) {
	step := &Step{}
	if err := row.Scan(&step.ID, &step.StepNumber, &step.Name, &step.CreatedAt, &step.UpdatedAt); err != nil {
		return nil, err
	}
	return step, nil
}

// CreateStep creates a classification label. Step numbers are unique.
func (s *PostgresService) CreateStep(req *CreateStepRequest) (*Step, error) {
	if req.Name == "" {
		return nil, errs.Validation("name is required")
	}
	if req.StepNumber <= 0 {
		return nil, errs.Validation("step_number must be positive")
	}

	query := `
		INSERT INTO steps (step_number, name)
		VALUES ($1, $2)
		RETURNING ` + stepColumns
	step, err := scanStep(s.db.QueryRow(query, req.StepNumber, req.Name))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, errs.Conflict("step number %d already exists", req.StepNumber)
		}
		return nil, fmt.Errorf("failed to create step: %w", err)
	}
	return step, nil
}

// GetStepByNumber retrieves a step by its ordinal number
func (s *PostgresService) GetStepByNumber(stepNumber int) (*Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE step_number = $1`
	step, err := scanStep(s.db.QueryRow(query, stepNumber))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("step %d not found", stepNumber)
		}
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return step, nil
}

// ListSteps retrieves all steps ordered by step number
func (s *PostgresService) ListSteps() ([]*Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps ORDER BY step_number ASC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// UpdateStep updates a step's number and/or name
func (s *PostgresService) UpdateStep(id int64, req *UpdateStepRequest) (*Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE id = $1`
	step, err := scanStep(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("step %d not found", id)
		}
		return nil, fmt.Errorf("failed to get step: %w", err)
	}

	if req.StepNumber != nil {
		if *req.StepNumber <= 0 {
			return nil, errs.Validation("step_number must be positive")
		}
		step.StepNumber = *req.StepNumber
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, errs.Validation("name cannot be empty")
		}
		step.Name = *req.Name
	}

	update := `
		UPDATE steps SET step_number = $1, name = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`
	if err := s.db.QueryRow(update, step.StepNumber, step.Name, id).Scan(&step.UpdatedAt); err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, errs.Conflict("step number %d already exists", step.StepNumber)
		}
		return nil, fmt.Errorf("failed to update step: %w", err)
	}
	return step, nil
}

// DeleteStep removes a step; reports referencing it are detached, not
// deleted.
func (s *PostgresService) DeleteStep(id int64) error {
	result, err := s.db.Exec(`DELETE FROM steps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete step: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete step: %w", err)
	}
	if affected == 0 {
		return errs.NotFound("step %d not found", id)
	}
	return nil
}

// ReportsByStepAndUnit retrieves reports carrying a step label that are
// visible under a unit.
func (s *PostgresService) ReportsByStepAndUnit(stepID, unitID int64) ([]*Report, error) {
	query := `
		SELECT r.id, r.report_id, r.workspace_id, r.dataset_id, r.name, r.code,
		       r.embed_url, r.step_id, r.created_at, r.updated_at
		FROM reports r
		JOIN report_units ru ON ru.report_id = r.id
		WHERE r.step_id = $1 AND ru.unit_id = $2
		ORDER BY r.created_at ASC`
	return s.queryReports(query, stepID, unitID)
}
