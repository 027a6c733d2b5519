package reports

import (
	"database/sql"
	"fmt"

	"github.com/reportgate/reportgate/pkg/errs"
	"github.com/reportgate/reportgate/pkg/storage/postgres"
)

// Service defines catalog management and the entitlement graph's
// report-side read primitives.
type Service interface {
	CreateReport(req *CreateReportRequest) (*Report, error)
	GetReport(id int64) (*Report, error)
	ListReports() ([]*Report, error)
	ReportsForUnit(unitID int64) ([]*Report, error)
	UnitsOfReport(reportID int64) ([]int64, error)
	UpdateReport(id int64, req *UpdateReportRequest) (*Report, error)
	DeleteReport(id int64) error
	AttachUnits(reportID int64, unitIDs []int64) error
	Sync(workspaceID string, items []SyncItem, unitIDs []int64) (*SyncResult, error)

	CreateStep(req *CreateStepRequest) (*Step, error)
	GetStepByNumber(stepNumber int) (*Step, error)
	ListSteps() ([]*Step, error)
	UpdateStep(id int64, req *UpdateStepRequest) (*Step, error)
	DeleteStep(id int64) error
	ReportsByStepAndUnit(stepID, unitID int64) ([]*Report, error)
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const reportColumns = `id, report_id, workspace_id, dataset_id, name, code, embed_url, step_id, created_at, updated_at`

func scanReport(row interface{ Scan(...any) error }) (*Report, error) {
	r := &Report{}
	var datasetID, code, embedURL sql.NullString
	var stepID sql.NullInt64
	if err := row.Scan(&r.ID, &r.ReportID, &r.WorkspaceID, &datasetID, &r.Name,
		&code, &embedURL, &stepID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if datasetID.Valid {
		r.DatasetID = datasetID.String
	}
	if code.Valid {
		r.Code = code.String
	}
	if embedURL.Valid {
		r.EmbedURL = embedURL.String
	}
	if stepID.Valid {
		r.StepID = &stepID.Int64
	}
	return r, nil
}

// CreateReport registers a report and attaches it to the given units in
// one transaction. The upstream report ID is globally unique; a
// duplicate reports Conflict.
func (s *PostgresService) CreateReport(req *CreateReportRequest) (*Report, error) {
	if req.ReportID == "" || req.WorkspaceID == "" || req.Name == "" {
		return nil, errs.Validation("report_id, workspace_id and name are required")
	}
	if len(req.UnitIDs) == 0 {
		return nil, errs.Validation("unit_ids must be a non-empty array")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO reports (report_id, workspace_id, dataset_id, name, code, embed_url, step_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + reportColumns
	row := tx.QueryRow(query, req.ReportID, req.WorkspaceID, nullable(req.DatasetID),
		req.Name, nullable(req.Code), nullable(req.EmbedURL), req.StepID)
	report, err := scanReport(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, errs.Conflict("report %q is already registered", req.ReportID)
		}
		if postgres.IsForeignKeyViolation(err) {
			return nil, errs.NotFound("step %v not found", req.StepID)
		}
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	for _, unitID := range req.UnitIDs {
		if _, err := tx.Exec(`INSERT INTO report_units (report_id, unit_id) VALUES ($1, $2)`,
			report.ID, unitID); err != nil {
			if postgres.IsForeignKeyViolation(err) {
				return nil, errs.NotFound("unit %d not found", unitID)
			}
			return nil, fmt.Errorf("failed to attach unit %d: %w", unitID, err)
		}
		report.UnitIDs = append(report.UnitIDs, unitID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit report: %w", err)
	}
	return report, nil
}

// GetReport retrieves a report with its attached unit IDs
func (s *PostgresService) GetReport(id int64) (*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	report, err := scanReport(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("report %d not found", id)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	unitIDs, err := s.UnitsOfReport(id)
	if err != nil {
		return nil, err
	}
	report.UnitIDs = unitIDs
	return report, nil
}

// ListReports retrieves all registered reports
func (s *PostgresService) ListReports() ([]*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at ASC`
	return s.queryReports(query)
}

// ReportsForUnit retrieves reports visible under a unit, ordered by
// attachment time.
func (s *PostgresService) ReportsForUnit(unitID int64) ([]*Report, error) {
	query := `
		SELECT r.id, r.report_id, r.workspace_id, r.dataset_id, r.name, r.code,
		       r.embed_url, r.step_id, r.created_at, r.updated_at
		FROM reports r
		JOIN report_units ru ON ru.report_id = r.id
		WHERE ru.unit_id = $1
		ORDER BY ru.created_at ASC`
	return s.queryReports(query, unitID)
}

// UnitsOfReport returns the IDs of units a report is visible under
func (s *PostgresService) UnitsOfReport(reportID int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT unit_id FROM report_units WHERE report_id = $1 ORDER BY created_at ASC`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to list report units: %w", err)
	}
	defer rows.Close()

	var unitIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan unit id: %w", err)
		}
		unitIDs = append(unitIDs, id)
	}
	return unitIDs, rows.Err()
}

// UpdateReport updates report metadata
func (s *PostgresService) UpdateReport(id int64, req *UpdateReportRequest) (*Report, error) {
	report, err := s.GetReport(id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, errs.Validation("name cannot be empty")
		}
		report.Name = *req.Name
	}
	if req.DatasetID != nil {
		report.DatasetID = *req.DatasetID
	}
	if req.EmbedURL != nil {
		report.EmbedURL = *req.EmbedURL
	}
	if req.Code != nil {
		report.Code = *req.Code
	}
	if req.StepID != nil {
		report.StepID = req.StepID
	}

	query := `
		UPDATE reports SET name = $1, dataset_id = $2, embed_url = $3, code = $4,
		       step_id = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`
	err = s.db.QueryRow(query, report.Name, nullable(report.DatasetID),
		nullable(report.EmbedURL), nullable(report.Code), report.StepID, id).
		Scan(&report.UpdatedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, errs.NotFound("step %v not found", req.StepID)
		}
		return nil, fmt.Errorf("failed to update report: %w", err)
	}
	return report, nil
}

// DeleteReport removes a report; its unit joins and audit rows cascade.
// The same upstream report ID may be registered again afterwards.
func (s *PostgresService) DeleteReport(id int64) error {
	result, err := s.db.Exec(`DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if affected == 0 {
		return errs.NotFound("report %d not found", id)
	}
	return nil
}

// AttachUnits attaches a report to units it is not already visible
// under. Existing joins are left untouched.
func (s *PostgresService) AttachUnits(reportID int64, unitIDs []int64) error {
	for _, unitID := range unitIDs {
		_, err := s.db.Exec(`
			INSERT INTO report_units (report_id, unit_id)
			VALUES ($1, $2)
			ON CONFLICT (report_id, unit_id) DO NOTHING`, reportID, unitID)
		if err != nil {
			if postgres.IsForeignKeyViolation(err) {
				return errs.NotFound("unit %d not found", unitID)
			}
			return fmt.Errorf("failed to attach unit %d: %w", unitID, err)
		}
	}
	return nil
}

// Sync mirrors a workspace listing into the catalog: known upstream
// report IDs are refreshed, unknown ones created, and every synced
// report is attached to the given units.
func (s *PostgresService) Sync(workspaceID string, items []SyncItem, unitIDs []int64) (*SyncResult, error) {
	if len(unitIDs) == 0 {
		return nil, errs.Validation("unit_ids must be a non-empty array")
	}

	result := &SyncResult{}
	for _, item := range items {
		var id int64
		err := s.db.QueryRow(`SELECT id FROM reports WHERE report_id = $1`, item.ReportID).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			insert := `
				INSERT INTO reports (report_id, workspace_id, dataset_id, name, embed_url)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id`
			if err := s.db.QueryRow(insert, item.ReportID, item.WorkspaceID,
				nullable(item.DatasetID), item.Name, nullable(item.EmbedURL)).Scan(&id); err != nil {
				return nil, fmt.Errorf("failed to create synced report %q: %w", item.ReportID, err)
			}
			result.Created++
		case err != nil:
			return nil, fmt.Errorf("failed to look up report %q: %w", item.ReportID, err)
		default:
			update := `
				UPDATE reports SET name = $1, embed_url = $2, dataset_id = $3, updated_at = NOW()
				WHERE id = $4`
			if _, err := s.db.Exec(update, item.Name, nullable(item.EmbedURL),
				nullable(item.DatasetID), id); err != nil {
				return nil, fmt.Errorf("failed to update synced report %q: %w", item.ReportID, err)
			}
			result.Updated++
		}

		if err := s.AttachUnits(id, unitIDs); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *PostgresService) queryReports(query string, args ...any) ([]*Report, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
