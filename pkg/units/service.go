package units

import (
	"database/sql"
	"fmt"

	"github.com/reportgate/reportgate/pkg/errs"
	"github.com/reportgate/reportgate/pkg/storage/postgres"
)

// Service defines unit management and the entitlement graph's user-side
// read and write primitives.
type Service interface {
	CreateUnit(req *CreateUnitRequest) (*Unit, error)
	GetUnit(id int64) (*Unit, error)
	ListUnits() ([]*Unit, error)
	UpdateUnit(id int64, req *UpdateUnitRequest) (*Unit, error)
	DeleteUnit(id int64) error

	// Entitlement graph edges. Grant fails with Conflict when the edge
	// exists; UpdateGrant and Revoke fail with NotFound when it does not.
	Grant(userID, unitID int64, rlsParam string) error
	UpdateGrant(userID, unitID int64, rlsParam string) error
	Revoke(userID, unitID int64) error

	// UnitsOfUser is role-blind: the admin override lives in the
	// resolver, not here. Order follows edge creation time.
	UnitsOfUser(userID int64) ([]*Membership, error)
	RLSParam(userID, unitID int64) (string, error)
	MembersOfUnit(unitID int64) ([]*Member, error)
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const unitColumns = `id, name, description, created_at, updated_at`

func scanUnit(row interface{ Scan(...any) error }) (*Unit, error) {
	unit := &Unit{}
	var description sql.NullString
	if err := row.Scan(&unit.ID, &unit.Name, &description, &unit.CreatedAt, &unit.UpdatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		unit.Description = description.String
	}
	return unit, nil
}

// CreateUnit creates a new unit
func (s *PostgresService) CreateUnit(req *CreateUnitRequest) (*Unit, error) {
	if req.Name == "" {
		return nil, errs.Validation("name is required")
	}

	query := `
		INSERT INTO units (name, description)
		VALUES ($1, $2)
		RETURNING ` + unitColumns
	unit, err := scanUnit(s.db.QueryRow(query, req.Name, nullable(req.Description)))
	if err != nil {
		return nil, fmt.Errorf("failed to create unit: %w", err)
	}
	return unit, nil
}

// GetUnit retrieves a unit by ID
func (s *PostgresService) GetUnit(id int64) (*Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE id = $1`
	unit, err := scanUnit(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("unit %d not found", id)
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return unit, nil
}

// ListUnits retrieves all units
func (s *PostgresService) ListUnits() ([]*Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units ORDER BY created_at ASC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var units []*Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

// UpdateUnit updates a unit's name and/or description
func (s *PostgresService) UpdateUnit(id int64, req *UpdateUnitRequest) (*Unit, error) {
	unit, err := s.GetUnit(id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, errs.Validation("name cannot be empty")
		}
		unit.Name = *req.Name
	}
	if req.Description != nil {
		unit.Description = *req.Description
	}

	query := `
		UPDATE units SET name = $1, description = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`
	if err := s.db.QueryRow(query, unit.Name, nullable(unit.Description), id).Scan(&unit.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update unit: %w", err)
	}
	return unit, nil
}

// DeleteUnit removes a unit. Its user associations, report joins and
// links cascade; reports that lose their last unit remain intact.
func (s *PostgresService) DeleteUnit(id int64) error {
	result, err := s.db.Exec(`DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete unit: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete unit: %w", err)
	}
	if affected == 0 {
		return errs.NotFound("unit %d not found", id)
	}
	return nil
}

// Grant creates the (user, unit) edge with its RLS identity. Re-granting
// an existing edge is a Conflict; callers replace via UpdateGrant.
func (s *PostgresService) Grant(userID, unitID int64, rlsParam string) error {
	if rlsParam == "" {
		return errs.Validation("rls_filter_param is required")
	}

	query := `
		INSERT INTO user_units (user_id, unit_id, rls_filter_param)
		VALUES ($1, $2, $3)`
	if _, err := s.db.Exec(query, userID, unitID, rlsParam); err != nil {
		if postgres.IsUniqueViolation(err) {
			return errs.Conflict("user %d is already associated with unit %d", userID, unitID)
		}
		return fmt.Errorf("failed to grant unit access: %w", err)
	}
	return nil
}

// UpdateGrant replaces the RLS identity on an existing edge
func (s *PostgresService) UpdateGrant(userID, unitID int64, rlsParam string) error {
	if rlsParam == "" {
		return errs.Validation("rls_filter_param is required")
	}

	query := `
		UPDATE user_units SET rls_filter_param = $1
		WHERE user_id = $2 AND unit_id = $3`
	result, err := s.db.Exec(query, rlsParam, userID, unitID)
	if err != nil {
		return fmt.Errorf("failed to update grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update grant: %w", err)
	}
	if affected == 0 {
		return errs.NotFound("user %d is not associated with unit %d", userID, unitID)
	}
	return nil
}

// Revoke removes the (user, unit) edge
func (s *PostgresService) Revoke(userID, unitID int64) error {
	result, err := s.db.Exec(`DELETE FROM user_units WHERE user_id = $1 AND unit_id = $2`, userID, unitID)
	if err != nil {
		return fmt.Errorf("failed to revoke unit access: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke unit access: %w", err)
	}
	if affected == 0 {
		return errs.NotFound("user %d is not associated with unit %d", userID, unitID)
	}
	return nil
}

// UnitsOfUser returns the units a user is associated with, each paired
// with the RLS identity of its edge, ordered by grant time.
func (s *PostgresService) UnitsOfUser(userID int64) ([]*Membership, error) {
	query := `
		SELECT u.id, u.name, u.description, u.created_at, u.updated_at, uu.rls_filter_param
		FROM units u
		JOIN user_units uu ON uu.unit_id = u.id
		WHERE uu.user_id = $1
		ORDER BY uu.created_at ASC`
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user units: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m := &Membership{}
		var description sql.NullString
		if err := rows.Scan(&m.Unit.ID, &m.Unit.Name, &description,
			&m.Unit.CreatedAt, &m.Unit.UpdatedAt, &m.RLSFilterParam); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		if description.Valid {
			m.Unit.Description = description.String
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// RLSParam returns the RLS identity carried by the (user, unit) edge
func (s *PostgresService) RLSParam(userID, unitID int64) (string, error) {
	var param string
	query := `SELECT rls_filter_param FROM user_units WHERE user_id = $1 AND unit_id = $2`
	if err := s.db.QueryRow(query, userID, unitID).Scan(&param); err != nil {
		if err == sql.ErrNoRows {
			return "", errs.NotFound("user %d is not associated with unit %d", userID, unitID)
		}
		return "", fmt.Errorf("failed to get rls param: %w", err)
	}
	return param, nil
}

// MembersOfUnit returns the users associated with a unit
func (s *PostgresService) MembersOfUnit(unitID int64) ([]*Member, error) {
	query := `
		SELECT us.id, us.username, us.role, uu.rls_filter_param
		FROM users us
		JOIN user_units uu ON uu.user_id = us.id
		WHERE uu.unit_id = $1
		ORDER BY uu.created_at ASC`
	rows, err := s.db.Query(query, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unit members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.UserID, &m.Username, &m.Role, &m.RLSFilterParam); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
