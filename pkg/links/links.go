// Package links manages unit-scoped external links (dashboards, docs)
// shown alongside a unit's reports.
package links

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/reportgate/reportgate/pkg/errs"
	"github.com/reportgate/reportgate/pkg/storage/postgres"
)

// Link is an external URL attached to a unit
type Link struct {
	ID          int64     `json:"id"`
	UnitID      int64     `json:"unit_id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateLinkRequest creates a link under a unit
type CreateLinkRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// UpdateLinkRequest updates link fields
type UpdateLinkRequest struct {
	Name        *string `json:"name,omitempty"`
	URL         *string `json:"url,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Service defines link management
type Service interface {
	Create(unitID int64, req *CreateLinkRequest) (*Link, error)
	Get(id int64) (*Link, error)
	ListForUnit(unitID int64) ([]*Link, error)
	Update(id int64, req *UpdateLinkRequest) (*Link, error)
	Delete(id int64) error
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const linkColumns = `id, unit_id, name, url, description, created_at, updated_at`

func scanLink(row interface{ Scan(...any) error }) (*Link, error) {
	link := &Link{}
	var description sql.NullString
	if err := row.Scan(&link.ID, &link.UnitID, &link.Name, &link.URL,
		&description, &link.CreatedAt, &link.UpdatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		link.Description = description.String
	}
	return link, nil
}

func validateURL(url string) error {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return errs.Validation("url must start with http:// or https://")
	}
	return nil
}

// Create adds a link under a unit
func (s *PostgresService) Create(unitID int64, req *CreateLinkRequest) (*Link, error) {
	if req.Name == "" || req.URL == "" {
		return nil, errs.Validation("name and url are required")
	}
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO links (unit_id, name, url, description)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + linkColumns
	link, err := scanLink(s.db.QueryRow(query, unitID, req.Name,
		strings.TrimSpace(req.URL), nullableString(req.Description)))
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, errs.NotFound("unit %d not found", unitID)
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}
	return link, nil
}

// Get retrieves a link by ID
func (s *PostgresService) Get(id int64) (*Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`
	link, err := scanLink(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("link %d not found", id)
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// ListForUnit retrieves a unit's links
func (s *PostgresService) ListForUnit(unitID int64) ([]*Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE unit_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.Query(query, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Update updates link fields
func (s *PostgresService) Update(id int64, req *UpdateLinkRequest) (*Link, error) {
	link, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, errs.Validation("name cannot be empty")
		}
		link.Name = *req.Name
	}
	if req.URL != nil {
		if err := validateURL(*req.URL); err != nil {
			return nil, err
		}
		link.URL = strings.TrimSpace(*req.URL)
	}
	if req.Description != nil {
		link.Description = *req.Description
	}

	query := `
		UPDATE links SET name = $1, url = $2, description = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`
	if err := s.db.QueryRow(query, link.Name, link.URL,
		nullableString(link.Description), id).Scan(&link.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update link: %w", err)
	}
	return link, nil
}

// Delete removes a link
func (s *PostgresService) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if affected == 0 {
		return errs.NotFound("link %d not found", id)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
