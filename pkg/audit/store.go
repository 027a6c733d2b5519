package audit

import (
	"database/sql"
	"fmt"
	"strconv"
)

const defaultListLimit = 100

// Store persists and lists access log entries.
type Store interface {
	Append(entry *Entry) error
	List(filter Filter) ([]*Entry, error)
}

// PostgresStore implements Store over the access_logs table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts one entry.
func (s *PostgresStore) Append(entry *Entry) error {
	query := `
		INSERT INTO access_logs (user_id, report_id, action, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := s.db.QueryRow(query, entry.UserID, entry.ReportID, string(entry.Action),
		nullable(entry.IP), nullable(entry.UserAgent)).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}
	return nil
}

// List returns entries newest first, joined with usernames and report names
// for display.
func (s *PostgresStore) List(filter Filter) ([]*Entry, error) {
	query := `
		SELECT al.id, al.user_id, u.username, al.report_id, r.name,
		       al.action, al.ip, al.user_agent, al.created_at
		FROM access_logs al
		JOIN users u ON u.id = al.user_id
		JOIN reports r ON r.id = al.report_id`

	var conditions []string
	var args []any
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		conditions = append(conditions, "al.user_id = $"+strconv.Itoa(len(args)))
	}
	if filter.ReportID != 0 {
		args = append(args, filter.ReportID)
		conditions = append(conditions, "al.report_id = $"+strconv.Itoa(len(args)))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += " ORDER BY al.created_at DESC LIMIT $" + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		var action string
		var ip, userAgent sql.NullString
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Username, &entry.ReportID,
			&entry.Report, &action, &ip, &userAgent, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan access log: %w", err)
		}
		entry.Action = Action(action)
		entry.IP = ip.String
		entry.UserAgent = userAgent.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
