package identity

import (
	"database/sql"
	"fmt"

	"github.com/reportgate/reportgate/pkg/errs"
	"github.com/reportgate/reportgate/pkg/storage/postgres"
)

// Service defines user account management
type Service interface {
	CreateUser(req *CreateUserRequest) (*User, error)
	GetUser(id int64) (*User, error)
	GetUserByUsername(username string) (*User, error)
	ListUsers() ([]*User, error)
	UpdateUser(id int64, req *UpdateUserRequest) (*User, error)
	DeleteUser(id int64) error
	Authenticate(username, password string) (*User, error)
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const userColumns = `id, username, name, password_hash, role, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	user := &User{}
	var name sql.NullString
	if err := row.Scan(&user.ID, &user.Username, &name, &user.PasswordHash,
		&user.Role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	if name.Valid {
		user.Name = name.String
	}
	return user, nil
}

// CreateUser provisions a new account. The username is unique; a
// duplicate reports Conflict.
func (s *PostgresService) CreateUser(req *CreateUserRequest) (*User, error) {
	if req.Username == "" || req.Password == "" {
		return nil, errs.Validation("username and password are required")
	}
	if len(req.Username) < 3 {
		return nil, errs.Validation("username must be at least 3 characters")
	}
	role := req.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, errs.Validation("invalid role %q", role)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, errs.Validation("%v", err)
	}

	query := `
		INSERT INTO users (username, name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	row := s.db.QueryRow(query, req.Username, nullable(req.Name), hash, role)
	user, err := scanUser(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, errs.Conflict("username %q already exists", req.Username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by ID
func (s *PostgresService) GetUser(id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("user %d not found", id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by unique handle
func (s *PostgresService) GetUserByUsername(username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	user, err := scanUser(s.db.QueryRow(query, username))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("user %q not found", username)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers retrieves all users ordered by creation time
func (s *PostgresService) ListUsers() ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser changes a user's role and/or password
func (s *PostgresService) UpdateUser(id int64, req *UpdateUserRequest) (*User, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return nil, err
	}

	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, errs.Validation("invalid role %q", *req.Role)
		}
		user.Role = *req.Role
	}
	if req.Password != nil {
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return nil, errs.Validation("%v", err)
		}
		user.PasswordHash = hash
	}

	query := `
		UPDATE users SET role = $1, password_hash = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`
	if err := s.db.QueryRow(query, user.Role, user.PasswordHash, id).Scan(&user.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// DeleteUser removes a user. Unit associations and audit rows cascade.
func (s *PostgresService) DeleteUser(id int64) error {
	result, err := s.db.Exec(`DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if affected == 0 {
		return errs.NotFound("user %d not found", id)
	}
	return nil
}

// Authenticate verifies credentials and returns the account. Unknown
// usernames and bad passwords are indistinguishable to the caller.
func (s *PostgresService) Authenticate(username, password string) (*User, error) {
	user, err := s.GetUserByUsername(username)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil, errs.Unauthorized("invalid username or password")
		}
		return nil, err
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return nil, errs.Unauthorized("invalid username or password")
	}
	return user, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
