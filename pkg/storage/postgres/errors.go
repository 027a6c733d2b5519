package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL error codes, per the documented error code table.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a unique-constraint failure,
// used by stores to translate duplicate keys into Conflict errors.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// IsForeignKeyViolation reports whether err is a foreign-key failure,
// used by stores to translate dangling references into NotFound errors.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}
