package errors

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// 6-digit session codes, leading digit non-zero
var codeRegex = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// reports whether s is a well-formed session code
func IsValidSessionCode(s string) bool {
	return codeRegex.MatchString(s)
}

// returns an error message safe to expose to clients.
// in production, infrastructure details are replaced with generic wording.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	env := os.Getenv("ENVIRONMENT")
	if env != "production" {
		return err.Error()
	}

	// database errors (pgx-specific)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "database operation failed"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return "resource not found"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}

	if errors.Is(err, context.Canceled) {
		return "request canceled"
	}

	// fallback to string matching for unknown error types
	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		return "request timed out"
	case strings.Contains(errMsg, "not found") || strings.Contains(errMsg, "no rows"):
		return "resource not found"
	case strings.Contains(errMsg, "redis") || strings.Contains(errMsg, "database") ||
		strings.Contains(errMsg, "sql") || strings.Contains(errMsg, "postgres"):
		return "storage operation failed"
	case strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dial"):
		return "connection error occurred"
	case strings.Contains(errMsg, "validation") || strings.Contains(errMsg, "binding") ||
		strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "required"):
		return "validation failed"
	}

	return "an error occurred"
}
