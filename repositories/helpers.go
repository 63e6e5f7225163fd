package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// SQLExecutor is satisfied by *sql.DB, *sql.Tx and *db.Tx, so repository
// methods can run inside a caller's transaction.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func getExecutor(exec SQLExecutor, fallback *sql.DB) SQLExecutor {
	if exec != nil {
		return exec
	}
	return fallback
}

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError // Возвращаем переданную ошибку "не найдено"
	}
	return nil
}

// Коды ошибок PostgreSQL, которые мы транслируем в ошибки репозиториев.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// pqConstraint returns the SQLSTATE code and constraint name of a PostgreSQL
// error, or empty strings for anything else.
func pqConstraint(err error) (code, constraint string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

// queryBuilder accumulates WHERE conditions with numbered placeholders. The
// numbers are handed out in the order the conditions are added.
type queryBuilder struct {
	conditions []string
	args       []interface{}
}

func (b *queryBuilder) add(condition string, args ...interface{}) {
	for range args {
		b.args = append(b.args, nil)
		condition = strings.Replace(condition, "?", fmt.Sprintf("$%d", len(b.args)), 1)
	}
	copy(b.args[len(b.args)-len(args):], args)
	b.conditions = append(b.conditions, condition)
}

// addIn adds "column IN (...)". An empty list matches nothing.
func (b *queryBuilder) addIn(column string, values []string) {
	if len(values) == 0 {
		b.conditions = append(b.conditions, "1 = 0")
		return
	}
	marks := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	b.add(fmt.Sprintf("%s IN (%s)", column, strings.Join(marks, ", ")), args...)
}

func (b *queryBuilder) where() string {
	if len(b.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conditions, " AND ")
}
