package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // Import postgres driver
)

// Connect opens the local read-write store.
func Connect(dsn string, timeout time.Duration) (*sql.DB, error) {
	return open(dsn, timeout, 25)
}

// ConnectReadOnly opens the external OpenHeal database. Every session is
// started with default_transaction_read_only and a statement_timeout, so a
// slow or hung query is cancelled by the server itself.
func ConnectReadOnly(dsn string, statementTimeout, pingTimeout time.Duration) (*sql.DB, error) {
	dsn, err := withRuntimeParams(dsn, map[string]string{
		"default_transaction_read_only": "on",
		"statement_timeout":             strconv.FormatInt(statementTimeout.Milliseconds(), 10),
	})
	if err != nil {
		return nil, err
	}
	return open(dsn, pingTimeout, 5)
}

func open(dsn string, timeout time.Duration, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify the connection with a timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Warn("failed to close database handle after ping error", slog.Any("error", closeErr))
		}
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	return db, nil
}

// withRuntimeParams appends server run-time parameters to a DSN. lib/pq passes
// unknown connection keys to the server as session settings. Both the URL form
// and the key=value form are supported; existing keys are not overridden.
func withRuntimeParams(dsn string, params map[string]string) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid database URL: %w", err)
		}
		q := u.Query()
		for _, k := range keys {
			if q.Get(k) == "" {
				q.Set(k, params[k])
			}
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(dsn))
	for _, k := range keys {
		if strings.Contains(dsn, k+"=") {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String(), nil
}
