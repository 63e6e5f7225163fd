// Package openheal reads the external OpenHeal research database. The
// connection is read-only from this side; nothing here ever writes to it.
package openheal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformedIdentity         = errors.New("malformed openheal identity")
	ErrExternalSourceUnavailable = errors.New("openheal source unavailable")
	ErrIdentityNotFound          = errors.New("openheal identity not found")
	ErrInvalidMatch              = errors.New("invalid openheal match row")
)

const lookupIdentitySQL = `SELECT "Id" FROM "UsersData" WHERE LOWER("Email") = LOWER($1) LIMIT 1`

// The screen resolution is the MAX over the match's bubble events; MAX on a
// text column is lexicographic, so "800x600" beats "1920x1080".
const fetchMatchesSQL = `
	SELECT m."Id", m."PresetId", m."LevelId", m."ResultId", m."Date", sr."ScreenResolution" AS "ScreenSize"
	FROM "Matches" m
	LEFT JOIN (
		SELECT "MatchId", MAX("ScreenResolution") AS "ScreenResolution"
		FROM "BubblesData"
		GROUP BY "MatchId"
	) sr ON sr."MatchId" = m."Id"
	WHERE m."UserDataId" = $1
	ORDER BY m."Date" ASC`

// Match is a normalized OpenHeal match row.
type Match struct {
	ID         string
	PresetID   int
	LevelID    *int
	ResultID   string
	Date       time.Time
	RawDate    string // set only when the source date was text that did not parse
	ScreenSize *string
}

// Querier is the subset of *sql.DB the source needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Source struct {
	db Querier
}

func NewSource(db Querier) *Source {
	return &Source{db: db}
}

// ParseUserID converts a local participant id into the OpenHeal numeric user id.
func ParseUserID(identity string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(identity), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedIdentity, identity)
	}
	return id, nil
}

// ResolveIdentity looks up the OpenHeal user id for an email, ignoring case.
// If the source holds several users with that email the first row it returns
// wins; the order is whatever the source chooses.
func (s *Source) ResolveIdentity(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrIdentityNotFound
	}

	var id sql.NullString
	err := s.db.QueryRowContext(ctx, lookupIdentitySQL, email).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrIdentityNotFound
		}
		return "", fmt.Errorf("%w: identity lookup: %w", ErrExternalSourceUnavailable, err)
	}
	if !id.Valid || id.String == "" {
		return "", ErrIdentityNotFound
	}
	return id.String, nil
}

// FetchMatches returns every OpenHeal match of the user, oldest first. Each call
// issues a fresh query. A match without a date fails the whole fetch with
// ErrInvalidMatch.
func (s *Source) FetchMatches(ctx context.Context, userID int64) ([]Match, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrMalformedIdentity, userID)
	}

	rows, err := s.db.QueryContext(ctx, fetchMatchesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch matches for user %d: %w", ErrExternalSourceUnavailable, userID, err)
	}
	defer rows.Close()

	matches := make([]Match, 0)
	for rows.Next() {
		var (
			id, result, screen sql.NullString
			preset, level      sql.NullInt64
			date               interface{}
		)
		if err := rows.Scan(&id, &preset, &level, &result, &date, &screen); err != nil {
			return nil, fmt.Errorf("%w: scan match row for user %d: %w", ErrExternalSourceUnavailable, userID, err)
		}

		if date == nil {
			return nil, fmt.Errorf("%w: match %q of user %d has no date", ErrInvalidMatch, id.String, userID)
		}

		m := Match{
			ID:       id.String,
			ResultID: result.String,
		}
		if preset.Valid {
			m.PresetID = int(preset.Int64)
		}
		if level.Valid {
			v := int(level.Int64)
			m.LevelID = &v
		}
		if screen.Valid {
			v := screen.String
			m.ScreenSize = &v
		}
		m.Date, m.RawDate = normalizeDate(date)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate matches for user %d: %w", ErrExternalSourceUnavailable, userID, err)
	}
	return matches, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04",
	"2006-01-02",
}

// normalizeDate accepts whatever the driver produced for the date column and
// returns it in UTC, whatever zone the source session uses. Strings are parsed
// as ISO-8601, first as-is and then with the space separator replaced by "T";
// text that still does not parse is returned raw.
func normalizeDate(v interface{}) (time.Time, string) {
	var s string
	switch d := v.(type) {
	case nil:
		return time.Time{}, ""
	case time.Time:
		return d.UTC(), ""
	case []byte:
		s = string(d)
	case string:
		s = d
	default:
		return time.Time{}, fmt.Sprint(d)
	}

	s = strings.TrimSpace(s)
	candidates := []string{s}
	if alt := strings.Replace(s, " ", "T", 1); alt != s {
		candidates = append(candidates, alt)
	}
	for _, c := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t.UTC(), ""
			}
		}
	}
	return time.Time{}, s
}
