// Package testutil opens SQLite stand-ins for the local store and for the
// OpenHeal source so repositories and services run real SQL in tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/edudati/openheal-research/db"
	"github.com/edudati/openheal-research/models"
	_ "github.com/mattn/go-sqlite3"
)

// OpenHeal tables as the source exposes them. "Date" is TEXT so the string
// timestamp path of the reader is exercised.
const openHealSchema = `
CREATE TABLE "UsersData" (
    "Id"    INTEGER PRIMARY KEY,
    "Email" TEXT NOT NULL
);
CREATE TABLE "Matches" (
    "Id"         TEXT PRIMARY KEY,
    "UserDataId" INTEGER NOT NULL,
    "PresetId"   INTEGER,
    "LevelId"    INTEGER,
    "ResultId"   TEXT,
    "Date"       TEXT
);
CREATE TABLE "BubblesData" (
    "Id"               INTEGER PRIMARY KEY AUTOINCREMENT,
    "MatchId"          TEXT NOT NULL,
    "ScreenResolution" TEXT
);
`

func open(t testing.TB, name string) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		t.Fatalf("open sqlite %s: %v", name, err)
	}
	// SQLite only supports one writer at a time.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// OpenLocal returns a migrated local store.
func OpenLocal(t testing.TB) *sql.DB {
	t.Helper()
	conn := open(t, "local.db")
	if err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate local store: %v", err)
	}
	return conn
}

// OpenSource returns an empty OpenHeal fixture database.
func OpenSource(t testing.TB) *sql.DB {
	t.Helper()
	conn := open(t, "openheal.db")
	if _, err := conn.Exec(openHealSchema); err != nil {
		t.Fatalf("create openheal fixture schema: %v", err)
	}
	return conn
}

func mustExec(t testing.TB, conn *sql.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := conn.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// AddSourceUser inserts an OpenHeal user.
func AddSourceUser(t testing.TB, source *sql.DB, id int64, email string) {
	t.Helper()
	mustExec(t, source, `INSERT INTO "UsersData" ("Id", "Email") VALUES ($1, $2)`, id, email)
}

// SourceMatch describes an OpenHeal match fixture. Nil pointers become NULL.
type SourceMatch struct {
	ID          string
	UserID      int64
	PresetID    *int
	LevelID     *int
	ResultID    *string
	Date        string
	Resolutions []string
}

// AddSourceMatch inserts a match and one bubble event per resolution.
func AddSourceMatch(t testing.TB, source *sql.DB, m SourceMatch) {
	t.Helper()
	mustExec(t, source,
		`INSERT INTO "Matches" ("Id", "UserDataId", "PresetId", "LevelId", "ResultId", "Date") VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.PresetID, m.LevelID, m.ResultID, m.Date)
	for _, res := range m.Resolutions {
		mustExec(t, source, `INSERT INTO "BubblesData" ("MatchId", "ScreenResolution") VALUES ($1, $2)`, m.ID, res)
	}
}

// AddStudy inserts a study with the given id and code.
func AddStudy(t testing.TB, local *sql.DB, id, code string) *models.Study {
	t.Helper()
	s := &models.Study{ID: id, Code: code, Title: "Study " + code, IsActive: true, CreatedAt: time.Now().UTC()}
	mustExec(t, local,
		`INSERT INTO studies (id, code, title, description, is_active, created_at) VALUES ($1, $2, $3, '', $4, $5)`,
		s.ID, s.Code, s.Title, s.IsActive, s.CreatedAt)
	return s
}

// AddParticipant inserts a participant directly, bypassing identity resolution.
func AddParticipant(t testing.TB, local *sql.DB, id, studyID, email string) *models.Participant {
	t.Helper()
	p := &models.Participant{ID: id, StudyID: studyID, Name: "P " + id, Email: email, Group: models.GroupControl, CreatedAt: time.Now().UTC()}
	mustExec(t, local,
		`INSERT INTO participants (id, study_id, name, email, group_name, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.StudyID, p.Name, p.Email, p.Group, p.CreatedAt)
	return p
}

// CountMatches counts local match rows, optionally for one participant.
func CountMatches(t testing.TB, local *sql.DB, participantID string) int {
	t.Helper()
	var n int
	var err error
	if participantID == "" {
		err = local.QueryRow(`SELECT COUNT(*) FROM matches`).Scan(&n)
	} else {
		err = local.QueryRow(`SELECT COUNT(*) FROM matches WHERE participant_id = $1`, participantID).Scan(&n)
	}
	if err != nil {
		t.Fatalf("count matches: %v", err)
	}
	return n
}

func IntPtr(v int) *int          { return &v }
func StringPtr(v string) *string { return &v }

// AddMatch inserts a local match for participantID dated at date.
func AddMatch(t testing.TB, local *sql.DB, id, participantID string, date time.Time) {
	t.Helper()
	mustExec(t, local,
		`INSERT INTO matches (id, participant_id, preset_id, result_id, date, is_active, is_used) VALUES ($1, $2, 1, 'win', $3, TRUE, TRUE)`,
		id, participantID, date)
}

// AddBall inserts a ball event launched at launch.
func AddBall(t testing.TB, local *sql.DB, id, matchID string, launch time.Time) {
	t.Helper()
	mustExec(t, local, `INSERT INTO balls (id, match_id, launch_time, speed) VALUES ($1, $2, $3, 1.5)`, id, matchID, launch)
}
