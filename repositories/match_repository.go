package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/edudati/openheal-research/models"
)

var (
	ErrMatchNotFound           = errors.New("match not found")
	ErrMatchIDRequired         = errors.New("match id is required")
	ErrMatchParticipantInvalid = errors.New("match participant conflict or invalid")
	ErrMatchSaveConflict       = errors.New("match changed concurrently while saving")
)

// MatchFilter narrows List. Nil StudyIDs means no scope restriction.
type MatchFilter struct {
	ParticipantID string
	StudyIDs      []string
	IsActive      *bool
	IsUsed        *bool
}

type MatchRepository interface {
	// CreateIfAbsent inserts m unless a record with the same id exists. It
	// reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, exec SQLExecutor, m *models.MatchRecord) (bool, error)
	GetByID(ctx context.Context, id string) (*models.MatchRecord, error)
	List(ctx context.Context, filter MatchFilter) ([]*models.MatchRecord, error)
	// Save is the only update path for match records. Externally-owned fields
	// of m are replaced with the stored ones before the row is written.
	Save(ctx context.Context, exec SQLExecutor, m *models.MatchRecord) error
	CountByParticipant(ctx context.Context, participantID string) (int, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `id, participant_id, preset_id, level_id, phase_id, intervention_id, moment_id, result_id, screen_size, date, is_active, is_used`

func (r *postgresMatchRepository) CreateIfAbsent(ctx context.Context, exec SQLExecutor, m *models.MatchRecord) (bool, error) {
	executor := getExecutor(exec, r.db)
	query := `
		INSERT INTO matches (` + matchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	result, err := executor.ExecContext(ctx, query,
		m.ID,
		m.ParticipantID,
		m.PresetID,
		m.LevelID,
		m.PhaseID,
		m.InterventionID,
		m.MomentID,
		m.ResultID,
		m.ScreenSize,
		m.DateValue(),
		m.IsActive,
		m.IsUsed,
	)
	if err != nil {
		return false, r.handleMatchError(err, m.ID)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *postgresMatchRepository) handleMatchError(err error, id string) error {
	code, constraint := pqConstraint(err)
	switch {
	case code == pqForeignKeyViolation && constraint == "matches_participant_id_fkey":
		return ErrMatchParticipantInvalid
	case code == pqCheckViolation && constraint == "chk_match_id_not_empty":
		return ErrMatchIDRequired
	}
	return fmt.Errorf("failed to write match %q: %w", id, err)
}

func scanMatch(row rowScanner) (*models.MatchRecord, error) {
	m := &models.MatchRecord{}
	err := row.Scan(
		&m.ID,
		&m.ParticipantID,
		&m.PresetID,
		&m.LevelID,
		&m.PhaseID,
		&m.InterventionID,
		&m.MomentID,
		&m.ResultID,
		&m.ScreenSize,
		&m.Date,
		&m.IsActive,
		&m.IsUsed,
	)
	return m, err
}

func (r *postgresMatchRepository) getByID(ctx context.Context, exec SQLExecutor, id string) (*models.MatchRecord, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(exec.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match %q: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id string) (*models.MatchRecord, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *postgresMatchRepository) List(ctx context.Context, filter MatchFilter) ([]*models.MatchRecord, error) {
	qb := &queryBuilder{}
	if filter.ParticipantID != "" {
		qb.add("m.participant_id = ?", filter.ParticipantID)
	}
	if filter.StudyIDs != nil {
		qb.addIn("p.study_id", filter.StudyIDs)
	}
	if filter.IsActive != nil {
		qb.add("m.is_active = ?", *filter.IsActive)
	}
	if filter.IsUsed != nil {
		qb.add("m.is_used = ?", *filter.IsUsed)
	}
	query := `
		SELECT m.id, m.participant_id, m.preset_id, m.level_id, m.phase_id, m.intervention_id, m.moment_id,
		       m.result_id, m.screen_size, m.date, m.is_active, m.is_used
		FROM matches m
		JOIN participants p ON p.id = m.participant_id` + qb.where() + `
		ORDER BY m.date ASC, m.id ASC`

	rows, err := r.db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.MatchRecord, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) Save(ctx context.Context, exec SQLExecutor, m *models.MatchRecord) error {
	if m == nil || strings.TrimSpace(m.ID) == "" {
		return ErrMatchIDRequired
	}
	executor := getExecutor(exec, r.db)

	// Две попытки: если строка появилась или исчезла между чтением и записью,
	// guard повторяется один раз.
	for attempt := 0; attempt < 2; attempt++ {
		stored, err := r.getByID(ctx, executor, m.ID)
		switch {
		case err == nil:
			m.ProtectExternalFields(stored)
			updated, err := r.update(ctx, executor, m)
			if err != nil {
				return err
			}
			if updated {
				return nil
			}
			// deleted since the read; fall through to creation
		case errors.Is(err, ErrMatchNotFound):
		default:
			return err
		}

		created, err := r.CreateIfAbsent(ctx, executor, m)
		if err != nil {
			return err
		}
		if created {
			return nil
		}
	}
	return ErrMatchSaveConflict
}

func (r *postgresMatchRepository) update(ctx context.Context, exec SQLExecutor, m *models.MatchRecord) (bool, error) {
	query := `
		UPDATE matches
		SET participant_id = $1, preset_id = $2, level_id = $3, phase_id = $4, intervention_id = $5,
		    moment_id = $6, result_id = $7, screen_size = $8, date = $9, is_active = $10, is_used = $11
		WHERE id = $12`

	result, err := exec.ExecContext(ctx, query,
		m.ParticipantID,
		m.PresetID,
		m.LevelID,
		m.PhaseID,
		m.InterventionID,
		m.MomentID,
		m.ResultID,
		m.ScreenSize,
		m.DateValue(),
		m.IsActive,
		m.IsUsed,
		m.ID,
	)
	if err != nil {
		return false, r.handleMatchError(err, m.ID)
	}
	if err := checkAffectedRows(result, ErrMatchNotFound); err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *postgresMatchRepository) CountByParticipant(ctx context.Context, participantID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM matches WHERE participant_id = $1`
	if err := r.db.QueryRowContext(ctx, query, participantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count matches of participant %s: %w", participantID, err)
	}
	return n, nil
}
