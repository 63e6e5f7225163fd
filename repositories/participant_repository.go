package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edudati/openheal-research/models"
)

var (
	ErrParticipantNotFound     = errors.New("participant not found")
	ErrParticipantConflict     = errors.New("participant conflict: identity already registered")
	ErrParticipantEmailTaken   = errors.New("participant email already used in this study")
	ErrParticipantStudyInvalid = errors.New("participant study conflict or invalid")
	ErrParticipantInvalidGroup = errors.New("participant group must be control or experimental")
)

// ParticipantFilter narrows List. Nil StudyIDs means no scope restriction; a
// non-nil empty slice matches nothing.
type ParticipantFilter struct {
	IDs       []string
	StudyCode string
	StudyIDs  []string
	Group     models.ParticipantGroup
}

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	FindByID(ctx context.Context, id string) (*models.Participant, error)
	List(ctx context.Context, filter ParticipantFilter) ([]*models.Participant, error)
	Delete(ctx context.Context, id string) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := getExecutor(exec, r.db)
	query := `
		INSERT INTO participants (id, study_id, name, email, group_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := executor.ExecContext(ctx, query,
		p.ID,
		p.StudyID,
		p.Name,
		p.Email,
		p.Group,
		p.CreatedAt,
	)
	if err != nil {
		return mapParticipantError(err)
	}
	return nil
}

func mapParticipantError(err error) error {
	code, constraint := pqConstraint(err)
	switch code {
	case pqUniqueViolation:
		switch constraint {
		case "participants_pkey":
			return ErrParticipantConflict
		case "participants_study_id_email_key":
			return ErrParticipantEmailTaken
		}
	case pqForeignKeyViolation:
		if constraint == "participants_study_id_fkey" {
			return ErrParticipantStudyInvalid
		}
	case pqCheckViolation:
		if constraint == "chk_participant_group" {
			return ErrParticipantInvalidGroup
		}
	}
	return fmt.Errorf("failed to create participant: %w", err)
}

const participantSelect = `
	SELECT p.id, p.study_id, p.name, p.email, p.group_name, p.created_at,
	       s.id, s.code, s.title, s.description, s.start_date, s.end_date, s.is_active, s.created_at
	FROM participants p
	JOIN studies s ON s.id = p.study_id`

func scanParticipant(row rowScanner) (*models.Participant, error) {
	p := &models.Participant{Study: &models.Study{}}
	err := row.Scan(
		&p.ID,
		&p.StudyID,
		&p.Name,
		&p.Email,
		&p.Group,
		&p.CreatedAt,
		&p.Study.ID,
		&p.Study.Code,
		&p.Study.Title,
		&p.Study.Description,
		&p.Study.StartDate,
		&p.Study.EndDate,
		&p.Study.IsActive,
		&p.Study.CreatedAt,
	)
	return p, err
}

func (r *postgresParticipantRepository) FindByID(ctx context.Context, id string) (*models.Participant, error) {
	p, err := scanParticipant(r.db.QueryRowContext(ctx, participantSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}
	return p, nil
}

func (r *postgresParticipantRepository) List(ctx context.Context, filter ParticipantFilter) ([]*models.Participant, error) {
	qb := &queryBuilder{}
	if filter.IDs != nil {
		qb.addIn("p.id", filter.IDs)
	}
	if filter.StudyCode != "" {
		qb.add("s.code = ?", filter.StudyCode)
	}
	if filter.StudyIDs != nil {
		qb.addIn("p.study_id", filter.StudyIDs)
	}
	if filter.Group != "" {
		qb.add("p.group_name = ?", filter.Group)
	}
	query := participantSelect + qb.where() + ` ORDER BY s.code ASC, p.id ASC`

	rows, err := r.db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}
	return participants, nil
}

func (r *postgresParticipantRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}
