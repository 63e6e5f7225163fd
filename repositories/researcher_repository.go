package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edudati/openheal-research/models"
)

var (
	ErrResearcherNotFound      = errors.New("researcher not found")
	ErrResearcherUsernameTaken = errors.New("researcher username already exists")
	ErrResearcherStudyInvalid  = errors.New("researcher study link references an unknown researcher or study")
)

type ResearcherRepository interface {
	Create(ctx context.Context, exec SQLExecutor, researcher *models.Researcher) error
	GetByID(ctx context.Context, id string) (*models.Researcher, error)
	// FindByLogin returns every account whose username or email equals login,
	// ignoring case.
	FindByLogin(ctx context.Context, login string) ([]*models.Researcher, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	AddStudy(ctx context.Context, exec SQLExecutor, researcherID, studyID string) error
	StudyIDs(ctx context.Context, researcherID string) ([]string, error)
}

type postgresResearcherRepository struct {
	db *sql.DB
}

func NewPostgresResearcherRepository(db *sql.DB) ResearcherRepository {
	return &postgresResearcherRepository{db: db}
}

const researcherColumns = `id, username, email, password_hash, first_name, last_name, institution, is_superuser, is_active, created_at`

func (r *postgresResearcherRepository) Create(ctx context.Context, exec SQLExecutor, researcher *models.Researcher) error {
	executor := getExecutor(exec, r.db)
	query := `
		INSERT INTO researchers (` + researcherColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := executor.ExecContext(ctx, query,
		researcher.ID,
		researcher.Username,
		researcher.Email,
		researcher.PasswordHash,
		researcher.FirstName,
		researcher.LastName,
		researcher.Institution,
		researcher.IsSuperuser,
		researcher.IsActive,
		researcher.CreatedAt,
	)
	if err != nil {
		if code, constraint := pqConstraint(err); code == pqUniqueViolation && constraint == "researchers_username_key" {
			return ErrResearcherUsernameTaken
		}
		return fmt.Errorf("failed to create researcher: %w", err)
	}
	return nil
}

func scanResearcher(row rowScanner) (*models.Researcher, error) {
	rs := &models.Researcher{}
	err := row.Scan(
		&rs.ID,
		&rs.Username,
		&rs.Email,
		&rs.PasswordHash,
		&rs.FirstName,
		&rs.LastName,
		&rs.Institution,
		&rs.IsSuperuser,
		&rs.IsActive,
		&rs.CreatedAt,
	)
	return rs, err
}

func (r *postgresResearcherRepository) GetByID(ctx context.Context, id string) (*models.Researcher, error) {
	query := `SELECT ` + researcherColumns + ` FROM researchers WHERE id = $1`
	rs, err := scanResearcher(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResearcherNotFound
		}
		return nil, fmt.Errorf("failed to get researcher by id: %w", err)
	}
	return rs, nil
}

func (r *postgresResearcherRepository) FindByLogin(ctx context.Context, login string) ([]*models.Researcher, error) {
	query := `
		SELECT ` + researcherColumns + `
		FROM researchers
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, login)
	if err != nil {
		return nil, fmt.Errorf("failed to find researchers by login: %w", err)
	}
	defer rows.Close()

	researchers := make([]*models.Researcher, 0, 1)
	for rows.Next() {
		rs, err := scanResearcher(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan researcher row: %w", err)
		}
		researchers = append(researchers, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating researcher rows: %w", err)
	}
	return researchers, nil
}

func (r *postgresResearcherRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM researchers WHERE LOWER(email) = LOWER($1))`
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check researcher email: %w", err)
	}
	return exists, nil
}

func (r *postgresResearcherRepository) AddStudy(ctx context.Context, exec SQLExecutor, researcherID, studyID string) error {
	executor := getExecutor(exec, r.db)
	query := `
		INSERT INTO researcher_studies (researcher_id, study_id)
		VALUES ($1, $2)
		ON CONFLICT (researcher_id, study_id) DO NOTHING`

	if _, err := executor.ExecContext(ctx, query, researcherID, studyID); err != nil {
		if code, _ := pqConstraint(err); code == pqForeignKeyViolation {
			return ErrResearcherStudyInvalid
		}
		return fmt.Errorf("failed to link researcher %s to study %s: %w", researcherID, studyID, err)
	}
	return nil
}

func (r *postgresResearcherRepository) StudyIDs(ctx context.Context, researcherID string) ([]string, error) {
	query := `SELECT study_id FROM researcher_studies WHERE researcher_id = $1 ORDER BY study_id`
	rows, err := r.db.QueryContext(ctx, query, researcherID)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies of researcher %s: %w", researcherID, err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan researcher study row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating researcher study rows: %w", err)
	}
	return ids, nil
}
