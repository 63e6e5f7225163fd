package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edudati/openheal-research/models"
)

var (
	ErrStudyNotFound     = errors.New("study not found")
	ErrStudyCodeConflict = errors.New("study code already exists")
)

type StudyRepository interface {
	Create(ctx context.Context, study *models.Study) error
	GetByID(ctx context.Context, id string) (*models.Study, error)
	GetByCode(ctx context.Context, code string) (*models.Study, error)
	// List returns all studies when ids is nil, otherwise only the listed ones.
	List(ctx context.Context, ids []string) ([]*models.Study, error)
}

type postgresStudyRepository struct {
	db *sql.DB
}

func NewPostgresStudyRepository(db *sql.DB) StudyRepository {
	return &postgresStudyRepository{db: db}
}

const studyColumns = `id, code, title, description, start_date, end_date, is_active, created_at`

func (r *postgresStudyRepository) Create(ctx context.Context, study *models.Study) error {
	query := `
		INSERT INTO studies (` + studyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		study.ID,
		study.Code,
		study.Title,
		study.Description,
		study.StartDate,
		study.EndDate,
		study.IsActive,
		study.CreatedAt,
	)
	if err != nil {
		if code, constraint := pqConstraint(err); code == pqUniqueViolation && constraint == "studies_code_key" {
			return ErrStudyCodeConflict
		}
		return fmt.Errorf("failed to create study: %w", err)
	}
	return nil
}

func scanStudy(row rowScanner) (*models.Study, error) {
	s := &models.Study{}
	err := row.Scan(
		&s.ID,
		&s.Code,
		&s.Title,
		&s.Description,
		&s.StartDate,
		&s.EndDate,
		&s.IsActive,
		&s.CreatedAt,
	)
	return s, err
}

func (r *postgresStudyRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Study, error) {
	s, err := scanStudy(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudyNotFound
		}
		return nil, fmt.Errorf("failed to find study: %w", err)
	}
	return s, nil
}

func (r *postgresStudyRepository) GetByID(ctx context.Context, id string) (*models.Study, error) {
	return r.findOne(ctx, `SELECT `+studyColumns+` FROM studies WHERE id = $1`, id)
}

func (r *postgresStudyRepository) GetByCode(ctx context.Context, code string) (*models.Study, error) {
	return r.findOne(ctx, `SELECT `+studyColumns+` FROM studies WHERE code = $1`, code)
}

func (r *postgresStudyRepository) List(ctx context.Context, ids []string) ([]*models.Study, error) {
	qb := &queryBuilder{}
	if ids != nil {
		qb.addIn("id", ids)
	}
	query := `SELECT ` + studyColumns + ` FROM studies` + qb.where() + ` ORDER BY code ASC`

	rows, err := r.db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	defer rows.Close()

	studies := make([]*models.Study, 0)
	for rows.Next() {
		s, err := scanStudy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan study row: %w", err)
		}
		studies = append(studies, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating study rows: %w", err)
	}
	return studies, nil
}
